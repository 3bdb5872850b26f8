// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive packs datasets into a deduplicated volume set.
//
// [Archive] runs in two parallel phases separated by join barriers.
// The first hashes every referenced media file (and, optionally, every
// unreferenced file under a dataset root) and claims each fingerprint
// in a lock-striped index; the entry earliest in traversal order owns
// the content, so the canonical source of a duplicate is the same on
// every run. The second compresses each unique blob from its canonical
// source into a staging directory, then rewrites the JSONL metafiles so
// media references hold logical paths ("<dataset>/<relative path>").
//
// The [Manifest] maps every logical path to its blob. Its CBOR
// encoding is the first volume entry and its fingerprint is the
// archive id recorded in every volume header; an indented JSON copy
// is written beside the volumes as manifest.json.
//
// Sources that are missing, unreadable, or change while being archived
// are recorded in the result's outcome and left out. With strict set
// the first such error aborts the run and nothing is written.
package archive
