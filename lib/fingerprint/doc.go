// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint computes content fingerprints: BLAKE3 in keyed
// mode with a fixed datapack domain key, so the digest of a file can
// never be confused with a BLAKE3 digest of the same bytes computed
// for another purpose.
//
// Files are streamed in [ReadChunkSize] pieces; nothing here ever
// holds a whole file in memory. [HashFile] returns failures as
// *report.IOError carrying the offending path.
//
// A fingerprint is the deduplication key of the archiver. Collisions
// are treated as impossible and not separately handled.
package fingerprint
