// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds datapack's CBOR configuration.
//
// Human-facing files (manifest.json, dataset_config.yaml, CLI --json
// output) are JSON or YAML. Binary metadata embedded in archive volumes
// (volume headers, the stored manifest) is CBOR, encoded with Core
// Deterministic Encoding (RFC 8949 §4.2): sorted map keys, smallest
// integer encoding, no indefinite-length items. The same manifest
// therefore always produces the same bytes, which is what makes the
// archive id (a fingerprint of those bytes) reproducible.
//
// Decoding rejects duplicate map keys and bounds collection sizes and
// nesting, since volume files may arrive from untrusted transfers.
//
// Types that serialize to both JSON and CBOR carry only `json` tags;
// fxamacker/cbor falls back to them when `cbor` tags are absent.
package codec
