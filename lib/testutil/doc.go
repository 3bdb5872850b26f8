// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for datapack packages.
//
// [PNG], [JPEG], [GIF], [WAV] and [MP4] build small, structurally
// valid media files; [Truncate] cuts one short so it reads as corrupt.
// Decoders and structure checks accept the fixtures, so tests can
// exercise the media validator and the archiver with real formats
// instead of opaque bytes.
//
// [WriteFile], [WriteJSONL] and [Sample] lay out dataset trees:
// JSONL metafiles under MetaFiles/, media under MediaFiles/, in the
// shape the dataset package discovers.
//
// [UniqueID] generates monotonically increasing identifiers. Use it
// when a test needs distinguishable file contents or names without
// depending on the clock.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no datapack-internal dependencies.
package testutil
