// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress implements the frame stream that archive blobs and
// metafiles are stored in.
//
// A stream is a sequence of frames, each holding at most [FrameSize]
// raw bytes:
//
//	tag (1) | reserved (3, zero) | stored length (u32 LE) | raw length (u32 LE) | payload
//
// Each frame picks its own codec ([TagNone], [TagLZ4], [TagZstd]), so
// a large video stays uncompressed while a JSONL file is zstd
// throughout. In [ModeAuto] the choice comes from the content [Hint];
// unknown content is probed with zstd and classified by ratio. A
// frame whose compressed form is not smaller than its raw form is
// stored as [TagNone].
//
// The stream carries no length or checksum of its own. Callers bound
// it externally (volume entry lengths) and verify content by
// fingerprint after decoding.
package compress
