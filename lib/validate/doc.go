// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package validate checks dataset content before packaging and after
// restoration.
//
// Every media reference must resolve to an existing file
// ([MediaMissing]) that is a valid instance of its declared kind
// ([MediaCorrupt]). PNG, JPEG and GIF images are decoded in full; WebP,
// BMP and TIFF images, MP4/MOV/M4A (ISO base media boxes), WebM/MKV
// (EBML elements), AVI and WAV (RIFF chunks), FLAC, Ogg and MP3 get
// structure walks that catch truncation. A zero-byte file is always
// corrupt.
//
// For Long-CoT datasets the reasoning annotation (the final assistant
// turn) is scanned into a [Shape] and must match one of the three
// grammars:
//
//	think_answer  <think>reasoning</think><answer>... \boxed{v} ...</answer>
//	think         <think>reasoning</think>text with \boxed{v}
//	no_think      <think></think>text
//
// Optional checks cover multi-turn role order (which also extends the
// grammar to every assistant turn) and placeholder counts.
//
// Violations never stop a run: each is a [Finding] in the [Report],
// carrying a *[MediaIntegrityError] or *[FormatError] where one
// applies.
package validate
