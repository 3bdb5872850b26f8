// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package volume splits an archive across bounded-size volume files
// and reassembles the set.
//
// A volume file is
//
//	"DPVOLUME" | version u16 | flags u16 | header length u32 | CBOR header | payload
//
// The 16-byte preamble is always plaintext. With [FlagSealed] set, the
// header and payload that follow are a single age stream. The header
// ([Header]) names the archive, this volume's 1-based index, the
// total count, and one [Entry] per stored item with its byte range in
// the payload.
//
// [Plan] assigns items to volumes next-fit in archive order. Items
// never straddle volumes; an item larger than the limit gets a volume
// of its own. [WriteSet] writes the planned volumes under .partial
// names and renames them only when every volume succeeded.
//
// [OpenSet] validates a collection of volume files as one complete
// archive and returns a *[MissingVolumeError] naming absent indices
// when it is not. [OpenStream] reads a volume's entries in order,
// which is the only access pattern a sealed stream allows.
package volume
