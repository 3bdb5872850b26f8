// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package volume

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/datapack/lib/codec"
	"github.com/bureau-foundation/datapack/lib/fingerprint"
)

// Magic opens every volume file.
const Magic = "DPVOLUME"

// FormatVersion is the current volume layout version.
const FormatVersion uint16 = 1

// FlagSealed marks a volume whose header and payload are an age
// stream.
const FlagSealed uint16 = 1 << 0

// PreambleSize is magic(8) + version(2) + flags(2) + header length(4).
// The preamble is never encrypted.
const PreambleSize = 16

// maxHeaderLength bounds the header a reader will allocate.
const maxHeaderLength = 256 << 20

// Extension is the volume file extension.
const Extension = ".dpv"

// ErrNotVolume is returned for a file that does not start with Magic.
var ErrNotVolume = errors.New("not a datapack volume")

// EntryKind identifies what an entry's bytes are.
type EntryKind string

const (
	// KindManifest is the CBOR manifest of the whole archive. Exactly
	// one volume of a set holds it.
	KindManifest EntryKind = "manifest"
	// KindCatalog is the archived dataset_config.yaml.
	KindCatalog EntryKind = "catalog"
	// KindMetaFile is a JSONL file with references in logical form;
	// Name is its logical path.
	KindMetaFile EntryKind = "metafile"
	// KindBlob is one unique content blob; Name is its fingerprint.
	KindBlob EntryKind = "blob"
)

// Header is the CBOR document following the preamble.
type Header struct {
	// ArchiveID is the hex fingerprint of the manifest bytes. Every
	// volume of one archive carries the same id.
	ArchiveID string `json:"archive_id"`
	// Index is 1-based.
	Index int `json:"index"`
	Total int `json:"total"`
	// Entries are in payload order; Offset is relative to the first
	// payload byte.
	Entries []Entry `json:"entries"`
}

// Entry locates one stored item in the payload. Stored bytes are a
// lib/compress frame stream of Length bytes decoding to Size bytes
// whose fingerprint is Fingerprint.
type Entry struct {
	Kind        EntryKind               `json:"kind"`
	Name        string                  `json:"name"`
	Offset      int64                   `json:"offset"`
	Length      int64                   `json:"length"`
	Size        int64                   `json:"size"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Compression string                  `json:"compression"`
}

// PayloadLength is the sum of entry lengths.
func (h *Header) PayloadLength() int64 {
	var total int64
	for _, entry := range h.Entries {
		total += entry.Length
	}
	return total
}

func (h *Header) check() error {
	if h.Total < 1 {
		return fmt.Errorf("volume total %d is less than 1", h.Total)
	}
	if h.Index < 1 || h.Index > h.Total {
		return fmt.Errorf("volume index %d outside 1..%d", h.Index, h.Total)
	}
	if h.ArchiveID == "" {
		return fmt.Errorf("volume has no archive id")
	}
	var next int64
	for i, entry := range h.Entries {
		if entry.Offset != next {
			return fmt.Errorf("entry %d (%s %s) at offset %d, expected %d", i, entry.Kind, entry.Name, entry.Offset, next)
		}
		if entry.Length < 0 || entry.Size < 0 {
			return fmt.Errorf("entry %d (%s %s) has negative length", i, entry.Kind, entry.Name)
		}
		next += entry.Length
	}
	return nil
}

// FileName returns the file name of volume index of archive name.
func FileName(name string, index int) string {
	return fmt.Sprintf("%s.part%04d%s", name, index, Extension)
}

type preamble struct {
	version      uint16
	flags        uint16
	headerLength uint32
}

func (p preamble) encode() []byte {
	buffer := make([]byte, PreambleSize)
	copy(buffer, Magic)
	binary.LittleEndian.PutUint16(buffer[8:10], p.version)
	binary.LittleEndian.PutUint16(buffer[10:12], p.flags)
	binary.LittleEndian.PutUint32(buffer[12:16], p.headerLength)
	return buffer
}

func readPreamble(r io.Reader) (preamble, error) {
	buffer := make([]byte, PreambleSize)
	if _, err := io.ReadFull(r, buffer); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return preamble{}, ErrNotVolume
		}
		return preamble{}, err
	}
	if string(buffer[:8]) != Magic {
		return preamble{}, ErrNotVolume
	}
	p := preamble{
		version:      binary.LittleEndian.Uint16(buffer[8:10]),
		flags:        binary.LittleEndian.Uint16(buffer[10:12]),
		headerLength: binary.LittleEndian.Uint32(buffer[12:16]),
	}
	if p.version != FormatVersion {
		return preamble{}, fmt.Errorf("unsupported volume format version %d (this build reads %d)", p.version, FormatVersion)
	}
	if p.flags&^FlagSealed != 0 {
		return preamble{}, fmt.Errorf("unknown volume flags %#x", p.flags)
	}
	if p.headerLength == 0 || p.headerLength > maxHeaderLength {
		return preamble{}, fmt.Errorf("volume header length %d out of range", p.headerLength)
	}
	return p, nil
}

func encodeHeader(header *Header) ([]byte, error) {
	data, err := codec.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("encoding volume header: %w", err)
	}
	return data, nil
}

func decodeHeader(r io.Reader, length uint32) (*Header, error) {
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading volume header: %w", err)
	}
	var header Header
	if err := codec.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("decoding volume header: %w", err)
	}
	if err := header.check(); err != nil {
		return nil, fmt.Errorf("invalid volume header: %w", err)
	}
	return &header, nil
}
