// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/datapack/lib/report"
)

// Size is the byte length of a fingerprint.
const Size = 32

// ReadChunkSize is the buffer size used when streaming a file through
// the hasher. Media files can be many gigabytes; memory use per hash
// is bounded by this constant.
const ReadChunkSize = 64 * 1024

// Fingerprint is a BLAKE3 keyed digest of a file's byte content.
type Fingerprint [Size]byte

// domainKey separates datapack fingerprints from any other BLAKE3 use
// of the same bytes. ASCII "datapack.fingerprint", zero-padded. This
// is a format constant: changing it changes every archive id.
var domainKey = [32]byte{
	'd', 'a', 't', 'a', 'p', 'a', 'c', 'k', '.',
	'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't',
}

// String returns the 64-character hex form.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short returns the first 16 hex characters. Used for relocated file
// names and log lines, never as a map key.
func (f Fingerprint) Short() string {
	return hex.EncodeToString(f[:8])
}

// IsZero reports whether f is the zero value.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// MarshalText encodes the fingerprint as hex so it survives JSON,
// YAML and CBOR (lib/codec encodes TextMarshalers as text strings).
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText parses the hex form produced by MarshalText.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Parse parses a 64-character hex string.
func Parse(hexString string) (Fingerprint, error) {
	var fingerprint Fingerprint
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return fingerprint, fmt.Errorf("parsing fingerprint: %w", err)
	}
	if len(decoded) != Size {
		return fingerprint, fmt.Errorf("fingerprint is %d bytes, want %d", len(decoded), Size)
	}
	copy(fingerprint[:], decoded)
	return fingerprint, nil
}

// Hasher computes a fingerprint incrementally. It implements
// io.Writer so it can sit on one side of an io.MultiWriter while the
// same bytes are being copied elsewhere.
type Hasher struct {
	hasher *blake3.Hasher
	size   int64
}

// NewHasher returns a hasher in its initial keyed state.
func NewHasher() *Hasher {
	// NewKeyed only fails for a key that is not 32 bytes.
	hasher, err := blake3.NewKeyed(domainKey[:])
	if err != nil {
		panic("fingerprint: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return &Hasher{hasher: hasher}
}

// Write adds p to the running digest.
func (h *Hasher) Write(p []byte) (int, error) {
	n, err := h.hasher.Write(p)
	h.size += int64(n)
	return n, err
}

// Size returns the number of bytes written so far.
func (h *Hasher) Size() int64 {
	return h.size
}

// Sum returns the fingerprint of everything written so far. The
// hasher can keep accepting writes afterwards.
func (h *Hasher) Sum() Fingerprint {
	var fingerprint Fingerprint
	copy(fingerprint[:], h.hasher.Sum(nil))
	return fingerprint
}

// Bytes fingerprints an in-memory buffer.
func Bytes(data []byte) Fingerprint {
	hasher := NewHasher()
	hasher.Write(data)
	return hasher.Sum()
}

// HashReader streams r through the hasher in ReadChunkSize pieces and
// returns the fingerprint and the number of bytes read.
func HashReader(r io.Reader) (Fingerprint, int64, error) {
	hasher := NewHasher()
	buffer := make([]byte, ReadChunkSize)
	if _, err := io.CopyBuffer(hasher, onlyReader{r}, buffer); err != nil {
		return Fingerprint{}, hasher.Size(), err
	}
	return hasher.Sum(), hasher.Size(), nil
}

// HashFile fingerprints the file at path. Failures are returned as
// *report.IOError naming path, so the caller can attribute them.
func HashFile(path string) (Fingerprint, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, 0, report.NewIOError("open", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Fingerprint{}, 0, report.NewIOError("stat", path, err)
	}
	if !info.Mode().IsRegular() {
		return Fingerprint{}, 0, report.NewIOError("open", path, fmt.Errorf("not a regular file (%s)", info.Mode().Type()))
	}

	adviseSequential(file)

	fingerprint, size, err := HashReader(file)
	if err != nil {
		return Fingerprint{}, size, report.NewIOError("read", path, err)
	}
	return fingerprint, size, nil
}

// onlyReader hides any WriterTo/ReaderFrom on the wrapped reader so
// io.CopyBuffer honors the bounded buffer.
type onlyReader struct {
	io.Reader
}
