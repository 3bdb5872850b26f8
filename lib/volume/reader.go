// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package volume

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bureau-foundation/datapack/lib/report"
	"github.com/bureau-foundation/datapack/lib/sealed"
)

// Volume is an opened volume file's metadata.
type Volume struct {
	Path   string  `json:"path"`
	Sealed bool    `json:"sealed"`
	Header *Header `json:"header"`
	// FileSize is the size on disk.
	FileSize int64 `json:"file_size"`
}

// ReadHeader reads and validates the header of the volume at path.
// Sealed volumes need identities to read even the header. For
// unsealed volumes the file size is checked against the header, so a
// truncated volume is rejected here rather than mid-restore.
func ReadHeader(path string, identities []sealed.Identity) (*Volume, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, report.NewIOError("open", path, err)
	}
	defer file.Close()

	volume, _, err := readHeader(path, file, identities)
	return volume, err
}

func readHeader(path string, file *os.File, identities []sealed.Identity) (*Volume, io.Reader, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, nil, report.NewIOError("stat", path, err)
	}
	buffered := bufio.NewReaderSize(file, 1<<20)
	pre, err := readPreamble(buffered)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	volume := &Volume{Path: path, Sealed: pre.flags&FlagSealed != 0, FileSize: info.Size()}
	var body io.Reader = buffered
	if volume.Sealed {
		body, err = sealed.Decrypt(buffered, identities)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	volume.Header, err = decodeHeader(body, pre.headerLength)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	if !volume.Sealed {
		expected := int64(PreambleSize) + int64(pre.headerLength) + volume.Header.PayloadLength()
		if info.Size() != expected {
			return nil, nil, fmt.Errorf("%s: volume is %d bytes, header describes %d (truncated or padded)", path, info.Size(), expected)
		}
	}
	return volume, body, nil
}

// MissingVolumeError reports an incomplete volume set.
type MissingVolumeError struct {
	ArchiveID string
	Total     int
	// Missing lists absent 1-based indices in ascending order.
	Missing []int
}

func (e *MissingVolumeError) Error() string {
	indices := make([]string, len(e.Missing))
	for i, index := range e.Missing {
		indices[i] = fmt.Sprint(index)
	}
	return fmt.Sprintf("incomplete volume set: missing %d of %d volumes (%s)",
		len(e.Missing), e.Total, strings.Join(indices, ", "))
}

// ErrMixedSet is returned when the given volumes belong to different
// archives or disagree on the volume count.
var ErrMixedSet = errors.New("volumes belong to different archives")

// Set is a complete, validated volume set.
type Set struct {
	ArchiveID string
	// Volumes are ordered by index.
	Volumes []*Volume
}

// OpenSet reads every header and checks the volumes form exactly one
// complete archive: one archive id, one total, no duplicate index,
// no missing index.
func OpenSet(paths []string, identities []sealed.Identity) (*Set, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no volumes given")
	}

	byIndex := map[int]*Volume{}
	var first *Volume
	for _, path := range paths {
		volume, err := ReadHeader(path, identities)
		if err != nil {
			return nil, err
		}
		if first == nil {
			first = volume
		}
		if volume.Header.ArchiveID != first.Header.ArchiveID {
			return nil, fmt.Errorf("%w: %s has archive %s, %s has %s", ErrMixedSet,
				filepath.Base(first.Path), first.Header.ArchiveID, filepath.Base(path), volume.Header.ArchiveID)
		}
		if volume.Header.Total != first.Header.Total {
			return nil, fmt.Errorf("%w: %s says %d volumes, %s says %d", ErrMixedSet,
				filepath.Base(first.Path), first.Header.Total, filepath.Base(path), volume.Header.Total)
		}
		if existing, ok := byIndex[volume.Header.Index]; ok {
			return nil, fmt.Errorf("volume %d given twice: %s and %s", volume.Header.Index, existing.Path, path)
		}
		byIndex[volume.Header.Index] = volume
	}

	total := first.Header.Total
	set := &Set{ArchiveID: first.Header.ArchiveID, Volumes: make([]*Volume, 0, total)}
	var missing []int
	for index := 1; index <= total; index++ {
		volume, ok := byIndex[index]
		if !ok {
			missing = append(missing, index)
			continue
		}
		set.Volumes = append(set.Volumes, volume)
	}
	if len(missing) > 0 {
		return nil, &MissingVolumeError{ArchiveID: set.ArchiveID, Total: total, Missing: missing}
	}
	return set, nil
}

// Discover returns the *.dpv files in directory, sorted.
func Discover(directory string) ([]string, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, report.NewIOError("read directory", directory, err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), Extension) {
			paths = append(paths, filepath.Join(directory, entry.Name()))
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// Find returns the entry of kind and name across the set.
func (s *Set) Find(kind EntryKind, name string) (*Volume, *Entry, bool) {
	for _, volume := range s.Volumes {
		for i := range volume.Header.Entries {
			entry := &volume.Header.Entries[i]
			if entry.Kind == kind && entry.Name == name {
				return volume, entry, true
			}
		}
	}
	return nil, nil, false
}

// TotalSize is the sum of raw entry sizes across the set.
func (s *Set) TotalSize() int64 {
	var total int64
	for _, volume := range s.Volumes {
		for _, entry := range volume.Header.Entries {
			total += entry.Size
		}
	}
	return total
}

// Stream reads a volume's entries sequentially, in payload order.
// Sealed volumes can only be read this way.
type Stream struct {
	file    *os.File
	body    io.Reader
	entries []Entry
	next    int
	current *io.LimitedReader
	path    string
}

// OpenStream opens the volume for sequential entry reads. The caller
// must Close the stream.
func OpenStream(path string, identities []sealed.Identity) (*Stream, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, report.NewIOError("open", path, err)
	}
	volume, body, err := readHeader(path, file, identities)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &Stream{file: file, body: body, entries: volume.Header.Entries, path: path}, nil
}

// Next advances to the next entry and returns it with a reader over
// exactly its stored bytes. Unread bytes of the previous entry are
// skipped. Next returns io.EOF after the last entry.
func (s *Stream) Next() (Entry, io.Reader, error) {
	if s.current != nil && s.current.N > 0 {
		if _, err := io.Copy(io.Discard, s.current); err != nil {
			return Entry{}, nil, report.NewIOError("read", s.path, err)
		}
		if s.current.N > 0 {
			return Entry{}, nil, report.NewIOError("read", s.path, io.ErrUnexpectedEOF)
		}
	}
	if s.next >= len(s.entries) {
		return Entry{}, nil, io.EOF
	}
	entry := s.entries[s.next]
	s.next++
	s.current = &io.LimitedReader{R: s.body, N: entry.Length}
	return entry, &exactReader{limited: s.current, path: s.path}, nil
}

// Close releases the volume file.
func (s *Stream) Close() error {
	return s.file.Close()
}

// exactReader turns an early end of the underlying stream into
// io.ErrUnexpectedEOF, so truncation is never mistaken for the end of
// an entry.
type exactReader struct {
	limited *io.LimitedReader
	path    string
}

func (r *exactReader) Read(p []byte) (int, error) {
	if r.limited.N <= 0 {
		return 0, io.EOF
	}
	n, err := r.limited.Read(p)
	if errors.Is(err, io.EOF) && r.limited.N > 0 {
		return n, report.NewIOError("read", r.path, io.ErrUnexpectedEOF)
	}
	return n, err
}
