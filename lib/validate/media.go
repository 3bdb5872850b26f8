// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"errors"
	"fmt"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bureau-foundation/datapack/lib/dataset"
)

// mediaFormat is one registered container format.
type mediaFormat struct {
	name string
	// kinds are the reference fields the format may appear in.
	kinds []dataset.MediaKind
	check func(r io.ReaderAt, size int64) error
}

var (
	imageKinds = []dataset.MediaKind{dataset.KindImage}
	videoKinds = []dataset.MediaKind{dataset.KindVideo, dataset.KindAudio}
	audioKinds = []dataset.MediaKind{dataset.KindAudio}
)

var mediaFormats = map[string]mediaFormat{
	".png":  {"PNG image", imageKinds, decodeWith(png.Decode)},
	".jpg":  {"JPEG image", imageKinds, decodeWith(jpeg.Decode)},
	".jpeg": {"JPEG image", imageKinds, decodeWith(jpeg.Decode)},
	".gif":  {"GIF image", imageKinds, decodeWith(gif.Decode)},
	".webp": {"WebP image", imageKinds, checkWebP},
	".bmp":  {"BMP image", imageKinds, checkBMP},
	".tif":  {"TIFF image", imageKinds, checkTIFF},
	".tiff": {"TIFF image", imageKinds, checkTIFF},

	".mp4":  {"MP4 video", videoKinds, checkBMFF(false)},
	".m4v":  {"MP4 video", videoKinds, checkBMFF(false)},
	".mov":  {"QuickTime video", videoKinds, checkBMFF(true)},
	".webm": {"WebM video", videoKinds, checkEBML},
	".mkv":  {"Matroska video", videoKinds, checkEBML},
	".avi":  {"AVI video", videoKinds, checkAVI},

	".wav":  {"WAV audio", audioKinds, checkWAV},
	".flac": {"FLAC audio", audioKinds, checkFLAC},
	".ogg":  {"Ogg audio", videoKinds, checkOgg},
	".oga":  {"Ogg audio", audioKinds, checkOgg},
	".opus": {"Opus audio", audioKinds, checkOgg},
	".mp3":  {"MP3 audio", audioKinds, checkMP3},
	".m4a":  {"M4A audio", audioKinds, checkBMFF(false)},
}

// Registered reports whether files named like path get a structure
// check beyond existence.
func Registered(path string) bool {
	_, ok := mediaFormats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// CheckMedia verifies the file at path exists and is a valid instance
// of kind. A failure is a *MediaIntegrityError carrying only the path
// fields; callers attach the sample.
func CheckMedia(path string, kind dataset.MediaKind) error {
	problem := func(p MediaProblem, err error) error {
		return &MediaIntegrityError{Resolved: path, Kind: kind, Problem: p, Err: err}
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return problem(MediaMissing, err)
	}
	if err != nil {
		return problem(MediaCorrupt, err)
	}
	if !info.Mode().IsRegular() {
		return problem(MediaCorrupt, fmt.Errorf("not a regular file"))
	}
	if info.Size() == 0 {
		return problem(MediaCorrupt, fmt.Errorf("file is empty"))
	}

	format, registered := mediaFormats[strings.ToLower(filepath.Ext(path))]
	if !registered {
		return nil
	}
	if kind.IsMedia() && !slices.Contains(format.kinds, kind) {
		return problem(MediaCorrupt, fmt.Errorf("%s file referenced as %s", format.name, kind))
	}

	file, err := os.Open(path)
	if err != nil {
		return problem(MediaCorrupt, err)
	}
	defer file.Close()
	if err := format.check(file, info.Size()); err != nil {
		return problem(MediaCorrupt, fmt.Errorf("invalid %s: %w", format.name, err))
	}
	return nil
}

// errTruncated marks a structure that runs past the end of the file.
var errTruncated = errors.New("truncated")

func decodeWith[T any](decode func(io.Reader) (T, error)) func(io.ReaderAt, int64) error {
	return func(r io.ReaderAt, size int64) error {
		_, err := decode(io.NewSectionReader(r, 0, size))
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return errTruncated
		}
		return err
	}
}

// readAt reads exactly n bytes at offset, reporting a short read as
// errTruncated.
func readAt(r io.ReaderAt, offset int64, n int) ([]byte, error) {
	buffer := make([]byte, n)
	read, err := r.ReadAt(buffer, offset)
	if read == n {
		return buffer, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, errTruncated
	}
	return nil, err
}
