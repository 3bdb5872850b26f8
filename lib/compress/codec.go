// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the codec of one frame. Tags are written into every
// frame header; the values are format constants.
type Tag uint8

const (
	// TagNone stores the frame payload as-is. Used for media that is
	// already compressed and for frames that do not shrink.
	TagNone Tag = 0

	// TagLZ4 is LZ4 block compression: fast, modest ratio.
	TagLZ4 Tag = 1

	// TagZstd is zstd at the default level. Chosen for JSONL, YAML and
	// anything else text-like.
	TagZstd Tag = 2
)

func (tag Tag) String() string {
	switch tag {
	case TagNone:
		return "none"
	case TagLZ4:
		return "lz4"
	case TagZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

func (tag Tag) valid() bool {
	return tag <= TagZstd
}

// Mode is the configured compression policy for a stream.
type Mode string

const (
	// ModeAuto picks a codec per frame from the content hint and, for
	// unknown content, a zstd probe.
	ModeAuto Mode = "auto"
	ModeNone Mode = "none"
	ModeLZ4  Mode = "lz4"
	ModeZstd Mode = "zstd"
)

// ParseMode parses a mode name. The empty string is ModeAuto.
func ParseMode(name string) (Mode, error) {
	switch Mode(name) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeNone, ModeLZ4, ModeZstd:
		return Mode(name), nil
	default:
		return "", fmt.Errorf("unknown compression mode %q (want auto, none, lz4 or zstd)", name)
	}
}

// Hint describes the content being compressed so ModeAuto can skip
// the probe.
type Hint int

const (
	// HintUnknown content is probed.
	HintUnknown Hint = iota
	// HintMedia is image, audio or video data, already compressed by
	// its container format.
	HintMedia
	// HintText is JSON, JSONL, YAML and similar.
	HintText
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

// Select returns the codec for one frame of data under mode.
func Select(data []byte, mode Mode, hint Hint) Tag {
	switch mode {
	case ModeNone:
		return TagNone
	case ModeLZ4:
		return TagLZ4
	case ModeZstd:
		return TagZstd
	}

	switch hint {
	case HintMedia:
		return TagNone
	case HintText:
		return TagZstd
	}

	if len(data) == 0 {
		return TagNone
	}
	probe := zstdEncoder.EncodeAll(data, nil)
	ratio := float64(len(data)) / float64(len(probe))
	switch {
	case ratio >= 1.5:
		return TagZstd
	case ratio >= 1.1:
		return TagLZ4
	default:
		return TagNone
	}
}

// encodeBlock compresses data with tag. Incompressible input falls
// back to TagNone, in which case the returned slice is data itself.
func encodeBlock(data []byte, tag Tag) ([]byte, Tag, error) {
	switch tag {
	case TagNone:
		return data, TagNone, nil

	case TagLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock reports 0 for input it cannot shrink.
		if written == 0 || written >= len(data) {
			return data, TagNone, nil
		}
		return destination[:written], TagLZ4, nil

	case TagZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return data, TagNone, nil
		}
		return compressed, TagZstd, nil

	default:
		return nil, 0, fmt.Errorf("unsupported compression tag %d", uint8(tag))
	}
}

// decodeBlock reverses encodeBlock, checking the result is exactly
// rawSize bytes. destination is reused when large enough.
func decodeBlock(payload []byte, tag Tag, rawSize int, destination []byte) ([]byte, error) {
	switch tag {
	case TagNone:
		if len(payload) != rawSize {
			return nil, fmt.Errorf("%w: stored frame is %d bytes, header says %d", ErrCorruptFrame, len(payload), rawSize)
		}
		return payload, nil

	case TagLZ4:
		if cap(destination) < rawSize {
			destination = make([]byte, rawSize)
		}
		destination = destination[:rawSize]
		read, err := lz4.UncompressBlock(payload, destination)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorruptFrame, err)
		}
		if read != rawSize {
			return nil, fmt.Errorf("%w: lz4 produced %d bytes, header says %d", ErrCorruptFrame, read, rawSize)
		}
		return destination, nil

	case TagZstd:
		result, err := zstdDecoder.DecodeAll(payload, destination[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorruptFrame, err)
		}
		if len(result) != rawSize {
			return nil, fmt.Errorf("%w: zstd produced %d bytes, header says %d", ErrCorruptFrame, len(result), rawSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("%w: unknown tag %d", ErrCorruptFrame, uint8(tag))
	}
}
