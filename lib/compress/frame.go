// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// FrameSize is the maximum number of raw bytes in one frame. Both
// the writer and the reader hold at most one frame in memory.
const FrameSize = 1 << 20

// frameHeaderSize is tag(1) + reserved(3) + stored length(4) + raw
// length(4).
const frameHeaderSize = 12

// ErrCorruptFrame is wrapped by every error the Reader returns for a
// malformed or truncated frame stream.
var ErrCorruptFrame = errors.New("corrupt compressed frame")

// Writer encodes a byte stream as a sequence of frames. Close must be
// called to flush the final partial frame; it does not close the
// underlying writer.
type Writer struct {
	destination io.Writer
	mode        Mode
	hint        Hint
	buffer      []byte
	header      [frameHeaderSize]byte

	rawBytes    int64
	storedBytes int64
	frames      int
	closed      bool
}

// NewWriter returns a Writer applying mode to every frame. hint is
// consulted only in ModeAuto.
func NewWriter(destination io.Writer, mode Mode, hint Hint) *Writer {
	if mode == "" {
		mode = ModeAuto
	}
	return &Writer{
		destination: destination,
		mode:        mode,
		hint:        hint,
		buffer:      make([]byte, 0, FrameSize),
	}
}

// Write buffers p, emitting a frame each time FrameSize bytes
// accumulate.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("compress: write after close")
	}
	written := 0
	for len(p) > 0 {
		space := FrameSize - len(w.buffer)
		take := min(space, len(p))
		w.buffer = append(w.buffer, p[:take]...)
		p = p[take:]
		written += take
		if len(w.buffer) == FrameSize {
			if err := w.flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Close flushes any buffered bytes as a final frame.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if len(w.buffer) > 0 {
		return w.flush()
	}
	return nil
}

// RawBytes returns the number of bytes accepted by Write.
func (w *Writer) RawBytes() int64 { return w.rawBytes }

// StoredBytes returns the number of bytes written to the destination,
// frame headers included.
func (w *Writer) StoredBytes() int64 { return w.storedBytes }

// Frames returns the number of frames emitted.
func (w *Writer) Frames() int { return w.frames }

func (w *Writer) flush() error {
	data := w.buffer
	payload, tag, err := encodeBlock(data, Select(data, w.mode, w.hint))
	if err != nil {
		return err
	}

	w.header = [frameHeaderSize]byte{}
	w.header[0] = byte(tag)
	binary.LittleEndian.PutUint32(w.header[4:8], uint32(len(payload)))
	binary.LittleEndian.PutUint32(w.header[8:12], uint32(len(data)))

	if _, err := w.destination.Write(w.header[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := w.destination.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}

	w.rawBytes += int64(len(data))
	w.storedBytes += int64(frameHeaderSize + len(payload))
	w.frames++
	w.buffer = w.buffer[:0]
	return nil
}

// Reader decodes a frame stream produced by Writer. The stream ends
// at a clean io.EOF on a frame boundary; anything else is reported as
// ErrCorruptFrame.
type Reader struct {
	source  io.Reader
	header  [frameHeaderSize]byte
	stored  []byte
	scratch []byte
	current []byte
	err     error
}

// NewReader returns a Reader decoding frames from source.
func NewReader(source io.Reader) *Reader {
	return &Reader{source: source}
}

func (r *Reader) Read(p []byte) (int, error) {
	for len(r.current) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.err = r.next()
	}
	n := copy(p, r.current)
	r.current = r.current[n:]
	return n, nil
}

// next decodes one frame into r.current.
func (r *Reader) next() error {
	n, err := io.ReadFull(r.source, r.header[:])
	if err == io.EOF && n == 0 {
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("%w: reading frame header: %v", ErrCorruptFrame, err)
	}

	tag := Tag(r.header[0])
	if !tag.valid() {
		return fmt.Errorf("%w: unknown tag %d", ErrCorruptFrame, r.header[0])
	}
	if r.header[1] != 0 || r.header[2] != 0 || r.header[3] != 0 {
		return fmt.Errorf("%w: reserved header bytes are not zero", ErrCorruptFrame)
	}
	storedLength := binary.LittleEndian.Uint32(r.header[4:8])
	rawLength := binary.LittleEndian.Uint32(r.header[8:12])
	if rawLength == 0 || rawLength > FrameSize {
		return fmt.Errorf("%w: raw length %d outside (0, %d]", ErrCorruptFrame, rawLength, FrameSize)
	}
	// The writer never stores a frame larger than its raw form.
	if storedLength == 0 || storedLength > rawLength {
		return fmt.Errorf("%w: stored length %d invalid for raw length %d", ErrCorruptFrame, storedLength, rawLength)
	}

	if cap(r.stored) < int(storedLength) {
		r.stored = make([]byte, storedLength)
	}
	r.stored = r.stored[:storedLength]
	if _, err := io.ReadFull(r.source, r.stored); err != nil {
		return fmt.Errorf("%w: reading %d-byte payload: %v", ErrCorruptFrame, storedLength, err)
	}

	if cap(r.scratch) < FrameSize {
		r.scratch = make([]byte, 0, FrameSize)
	}
	decoded, err := decodeBlock(r.stored, tag, int(rawLength), r.scratch)
	if err != nil {
		return err
	}
	r.current = decoded
	return nil
}
