// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"
)

// pattern returns a small image whose pixels depend on seed, so two
// fixtures with different seeds have different bytes.
func pattern(seed int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := range 8 {
		for x := range 8 {
			img.Set(x, y, color.RGBA{R: uint8(x*32 + seed), G: uint8(y*32 + seed*7), B: uint8(seed), A: 255})
		}
	}
	return img
}

// PNG returns an 8x8 PNG image.
func PNG(t testing.TB, seed int) []byte {
	t.Helper()
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, pattern(seed)); err != nil {
		t.Fatalf("encoding PNG fixture: %v", err)
	}
	return buffer.Bytes()
}

// JPEG returns an 8x8 baseline JPEG image.
func JPEG(t testing.TB, seed int) []byte {
	t.Helper()
	var buffer bytes.Buffer
	if err := jpeg.Encode(&buffer, pattern(seed), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encoding JPEG fixture: %v", err)
	}
	return buffer.Bytes()
}

// GIF returns an 8x8 paletted GIF image.
func GIF(t testing.TB, seed int) []byte {
	t.Helper()
	var buffer bytes.Buffer
	if err := gif.Encode(&buffer, pattern(seed), nil); err != nil {
		t.Fatalf("encoding GIF fixture: %v", err)
	}
	return buffer.Bytes()
}

// WAV returns a mono 16-bit PCM RIFF/WAVE file with samples frames
// of a ramp starting at seed.
func WAV(t testing.TB, seed, samples int) []byte {
	t.Helper()
	data := make([]byte, samples*2)
	for i := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(seed+i*64))
	}

	var buffer bytes.Buffer
	buffer.WriteString("RIFF")
	binary.Write(&buffer, binary.LittleEndian, uint32(4+8+16+8+len(data)))
	buffer.WriteString("WAVE")
	buffer.WriteString("fmt ")
	binary.Write(&buffer, binary.LittleEndian, uint32(16))
	binary.Write(&buffer, binary.LittleEndian, []uint16{1, 1})             // PCM, mono
	binary.Write(&buffer, binary.LittleEndian, []uint32{16000, 16000 * 2}) // rate, byte rate
	binary.Write(&buffer, binary.LittleEndian, []uint16{2, 16})            // block align, bits
	buffer.WriteString("data")
	binary.Write(&buffer, binary.LittleEndian, uint32(len(data)))
	buffer.Write(data)
	return buffer.Bytes()
}

// MP4 returns an ISO base media file: ftyp, an empty moov and an mdat
// carrying payload bytes derived from seed.
func MP4(t testing.TB, seed, payload int) []byte {
	t.Helper()
	var buffer bytes.Buffer
	box := func(kind string, body []byte) {
		binary.Write(&buffer, binary.BigEndian, uint32(8+len(body)))
		buffer.WriteString(kind)
		buffer.Write(body)
	}
	box("ftyp", []byte("isom\x00\x00\x02\x00isommp41"))
	box("moov", nil)
	media := make([]byte, payload)
	for i := range media {
		media[i] = byte(seed + i)
	}
	box("mdat", media)
	return buffer.Bytes()
}

// Truncate returns the first half of data.
func Truncate(data []byte) []byte {
	return bytes.Clone(data[:len(data)/2])
}
