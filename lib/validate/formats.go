// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"slices"
)

// maxStructureSteps bounds box, chunk and page walks so a crafted
// file cannot loop for long.
const maxStructureSteps = 1 << 20

// checkBMFF walks the top-level boxes of an ISO base media file (MP4,
// M4A, MOV). Every box must lie inside the file and a moov box must
// be present. QuickTime files may open with atoms other than ftyp.
func checkBMFF(quicktime bool) func(io.ReaderAt, int64) error {
	return func(r io.ReaderAt, size int64) error {
		var offset int64
		sawMovie := false
		for step := 0; offset < size; step++ {
			if step > maxStructureSteps {
				return fmt.Errorf("too many boxes")
			}
			header, err := readAt(r, offset, 8)
			if err != nil {
				return err
			}
			boxSize := int64(binary.BigEndian.Uint32(header[:4]))
			boxType := string(header[4:8])
			headerSize := int64(8)
			switch boxSize {
			case 0:
				boxSize = size - offset
			case 1:
				large, err := readAt(r, offset+8, 8)
				if err != nil {
					return err
				}
				boxSize = int64(binary.BigEndian.Uint64(large))
				headerSize = 16
			}
			if !printable(header[4:8]) {
				return fmt.Errorf("box at offset %d has invalid type %q", offset, boxType)
			}
			if offset == 0 && boxType != "ftyp" {
				if !quicktime || !slices.Contains([]string{"moov", "mdat", "wide", "free", "skip"}, boxType) {
					return fmt.Errorf("first box is %q, not ftyp", boxType)
				}
			}
			if boxSize < headerSize {
				return fmt.Errorf("box %q at offset %d claims %d bytes", boxType, offset, boxSize)
			}
			if boxSize > size-offset {
				return fmt.Errorf("box %q at offset %d: %w", boxType, offset, errTruncated)
			}
			if boxType == "moov" {
				sawMovie = true
			}
			offset += boxSize
		}
		if !sawMovie {
			return fmt.Errorf("no moov box")
		}
		return nil
	}
}

func printable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// riffChunks walks the chunks of a RIFF file of the given form type
// and returns their ids in order.
func riffChunks(r io.ReaderAt, size int64, form string) ([]string, error) {
	header, err := readAt(r, 0, 12)
	if err != nil {
		return nil, err
	}
	if string(header[:4]) != "RIFF" || string(header[8:12]) != form {
		return nil, fmt.Errorf("not a RIFF %q file", form)
	}
	end := int64(binary.LittleEndian.Uint32(header[4:8])) + 8
	if end > size {
		return nil, fmt.Errorf("RIFF body of %d bytes: %w", end-8, errTruncated)
	}

	var chunks []string
	offset := int64(12)
	for step := 0; offset+8 <= end; step++ {
		if step > maxStructureSteps {
			return nil, fmt.Errorf("too many chunks")
		}
		chunk, err := readAt(r, offset, 8)
		if err != nil {
			return nil, err
		}
		length := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		if offset+8+length > end {
			return nil, fmt.Errorf("chunk %q at offset %d: %w", chunk[:4], offset, errTruncated)
		}
		chunks = append(chunks, string(chunk[:4]))
		offset += 8 + length + length%2
	}
	return chunks, nil
}

func checkWAV(r io.ReaderAt, size int64) error {
	chunks, err := riffChunks(r, size, "WAVE")
	if err != nil {
		return err
	}
	for _, required := range []string{"fmt ", "data"} {
		if !slices.Contains(chunks, required) {
			return fmt.Errorf("no %q chunk", required)
		}
	}
	return nil
}

func checkAVI(r io.ReaderAt, size int64) error {
	chunks, err := riffChunks(r, size, "AVI ")
	if err != nil {
		return err
	}
	if !slices.Contains(chunks, "LIST") {
		return fmt.Errorf("no LIST chunk")
	}
	return nil
}

func checkWebP(r io.ReaderAt, size int64) error {
	chunks, err := riffChunks(r, size, "WEBP")
	if err != nil {
		return err
	}
	if len(chunks) == 0 || !slices.Contains([]string{"VP8 ", "VP8L", "VP8X"}, chunks[0]) {
		return fmt.Errorf("no VP8 bitstream chunk")
	}
	return nil
}

func checkBMP(r io.ReaderAt, size int64) error {
	header, err := readAt(r, 0, 26)
	if err != nil {
		return err
	}
	if string(header[:2]) != "BM" {
		return fmt.Errorf("missing BM signature")
	}
	declared := int64(binary.LittleEndian.Uint32(header[2:6]))
	pixels := int64(binary.LittleEndian.Uint32(header[10:14]))
	dib := binary.LittleEndian.Uint32(header[14:18])
	if declared > size {
		return fmt.Errorf("declares %d bytes: %w", declared, errTruncated)
	}
	if !slices.Contains([]uint32{12, 40, 52, 56, 64, 108, 124}, dib) {
		return fmt.Errorf("unknown DIB header size %d", dib)
	}
	if pixels < 14+int64(dib) || pixels >= size {
		return fmt.Errorf("pixel data offset %d outside the file", pixels)
	}
	return nil
}

func checkTIFF(r io.ReaderAt, size int64) error {
	header, err := readAt(r, 0, 8)
	if err != nil {
		return err
	}
	var order binary.ByteOrder
	switch string(header[:4]) {
	case "II*\x00":
		order = binary.LittleEndian
	case "MM\x00*":
		order = binary.BigEndian
	default:
		return fmt.Errorf("missing TIFF byte-order mark")
	}
	ifd := int64(order.Uint32(header[4:8]))
	if ifd < 8 {
		return fmt.Errorf("first IFD offset %d overlaps the header", ifd)
	}
	count, err := readAt(r, ifd, 2)
	if err != nil {
		return fmt.Errorf("first IFD: %w", err)
	}
	entries := int64(order.Uint16(count))
	if entries == 0 {
		return fmt.Errorf("first IFD is empty")
	}
	if ifd+2+entries*12+4 > size {
		return fmt.Errorf("first IFD with %d entries: %w", entries, errTruncated)
	}
	return nil
}

// readVint reads an EBML variable-length integer at offset. With
// keepMarker the length marker bit stays in the value (element ids).
func readVint(r io.ReaderAt, offset int64, keepMarker bool) (value uint64, length int, unknown bool, err error) {
	first, err := readAt(r, offset, 1)
	if err != nil {
		return 0, 0, false, err
	}
	length = 1
	for mask := byte(0x80); mask != 0 && first[0]&mask == 0; mask >>= 1 {
		length++
	}
	if length > 8 {
		return 0, 0, false, fmt.Errorf("invalid EBML integer at offset %d", offset)
	}
	raw, err := readAt(r, offset, length)
	if err != nil {
		return 0, 0, false, err
	}
	value = uint64(raw[0])
	if !keepMarker {
		value &= uint64(0xff >> length)
	}
	allOnes := value == uint64(0xff>>length)
	for _, b := range raw[1:] {
		value = value<<8 | uint64(b)
		allOnes = allOnes && b == 0xff
	}
	return value, length, allOnes && !keepMarker, nil
}

// checkEBML walks the top-level elements of a WebM or Matroska file:
// an EBML header followed by a Segment.
func checkEBML(r io.ReaderAt, size int64) error {
	const (
		ebmlHeaderID = 0x1A45DFA3
		segmentID    = 0x18538067
	)
	var offset int64
	sawSegment := false
	for step := 0; offset < size; step++ {
		if step > maxStructureSteps {
			return fmt.Errorf("too many elements")
		}
		id, idLength, _, err := readVint(r, offset, true)
		if err != nil {
			return err
		}
		if offset == 0 && id != ebmlHeaderID {
			return fmt.Errorf("missing EBML header")
		}
		dataSize, sizeLength, unknown, err := readVint(r, offset+int64(idLength), false)
		if err != nil {
			return err
		}
		if id == segmentID {
			sawSegment = true
		}
		// An unknown-size element extends to the end of the file.
		if unknown {
			break
		}
		end := offset + int64(idLength) + int64(sizeLength) + int64(dataSize)
		if dataSize > uint64(size) || end > size {
			return fmt.Errorf("element %#x at offset %d: %w", id, offset, errTruncated)
		}
		offset = end
	}
	if !sawSegment {
		return fmt.Errorf("no Segment element")
	}
	return nil
}

// checkFLAC reads the metadata blocks and checks the first audio
// frame sync code follows them.
func checkFLAC(r io.ReaderAt, size int64) error {
	magic, err := readAt(r, 0, 4)
	if err != nil {
		return err
	}
	if string(magic) != "fLaC" {
		return fmt.Errorf("missing fLaC signature")
	}
	offset := int64(4)
	for block := 0; ; block++ {
		if block > maxStructureSteps {
			return fmt.Errorf("too many metadata blocks")
		}
		header, err := readAt(r, offset, 4)
		if err != nil {
			return err
		}
		last := header[0]&0x80 != 0
		blockType := header[0] & 0x7f
		length := int64(header[1])<<16 | int64(header[2])<<8 | int64(header[3])
		if block == 0 && (blockType != 0 || length != 34) {
			return fmt.Errorf("first metadata block is not STREAMINFO")
		}
		if blockType == 127 {
			return fmt.Errorf("invalid metadata block type")
		}
		offset += 4 + length
		if offset > size {
			return fmt.Errorf("metadata block %d: %w", block, errTruncated)
		}
		if last {
			break
		}
	}
	sync, err := readAt(r, offset, 2)
	if err != nil {
		return fmt.Errorf("first frame: %w", err)
	}
	if sync[0] != 0xff || sync[1]&0xfc != 0xf8 {
		return fmt.Errorf("no frame sync after metadata")
	}
	return nil
}

// checkOgg walks every page. The stream must end on a page with the
// end-of-stream flag.
func checkOgg(r io.ReaderAt, size int64) error {
	var offset int64
	var lastFlags byte
	for page := 0; offset < size; page++ {
		if page > maxStructureSteps {
			return fmt.Errorf("too many pages")
		}
		header, err := readAt(r, offset, 27)
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
		if string(header[:4]) != "OggS" || header[4] != 0 {
			return fmt.Errorf("page %d at offset %d has no capture pattern", page, offset)
		}
		lastFlags = header[5]
		segments := int(header[26])
		lacing, err := readAt(r, offset+27, segments)
		if err != nil {
			return fmt.Errorf("page %d lacing: %w", page, err)
		}
		var body int64
		for _, l := range lacing {
			body += int64(l)
		}
		offset += 27 + int64(segments) + body
		if offset > size {
			return fmt.Errorf("page %d body: %w", page, errTruncated)
		}
	}
	if lastFlags&0x04 == 0 {
		return fmt.Errorf("last page lacks end-of-stream: %w", errTruncated)
	}
	return nil
}

// MPEG audio bitrates in kbit/s, indexed [version1][layer][index]
// where version1 is MPEG-1 and the rest share the MPEG-2 table.
var mp3Bitrates = [2][3][16]int{
	{
		{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, 0},
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 0},
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0},
	},
	{
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
	},
}

var mp3SampleRates = map[byte][3]int{
	3: {44100, 48000, 32000}, // MPEG-1
	2: {22050, 24000, 16000}, // MPEG-2
	0: {11025, 12000, 8000},  // MPEG-2.5
}

// mp3FrameLength parses a 4-byte MPEG audio frame header.
func mp3FrameLength(header []byte) (int64, error) {
	if header[0] != 0xff || header[1]&0xe0 != 0xe0 {
		return 0, fmt.Errorf("no frame sync")
	}
	version := (header[1] >> 3) & 0x03
	layerBits := (header[1] >> 1) & 0x03
	bitrateIndex := header[2] >> 4
	rateIndex := (header[2] >> 2) & 0x03
	padding := int64((header[2] >> 1) & 0x01)
	rates, ok := mp3SampleRates[version]
	if !ok || layerBits == 0 || rateIndex == 3 {
		return 0, fmt.Errorf("reserved frame header fields")
	}
	layer := 3 - int(layerBits) // 0 = Layer I
	table := 0
	if version != 3 {
		table = 1
	}
	bitrate := mp3Bitrates[table][layer][bitrateIndex] * 1000
	if bitrate == 0 {
		return 0, fmt.Errorf("free or invalid bitrate index %d", bitrateIndex)
	}
	sampleRate := rates[rateIndex]
	switch {
	case layer == 0:
		return (int64(12*bitrate/sampleRate) + padding) * 4, nil
	case layer == 2 && version != 3:
		return int64(72*bitrate/sampleRate) + padding, nil
	default:
		return int64(144*bitrate/sampleRate) + padding, nil
	}
}

// checkMP3 skips an ID3v2 tag and checks that the first two frames
// parse and fit in the file.
func checkMP3(r io.ReaderAt, size int64) error {
	var offset int64
	if tag, err := readAt(r, 0, 10); err == nil && bytes.HasPrefix(tag, []byte("ID3")) {
		tagSize := int64(tag[6]&0x7f)<<21 | int64(tag[7]&0x7f)<<14 | int64(tag[8]&0x7f)<<7 | int64(tag[9]&0x7f)
		offset = 10 + tagSize
		if tag[5]&0x10 != 0 {
			offset += 10
		}
	}
	frames := 0
	for ; frames < 2 && offset < size; frames++ {
		frame := frames
		header, err := readAt(r, offset, 4)
		if err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
		length, err := mp3FrameLength(header)
		if err != nil {
			return fmt.Errorf("frame %d at offset %d: %w", frame, offset, err)
		}
		if offset+length > size {
			return fmt.Errorf("frame %d: %w", frame, errTruncated)
		}
		offset += length
	}
	if frames == 0 {
		return fmt.Errorf("no audio frames: %w", errTruncated)
	}
	return nil
}
