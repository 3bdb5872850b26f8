// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/bureau-foundation/datapack/lib/report"
)

// Line is one line of a JSONL file.
type Line struct {
	// Number is the 1-based line number in the file.
	Number int
	// Index is the 0-based sample index: blank lines are not counted.
	// A blank line carries the index the next sample will get.
	Index int
	// Bytes holds the line without its terminator. The callback owns
	// it.
	Bytes []byte
	// Terminator is "\n", "\r\n", or empty for an unterminated final
	// line. Writing Bytes then Terminator reproduces the input.
	Terminator []byte
	// Blank is set when the line holds only whitespace. Only
	// ReadRawLines delivers blank lines.
	Blank bool
}

// readerBufferSize is the bufio buffer for JSONL reads. Lines longer
// than this are still read whole.
const readerBufferSize = 256 * 1024

// ReadLines calls fn for every non-blank line of r in order. A line
// consisting only of whitespace is blank. "\n" and "\r\n" terminators
// are split off into Line.Terminator. Iteration stops at the first
// error from fn.
func ReadLines(r io.Reader, fn func(Line) error) error {
	return readLines(r, false, fn)
}

// ReadRawLines is ReadLines that also delivers blank lines, so a
// caller copying a file can keep it byte for byte.
func ReadRawLines(r io.Reader, fn func(Line) error) error {
	return readLines(r, true, fn)
}

func readLines(r io.Reader, blanks bool, fn func(Line) error) error {
	reader := bufio.NewReaderSize(r, readerBufferSize)
	number := 0
	index := 0
	for {
		content, err := reader.ReadBytes('\n')
		if len(content) > 0 {
			number++
			body := bytes.TrimSuffix(content, []byte("\n"))
			body = bytes.TrimSuffix(body, []byte("\r"))
			line := Line{Number: number, Index: index, Bytes: body, Terminator: content[len(body):]}
			line.Blank = len(bytes.TrimSpace(body)) == 0
			if !line.Blank || blanks {
				if fnErr := fn(line); fnErr != nil {
					return fnErr
				}
			}
			if !line.Blank {
				index++
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ReadFile is ReadLines over the file at path. Read failures come back
// as *report.IOError; errors from fn are returned unchanged.
func ReadFile(path string, fn func(Line) error) error {
	return readFile(path, false, fn)
}

// ReadRawFile is ReadRawLines over the file at path.
func ReadRawFile(path string, fn func(Line) error) error {
	return readFile(path, true, fn)
}

func readFile(path string, blanks bool, fn func(Line) error) error {
	file, err := os.Open(path)
	if err != nil {
		return report.NewIOError("open", path, err)
	}
	defer file.Close()

	var callbackErr error
	err = readLines(file, blanks, func(line Line) error {
		if err := fn(line); err != nil {
			callbackErr = err
			return err
		}
		return nil
	})
	if callbackErr != nil {
		return callbackErr
	}
	if err != nil {
		return report.NewIOError("read", path, err)
	}
	return nil
}

// CountSamples returns the number of non-blank lines in the file.
func CountSamples(path string) (int, error) {
	count := 0
	err := ReadFile(path, func(Line) error {
		count++
		return nil
	})
	return count, err
}
