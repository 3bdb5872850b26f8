// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// IOError reports a file that could not be read or written. Path is
// always the file the operation was attempting, so a collected list of
// IOErrors can be handed back to the operator as a retry list.
type IOError struct {
	// Path is the file being read or written.
	Path string

	// Op names the operation that failed ("open", "read", "write",
	// "stat", "rename").
	Op string

	// Err is the underlying error.
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError wraps err as an IOError for path. If err is already an
// IOError it is returned unchanged so the innermost path wins.
func NewIOError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var existing *IOError
	if errors.As(err, &existing) {
		return err
	}
	return &IOError{Path: path, Op: op, Err: err}
}

// FileError is one itemized per-file failure in an [Outcome].
type FileError struct {
	// Path is the file the failure is attributed to.
	Path string `json:"path"`

	// Message is the rendered error.
	Message string `json:"message"`

	// Err is the original error. Not serialized.
	Err error `json:"-"`
}

// Outcome is the structured result every pipeline stage returns:
// counts plus the itemized error list. Callers decide whether any
// failure is fatal.
type Outcome struct {
	Processed int         `json:"processed"`
	Skipped   int         `json:"skipped"`
	Failed    int         `json:"failed"`
	Errors    []FileError `json:"errors"`
}

// OK reports whether no unit of work failed.
func (o *Outcome) OK() bool {
	return o.Failed == 0
}

// Err joins every recorded error, or returns nil when there are none.
func (o *Outcome) Err() error {
	if len(o.Errors) == 0 {
		return nil
	}
	joined := make([]error, 0, len(o.Errors))
	for _, fileError := range o.Errors {
		if fileError.Err != nil {
			joined = append(joined, fileError.Err)
		} else {
			joined = append(joined, errors.New(fileError.Message))
		}
	}
	return errors.Join(joined...)
}

// Collector accumulates per-file results from concurrent workers and
// produces an [Outcome] at the join barrier. The zero value is ready
// to use.
type Collector struct {
	mu        sync.Mutex
	processed int
	skipped   int
	errors    []FileError
}

// Processed records n successfully handled units.
func (c *Collector) Processed(n int) {
	c.mu.Lock()
	c.processed += n
	c.mu.Unlock()
}

// Skipped records n units that were intentionally not handled.
func (c *Collector) Skipped(n int) {
	c.mu.Lock()
	c.skipped += n
	c.mu.Unlock()
}

// Fail records a failure attributed to path.
func (c *Collector) Fail(path string, err error) {
	c.mu.Lock()
	c.errors = append(c.errors, FileError{Path: path, Message: err.Error(), Err: err})
	c.mu.Unlock()
}

// Outcome snapshots the collected results. Errors are sorted by path
// so reports are stable regardless of worker scheduling.
func (c *Collector) Outcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	errorsCopy := make([]FileError, len(c.errors))
	copy(errorsCopy, c.errors)
	sort.SliceStable(errorsCopy, func(i, j int) bool {
		return errorsCopy[i].Path < errorsCopy[j].Path
	})

	return Outcome{
		Processed: c.processed,
		Skipped:   c.skipped,
		Failed:    len(errorsCopy),
		Errors:    errorsCopy,
	}
}
