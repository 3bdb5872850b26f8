// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"fmt"

	"github.com/bureau-foundation/datapack/lib/config"
	"github.com/bureau-foundation/datapack/lib/dataset"
)

// MediaProblem distinguishes absent media from unusable media.
type MediaProblem string

const (
	MediaMissing MediaProblem = "missing"
	MediaCorrupt MediaProblem = "corrupt"
)

// MediaIntegrityError reports a media reference that does not resolve
// to a valid file of its declared kind.
type MediaIntegrityError struct {
	// File is the metafile holding the sample.
	File        string
	SampleIndex int
	SampleID    string
	// Reference is the path as written in the sample; Resolved is
	// where it was looked for.
	Reference string
	Resolved  string
	Kind      dataset.MediaKind
	Problem   MediaProblem
	Err       error
}

func (e *MediaIntegrityError) Error() string {
	reference := e.Reference
	if reference == "" {
		reference = e.Resolved
	}
	if e.Err == nil {
		return fmt.Sprintf("%s %s is %s", e.Kind, reference, e.Problem)
	}
	return fmt.Sprintf("%s %s is %s: %v", e.Kind, reference, e.Problem, e.Err)
}

func (e *MediaIntegrityError) Unwrap() error { return e.Err }

// FormatError reports a Long-CoT reasoning annotation that matches
// none of the accepted grammars.
type FormatError struct {
	File        string
	SampleIndex int
	SampleID    string
	// Turn is the index of the offending assistant turn.
	Turn     int
	Expected config.ThinkFormat
	Observed string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("sample %d turn %d: reasoning format: expected %s, observed %s",
		e.SampleIndex, e.Turn, describeFormat(e.Expected), e.Observed)
}
