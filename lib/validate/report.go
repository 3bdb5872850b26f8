// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"errors"
	"fmt"
)

// FindingKind classifies a violation.
type FindingKind string

const (
	FindingMediaMissing FindingKind = "media_missing"
	FindingMediaCorrupt FindingKind = "media_corrupt"
	FindingFormat       FindingKind = "format"
	FindingMultiTurn    FindingKind = "multi_turn"
	FindingPlaceholder  FindingKind = "placeholder"
	FindingInvalidJSON  FindingKind = "invalid_json"
	FindingUnreadable   FindingKind = "unreadable"
)

// Finding is one itemized violation.
type Finding struct {
	File string `json:"file"`
	// SampleIndex is 0-based; -1 when the finding concerns the whole
	// file.
	SampleIndex int         `json:"sample_index"`
	SampleID    string      `json:"sample_id,omitempty"`
	Kind        FindingKind `json:"kind"`
	Detail      string      `json:"detail"`
	// Err is the typed error behind the finding: *MediaIntegrityError
	// or *FormatError where one applies.
	Err error `json:"-"`
}

// Report collects every finding of a validation run.
type Report struct {
	Files    int       `json:"files"`
	Samples  int       `json:"samples"`
	Findings []Finding `json:"findings"`
}

// Passed reports whether no violation was found.
func (r *Report) Passed() bool {
	return len(r.Findings) == 0
}

// Count returns the number of findings of kind.
func (r *Report) Count(kind FindingKind) int {
	n := 0
	for _, finding := range r.Findings {
		if finding.Kind == kind {
			n++
		}
	}
	return n
}

// Err joins the findings into one error, or returns nil when the
// report passed.
func (r *Report) Err() error {
	if r.Passed() {
		return nil
	}
	errs := make([]error, 0, len(r.Findings))
	for _, finding := range r.Findings {
		if finding.Err != nil {
			errs = append(errs, finding.Err)
		} else {
			errs = append(errs, errors.New(finding.Detail))
		}
	}
	return fmt.Errorf("%d validation findings: %w", len(r.Findings), errors.Join(errs...))
}

func (r *Report) merge(other *Report) {
	r.Files += other.Files
	r.Samples += other.Samples
	r.Findings = append(r.Findings, other.Findings...)
}
