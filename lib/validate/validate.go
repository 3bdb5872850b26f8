// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bureau-foundation/datapack/lib/config"
	"github.com/bureau-foundation/datapack/lib/dataset"
	"github.com/bureau-foundation/datapack/lib/workpool"
)

// Options selects the checks to run. Media integrity is always
// checked.
type Options struct {
	// CheckLongCoT enables the reasoning-format grammar. It should be
	// set only for Long-CoT datasets; ValidateDataset sets it from the
	// dataset's flag.
	CheckLongCoT bool
	ThinkFormat  config.ThinkFormat
	// CheckMultiTurnThink enables the role-order check and, with
	// CheckLongCoT, applies the grammar to every assistant turn.
	CheckMultiTurnThink bool
	// CheckPlaceholders compares placeholder counts in user turns with
	// the media reference counts.
	CheckPlaceholders bool
	Workers           int
	Logger            *slog.Logger
}

// batchSize is the number of samples checked in parallel at once, so
// memory stays bounded on large files.
const batchSize = 512

type validator struct {
	options Options
	logger  *slog.Logger
	// media caches CheckMedia results by resolved path. Shared
	// references are checked once.
	media sync.Map
}

func newValidator(options Options) (*validator, error) {
	format, err := config.ParseThinkFormat(string(options.ThinkFormat))
	if err != nil {
		return nil, err
	}
	options.ThinkFormat = format
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &validator{options: options, logger: logger}, nil
}

// ValidateGroup checks every sample of the MetaFile group at
// groupPath. The returned error is for unusable options or a group
// that cannot be opened; violations are reported in the Report.
func ValidateGroup(ctx context.Context, groupPath string, options Options) (*Report, error) {
	v, err := newValidator(options)
	if err != nil {
		return nil, err
	}
	group, err := dataset.OpenGroup(groupPath)
	if err != nil {
		return nil, err
	}
	return v.group(ctx, group)
}

// ValidateDataset checks every group under the dataset root. The
// grammar check runs when the dataset is flagged Long-CoT or
// options.CheckLongCoT is set.
func ValidateDataset(ctx context.Context, ds dataset.Dataset, options Options) (*Report, error) {
	options.CheckLongCoT = options.CheckLongCoT || ds.LongCoT
	v, err := newValidator(options)
	if err != nil {
		return nil, err
	}
	groups, err := dataset.DiscoverGroups(ds.Root)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("dataset %s: no JSONL files under %s", ds.Name, ds.Root)
	}
	report := &Report{Findings: []Finding{}}
	for _, group := range groups {
		groupReport, err := v.group(ctx, group)
		if err != nil {
			return nil, err
		}
		report.merge(groupReport)
	}
	v.logger.Info("dataset validated",
		"dataset", ds.Name,
		"samples", report.Samples,
		"findings", len(report.Findings),
	)
	return report, nil
}

func (v *validator) group(ctx context.Context, group dataset.Group) (*Report, error) {
	report := &Report{Findings: []Finding{}}
	for _, path := range group.MetaFiles {
		if err := v.file(ctx, group.Root, path, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// file checks one metafile, batch by batch, appending findings in
// sample order.
func (v *validator) file(ctx context.Context, groupRoot, path string, report *Report) error {
	report.Files++
	var batch []dataset.Line
	flush := func() error {
		results, err := workpool.Map(ctx, v.options.Workers, batch, func(ctx context.Context, line dataset.Line) ([]Finding, error) {
			return v.sample(path, groupRoot, line), nil
		})
		if err != nil {
			return err
		}
		for _, findings := range results {
			report.Findings = append(report.Findings, findings...)
		}
		report.Samples += len(batch)
		batch = batch[:0]
		return nil
	}

	readErr := dataset.ReadFile(path, func(line dataset.Line) error {
		batch = append(batch, line)
		if len(batch) == batchSize {
			return flush()
		}
		return nil
	})
	if readErr == nil && len(batch) > 0 {
		readErr = flush()
	}
	if readErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report.Findings = append(report.Findings, Finding{
			File:        path,
			SampleIndex: -1,
			Kind:        FindingUnreadable,
			Detail:      readErr.Error(),
			Err:         readErr,
		})
		v.logger.Warn("metafile unreadable", "path", path, "error", readErr)
	}
	return nil
}

// sample runs every enabled check on one line.
func (v *validator) sample(path, groupRoot string, line dataset.Line) []Finding {
	sample, err := dataset.ParseSample(line.Bytes)
	if err != nil {
		return []Finding{{
			File:        path,
			SampleIndex: line.Index,
			Kind:        FindingInvalidJSON,
			Detail:      fmt.Sprintf("line %d: %v", line.Number, err),
			Err:         err,
		}}
	}
	finding := func(kind FindingKind, err error) Finding {
		return Finding{
			File:        path,
			SampleIndex: line.Index,
			SampleID:    sample.ID,
			Kind:        kind,
			Detail:      err.Error(),
			Err:         err,
		}
	}

	var findings []Finding
	for _, reference := range sample.References {
		err := v.checkMedia(dataset.ResolveReference(groupRoot, reference.Path), reference.Field.Kind)
		var integrity *MediaIntegrityError
		if !errors.As(err, &integrity) {
			continue
		}
		attributed := *integrity
		attributed.File = path
		attributed.SampleIndex = line.Index
		attributed.SampleID = sample.ID
		attributed.Reference = reference.Path
		kind := FindingMediaCorrupt
		if attributed.Problem == MediaMissing {
			kind = FindingMediaMissing
		}
		findings = append(findings, finding(kind, &attributed))
	}

	if v.options.CheckPlaceholders {
		for _, err := range checkPlaceholders(sample) {
			findings = append(findings, finding(FindingPlaceholder, err))
		}
	}
	if v.options.CheckMultiTurnThink {
		if err := checkTurnOrder(sample); err != nil {
			findings = append(findings, finding(FindingMultiTurn, err))
		}
	}
	if v.options.CheckLongCoT {
		for _, err := range v.checkReasoning(sample, path, line.Index) {
			findings = append(findings, finding(FindingFormat, err))
		}
	}
	return findings
}

func (v *validator) checkMedia(path string, kind dataset.MediaKind) error {
	if cached, ok := v.media.Load(path); ok {
		if cached == nil {
			return nil
		}
		return cached.(error)
	}
	err := CheckMedia(path, kind)
	if err == nil {
		v.media.Store(path, nil)
	} else {
		v.media.Store(path, err)
	}
	return err
}

// checkReasoning applies the grammar to the final assistant turn, or
// to every assistant turn when the multi-turn check is enabled.
func (v *validator) checkReasoning(sample *dataset.Sample, path string, index int) []error {
	var turns []int
	for i, turn := range sample.Turns {
		if turn.Role == dataset.RoleAssistant {
			turns = append(turns, i)
		}
	}
	// A sample without an assistant turn has no reasoning to check.
	if len(turns) == 0 {
		return nil
	}
	if !v.options.CheckMultiTurnThink {
		turns = turns[len(turns)-1:]
	}
	var errs []error
	for _, turn := range turns {
		shape := Scan(sample.Turns[turn].Text)
		if !shape.Matches(v.options.ThinkFormat) {
			errs = append(errs, &FormatError{
				File: path, SampleIndex: index, SampleID: sample.ID, Turn: turn,
				Expected: v.options.ThinkFormat, Observed: shape.String(),
			})
		}
	}
	return errs
}

// checkTurnOrder requires optional leading system turns, then user and
// assistant turns strictly alternating, starting with user and ending
// with assistant.
func checkTurnOrder(sample *dataset.Sample) error {
	turns := sample.Turns
	for len(turns) > 0 && turns[0].Role == dataset.RoleSystem {
		turns = turns[1:]
	}
	if len(turns) < 2 {
		return fmt.Errorf("conversation needs at least a user and an assistant turn, has %d", len(turns))
	}
	offset := len(sample.Turns) - len(turns)
	for i, turn := range turns {
		want := dataset.RoleUser
		if i%2 == 1 {
			want = dataset.RoleAssistant
		}
		if turn.Role != want {
			return fmt.Errorf("turn %d is %q, expected %q", offset+i, turn.Role, want)
		}
	}
	if last := turns[len(turns)-1].Role; last != dataset.RoleAssistant {
		return fmt.Errorf("last turn is %q, expected %q", last, dataset.RoleAssistant)
	}
	return nil
}

// checkPlaceholders compares, per media field, the placeholders in
// user turns with the number of references.
func checkPlaceholders(sample *dataset.Sample) []error {
	var errs []error
	for _, field := range dataset.MediaFields {
		placeholders := 0
		for _, turn := range sample.Turns {
			if turn.Role != dataset.RoleUser {
				continue
			}
			placeholders += strings.Count(turn.Text, field.Placeholder) + turn.MediaParts[field.Kind]
		}
		references := len(sample.ReferencesOf(field))
		if placeholders != references {
			errs = append(errs, fmt.Errorf("%d %s placeholders in user turns, %d %s references",
				placeholders, field.Placeholder, references, field.Name))
		}
	}
	return errs
}
