// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bureau-foundation/datapack/lib/compress"
	"github.com/bureau-foundation/datapack/lib/dataset"
)

// Check validates every section. All problems are reported together
// as joined *ConfigError values.
func (c *Config) Check() error {
	var problems []*ConfigError
	add := func(field, format string, args ...any) {
		problems = append(problems, &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	seen := map[string]bool{}
	for i, configured := range c.Datasets {
		field := fmt.Sprintf("datasets[%d]", i)
		if err := dataset.ValidateName(configured.Name); err != nil {
			add(field+".name", "%v", err)
		} else if seen[configured.Name] {
			add(field+".name", "duplicate dataset name %q", configured.Name)
		}
		seen[configured.Name] = true
		if configured.Root == "" {
			add(field+".root", "is required")
		}
	}

	if c.Workers < 0 {
		add("workers", "must not be negative")
	}
	for field, workers := range map[string]int{
		"archive.workers":  c.Archive.Workers,
		"restore.workers":  c.Restore.Workers,
		"validate.workers": c.Validate.Workers,
		"split.workers":    c.Split.Workers,
	} {
		if workers < 0 {
			add(field, "must not be negative")
		}
	}

	if c.Archive.MaxVolumeSize <= 0 {
		add("archive.max_volume_size", "must be positive, got %d", c.Archive.MaxVolumeSize)
	}
	if _, err := compress.ParseMode(string(c.Archive.Compression)); err != nil {
		add("archive.compression", "%v", err)
	}
	for _, kind := range c.Archive.DedupKinds {
		if !slices.Contains(dataset.AllKinds, kind) {
			add("archive.dedup_kinds", "unknown media kind %q", kind)
		}
	}

	if _, err := ParseThinkFormat(string(c.Validate.ThinkFormat)); err != nil {
		add("validate.think_format", "%q is not one of %v", c.Validate.ThinkFormat, ThinkFormats)
	}

	if c.Split.MaxSamples <= 0 {
		add("split.max_samples", "must be positive, got %d", c.Split.MaxSamples)
	}

	// Map iteration above is unordered.
	slices.SortStableFunc(problems, func(a, b *ConfigError) int { return strings.Compare(a.Field, b.Field) })
	errs := make([]error, len(problems))
	for i, problem := range problems {
		errs[i] = problem
	}
	return errors.Join(errs...)
}
