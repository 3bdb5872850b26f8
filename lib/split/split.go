// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package split

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/datapack/lib/config"
	"github.com/bureau-foundation/datapack/lib/dataset"
	"github.com/bureau-foundation/datapack/lib/report"
	"github.com/bureau-foundation/datapack/lib/workpool"
)

// Options configures Split.
type Options struct {
	// Groups are MetaFile group locations; every JSONL file in each is
	// split.
	Groups []string
	// Files are individual JSONL files.
	Files []string

	// MaxSamples is the most samples any output file holds.
	MaxSamples int
	Workers    int

	// OutputPrefix, when set, is prepended to output names as
	// "<prefix>_".
	OutputPrefix string
	// OutputDir receives the parts. Empty writes them beside each
	// source.
	OutputDir string
	// RemoveSource deletes each source file once its parts are in
	// place.
	RemoveSource bool

	Logger *slog.Logger
}

// FileResult describes one source file.
type FileResult struct {
	Source  string   `json:"source"`
	Samples int      `json:"samples"`
	Outputs []string `json:"outputs,omitempty"`
	// Unchanged is set when the file already fits in one part and was
	// left alone.
	Unchanged bool `json:"unchanged,omitempty"`
	// Removed is set when the source was deleted.
	Removed bool `json:"removed,omitempty"`
}

// Result summarizes a Split run.
type Result struct {
	Files   []FileResult   `json:"files"`
	Samples int            `json:"samples"`
	Outputs int            `json:"outputs"`
	Outcome report.Outcome `json:"outcome"`
}

// Split rewrites each input file into ceil(samples/MaxSamples) files
// of at most MaxSamples samples, preserving order and line bytes. A
// file that already fits is left unchanged; an empty file is skipped.
// Files are independent: a file with an invalid line fails alone
// (nothing is written for it) and the failure is recorded in the
// outcome.
func Split(ctx context.Context, options Options) (*Result, error) {
	if options.MaxSamples < 1 {
		return nil, config.Invalid("max_samples", "must be at least 1, got %d", options.MaxSamples)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sources, err := resolveSources(options)
	if err != nil {
		return nil, err
	}
	if options.OutputDir != "" {
		if err := os.MkdirAll(options.OutputDir, 0o755); err != nil {
			return nil, report.NewIOError("create directory", options.OutputDir, err)
		}
	}

	collector := &report.Collector{}
	results := make([]FileResult, len(sources))
	err = workpool.Run(ctx, options.Workers, len(sources), func(ctx context.Context, i int) error {
		result, err := splitFile(ctx, sources[i], options)
		results[i] = result
		switch {
		case err != nil:
			collector.Fail(sources[i], err)
			logger.Warn("split failed", "path", sources[i], "error", err)
		case result.Samples == 0:
			collector.Skipped(1)
			logger.Debug("empty file skipped", "path", sources[i])
		default:
			collector.Processed(1)
			logger.Debug("file split", "path", sources[i], "samples", result.Samples, "parts", len(result.Outputs))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	summary := &Result{Files: results, Outcome: collector.Outcome()}
	for _, result := range results {
		summary.Samples += result.Samples
		summary.Outputs += len(result.Outputs)
	}
	logger.Info("split complete",
		"files", len(sources),
		"samples", summary.Samples,
		"outputs", summary.Outputs,
		"failed", summary.Outcome.Failed,
	)
	return summary, nil
}

func resolveSources(options Options) ([]string, error) {
	var sources []string
	seen := map[string]bool{}
	add := func(path string) error {
		absolute, err := filepath.Abs(path)
		if err != nil {
			return report.NewIOError("resolve", path, err)
		}
		if !seen[absolute] {
			seen[absolute] = true
			sources = append(sources, absolute)
		}
		return nil
	}
	for _, location := range options.Groups {
		group, err := dataset.OpenGroup(location)
		if err != nil {
			return nil, err
		}
		for _, path := range group.MetaFiles {
			if err := add(path); err != nil {
				return nil, err
			}
		}
	}
	for _, path := range options.Files {
		if err := add(path); err != nil {
			return nil, err
		}
	}
	if len(sources) == 0 {
		return nil, config.Invalid("split", "no groups or files given")
	}
	return sources, nil
}

// PartName returns the name of part k (1-based) of the file stem.
func PartName(prefix, stem string, k int) string {
	if prefix != "" {
		return fmt.Sprintf("%s_%s_part%d.jsonl", prefix, stem, k)
	}
	return fmt.Sprintf("%s_part%d.jsonl", stem, k)
}

// splitFile counts and checks every line first, so an invalid file
// writes nothing, then streams the parts.
func splitFile(ctx context.Context, source string, options Options) (FileResult, error) {
	result := FileResult{Source: source}
	err := dataset.ReadFile(source, func(line dataset.Line) error {
		if !json.Valid(line.Bytes) {
			return fmt.Errorf("line %d is not valid JSON", line.Number)
		}
		result.Samples++
		return nil
	})
	if err != nil {
		return result, err
	}
	if result.Samples == 0 || result.Samples <= options.MaxSamples {
		result.Unchanged = result.Samples > 0
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	directory := options.OutputDir
	if directory == "" {
		directory = filepath.Dir(source)
	}
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	parts := (result.Samples + options.MaxSamples - 1) / options.MaxSamples

	outputs, err := writeParts(source, directory, options.MaxSamples, parts, func(k int) string {
		return PartName(options.OutputPrefix, stem, k)
	})
	if err != nil {
		return result, err
	}
	result.Outputs = outputs

	if options.RemoveSource {
		if err := os.Remove(source); err != nil {
			return result, report.NewIOError("remove", source, err)
		}
		result.Removed = true
	}
	return result, nil
}

// writeParts writes every part under a temporary name and renames
// them all once the last is complete.
func writeParts(source, directory string, maxSamples, parts int, name func(int) string) ([]string, error) {
	temporaries := make([]string, 0, parts)
	success := false
	defer func() {
		if !success {
			for _, path := range temporaries {
				os.Remove(path)
			}
		}
	}()

	var (
		current *os.File
		writer  *bufio.Writer
		inPart  int
	)
	closeCurrent := func() error {
		if current == nil {
			return nil
		}
		if err := writer.Flush(); err != nil {
			current.Close()
			return report.NewIOError("write", current.Name(), err)
		}
		if err := current.Close(); err != nil {
			return report.NewIOError("close", current.Name(), err)
		}
		current = nil
		return nil
	}

	err := dataset.ReadFile(source, func(line dataset.Line) error {
		if current == nil || inPart == maxSamples {
			if err := closeCurrent(); err != nil {
				return err
			}
			file, err := os.CreateTemp(directory, "."+name(len(temporaries)+1)+".tmp-*")
			if err != nil {
				return report.NewIOError("create", directory, err)
			}
			temporaries = append(temporaries, file.Name())
			current, writer, inPart = file, bufio.NewWriter(file), 0
		}
		inPart++
		if _, err := writer.Write(line.Bytes); err != nil {
			return err
		}
		_, err := writer.Write(line.Terminator)
		return err
	})
	if err == nil {
		err = closeCurrent()
	} else if current != nil {
		current.Close()
	}
	if err != nil {
		return nil, err
	}
	if len(temporaries) != parts {
		return nil, fmt.Errorf("%s changed while splitting: wrote %d parts, expected %d", source, len(temporaries), parts)
	}

	outputs := make([]string, parts)
	for i, temporary := range temporaries {
		outputs[i] = filepath.Join(directory, name(i+1))
		if err := os.Rename(temporary, outputs[i]); err != nil {
			for _, renamed := range outputs[:i] {
				os.Remove(renamed)
			}
			return nil, report.NewIOError("rename", temporary, err)
		}
	}
	success = true
	return outputs, nil
}
