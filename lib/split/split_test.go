// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package split

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/datapack/lib/config"
	"github.com/bureau-foundation/datapack/lib/testutil"
)

func writeSamples(t *testing.T, path string, count int) []byte {
	t.Helper()
	records := make([]any, count)
	for i := range count {
		records[i] = testutil.Sample(fmt.Sprintf("s%03d", i), fmt.Sprintf("question %d", i), "answer")
	}
	testutil.WriteJSONL(t, path, records...)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func concatenate(t *testing.T, paths []string) []byte {
	t.Helper()
	var buffer bytes.Buffer
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		buffer.Write(data)
	}
	return buffer.Bytes()
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.Count(data, []byte("\n"))
}

func TestSplitPartCounts(t *testing.T) {
	tests := []struct {
		samples, max int
		parts        int
		unchanged    bool
	}{
		{samples: 10, max: 3, parts: 4},
		{samples: 9, max: 3, parts: 3},
		{samples: 2, max: 1, parts: 2},
		{samples: 3, max: 3, parts: 0, unchanged: true},
		{samples: 1, max: 1000, parts: 0, unchanged: true},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d by %d", test.samples, test.max), func(t *testing.T) {
			source := filepath.Join(t.TempDir(), "train.jsonl")
			original := writeSamples(t, source, test.samples)

			result, err := Split(context.Background(), Options{Files: []string{source}, MaxSamples: test.max})
			if err != nil {
				t.Fatalf("Split: %v", err)
			}
			file := result.Files[0]
			if file.Samples != test.samples {
				t.Errorf("Samples = %d, want %d", file.Samples, test.samples)
			}
			if file.Unchanged != test.unchanged {
				t.Errorf("Unchanged = %v, want %v", file.Unchanged, test.unchanged)
			}
			if len(file.Outputs) != test.parts {
				t.Fatalf("outputs = %d, want %d", len(file.Outputs), test.parts)
			}
			if test.unchanged {
				return
			}
			for k, output := range file.Outputs {
				if want := filepath.Join(filepath.Dir(source), PartName("", "train", k+1)); output != want {
					t.Errorf("output %d = %s, want %s", k, output, want)
				}
				lines := countLines(t, output)
				if lines > test.max || lines == 0 {
					t.Errorf("%s holds %d samples, limit %d", output, lines, test.max)
				}
			}
			if joined := concatenate(t, file.Outputs); !bytes.Equal(joined, original) {
				t.Error("concatenated parts differ from the source")
			}
			if _, err := os.Stat(source); err != nil {
				t.Errorf("source should be kept: %v", err)
			}
		})
	}
}

func TestSplitKeepsLineTerminators(t *testing.T) {
	source := filepath.Join(t.TempDir(), "crlf.jsonl")
	testutil.WriteFile(t, source, []byte("{\"id\":1}\r\n{\"id\":2}\r\n{\"id\":3}"))

	result, err := Split(context.Background(), Options{Files: []string{source}, MaxSamples: 2})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	outputs := result.Files[0].Outputs
	if len(outputs) != 2 {
		t.Fatalf("outputs = %d, want 2", len(outputs))
	}
	if joined := string(concatenate(t, outputs)); joined != "{\"id\":1}\r\n{\"id\":2}\r\n{\"id\":3}" {
		t.Errorf("joined parts = %q", joined)
	}
}

func TestSplitGroupWithPrefix(t *testing.T) {
	root := t.TempDir()
	metaDir := filepath.Join(root, "MetaFiles")
	writeSamples(t, filepath.Join(metaDir, "a.jsonl"), 5)
	writeSamples(t, filepath.Join(metaDir, "b.jsonl"), 2)
	outputDir := filepath.Join(t.TempDir(), "parts")

	result, err := Split(context.Background(), Options{
		Groups:       []string{root},
		MaxSamples:   2,
		OutputPrefix: "cot",
		OutputDir:    outputDir,
		Workers:      2,
	})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if result.Samples != 7 || result.Outputs != 3 {
		t.Errorf("Samples = %d, Outputs = %d, want 7 and 3", result.Samples, result.Outputs)
	}
	for _, name := range []string{"cot_a_part1.jsonl", "cot_a_part2.jsonl", "cot_a_part3.jsonl"} {
		if _, err := os.Stat(filepath.Join(outputDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("output directory holds %d entries, want 3 parts and no temporaries", len(entries))
	}
}

func TestSplitRemovesSource(t *testing.T) {
	source := filepath.Join(t.TempDir(), "big.jsonl")
	writeSamples(t, source, 4)

	result, err := Split(context.Background(), Options{Files: []string{source}, MaxSamples: 3, RemoveSource: true})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if !result.Files[0].Removed {
		t.Error("Removed not set")
	}
	if _, err := os.Stat(source); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("source still present: %v", err)
	}
}

func TestSplitInvalidJSONWritesNothing(t *testing.T) {
	directory := t.TempDir()
	bad := filepath.Join(directory, "bad.jsonl")
	good := filepath.Join(directory, "good.jsonl")
	testutil.WriteJSONL(t, bad, testutil.Sample("1", "q", "a"), `{"id": 2, broken`, testutil.Sample("3", "q", "a"))
	writeSamples(t, good, 4)

	result, err := Split(context.Background(), Options{Files: []string{bad, good}, MaxSamples: 1, RemoveSource: true})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if result.Outcome.Failed != 1 || result.Outcome.Processed != 1 {
		t.Errorf("outcome = %+v, want one failed and one processed", result.Outcome)
	}
	if len(result.Files[0].Outputs) != 0 {
		t.Errorf("invalid file produced outputs %v", result.Files[0].Outputs)
	}
	if _, err := os.Stat(bad); err != nil {
		t.Errorf("invalid source should be kept: %v", err)
	}
	if _, err := os.Stat(filepath.Join(directory, "bad_part1.jsonl")); !errors.Is(err, os.ErrNotExist) {
		t.Error("part written for invalid file")
	}
	if len(result.Files[1].Outputs) != 4 {
		t.Errorf("valid file produced %d outputs, want 4", len(result.Files[1].Outputs))
	}
}

func TestSplitSkipsEmpty(t *testing.T) {
	source := filepath.Join(t.TempDir(), "empty.jsonl")
	testutil.WriteFile(t, source, []byte("\n\n"))

	result, err := Split(context.Background(), Options{Files: []string{source}, MaxSamples: 1})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if result.Outcome.Skipped != 1 || len(result.Files[0].Outputs) != 0 {
		t.Errorf("empty file: outcome %+v, outputs %v", result.Outcome, result.Files[0].Outputs)
	}
}

func TestSplitRejectsBadOptions(t *testing.T) {
	source := filepath.Join(t.TempDir(), "x.jsonl")
	writeSamples(t, source, 1)

	tests := []struct {
		name    string
		options Options
	}{
		{"zero max", Options{Files: []string{source}, MaxSamples: 0}},
		{"negative max", Options{Files: []string{source}, MaxSamples: -4}},
		{"no inputs", Options{MaxSamples: 10}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Split(context.Background(), test.options)
			var configError *config.ConfigError
			if !errors.As(err, &configError) {
				t.Errorf("error = %v, want *config.ConfigError", err)
			}
		})
	}
}

func TestPartName(t *testing.T) {
	if got := PartName("", "train", 2); got != "train_part2.jsonl" {
		t.Errorf("PartName = %q", got)
	}
	if got := PartName("v1", "train", 1); got != "v1_train_part1.jsonl" {
		t.Errorf("PartName = %q", got)
	}
}
