// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes data at path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// WriteJSONL writes records one per line at path. A record that is a
// string or []byte is written verbatim, so tests can plant malformed
// lines.
func WriteJSONL(t testing.TB, path string, records ...any) {
	t.Helper()
	var buffer bytes.Buffer
	for _, record := range records {
		switch value := record.(type) {
		case string:
			buffer.WriteString(value)
		case []byte:
			buffer.Write(value)
		default:
			encoded, err := json.Marshal(value)
			if err != nil {
				t.Fatalf("encoding JSONL record: %v", err)
			}
			buffer.Write(encoded)
		}
		buffer.WriteByte('\n')
	}
	WriteFile(t, path, buffer.Bytes())
}

// Sample returns a two-turn conversation record. images is omitted
// when empty; each image gets an <image> placeholder in the user turn.
func Sample(id, question, answer string, images ...string) map[string]any {
	prompt := question
	for range images {
		prompt = "<image>" + prompt
	}
	record := map[string]any{
		"id": id,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
			{"role": "assistant", "content": answer},
		},
	}
	if len(images) > 0 {
		record["images"] = images
	}
	return record
}
