// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

type entry struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
}

type header struct {
	ArchiveID string  `json:"archive_id"`
	Index     int     `json:"index"`
	Entries   []entry `json:"entries"`
}

// hexText has only unexported state, so without TextMarshaler support
// it would encode as an empty map.
type hexText struct {
	value string
}

func (h hexText) MarshalText() ([]byte, error) { return []byte("hex:" + h.value), nil }

func (h *hexText) UnmarshalText(text []byte) error {
	h.value = strings.TrimPrefix(string(text), "hex:")
	return nil
}

func TestRoundtrip(t *testing.T) {
	original := header{
		ArchiveID: "abc123",
		Index:     2,
		Entries: []entry{
			{Kind: "blob", Name: "0f3c", Offset: 0, Length: 1024},
			{Kind: "metafile", Name: "ds/MetaFiles/a.jsonl", Offset: 1024, Length: 77},
		},
	}
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded header
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ArchiveID != original.ArchiveID || decoded.Index != original.Index || len(decoded.Entries) != 2 {
		t.Fatalf("roundtrip mismatch: %+v", decoded)
	}
	if decoded.Entries[1] != original.Entries[1] {
		t.Errorf("entry = %+v, want %+v", decoded.Entries[1], original.Entries[1])
	}
}

func TestMapEncodingIsOrderIndependent(t *testing.T) {
	first := map[string]int{}
	second := map[string]int{}
	keys := []string{"zeta", "alpha", "mid", "beta", "omega"}
	for i, key := range keys {
		first[key] = i
	}
	for i := len(keys) - 1; i >= 0; i-- {
		second[keys[i]] = i
	}
	a, err := Marshal(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Marshal(second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("map encoding depends on insertion order: %x vs %x", a, b)
	}
}

func TestTextMarshalerEncodesAsString(t *testing.T) {
	type wrapper struct {
		Value hexText `json:"value"`
	}
	data, err := Marshal(wrapper{Value: hexText{value: "ff00"}})
	if err != nil {
		t.Fatal(err)
	}
	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(diagnostic, `"hex:ff00"`) {
		t.Errorf("diagnostic %s does not show text string", diagnostic)
	}
	var decoded wrapper
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Value.value != "ff00" {
		t.Errorf("decoded %q, want ff00", decoded.Value.value)
	}
}

func TestAnyDecodesToStringMap(t *testing.T) {
	data, err := Marshal(map[string]any{"nested": map[string]any{"k": "v"}})
	if err != nil {
		t.Fatal(err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	top, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", decoded)
	}
	if _, ok := top["nested"].(map[string]any); !ok {
		t.Errorf("nested value is %T, want map[string]any", top["nested"])
	}
}

func TestDuplicateKeysRejected(t *testing.T) {
	// {"a": 1, "a": 2}
	data := []byte{0xa2, 0x61, 'a', 0x01, 0x61, 'a', 0x02}
	var decoded map[string]int
	if err := Unmarshal(data, &decoded); err == nil {
		t.Error("duplicate map key accepted")
	}
}

func TestStreamRoundtrip(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for i := range 3 {
		if err := encoder.Encode(entry{Kind: "blob", Offset: int64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	decoder := NewDecoder(&buffer)
	for i := range 3 {
		var decoded entry
		if err := decoder.Decode(&decoded); err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		if decoded.Offset != int64(i) {
			t.Errorf("item %d offset = %d", i, decoded.Offset)
		}
	}
}
