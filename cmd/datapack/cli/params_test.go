// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strconv"
	"testing"

	"github.com/spf13/pflag"
)

// sizeValue is a minimal pflag.Value used to exercise custom types.
type sizeValue int64

func (s *sizeValue) String() string { return strconv.FormatInt(int64(*s), 10) }
func (s *sizeValue) Type() string   { return "size" }
func (s *sizeValue) Set(text string) error {
	parsed, err := strconv.ParseInt(text, 10, 64)
	*s = sizeValue(parsed)
	return err
}

func TestBindFlags_Types(t *testing.T) {
	type params struct {
		JSONOutput
		Output   string    `flag:"output,o" desc:"output directory"`
		Strict   bool      `flag:"strict" desc:"abort on error"`
		Workers  int       `flag:"workers" default:"2" desc:"worker count"`
		Limit    int64     `flag:"limit" desc:"byte limit"`
		Kinds    []string  `flag:"kinds" default:"image,video" desc:"kinds"`
		Size     sizeValue `flag:"size" default:"10" desc:"volume size"`
		Untagged string
	}

	var p params
	flagSet := FlagsFromParams("test", &p)
	if p.Workers != 2 || len(p.Kinds) != 2 || p.Size != 10 {
		t.Errorf("defaults not applied: %+v", p)
	}

	err := flagSet.Parse([]string{"-o", "out", "--strict", "--workers=8", "--limit", "99", "--kinds", "audio", "--size", "2048", "--json"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Output != "out" || !p.Strict || p.Workers != 8 || p.Limit != 99 {
		t.Errorf("scalar flags not bound: %+v", p)
	}
	if len(p.Kinds) != 1 || p.Kinds[0] != "audio" {
		t.Errorf("Kinds = %v, want [audio]", p.Kinds)
	}
	if p.Size != 2048 {
		t.Errorf("Size = %d, want 2048", p.Size)
	}
	if !p.OutputJSON {
		t.Error("embedded --json not bound")
	}
	if flagSet.Lookup("untagged") != nil {
		t.Error("untagged field should not be bound")
	}
}

func TestBindFlags_Rejects(t *testing.T) {
	type unsupported struct {
		Ratio float32 `flag:"ratio"`
	}
	type badDefault struct {
		Count int `flag:"count" default:"many"`
	}
	tests := []struct {
		name   string
		params any
	}{
		{"not a pointer", unsupported{}},
		{"unsupported type", &unsupported{}},
		{"bad default", &badDefault{}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := BindFlags(test.params, pflag.NewFlagSet("test", pflag.ContinueOnError)); err == nil {
				t.Error("BindFlags should fail")
			}
		})
	}
}
