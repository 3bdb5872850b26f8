// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"testing"

	"github.com/bureau-foundation/datapack/lib/config"
)

func TestScanClassifies(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		format config.ThinkFormat
		ok     bool
	}{
		{"think answer", `<think>x</think><answer>y\boxed{1}</answer>`, config.ThinkAnswer, true},
		{"think", `<think>x</think>y\boxed{1}`, config.ThinkOnly, true},
		{"no think", `<think></think>y`, config.ThinkNoThink, true},
		{"no think with whitespace", "<think>\n  \n</think>\nthe answer is 4", config.ThinkNoThink, true},
		{"nested braces", `<think>x</think>so \boxed{\frac{1}{2}}`, config.ThinkOnly, true},
		{"think only", `<think>x</think>`, "", false},
		{"unterminated", `<think>x y\boxed{1}`, "", false},
		{"unbalanced box", `<think>x</think>y\boxed{1`, "", false},
		{"unrecognized tag", `<thinking>x</thinking>\boxed{1}`, "", false},
		{"no think segment", `just an answer \boxed{1}`, "", false},
		{"answer before think", `<answer>\boxed{1}</answer><think>x</think>`, "", false},
		{"text after answer", `<think>x</think><answer>\boxed{1}</answer> more`, config.ThinkOnly, true},
		{"empty everything", `<think></think>`, "", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			shape := Scan(test.text)
			format, ok := shape.Format()
			if ok != test.ok {
				t.Fatalf("Scan(%q) matched = %v (%s), want %v", test.text, ok, shape, test.ok)
			}
			if ok && format != test.format {
				t.Errorf("Scan(%q) classified as %s, want %s", test.text, format, test.format)
			}
			if shape.Matches(config.ThinkAny) != test.ok {
				t.Errorf("Matches(any) = %v, want %v", !test.ok, test.ok)
			}
		})
	}
}

func TestDeclaredFormatIsEnforced(t *testing.T) {
	noThink := Scan(`<think></think>plain text`)
	if noThink.Matches(config.ThinkAnswer) || noThink.Matches(config.ThinkOnly) {
		t.Error("no_think sample accepted under a boxed format")
	}
	thinkOnly := Scan(`<think>x</think>y\boxed{2}`)
	if thinkOnly.Matches(config.ThinkAnswer) {
		t.Error("think sample accepted as think_answer")
	}
	if thinkOnly.Matches(config.ThinkNoThink) {
		t.Error("non-empty think accepted as no_think")
	}
}

func TestShapeDescribesProblem(t *testing.T) {
	if got := Scan(`<think>x`).String(); got != "unterminated <think> segment" {
		t.Errorf("String() = %q", got)
	}
	if got := Scan(`<think>x</think>y`).String(); got != `think then text without \boxed{}` {
		t.Errorf("String() = %q", got)
	}
}
