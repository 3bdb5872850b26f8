// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"strings"

	"github.com/bureau-foundation/datapack/lib/config"
)

const (
	thinkOpen   = "<think>"
	thinkClose  = "</think>"
	answerOpen  = "<answer>"
	answerClose = "</answer>"
	boxOpen     = `\boxed{`
)

// Shape is the structure a reasoning annotation was scanned into.
type Shape struct {
	// Problem is set when the text has no recognizable structure:
	// missing or unterminated think segment, tags out of order, or an
	// unrecognized tag where <think> belongs.
	Problem string

	// ThinkEmpty is set when the think segment holds only whitespace.
	ThinkEmpty bool
	// Answered is set when the text after the think segment is exactly
	// one <answer>...</answer> element.
	Answered bool
	// Boxed is set when the text after the think segment (inside the
	// answer element when Answered) holds a \boxed{...} with balanced
	// braces.
	Boxed bool
	// Unbalanced is set when a \boxed{ is never closed.
	Unbalanced bool
	// TextEmpty is set when nothing but whitespace follows the think
	// segment.
	TextEmpty bool
}

// Scan reads a reasoning annotation into its Shape.
func Scan(text string) Shape {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, thinkOpen) {
		if strings.HasPrefix(text, "<") {
			end := strings.IndexByte(text, '>')
			if end > 0 {
				return Shape{Problem: "unrecognized tag " + text[:end+1] + " where <think> was expected"}
			}
		}
		return Shape{Problem: "no <think> segment"}
	}
	body := text[len(thinkOpen):]
	closeAt := strings.Index(body, thinkClose)
	if closeAt < 0 {
		return Shape{Problem: "unterminated <think> segment"}
	}
	think := body[:closeAt]
	rest := body[closeAt+len(thinkClose):]
	if strings.Contains(think, thinkOpen) {
		return Shape{Problem: "nested <think> inside the think segment"}
	}
	if strings.Contains(rest, thinkOpen) || strings.Contains(rest, thinkClose) {
		return Shape{Problem: "think tag after the think segment"}
	}

	shape := Shape{ThinkEmpty: strings.TrimSpace(think) == ""}
	trimmed := strings.TrimSpace(rest)
	shape.TextEmpty = trimmed == ""

	boxedText := rest
	if strings.HasPrefix(trimmed, answerOpen) {
		inner, ok := strings.CutPrefix(trimmed, answerOpen)
		if ok && strings.HasSuffix(inner, answerClose) {
			inner = strings.TrimSuffix(inner, answerClose)
			if !strings.Contains(inner, answerOpen) && !strings.Contains(inner, answerClose) {
				shape.Answered = true
				boxedText = inner
			}
		}
		// Text after </answer> makes the whole remainder free text.
		if !shape.Answered && !strings.Contains(trimmed, answerClose) {
			return Shape{Problem: "unterminated <answer> segment"}
		}
	} else if strings.Contains(trimmed, answerOpen) || strings.Contains(trimmed, answerClose) {
		return Shape{Problem: "<answer> segment out of order"}
	}
	shape.Boxed, shape.Unbalanced = findBox(boxedText)
	return shape
}

// findBox reports whether text holds a \boxed{...} whose braces
// balance, and whether some \boxed{ was left open.
func findBox(text string) (found, unbalanced bool) {
	for {
		start := strings.Index(text, boxOpen)
		if start < 0 {
			return false, unbalanced
		}
		text = text[start+len(boxOpen):]
		depth := 1
		closed := false
		for i := 0; i < len(text); i++ {
			switch text[i] {
			case '\\':
				// Escaped braces (\{ and \}) do not nest.
				i++
			case '{':
				depth++
			case '}':
				depth--
			}
			if depth == 0 {
				closed = true
				text = text[i+1:]
				break
			}
		}
		if closed {
			return true, unbalanced
		}
		unbalanced = true
	}
}

// Matches reports whether the shape satisfies format. ThinkAny
// accepts any of the three grammars.
func (s Shape) Matches(format config.ThinkFormat) bool {
	if s.Problem != "" {
		return false
	}
	switch format {
	case config.ThinkAnswer:
		return !s.ThinkEmpty && s.Answered && s.Boxed
	case config.ThinkOnly:
		return !s.ThinkEmpty && !s.TextEmpty && s.Boxed
	case config.ThinkNoThink:
		return s.ThinkEmpty && !s.TextEmpty
	default:
		return s.Matches(config.ThinkAnswer) || s.Matches(config.ThinkOnly) || s.Matches(config.ThinkNoThink)
	}
}

// Format returns the most specific grammar the shape satisfies.
func (s Shape) Format() (config.ThinkFormat, bool) {
	for _, format := range []config.ThinkFormat{config.ThinkAnswer, config.ThinkOnly, config.ThinkNoThink} {
		if s.Matches(format) {
			return format, true
		}
	}
	return "", false
}

// String describes the observed shape for reports.
func (s Shape) String() string {
	if s.Problem != "" {
		return s.Problem
	}
	var parts []string
	if s.ThinkEmpty {
		parts = append(parts, "empty think")
	} else {
		parts = append(parts, "think")
	}
	switch {
	case s.Answered:
		parts = append(parts, "answer")
	case s.TextEmpty:
		parts = append(parts, "nothing")
	default:
		parts = append(parts, "text")
	}
	switch {
	case s.Boxed:
		parts = append(parts, `with \boxed{}`)
	case s.Unbalanced:
		parts = append(parts, `with unbalanced \boxed{`)
	default:
		parts = append(parts, `without \boxed{}`)
	}
	return strings.Join(parts[:2], " then ") + " " + parts[2]
}

// describeFormat names the shape a format expects.
func describeFormat(format config.ThinkFormat) string {
	switch format {
	case config.ThinkAnswer:
		return `<think>reasoning</think><answer>...\boxed{...}...</answer>`
	case config.ThinkOnly:
		return `<think>reasoning</think>text with \boxed{...}`
	case config.ThinkNoThink:
		return `<think></think>text`
	default:
		return "one of think_answer, think or no_think"
	}
}
