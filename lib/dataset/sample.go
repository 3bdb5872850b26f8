// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Roles recognized in conversation turns.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one conversation message.
type Turn struct {
	Role string
	// Text is the content string, or the text parts joined with
	// newlines when content is a list of parts.
	Text string
	// MediaParts counts non-text content parts by kind
	// ({"type": "image"} and friends).
	MediaParts map[MediaKind]int
}

// Reference is one media path held by a sample.
type Reference struct {
	Field MediaField
	// Position is the index within the field's list.
	Position int
	Path     string
}

// Sample is one parsed JSONL record. Only the fields the pipeline
// interprets are decoded; the original bytes are kept in Raw.
type Sample struct {
	// ID is the "id" field rendered as text: a JSON string unquoted,
	// any other JSON value verbatim. Empty when absent.
	ID         string
	Turns      []Turn
	References []Reference
	Raw        []byte
}

type sampleFields struct {
	ID            json.RawMessage `json:"id"`
	Messages      []turnFields    `json:"messages"`
	Conversations []turnFields    `json:"conversations"`
	Images        json.RawMessage `json:"images"`
	Videos        json.RawMessage `json:"videos"`
	Audios        json.RawMessage `json:"audios"`
}

// turnFields accepts both {"role", "content"} and the older
// {"from", "value"} turn shape.
type turnFields struct {
	Role    string          `json:"role"`
	From    string          `json:"from"`
	Content json.RawMessage `json:"content"`
	Value   json.RawMessage `json:"value"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ErrNotObject is returned for a JSONL line that is valid JSON but
// not an object.
var ErrNotObject = errors.New("sample is not a JSON object")

// ParseSample decodes one non-blank JSONL line.
func ParseSample(raw []byte) (*Sample, error) {
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("invalid JSON")
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotObject
	}

	var fields sampleFields
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("decoding sample: %w", err)
	}

	sample := &Sample{ID: renderID(fields.ID), Raw: raw}

	turns := fields.Messages
	if turns == nil {
		turns = fields.Conversations
	}
	for i, turn := range turns {
		parsed, err := parseTurn(turn)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}
		sample.Turns = append(sample.Turns, parsed)
	}

	for _, field := range MediaFields {
		var value json.RawMessage
		switch field.Name {
		case "images":
			value = fields.Images
		case "videos":
			value = fields.Videos
		case "audios":
			value = fields.Audios
		}
		paths, err := decodeReferenceList(value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		for position, path := range paths {
			sample.References = append(sample.References, Reference{Field: field, Position: position, Path: path})
		}
	}
	return sample, nil
}

// ReasoningAnnotation returns the text of the final assistant turn.
func (s *Sample) ReasoningAnnotation() (string, bool) {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == RoleAssistant {
			return s.Turns[i].Text, true
		}
	}
	return "", false
}

// ReferencesOf returns the sample's references held in field.
func (s *Sample) ReferencesOf(field MediaField) []Reference {
	var matching []Reference
	for _, reference := range s.References {
		if reference.Field.Name == field.Name {
			matching = append(matching, reference)
		}
	}
	return matching
}

func renderID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return string(raw)
}

func normalizeRole(role string) string {
	switch strings.ToLower(role) {
	case "human":
		return RoleUser
	case "gpt", "model", "bot":
		return RoleAssistant
	default:
		return strings.ToLower(role)
	}
}

func parseTurn(fields turnFields) (Turn, error) {
	role := fields.Role
	if role == "" {
		role = fields.From
	}
	content := fields.Content
	if len(content) == 0 {
		content = fields.Value
	}
	turn := Turn{Role: normalizeRole(role)}

	content = bytes.TrimSpace(content)
	if len(content) == 0 || string(content) == "null" {
		return turn, nil
	}
	switch content[0] {
	case '"':
		if err := json.Unmarshal(content, &turn.Text); err != nil {
			return Turn{}, fmt.Errorf("decoding content: %w", err)
		}
	case '[':
		var parts []contentPart
		if err := json.Unmarshal(content, &parts); err != nil {
			return Turn{}, fmt.Errorf("decoding content parts: %w", err)
		}
		var texts []string
		for _, part := range parts {
			if part.Type == "text" || (part.Type == "" && part.Text != "") {
				texts = append(texts, part.Text)
				continue
			}
			if kind, err := ParseMediaKind(part.Type); err == nil && kind.IsMedia() {
				if turn.MediaParts == nil {
					turn.MediaParts = map[MediaKind]int{}
				}
				turn.MediaParts[kind]++
			}
		}
		turn.Text = strings.Join(texts, "\n")
	default:
		return Turn{}, fmt.Errorf("content must be a string or a list of parts")
	}
	return turn, nil
}

// decodeReferenceList accepts a list of strings, a single string, or
// null.
func decodeReferenceList(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '"' {
		var single string
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, err
		}
		return []string{single}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("media references must be strings: %w", err)
	}
	return list, nil
}
