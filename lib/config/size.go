// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Size is a byte count that reads from YAML as either an integer or a
// humanized string: "512MiB", "2 GB", "1073741824".
type Size int64

// ParseSize parses a humanized byte count.
func ParseSize(text string) (Size, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("empty size")
	}
	bytes, err := humanize.ParseBytes(text)
	if err != nil {
		return 0, fmt.Errorf("parsing size %q: %w", text, err)
	}
	if bytes > math.MaxInt64 {
		return 0, fmt.Errorf("size %q is too large", text)
	}
	return Size(bytes), nil
}

func (s Size) String() string {
	if s < 0 {
		return fmt.Sprintf("%d B", int64(s))
	}
	return humanize.IBytes(uint64(s))
}

// Int64 returns the size in bytes.
func (s Size) Int64() int64 { return int64(s) }

// UnmarshalYAML accepts integers and humanized strings.
func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a number or a string such as \"1GiB\"", node.Line)
	}
	var integer int64
	if node.Tag == "!!int" {
		if err := node.Decode(&integer); err != nil {
			return err
		}
		*s = Size(integer)
		return nil
	}
	parsed, err := ParseSize(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = parsed
	return nil
}

// MarshalYAML writes the humanized form.
func (s Size) MarshalYAML() (any, error) {
	return s.String(), nil
}

// Set and Type make Size usable as a pflag.Value.
func (s *Size) Set(text string) error {
	parsed, err := ParseSize(text)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s *Size) Type() string { return "size" }
