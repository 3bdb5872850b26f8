// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// RewriteReferences returns a copy of the JSONL line raw with every
// media reference replaced by mapping's result. Only the values of the
// media fields change: every other byte of the line, including key
// order, whitespace and the encoding of unrelated fields, is carried
// over unchanged. A line without media fields is returned as-is.
//
// A reference that was a single string stays a single string.
func RewriteReferences(raw []byte, mapping func(Reference) (string, error)) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	token, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("reading sample: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	var output bytes.Buffer
	copied := 0 // raw[:copied] has been written to output
	rewritten := false

	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("reading sample key: %w", err)
		}
		key, ok := token.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v in sample object", token)
		}
		var value json.RawMessage
		if err := decoder.Decode(&value); err != nil {
			return nil, fmt.Errorf("reading value of %q: %w", key, err)
		}

		field, isMedia := FieldForName(key)
		if !isMedia {
			continue
		}
		end := int(decoder.InputOffset())
		start := end - len(value)

		replacement, changed, err := rewriteList(value, field, mapping)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		if !changed {
			continue
		}
		output.Write(raw[copied:start])
		output.Write(replacement)
		copied = end
		rewritten = true
	}

	token, err = decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("reading end of sample: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '}' {
		return nil, fmt.Errorf("unterminated sample object")
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after sample object")
	}

	if !rewritten {
		return raw, nil
	}
	output.Write(raw[copied:])
	return output.Bytes(), nil
}

func rewriteList(value json.RawMessage, field MediaField, mapping func(Reference) (string, error)) ([]byte, bool, error) {
	paths, err := decodeReferenceList(value)
	if err != nil {
		return nil, false, err
	}
	if len(paths) == 0 {
		return nil, false, nil
	}
	single := bytes.TrimSpace(value)[0] == '"'

	changed := false
	for position, path := range paths {
		replacement, err := mapping(Reference{Field: field, Position: position, Path: path})
		if err != nil {
			return nil, false, err
		}
		if replacement != path {
			paths[position] = replacement
			changed = true
		}
	}
	if !changed {
		return nil, false, nil
	}

	var encoded []byte
	if single {
		encoded, err = marshalNoEscape(paths[0])
	} else {
		encoded, err = marshalNoEscape(paths)
	}
	if err != nil {
		return nil, false, err
	}
	return encoded, true, nil
}

// marshalNoEscape encodes v without HTML escaping, so paths holding
// '&' or '<' stay readable.
func marshalNoEscape(v any) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buffer.Bytes(), "\n"), nil
}
