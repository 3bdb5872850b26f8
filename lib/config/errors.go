// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import "fmt"

// ConfigError reports an invalid option. Field uses the YAML path of
// the option ("archive.max_volume_size"); library callers that build
// options directly get the Go-side option name instead.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Invalid returns a *ConfigError.
func Invalid(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
