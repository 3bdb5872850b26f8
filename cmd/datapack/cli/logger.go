// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// LogOutput is where command logs go. Tests replace it.
var LogOutput io.Writer = os.Stderr

// NewCommandLogger creates the structured logger for a command. When
// stderr is a terminal, records go through tint for colored,
// human-readable output; when it is piped or redirected they are JSON
// lines. verbose lowers the level to debug.
//
// Callers scope the logger with command context via With():
//
//	logger := cli.NewCommandLogger(params.Verbose).With("command", "archive")
func NewCommandLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	file, isFile := LogOutput.(*os.File)
	if !isFile || !term.IsTerminal(int(file.Fd())) {
		return slog.New(slog.NewJSONHandler(LogOutput, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(colorable.NewColorable(file), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(file.Fd()) && !isatty.IsCygwinTerminal(file.Fd()),
	}))
}
