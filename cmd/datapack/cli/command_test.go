// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string
	root := &Command{
		Name: "datapack",
		Subcommands: []*Command{
			{Name: "archive", Run: func(context.Context, []string) error { called = "archive"; return nil }},
			{Name: "restore", Run: func(context.Context, []string) error { called = "restore"; return nil }},
		},
	}

	if err := root.Execute(context.Background(), []string{"restore"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "restore" {
		t.Errorf("dispatched to %q, want %q", called, "restore")
	}
}

func TestCommand_Execute_FlagsAndArgs(t *testing.T) {
	var (
		workers  int
		received []string
		command  *Command
		changed  bool
	)
	command = &Command{
		Name: "split",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("split", pflag.ContinueOnError)
			flagSet.IntVar(&workers, "workers", 0, "worker count")
			flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			received = args
			changed = command.Changed("workers")
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"--workers", "4", "a.jsonl", "b.jsonl"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if workers != 4 {
		t.Errorf("workers = %d, want 4", workers)
	}
	if len(received) != 2 || received[0] != "a.jsonl" {
		t.Errorf("args = %v, want [a.jsonl b.jsonl]", received)
	}
	if !changed {
		t.Error("Changed(workers) = false after --workers was given")
	}
	if command.Changed("json") {
		t.Error("Changed(json) = true for a flag that was not given")
	}
}

func TestCommand_Execute_UnknownSubcommandSuggests(t *testing.T) {
	root := &Command{
		Name: "datapack",
		Subcommands: []*Command{
			{Name: "validate", Run: func(context.Context, []string) error { return nil }},
		},
	}
	err := root.Execute(context.Background(), []string{"valdate"})
	if err == nil {
		t.Fatal("expected an error for an unknown command")
	}
	if !strings.Contains(err.Error(), `did you mean "validate"`) {
		t.Errorf("error %q lacks a suggestion", err)
	}
}

func TestCommand_Execute_UnknownFlagSuggests(t *testing.T) {
	command := &Command{
		Name: "restore",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("restore", pflag.ContinueOnError)
			flagSet.String("destination", "", "target directory")
			return flagSet
		},
		Run: func(context.Context, []string) error { return nil },
	}
	err := command.Execute(context.Background(), []string{"--destinaton", "/tmp"})
	if err == nil {
		t.Fatal("expected an error for an unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --destination?") {
		t.Errorf("error %q lacks a suggestion", err)
	}
}

func TestCommand_Execute_SubcommandRequired(t *testing.T) {
	root := &Command{
		Name:        "datapack",
		Subcommands: []*Command{{Name: "version"}},
	}
	if err := root.Execute(context.Background(), nil); err == nil {
		t.Error("expected an error when no subcommand is given")
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	root := &Command{
		Name:    "datapack",
		Summary: "Package training datasets",
		Subcommands: []*Command{
			{Name: "archive", Summary: "Pack datasets into volumes"},
			{Name: "split", Summary: "Split JSONL files"},
		},
		Examples: []Example{{Description: "Pack everything", Command: "datapack archive --config datapack.yaml"}},
	}

	var buffer bytes.Buffer
	root.PrintHelp(&buffer)
	help := buffer.String()
	for _, want := range []string{"Package training datasets", "archive", "Split JSONL files", "# Pack everything", "datapack <command> --help"} {
		if !strings.Contains(help, want) {
			t.Errorf("help output missing %q:\n%s", want, help)
		}
	}
}
