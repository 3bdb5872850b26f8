// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the datapack
// CLI.
//
// The central type is [Command], a named subcommand with optional
// nested [Command.Subcommands], a [pflag.FlagSet] factory and a Run
// function. Commands are assembled into a tree in cmd/datapack/commands
// and dispatched via [Command.Execute], which handles flag parsing,
// subcommand routing and help output with examples. Parameter structs
// declare their flags with struct tags ([FlagsFromParams]).
//
// Unknown subcommands and flags get a "did you mean" suggestion when
// a known name is within edit distance 3.
//
// [NewCommandLogger] builds the slog logger every command uses, and
// [JSONOutput] adds --json to a command's parameters.
package cli
