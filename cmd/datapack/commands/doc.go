// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the datapack command tree. Each command
// overlays its explicitly given flags on the matching section of the
// configuration file and calls the library package that does the
// work.
package commands
