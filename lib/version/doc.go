// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the datapack binary.
//
// Release builds inject [Version] and [GitCommit] with -ldflags:
//
//	go build -ldflags "-X github.com/bureau-foundation/datapack/lib/version.Version=v1.2.0"
//
// Otherwise [Get] falls back to the module version and VCS settings
// the Go toolchain embeds.
package version
