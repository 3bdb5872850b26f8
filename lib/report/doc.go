// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package report defines the structured outcome shared by every
// datapack pipeline stage and the [IOError] kind used to attribute a
// failure to a specific file.
//
// Stages never abort on a single bad file unless the caller asked for
// strict mode. Workers record failures into a [Collector]; after the
// join barrier the stage returns the [Outcome] with counts and the
// itemized error list, sorted by path.
//
// This package depends on no other datapack packages.
package report
