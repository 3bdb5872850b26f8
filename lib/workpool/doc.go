// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workpool is the bounded worker pool shared by every
// pipeline stage. It is a thin layer over errgroup with SetLimit:
// fail-fast cancellation comes from errgroup, and ordering is the
// caller's responsibility through index-addressed result slots.
package workpool
