// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package split bounds the number of samples per JSONL file.
//
// Each input file with M samples and a limit of K becomes ceil(M/K)
// files named "[<prefix>_]<stem>_part<k>.jsonl", holding the samples
// in their original order with their line bytes untouched. Files are
// processed independently by a worker pool; samples never move between
// files.
package split
