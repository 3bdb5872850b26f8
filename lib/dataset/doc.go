// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dataset is the on-disk model shared by every pipeline
// stage: datasets and their MetaFile groups, JSONL samples, media
// references, and the dataset_config.yaml catalog.
//
// A group's conventional layout is
//
//	<group>/MetaFiles/*.jsonl
//	<group>/MediaFiles/...
//
// Relative media references resolve against the group root, which
// is the parent of a MetaFiles directory or, for JSONL files kept
// elsewhere, the directory holding them.
//
// Samples are decoded only as far as the pipeline needs (id, turns,
// media lists). [RewriteReferences] edits the media lists of a raw
// line in place, leaving every other byte untouched, so archiving and
// restoring never reformat a dataset.
package dataset
