// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Datapack packages multimodal training datasets into deduplicated,
// hash-verified volumes and restores them on another machine. It also
// validates media integrity and reasoning format, and splits large
// JSONL files.
//
// Usage:
//
//	datapack archive  [flags] [dataset-root...]
//	datapack restore  [flags] <volume-dir | volume...>
//	datapack validate [flags] [group...]
//	datapack split    [flags] <file-or-group...>
//	datapack inspect  [flags] <volume-dir | volume...>
//	datapack keygen   [flags]
//	datapack version
//
// Run "datapack <command> --help" for the flags of each command.
package main
