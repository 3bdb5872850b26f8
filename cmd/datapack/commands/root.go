// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import "github.com/bureau-foundation/datapack/cmd/datapack/cli"

// Root returns the datapack command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "datapack",
		Summary: "Package, restore, check and split training datasets",
		Description: `datapack packages multimodal training datasets (JSONL metafiles plus
the images, video and audio they reference) into deduplicated,
hash-verified volumes, and restores them anywhere.

Every pipeline command reads an optional configuration file given by
--config or $DATAPACK_CONFIG; flags given on the command line override
its values.`,
		Subcommands: []*cli.Command{
			archiveCommand(),
			restoreCommand(),
			validateCommand(),
			splitCommand(),
			inspectCommand(),
			keygenCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{Description: "Archive, then restore elsewhere", Command: "datapack archive -d vqa=/data/vqa -o /backup && datapack restore /backup -o /mnt/data"},
			{Description: "Check a dataset before training", Command: "datapack validate --long-cot /data/cot/MetaFiles"},
		},
	}
}
