// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/datapack/cmd/datapack/cli"
	"github.com/bureau-foundation/datapack/lib/config"
	"github.com/bureau-foundation/datapack/lib/restore"
)

type restoreParams struct {
	commonParams
	Destination    string `flag:"destination,o" desc:"directory the datasets are restored under"`
	IdentityFile   string `flag:"identity,i" desc:"age identity file for sealed volumes"`
	SkipSpaceCheck bool   `flag:"skip-space-check" desc:"do not check free space before writing"`
	Workers        int    `flag:"workers,j" desc:"parallel workers (0: one per CPU)"`
}

func restoreCommand() *cli.Command {
	var (
		params  restoreParams
		command *cli.Command
	)
	command = &cli.Command{
		Name:    "restore",
		Summary: "Rebuild datasets from a complete volume set",
		Description: `Rebuild the archived datasets under a destination directory.

Arguments are the volume files of one archive, or a single directory
holding them. The set must be complete: a missing volume is reported by
index before anything is written. Every restored file is checked
against its recorded size and fingerprint, and media references in the
restored JSONL files are absolute paths under the destination.`,
		Usage: "datapack restore [flags] <volume-dir | volume...>",
		Examples: []cli.Example{
			{Description: "Restore an archive directory", Command: "datapack restore /backup -o /data/restored"},
			{Description: "Restore a sealed archive", Command: "datapack restore /backup -o /data/restored -i ~/.config/datapack/identity"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("restore", &params) },
		Run: func(ctx context.Context, args []string) error {
			cfg, _, err := params.loadConfig()
			if err != nil {
				return err
			}
			section := cfg.Restore
			if command.Changed("destination") {
				section.Destination = params.Destination
			}
			if command.Changed("identity") {
				section.IdentityFile = params.IdentityFile
			}
			if command.Changed("skip-space-check") {
				section.SkipSpaceCheck = params.SkipSpaceCheck
			}
			if command.Changed("workers") {
				section.Workers = params.Workers
			}

			volumes := args
			if len(volumes) == 0 && section.Volumes != "" {
				volumes = []string{section.Volumes}
			}
			if len(volumes) == 0 {
				return config.Invalid("volumes", "give a volume directory or volume files")
			}
			identities, err := loadIdentities(section.IdentityFile)
			if err != nil {
				return err
			}

			result, err := restore.Restore(ctx, restore.Options{
				Volumes:        volumes,
				Destination:    section.Destination,
				Workers:        cfg.WorkersFor(section.Workers),
				Identities:     identities,
				SkipSpaceCheck: section.SkipSpaceCheck,
				Logger:         params.logger("restore"),
			})
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(result); done {
				return err
			}
			fmt.Fprintf(cli.Stdout, "restored archive %s into %s\n", result.ArchiveID, result.Destination)
			fmt.Fprintf(cli.Stdout, "  files:      %d from %d blobs (%s)\n", result.Files, result.Blobs, humanize.IBytes(uint64(result.Bytes)))
			fmt.Fprintf(cli.Stdout, "  metafiles:  %d\n", result.MetaFiles)
			fmt.Fprintf(cli.Stdout, "  catalog:    %s\n", result.CatalogPath)
			printOutcome(result.Outcome)
			if !result.Outcome.OK() {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
	return command
}
