// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/datapack/cmd/datapack/cli"
	"github.com/bureau-foundation/datapack/lib/codec"
	"github.com/bureau-foundation/datapack/lib/config"
	"github.com/bureau-foundation/datapack/lib/report"
	"github.com/bureau-foundation/datapack/lib/volume"
)

type inspectParams struct {
	commonParams
	IdentityFile string `flag:"identity,i" desc:"age identity file for sealed volumes"`
	Entries      bool   `flag:"entries,e" desc:"list every entry"`
	Raw          bool   `flag:"raw" desc:"print the header in CBOR diagnostic notation"`
}

func inspectCommand() *cli.Command {
	var (
		params  inspectParams
		command *cli.Command
	)
	command = &cli.Command{
		Name:    "inspect",
		Summary: "Print volume headers",
		Usage:   "datapack inspect [flags] <volume-dir | volume...>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("inspect", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return config.Invalid("volumes", "give a volume directory or volume files")
			}
			cfg, _, err := params.loadConfig()
			if err != nil {
				return err
			}
			identityFile := cfg.Restore.IdentityFile
			if command.Changed("identity") {
				identityFile = params.IdentityFile
			}
			identities, err := loadIdentities(identityFile)
			if err != nil {
				return err
			}
			paths, err := expandVolumes(args)
			if err != nil {
				return err
			}

			volumes := make([]*volume.Volume, 0, len(paths))
			for _, path := range paths {
				if err := ctx.Err(); err != nil {
					return err
				}
				opened, err := volume.ReadHeader(path, identities)
				if err != nil {
					return err
				}
				volumes = append(volumes, opened)
			}

			if done, err := params.EmitJSON(volumes); done {
				return err
			}
			for _, opened := range volumes {
				if err := printVolume(opened, params.Entries, params.Raw); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return command
}

// expandVolumes replaces a directory argument with the volume files in
// it.
func expandVolumes(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, report.NewIOError("stat", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := volume.Discover(arg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	return paths, nil
}

func printVolume(opened *volume.Volume, entries, raw bool) error {
	header := opened.Header
	fmt.Fprintf(cli.Stdout, "%s\n", opened.Path)
	fmt.Fprintf(cli.Stdout, "  archive:  %s\n", header.ArchiveID)
	fmt.Fprintf(cli.Stdout, "  volume:   %d of %d\n", header.Index, header.Total)
	fmt.Fprintf(cli.Stdout, "  sealed:   %v\n", opened.Sealed)
	fmt.Fprintf(cli.Stdout, "  size:     %s, %d entries\n", humanize.IBytes(uint64(opened.FileSize)), len(header.Entries))

	if raw {
		encoded, err := codec.Marshal(header)
		if err != nil {
			return fmt.Errorf("encoding header: %w", err)
		}
		diagnostic, err := codec.Diagnose(encoded)
		if err != nil {
			return fmt.Errorf("rendering header: %w", err)
		}
		fmt.Fprintf(cli.Stdout, "  header:   %s\n", diagnostic)
	}
	if entries {
		tw := tabwriter.NewWriter(cli.Stdout, 2, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "  KIND\tNAME\tSIZE\tSTORED\tCODEC\n")
		for _, entry := range header.Entries {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", entry.Kind, entry.Name,
				humanize.IBytes(uint64(entry.Size)), humanize.IBytes(uint64(entry.Length)), entry.Compression)
		}
		tw.Flush()
	}
	return nil
}
