// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/datapack/cmd/datapack/cli"
	"github.com/bureau-foundation/datapack/lib/config"
	"github.com/bureau-foundation/datapack/lib/report"
	"github.com/bureau-foundation/datapack/lib/split"
)

type splitParams struct {
	commonParams
	MaxSamples   int    `flag:"max-samples,n" desc:"most samples per output file"`
	OutputPrefix string `flag:"prefix" desc:"prefix for output names: <prefix>_<stem>_part<k>.jsonl"`
	OutputDir    string `flag:"output-dir,o" desc:"directory for the parts (default: beside each source)"`
	RemoveSource bool   `flag:"remove-source" default:"true" desc:"delete each source once its parts are written"`
	Workers      int    `flag:"workers,j" desc:"parallel workers (0: one per CPU)"`
}

func splitCommand() *cli.Command {
	var (
		params  splitParams
		command *cli.Command
	)
	command = &cli.Command{
		Name:    "split",
		Summary: "Split JSONL files into parts of bounded sample count",
		Description: `Split each JSONL file into ceil(samples/max) parts of at most
--max-samples samples, keeping the original order and line bytes.

Arguments are JSONL files or MetaFile groups (every JSONL file inside is
split). Files that already fit are left alone. A file containing an
invalid line is reported and not split. Sources are deleted after a
successful split unless --remove-source=false.`,
		Usage: "datapack split [flags] <file-or-group...>",
		Examples: []cli.Example{
			{Description: "Split a group into 5000-sample files and keep the sources", Command: "datapack split -n 5000 --remove-source=false /data/vqa/MetaFiles"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("split", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return config.Invalid("split", "give JSONL files or group directories")
			}
			cfg, loaded, err := params.loadConfig()
			if err != nil {
				return err
			}
			section := cfg.Split
			if command.Changed("max-samples") {
				section.MaxSamples = params.MaxSamples
			}
			if command.Changed("prefix") {
				section.OutputPrefix = params.OutputPrefix
			}
			if command.Changed("output-dir") {
				section.OutputDir = params.OutputDir
			}
			// The configuration file decides only when the flag is
			// absent; without a file the flag default applies.
			if command.Changed("remove-source") || !loaded {
				section.RemoveSource = params.RemoveSource
			}
			if command.Changed("workers") {
				section.Workers = params.Workers
			}

			options := split.Options{
				MaxSamples:   section.MaxSamples,
				Workers:      cfg.WorkersFor(section.Workers),
				OutputPrefix: section.OutputPrefix,
				OutputDir:    section.OutputDir,
				RemoveSource: section.RemoveSource,
				Logger:       params.logger("split"),
			}
			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return report.NewIOError("stat", path, err)
				}
				if info.IsDir() {
					options.Groups = append(options.Groups, path)
				} else {
					options.Files = append(options.Files, path)
				}
			}

			result, err := split.Split(ctx, options)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(result); done {
				if err == nil && !result.Outcome.OK() {
					return &cli.ExitError{Code: 1}
				}
				return err
			}
			for _, file := range result.Files {
				switch {
				case len(file.Outputs) > 0:
					fmt.Fprintf(cli.Stdout, "%s: %d samples into %d parts\n", file.Source, file.Samples, len(file.Outputs))
				case file.Unchanged:
					fmt.Fprintf(cli.Stdout, "%s: %d samples, no split needed\n", file.Source, file.Samples)
				}
			}
			fmt.Fprintf(cli.Stdout, "%d samples, %d output files\n", result.Samples, result.Outputs)
			printOutcome(result.Outcome)
			if !result.Outcome.OK() {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
	return command
}
