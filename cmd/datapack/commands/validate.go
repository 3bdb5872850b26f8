// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/datapack/cmd/datapack/cli"
	"github.com/bureau-foundation/datapack/lib/config"
	"github.com/bureau-foundation/datapack/lib/validate"
)

type validateParams struct {
	commonParams
	LongCoT      bool   `flag:"long-cot" desc:"check reasoning annotations in every dataset, not only long_cot ones"`
	ThinkFormat  string `flag:"think-format" desc:"any, think_answer, think or no_think"`
	MultiTurn    bool   `flag:"multi-turn" desc:"check role order and every assistant turn"`
	Placeholders bool   `flag:"placeholders" desc:"compare <image>/<video>/<audio> tags with media references"`
	Workers      int    `flag:"workers,j" desc:"parallel workers (0: one per CPU)"`
}

// validateOutput is the --json form of a validation run.
type validateOutput struct {
	Passed  bool                        `json:"passed"`
	Reports map[string]*validate.Report `json:"reports"`
}

func validateCommand() *cli.Command {
	var (
		params  validateParams
		command *cli.Command
	)
	command = &cli.Command{
		Name:    "validate",
		Summary: "Check media integrity and reasoning format of datasets",
		Description: `Check every sample of the given MetaFile groups, or of the configured
datasets when no group is given.

Each referenced media file must exist and decode. In Long-CoT datasets
the final assistant turn must follow the <think>...</think>
[<answer>...</answer>] grammar. Every problem is reported with its file
and sample index; the command exits 1 when anything was found.`,
		Usage: "datapack validate [flags] [group...]",
		Examples: []cli.Example{
			{Description: "Validate one group", Command: "datapack validate /data/vqa/MetaFiles"},
			{Description: "Require think/answer reasoning in every dataset", Command: "datapack validate --config datapack.yaml --long-cot --think-format think_answer"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("validate", &params) },
		Run: func(ctx context.Context, args []string) error {
			cfg, _, err := params.loadConfig()
			if err != nil {
				return err
			}
			section := cfg.Validate
			if command.Changed("long-cot") {
				section.CheckLongCoT = params.LongCoT
			}
			if command.Changed("think-format") {
				format, err := config.ParseThinkFormat(params.ThinkFormat)
				if err != nil {
					return err
				}
				section.ThinkFormat = format
			}
			if command.Changed("multi-turn") {
				section.CheckMultiTurnThink = params.MultiTurn
			}
			if command.Changed("placeholders") {
				section.CheckPlaceholders = params.Placeholders
			}
			if command.Changed("workers") {
				section.Workers = params.Workers
			}
			options := validate.Options{
				CheckLongCoT:        section.CheckLongCoT,
				ThinkFormat:         section.ThinkFormat,
				CheckMultiTurnThink: section.CheckMultiTurnThink,
				CheckPlaceholders:   section.CheckPlaceholders,
				Workers:             cfg.WorkersFor(section.Workers),
				Logger:              params.logger("validate"),
			}

			var (
				names   []string
				reports = map[string]*validate.Report{}
			)
			if len(args) > 0 {
				for _, group := range args {
					report, err := validate.ValidateGroup(ctx, group, options)
					if err != nil {
						return err
					}
					names = append(names, group)
					reports[group] = report
				}
			} else {
				datasets, err := cfg.ResolveDatasets()
				if err != nil {
					return err
				}
				if len(datasets) == 0 {
					return config.Invalid("datasets", "give a group path or configure datasets")
				}
				for _, ds := range datasets {
					report, err := validate.ValidateDataset(ctx, ds, options)
					if err != nil {
						return err
					}
					names = append(names, ds.Name)
					reports[ds.Name] = report
				}
			}

			passed := true
			for _, report := range reports {
				passed = passed && report.Passed()
			}

			done, err := params.EmitJSON(validateOutput{Passed: passed, Reports: reports})
			if !done {
				for _, name := range names {
					printReport(name, reports[name])
				}
			}
			if err != nil {
				return err
			}
			if !passed {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
	return command
}

func printReport(name string, report *validate.Report) {
	status := "ok"
	if !report.Passed() {
		status = fmt.Sprintf("%d finding(s)", len(report.Findings))
	}
	fmt.Fprintf(cli.Stdout, "%s: %d files, %d samples, %s\n", name, report.Files, report.Samples, status)
	for _, finding := range report.Findings {
		location := finding.File
		if finding.SampleIndex >= 0 {
			location = fmt.Sprintf("%s sample %d", finding.File, finding.SampleIndex)
			if finding.SampleID != "" {
				location += fmt.Sprintf(" (id %s)", finding.SampleID)
			}
		}
		fmt.Fprintf(cli.Stdout, "  [%s] %s: %s\n", finding.Kind, location, finding.Detail)
	}
}
