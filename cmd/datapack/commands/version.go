// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/datapack/cmd/datapack/cli"
	"github.com/bureau-foundation/datapack/lib/archive"
	"github.com/bureau-foundation/datapack/lib/version"
	"github.com/bureau-foundation/datapack/lib/volume"
)

type versionParams struct {
	cli.JSONOutput
}

type versionOutput struct {
	version.Info
	VolumeFormat    uint16 `json:"volume_format"`
	ManifestVersion int    `json:"manifest_version"`
}

func versionCommand() *cli.Command {
	var params versionParams
	return &cli.Command{
		Name:    "version",
		Summary: "Print build and format versions",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("version", &params) },
		Run: func(context.Context, []string) error {
			output := versionOutput{
				Info:            version.Get(),
				VolumeFormat:    volume.FormatVersion,
				ManifestVersion: archive.ManifestVersion,
			}
			if done, err := params.EmitJSON(output); done {
				return err
			}
			fmt.Fprintf(cli.Stdout, "datapack %s\n", output.Info)
			fmt.Fprintf(cli.Stdout, "  volume format:    %d\n", output.VolumeFormat)
			fmt.Fprintf(cli.Stdout, "  manifest version: %d\n", output.ManifestVersion)
			return nil
		},
	}
}
