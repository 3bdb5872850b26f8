// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/datapack/cmd/datapack/cli"
	"github.com/bureau-foundation/datapack/lib/report"
	"github.com/bureau-foundation/datapack/lib/sealed"
)

type keygenParams struct {
	cli.JSONOutput
	Output string `flag:"output,o" desc:"write the identity file here (mode 0600) instead of stdout"`
	Force  bool   `flag:"force" desc:"overwrite an existing identity file"`
}

type keygenOutput struct {
	PublicKey    string `json:"public_key"`
	IdentityFile string `json:"identity_file,omitempty"`
}

func keygenCommand() *cli.Command {
	var params keygenParams
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an age keypair for sealed volumes",
		Description: `Generate an age X25519 keypair.

Pass the public key to "datapack archive --recipient" to seal volumes,
and the identity file to "datapack restore --identity" to open them.`,
		Usage: "datapack keygen [flags]",
		Examples: []cli.Example{
			{Description: "Create an identity file", Command: "datapack keygen -o ~/.config/datapack/identity"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("keygen", &params) },
		Run: func(_ context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}
			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return err
			}

			if params.Output == "" {
				if done, err := params.EmitJSON(map[string]string{
					"public_key":  keypair.PublicKey,
					"private_key": keypair.PrivateKey,
				}); done {
					return err
				}
				_, err := fmt.Fprint(cli.Stdout, keypair.IdentityFile())
				return err
			}

			if err := writeIdentityFile(params.Output, keypair.IdentityFile(), params.Force); err != nil {
				return err
			}
			if done, err := params.EmitJSON(keygenOutput{PublicKey: keypair.PublicKey, IdentityFile: params.Output}); done {
				return err
			}
			fmt.Fprintf(cli.Stdout, "Public key: %s\n", keypair.PublicKey)
			return nil
		},
	}
}

func writeIdentityFile(path, content string, force bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return report.NewIOError("create directory", filepath.Dir(path), err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return report.NewIOError("create", path, err)
	}
	if _, err := file.WriteString(content); err != nil {
		file.Close()
		return report.NewIOError("write", path, err)
	}
	if err := file.Close(); err != nil {
		return report.NewIOError("close", path, err)
	}
	return nil
}
