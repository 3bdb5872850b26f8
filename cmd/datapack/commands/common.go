// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/datapack/cmd/datapack/cli"
	"github.com/bureau-foundation/datapack/lib/config"
	"github.com/bureau-foundation/datapack/lib/dataset"
	"github.com/bureau-foundation/datapack/lib/report"
	"github.com/bureau-foundation/datapack/lib/sealed"
)

// commonParams are the flags every pipeline command accepts.
type commonParams struct {
	cli.JSONOutput
	Config  string `flag:"config,c" desc:"configuration file (YAML, or JSON with comments); defaults to $DATAPACK_CONFIG"`
	Verbose bool   `flag:"verbose,v" desc:"log per-file detail"`
}

// loadConfig returns the configuration named by --config or
// DATAPACK_CONFIG, or the defaults when neither is set. The second
// result reports whether a file was loaded.
func (p *commonParams) loadConfig() (*config.Config, bool, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case p.Config != "":
		cfg, err = config.LoadFile(p.Config)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		return config.Default(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := cfg.Check(); err != nil {
		return nil, false, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, true, nil
}

func (p *commonParams) logger(command string) *slog.Logger {
	return cli.NewCommandLogger(p.Verbose).With("command", command)
}

// parseDatasetFlags turns "name=root" values and bare roots (named by
// their base directory) into datasets.
func parseDatasetFlags(values []string) ([]dataset.Dataset, error) {
	datasets := make([]dataset.Dataset, 0, len(values))
	for _, value := range values {
		name, root, found := strings.Cut(value, "=")
		if !found {
			root = value
			name = filepath.Base(filepath.Clean(value))
		}
		absolute, err := filepath.Abs(root)
		if err != nil {
			return nil, report.NewIOError("resolve", root, err)
		}
		datasets = append(datasets, dataset.Dataset{Name: name, Root: absolute})
	}
	return datasets, nil
}

// loadIdentities reads an age identity file; an empty path yields no
// identities.
func loadIdentities(path string) ([]sealed.Identity, error) {
	if path == "" {
		return nil, nil
	}
	return sealed.LoadIdentityFile(path)
}

// printOutcome writes per-file failures to stderr as a short list.
func printOutcome(outcome report.Outcome) {
	if outcome.OK() {
		return
	}
	fmt.Fprintf(os.Stderr, "%d file(s) failed:\n", outcome.Failed)
	for _, failure := range outcome.Errors {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", failure.Path, failure.Message)
	}
}
