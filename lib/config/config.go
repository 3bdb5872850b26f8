// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/datapack/lib/compress"
	"github.com/bureau-foundation/datapack/lib/dataset"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "DATAPACK_CONFIG"

// Config is the pipeline configuration. One file configures every
// command; each command reads its own section plus the shared
// dataset list.
type Config struct {
	// Datasets are archived (and validated) in the order listed.
	Datasets []dataset.Dataset `yaml:"datasets"`

	// Catalog is a dataset_config.yaml file whose datasets are
	// appended after Datasets, in name order.
	Catalog string `yaml:"catalog"`

	// Workers is the default worker count for every stage. Zero means
	// one per CPU.
	Workers int `yaml:"workers"`

	Archive  ArchiveConfig  `yaml:"archive"`
	Restore  RestoreConfig  `yaml:"restore"`
	Validate ValidateConfig `yaml:"validate"`
	Split    SplitConfig    `yaml:"split"`

	// baseDir is the directory of the loaded file; relative paths
	// resolve against it.
	baseDir string
}

// ArchiveConfig configures the archiver and segmenter.
type ArchiveConfig struct {
	// Output is the directory that receives volumes and manifest.json.
	Output string `yaml:"output"`

	// Name is the volume file prefix: <name>.part0001.dpv.
	Name string `yaml:"name"`

	// Deduplicate stores identical media content once.
	// Default: true
	Deduplicate bool `yaml:"deduplicate"`

	// DedupKinds limits deduplication to these media kinds.
	// Default: [image, video, audio]
	DedupKinds []dataset.MediaKind `yaml:"dedup_kinds"`

	// IncludeUnreferenced also archives files under each dataset root
	// that no sample references.
	IncludeUnreferenced bool `yaml:"include_unreferenced"`

	// MaxVolumeSize bounds each volume file. Accepts byte counts or
	// sizes such as "1GiB".
	// Default: 1GiB
	MaxVolumeSize Size `yaml:"max_volume_size"`

	// Compression is auto, none, lz4 or zstd.
	// Default: auto
	Compression compress.Mode `yaml:"compression"`

	// Recipients are age X25519 public keys. A non-empty list seals
	// every volume.
	Recipients []string `yaml:"recipients"`

	// RecipientsFile holds further recipients, one per line.
	RecipientsFile string `yaml:"recipients_file"`

	// Strict aborts on the first unreadable source file.
	Strict bool `yaml:"strict"`

	Workers int `yaml:"workers"`
}

// RestoreConfig configures the restorer.
type RestoreConfig struct {
	// Volumes is a directory searched for *.dpv files.
	Volumes string `yaml:"volumes"`

	// Destination is the root the datasets are restored under.
	Destination string `yaml:"destination"`

	// IdentityFile holds age identities for sealed volumes.
	IdentityFile string `yaml:"identity_file"`

	// SkipSpaceCheck disables the free-space preflight.
	SkipSpaceCheck bool `yaml:"skip_space_check"`

	Workers int `yaml:"workers"`
}

// ValidateConfig configures the content and format validator.
type ValidateConfig struct {
	// CheckLongCoT checks reasoning annotations against the think
	// grammars for every dataset, not only those flagged long_cot.
	CheckLongCoT bool `yaml:"check_long_cot"`

	// ThinkFormat is any, think_answer, think or no_think.
	// Default: any
	ThinkFormat ThinkFormat `yaml:"think_format"`

	// CheckMultiTurnThink enables the role-order check and grammar
	// checks on every assistant turn.
	CheckMultiTurnThink bool `yaml:"check_multi_turn_think"`

	// CheckPlaceholders compares <image>/<video>/<audio> tags in user
	// turns with the sample's reference lists.
	CheckPlaceholders bool `yaml:"check_placeholders"`

	Workers int `yaml:"workers"`
}

// SplitConfig configures the JSONL splitter.
type SplitConfig struct {
	// MaxSamples is the per-output sample limit.
	// Default: 1000
	MaxSamples int `yaml:"max_samples"`

	// OutputPrefix is prepended to output names: <prefix>_<stem>_part1.jsonl.
	OutputPrefix string `yaml:"output_prefix"`

	// OutputDir receives the parts. Empty writes beside each source.
	OutputDir string `yaml:"output_dir"`

	// RemoveSource deletes each source file once its parts are
	// written.
	RemoveSource bool `yaml:"remove_source"`

	Workers int `yaml:"workers"`
}

// ThinkFormat selects which reasoning grammar samples must match.
type ThinkFormat string

const (
	ThinkAny     ThinkFormat = "any"
	ThinkAnswer  ThinkFormat = "think_answer"
	ThinkOnly    ThinkFormat = "think"
	ThinkNoThink ThinkFormat = "no_think"
)

// ThinkFormats lists the accepted ThinkFormat values.
var ThinkFormats = []ThinkFormat{ThinkAny, ThinkAnswer, ThinkOnly, ThinkNoThink}

// ParseThinkFormat validates a think format name. Empty is ThinkAny.
func ParseThinkFormat(name string) (ThinkFormat, error) {
	if name == "" {
		return ThinkAny, nil
	}
	for _, format := range ThinkFormats {
		if string(format) == name {
			return format, nil
		}
	}
	return "", &ConfigError{Field: "think_format", Reason: fmt.Sprintf("%q is not one of %v", name, ThinkFormats)}
}

// DefaultMaxVolumeSize is 1 GiB.
const DefaultMaxVolumeSize Size = 1 << 30

// DefaultMaxSamples is the splitter's default per-file limit.
const DefaultMaxSamples = 1000

// Default returns the configuration used as the base before a file
// is applied.
func Default() *Config {
	return &Config{
		Archive: ArchiveConfig{
			Name:          "dataset",
			Deduplicate:   true,
			DedupKinds:    []dataset.MediaKind{dataset.KindImage, dataset.KindVideo, dataset.KindAudio},
			MaxVolumeSize: DefaultMaxVolumeSize,
			Compression:   compress.ModeAuto,
		},
		Validate: ValidateConfig{
			ThinkFormat: ThinkAny,
		},
		Split: SplitConfig{
			MaxSamples: DefaultMaxSamples,
		},
	}
}

// Load loads the file named by DATAPACK_CONFIG. There is no search
// path and no fallback: an unset variable is an error.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of a datapack config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads the configuration at path over Default. Files ending
// in .json or .jsonc may contain comments and trailing commas.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so the stripped document goes
		// through the same strict decoder.
		data = jsonc.ToJSON(data)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	absolute, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}
	c.baseDir = filepath.Dir(absolute)
	return nil
}

// BaseDir returns the directory of the loaded file, or the working
// directory for a configuration that was not loaded from disk.
func (c *Config) BaseDir() string {
	if c.baseDir != "" {
		return c.baseDir
	}
	workingDir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return workingDir
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields
// and resolves relative paths against the config file's directory.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":                os.Getenv("HOME"),
		"DATAPACK_CONFIG_DIR": c.baseDir,
	}
	resolve := func(value string) string {
		value = expandVars(value, vars)
		if value == "" || filepath.IsAbs(value) || c.baseDir == "" {
			return value
		}
		return filepath.Join(c.baseDir, value)
	}

	for i := range c.Datasets {
		c.Datasets[i].Root = resolve(c.Datasets[i].Root)
	}
	c.Catalog = resolve(c.Catalog)
	c.Archive.Output = resolve(c.Archive.Output)
	c.Archive.RecipientsFile = resolve(c.Archive.RecipientsFile)
	c.Restore.Volumes = resolve(c.Restore.Volumes)
	c.Restore.Destination = resolve(c.Restore.Destination)
	c.Restore.IdentityFile = resolve(c.Restore.IdentityFile)
	c.Split.OutputDir = resolve(c.Split.OutputDir)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. Names in vars take
// precedence over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		defaultValue := parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// ResolveDatasets returns the configured datasets followed by the
// catalog's, with roots made absolute.
func (c *Config) ResolveDatasets() ([]dataset.Dataset, error) {
	datasets := make([]dataset.Dataset, 0, len(c.Datasets))
	for _, configured := range c.Datasets {
		root, err := filepath.Abs(configured.Root)
		if err != nil {
			return nil, fmt.Errorf("resolving dataset %q root: %w", configured.Name, err)
		}
		configured.Root = root
		datasets = append(datasets, configured)
	}
	if c.Catalog != "" {
		catalog, err := dataset.LoadCatalog(c.Catalog)
		if err != nil {
			return nil, err
		}
		fromCatalog, err := catalog.ToDatasets(filepath.Dir(c.Catalog))
		if err != nil {
			return nil, &ConfigError{Field: "catalog", Reason: err.Error()}
		}
		datasets = append(datasets, fromCatalog...)
	}
	return datasets, nil
}

// WorkersFor returns a section's worker count, falling back to the
// top-level Workers.
func (c *Config) WorkersFor(section int) int {
	if section > 0 {
		return section
	}
	return c.Workers
}
