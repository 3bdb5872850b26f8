// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/datapack/lib/report"
)

// Catalog is the dataset_config.yaml document: a data directory and
// the MetaFiles location of every dataset, with sample counts.
//
//	DataDir: /data/exports
//	Datasets:
//	  chartqa:
//	    MetaFiles: /data/exports/chartqa/MetaFiles
//	    sample_nums: 1000
//	TotalSampleNums: 1000
type Catalog struct {
	DataDir         string                  `yaml:"DataDir"`
	Datasets        map[string]CatalogEntry `yaml:"Datasets"`
	TotalSampleNums int                     `yaml:"TotalSampleNums,omitempty"`
}

// CatalogEntry describes one dataset (or one group of a dataset with
// several groups).
type CatalogEntry struct {
	MetaFiles  string `yaml:"MetaFiles"`
	SampleNums int    `yaml:"sample_nums,omitempty"`
	LongCoT    bool   `yaml:"long_cot,omitempty"`
}

// LoadCatalog reads a catalog file. Unknown keys are rejected.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, report.NewIOError("read", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var catalog Catalog
	if err := decoder.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	return &catalog, nil
}

// Marshal encodes the catalog as YAML. Dataset keys are sorted.
func (c *Catalog) Marshal() ([]byte, error) {
	var buffer bytes.Buffer
	encoder := yaml.NewEncoder(&buffer)
	encoder.SetIndent(2)
	if err := encoder.Encode(c); err != nil {
		return nil, fmt.Errorf("encoding catalog: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("encoding catalog: %w", err)
	}
	return buffer.Bytes(), nil
}

// Names returns the catalog's dataset names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Datasets))
	for name := range c.Datasets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ToDatasets converts catalog entries into datasets in name order.
// A MetaFiles path ending in "MetaFiles" makes its parent the dataset
// root. Relative paths resolve against DataDir, or against baseDir
// when DataDir is empty.
func (c *Catalog) ToDatasets(baseDir string) ([]Dataset, error) {
	resolveBase := baseDir
	if c.DataDir != "" {
		resolveBase = c.DataDir
		if !filepath.IsAbs(resolveBase) {
			resolveBase = filepath.Join(baseDir, resolveBase)
		}
	}
	var datasets []Dataset
	for _, name := range c.Names() {
		entry := c.Datasets[name]
		if strings.TrimSpace(entry.MetaFiles) == "" {
			return nil, fmt.Errorf("catalog dataset %q has no MetaFiles", name)
		}
		metaFiles := entry.MetaFiles
		if !filepath.IsAbs(metaFiles) {
			metaFiles = filepath.Join(resolveBase, metaFiles)
		}
		datasets = append(datasets, Dataset{
			Name:    strings.ReplaceAll(name, "/", "_"),
			Root:    GroupRoot(filepath.Clean(metaFiles)),
			LongCoT: entry.LongCoT,
		})
	}
	return datasets, nil
}
