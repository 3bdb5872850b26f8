// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/datapack/lib/dataset"
	"github.com/bureau-foundation/datapack/lib/fingerprint"
	"github.com/bureau-foundation/datapack/lib/report"
	"github.com/bureau-foundation/datapack/lib/volume"
)

// entry is one distinct file of one dataset, in traversal order.
type entry struct {
	ordinal int
	dataset string
	kind    dataset.MediaKind
	source  string
	// relative is the path under the dataset root, or empty for a
	// file outside it that must be relocated once its fingerprint is
	// known.
	relative string

	// Set by the hashing phase.
	fingerprint fingerprint.Fingerprint
	size        int64
	failed      bool

	// Set when blobs are assigned.
	logical string
	blob    *blob
}

// metaFile is one JSONL file to be rewritten and stored.
type metaFile struct {
	dataset *collectedDataset
	group   *collectedGroup
	source  string
	logical string
	// failed is set when the file could not be read; it is left out
	// of the archive.
	failed bool
	// item is the staged form, set by the staging phase.
	item volume.Item
	// references maps a sample's reference string, per group root, to
	// the entry it resolved to.
	references map[string]*entry
}

type collectedGroup struct {
	root      string
	logical   string
	metaFiles []*metaFile
	samples   int
}

type collectedDataset struct {
	spec   dataset.Dataset
	root   string
	groups []*collectedGroup
}

// collection is the traversal result: every file to hash, every
// metafile to rewrite.
type collection struct {
	datasets  []*collectedDataset
	entries   []*entry
	metaFiles []*metaFile
}

type collector struct {
	options *Options
	outcome *report.Collector
	result  *collection
	// bySource dedupes references to one file within a dataset.
	bySource map[string]*entry
}

// collect walks every dataset in order and records entries in
// deterministic traversal order: datasets as given, groups and
// metafiles sorted, samples and their references in file order, then
// (optionally) unreferenced files in lexical order.
func collect(ctx context.Context, options *Options, outcome *report.Collector) (*collection, error) {
	c := &collector{options: options, outcome: outcome, result: &collection{}}
	for _, spec := range options.Datasets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.collectDataset(ctx, spec); err != nil {
			return nil, err
		}
	}
	return c.result, nil
}

func (c *collector) fail(path string, err error) error {
	if c.options.Strict {
		return err
	}
	c.outcome.Fail(path, err)
	c.options.Logger.Warn("skipping unreadable input", "path", path, "error", err)
	return nil
}

func (c *collector) collectDataset(ctx context.Context, spec dataset.Dataset) error {
	root, err := filepath.Abs(spec.Root)
	if err != nil {
		return report.NewIOError("resolve", spec.Root, err)
	}
	groups, err := dataset.DiscoverGroups(root)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		c.options.Logger.Warn("dataset has no JSONL files", "dataset", spec.Name, "path", root)
	}

	collected := &collectedDataset{spec: spec, root: root}
	c.result.datasets = append(c.result.datasets, collected)
	c.bySource = map[string]*entry{}
	metaSources := map[string]bool{}

	for _, group := range groups {
		relativeRoot, _ := dataset.RelativeTo(root, group.Root)
		collectedGroup := &collectedGroup{root: group.Root, logical: joinLogical(spec.Name, relativeRoot)}
		collected.groups = append(collected.groups, collectedGroup)

		for _, source := range group.MetaFiles {
			if err := ctx.Err(); err != nil {
				return err
			}
			relative, _ := dataset.RelativeTo(root, source)
			file := &metaFile{
				dataset:    collected,
				group:      collectedGroup,
				source:     source,
				logical:    joinLogical(spec.Name, relative),
				references: map[string]*entry{},
			}
			metaSources[source] = true
			collectedGroup.metaFiles = append(collectedGroup.metaFiles, file)
			c.result.metaFiles = append(c.result.metaFiles, file)
			if err := c.collectReferences(spec, root, group.Root, file); err != nil {
				return err
			}
		}
	}

	if c.options.IncludeUnreferenced {
		if err := c.collectUnreferenced(spec, root, metaSources); err != nil {
			return err
		}
	}
	c.options.Logger.Debug("dataset collected",
		"dataset", spec.Name,
		"groups", len(collected.groups),
		"entries", len(c.bySource),
	)
	return nil
}

func (c *collector) collectReferences(spec dataset.Dataset, root, groupRoot string, file *metaFile) error {
	err := dataset.ReadFile(file.source, func(line dataset.Line) error {
		file.group.samples++
		sample, err := dataset.ParseSample(line.Bytes)
		if err != nil {
			parseErr := fmt.Errorf("line %d: %w", line.Number, err)
			if c.options.Strict {
				return &lineError{path: file.source, err: parseErr}
			}
			c.outcome.Fail(file.source, parseErr)
			return nil
		}
		for _, reference := range sample.References {
			if _, seen := file.references[reference.Path]; seen {
				continue
			}
			source := dataset.ResolveReference(groupRoot, reference.Path)
			file.references[reference.Path] = c.entryFor(spec, root, source, reference.Field.Kind)
		}
		return nil
	})
	if err != nil {
		var parseFailure *lineError
		if errors.As(err, &parseFailure) {
			return err
		}
		file.failed = true
		return c.fail(file.source, err)
	}
	return nil
}

// lineError is a strict-mode parse failure; it has already been
// attributed to its file.
type lineError struct {
	path string
	err  error
}

func (e *lineError) Error() string { return e.path + ": " + e.err.Error() }
func (e *lineError) Unwrap() error { return e.err }

func (c *collector) entryFor(spec dataset.Dataset, root, source string, kind dataset.MediaKind) *entry {
	if existing, ok := c.bySource[source]; ok {
		return existing
	}
	relative, _ := dataset.RelativeTo(root, source)
	created := &entry{
		ordinal:  len(c.result.entries),
		dataset:  spec.Name,
		kind:     kind,
		source:   source,
		relative: relative,
	}
	c.bySource[source] = created
	c.result.entries = append(c.result.entries, created)
	return created
}

func (c *collector) collectUnreferenced(spec dataset.Dataset, root string, metaSources map[string]bool) error {
	// WalkDir visits in lexical order.
	return filepath.WalkDir(root, func(walkPath string, item fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return c.fail(walkPath, report.NewIOError("walk", walkPath, walkErr))
		}
		if item.IsDir() {
			if walkPath != root && strings.HasPrefix(item.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !item.Type().IsRegular() || metaSources[walkPath] {
			return nil
		}
		if item.Name() == dataset.CatalogFileName {
			return nil
		}
		c.entryFor(spec, root, walkPath, dataset.KindAuxiliary)
		return nil
	})
}

func joinLogical(datasetName, relative string) string {
	if relative == "" || relative == "." {
		return datasetName
	}
	return path.Join(datasetName, relative)
}

// relocatedPath names a file that lives outside its dataset root.
func relocatedPath(e *entry) string {
	extension := strings.ToLower(filepath.Ext(e.source))
	return path.Join(e.dataset, dataset.MediaFilesDir, e.kind.Directory(), e.fingerprint.Short()+extension)
}
