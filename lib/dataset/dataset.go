// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bureau-foundation/datapack/lib/report"
)

// MetaFilesDir and MediaFilesDir are the conventional subdirectory
// names of a MetaFile group.
const (
	MetaFilesDir  = "MetaFiles"
	MediaFilesDir = "MediaFiles"
)

// CatalogFileName is the catalog written beside archived and restored
// datasets.
const CatalogFileName = "dataset_config.yaml"

// Dataset is a named root directory holding one or more MetaFile
// groups.
type Dataset struct {
	Name string `yaml:"name" json:"name"`
	Root string `yaml:"root" json:"root"`
	// LongCoT marks datasets whose reasoning annotations must follow
	// one of the think/answer grammars.
	LongCoT bool `yaml:"long_cot,omitempty" json:"long_cot,omitempty"`
}

// ValidateName checks that a dataset name can serve as the first
// element of a logical path.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("dataset name is empty")
	case name == "." || name == "..":
		return fmt.Errorf("dataset name %q is reserved", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("dataset name %q contains a path separator", name)
	}
	return nil
}

// Group is a directory of JSONL metafiles plus the media tree their
// relative references resolve against.
type Group struct {
	// Root is the directory relative media references resolve from.
	Root string
	// MetaFiles are absolute paths of the group's JSONL files, sorted.
	MetaFiles []string
}

// GroupRoot returns the group root for a directory holding JSONL
// files: the parent when the directory is named MetaFiles, otherwise
// the directory itself.
func GroupRoot(metaDir string) string {
	if filepath.Base(metaDir) == MetaFilesDir {
		return filepath.Dir(metaDir)
	}
	return metaDir
}

// IsMetaFile reports whether name is a JSONL sample file.
func IsMetaFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".jsonl")
}

// DiscoverGroups walks root and returns every MetaFile group beneath
// it, sorted by group root. Media directories are not descended into.
// Symlinked directories are not followed.
func DiscoverGroups(root string) ([]Group, error) {
	absolute, err := filepath.Abs(root)
	if err != nil {
		return nil, report.NewIOError("resolve", root, err)
	}

	byRoot := map[string][]string{}
	err = filepath.WalkDir(absolute, func(walkPath string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return report.NewIOError("walk", walkPath, walkErr)
		}
		if entry.IsDir() {
			if walkPath != absolute && (entry.Name() == MediaFilesDir || strings.HasPrefix(entry.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || !IsMetaFile(entry.Name()) {
			return nil
		}
		groupRoot := GroupRoot(filepath.Dir(walkPath))
		byRoot[groupRoot] = append(byRoot[groupRoot], walkPath)
		return nil
	})
	if err != nil {
		return nil, err
	}

	groups := make([]Group, 0, len(byRoot))
	for groupRoot, metaFiles := range byRoot {
		slices.Sort(metaFiles)
		groups = append(groups, Group{Root: groupRoot, MetaFiles: metaFiles})
	}
	slices.SortFunc(groups, func(a, b Group) int { return strings.Compare(a.Root, b.Root) })
	return groups, nil
}

// OpenGroup resolves a user-supplied group location: a group root
// with a MetaFiles subdirectory, a MetaFiles directory, a directory
// of JSONL files, or a single JSONL file.
func OpenGroup(location string) (Group, error) {
	absolute, err := filepath.Abs(location)
	if err != nil {
		return Group{}, report.NewIOError("resolve", location, err)
	}
	info, err := os.Stat(absolute)
	if err != nil {
		return Group{}, report.NewIOError("stat", absolute, err)
	}

	if !info.IsDir() {
		if !IsMetaFile(absolute) {
			return Group{}, fmt.Errorf("%s is not a .jsonl file", absolute)
		}
		return Group{Root: GroupRoot(filepath.Dir(absolute)), MetaFiles: []string{absolute}}, nil
	}

	metaDir := absolute
	if sub := filepath.Join(absolute, MetaFilesDir); isDir(sub) {
		metaDir = sub
	}
	entries, err := os.ReadDir(metaDir)
	if err != nil {
		return Group{}, report.NewIOError("read directory", metaDir, err)
	}
	group := Group{Root: GroupRoot(metaDir)}
	for _, entry := range entries {
		if entry.Type().IsRegular() && IsMetaFile(entry.Name()) {
			group.MetaFiles = append(group.MetaFiles, filepath.Join(metaDir, entry.Name()))
		}
	}
	if len(group.MetaFiles) == 0 {
		return Group{}, fmt.Errorf("no .jsonl files in %s", metaDir)
	}
	// ReadDir returns entries sorted by name.
	return group, nil
}

// ResolveReference returns the filesystem path a media reference
// names. Absolute references are used as-is; relative ones resolve
// against the group root.
func ResolveReference(groupRoot, reference string) string {
	if filepath.IsAbs(reference) {
		return filepath.Clean(reference)
	}
	return filepath.Join(groupRoot, filepath.FromSlash(reference))
}

// RelativeTo returns target relative to root in slash form, and false
// when target lies outside root.
func RelativeTo(root, target string) (string, bool) {
	relative, err := filepath.Rel(root, target)
	if err != nil {
		return "", false
	}
	if relative == ".." || strings.HasPrefix(relative, ".."+string(filepath.Separator)) || filepath.IsAbs(relative) {
		return "", false
	}
	return filepath.ToSlash(relative), true
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
