// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/bureau-foundation/datapack/lib/compress"
	"github.com/bureau-foundation/datapack/lib/config"
	"github.com/bureau-foundation/datapack/lib/dataset"
	"github.com/bureau-foundation/datapack/lib/sealed"
)

// DefaultName is the archive name used when Options.Name is empty.
const DefaultName = "dataset"

// Options configures Archive.
type Options struct {
	// Datasets are traversed in this order.
	Datasets []dataset.Dataset

	// OutputDir receives the volumes and manifest.json.
	OutputDir string

	// Name prefixes volume file names.
	Name string

	// Deduplicate stores identical content once, for files whose kind
	// is in DedupKinds.
	Deduplicate bool

	// DedupKinds is the deduplication scope. Empty means image, video
	// and audio.
	DedupKinds []dataset.MediaKind

	// IncludeUnreferenced archives every other regular file under each
	// dataset root as an auxiliary entry.
	IncludeUnreferenced bool

	Workers int

	// MaxVolumeSize bounds each volume file in bytes.
	MaxVolumeSize int64

	// Strict aborts on the first source error instead of recording it
	// and leaving the file out.
	Strict bool

	Compression compress.Mode

	// Recipients seal every volume when non-empty.
	Recipients []sealed.Recipient

	Logger *slog.Logger
}

var defaultDedupKinds = []dataset.MediaKind{dataset.KindImage, dataset.KindVideo, dataset.KindAudio}

func (o *Options) normalize() error {
	if len(o.Datasets) == 0 {
		return config.Invalid("datasets", "at least one dataset is required")
	}
	seen := map[string]bool{}
	for i, ds := range o.Datasets {
		if err := dataset.ValidateName(ds.Name); err != nil {
			return config.Invalid(fmt.Sprintf("datasets[%d].name", i), "%v", err)
		}
		if seen[ds.Name] {
			return config.Invalid(fmt.Sprintf("datasets[%d].name", i), "duplicate dataset name %q", ds.Name)
		}
		seen[ds.Name] = true
		if ds.Root == "" {
			return config.Invalid(fmt.Sprintf("datasets[%d].root", i), "is required")
		}
	}
	if o.OutputDir == "" {
		return config.Invalid("output", "is required")
	}
	if o.MaxVolumeSize <= 0 {
		return config.Invalid("max_volume_size", "must be positive, got %d", o.MaxVolumeSize)
	}
	mode, err := compress.ParseMode(string(o.Compression))
	if err != nil {
		return config.Invalid("compression", "%v", err)
	}
	o.Compression = mode
	if o.Name == "" {
		o.Name = DefaultName
	}
	if len(o.DedupKinds) == 0 {
		o.DedupKinds = defaultDedupKinds
	}
	for _, kind := range o.DedupKinds {
		if !slices.Contains(dataset.AllKinds, kind) {
			return config.Invalid("dedup_kinds", "unknown media kind %q", kind)
		}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return nil
}

func (o *Options) deduplicates(kind dataset.MediaKind) bool {
	return o.Deduplicate && slices.Contains(o.DedupKinds, kind)
}
