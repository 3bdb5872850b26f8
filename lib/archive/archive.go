// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/datapack/lib/compress"
	"github.com/bureau-foundation/datapack/lib/fingerprint"
	"github.com/bureau-foundation/datapack/lib/report"
	"github.com/bureau-foundation/datapack/lib/volume"
	"github.com/bureau-foundation/datapack/lib/workpool"
)

// Result summarizes one archive run.
type Result struct {
	ArchiveID    string
	Volumes      []string
	ManifestPath string

	// FilesScanned counts media and auxiliary files hashed
	// successfully.
	FilesScanned int
	UniqueBlobs  int
	// DuplicateFiles counts entries that share an earlier entry's blob.
	DuplicateFiles int
	// BytesSaved is the raw size of all duplicate entries.
	BytesSaved int64
	// RawBytes is the uncompressed size of everything stored.
	RawBytes    int64
	StoredBytes int64

	Manifest *Manifest
	Outcome  report.Outcome
}

// blob is one stored copy of content.
type blob struct {
	id   string
	kind volume.EntryKind
	// sources are the entries holding this content, owner first. The
	// first one that still matches its fingerprint is stored.
	sources     []*entry
	fingerprint fingerprint.Fingerprint
	size        int64
	hint        compress.Hint

	staged      string
	stored      int64
	compression string
	failed      bool
	// rejected counts sources that no longer matched when staged.
	rejected int
}

// Archive packs every dataset in options into a volume set.
//
// Missing or unreadable sources are recorded in Result.Outcome and left
// out of the archive; with Options.Strict the first such error aborts
// the run instead and nothing is written. Either way no partial volume
// is left in OutputDir.
func Archive(ctx context.Context, options Options) (*Result, error) {
	if err := options.normalize(); err != nil {
		return nil, err
	}
	logger := options.Logger
	outcome := &report.Collector{}

	if err := os.MkdirAll(options.OutputDir, 0o755); err != nil {
		return nil, report.NewIOError("create directory", options.OutputDir, err)
	}
	staging, err := os.MkdirTemp(options.OutputDir, ".datapack-staging-*")
	if err != nil {
		return nil, report.NewIOError("create staging", options.OutputDir, err)
	}
	defer os.RemoveAll(staging)

	collected, err := collect(ctx, &options, outcome)
	if err != nil {
		return nil, err
	}
	logger.Info("datasets collected",
		"datasets", len(collected.datasets),
		"metafiles", len(collected.metaFiles),
		"files", len(collected.entries),
	)

	index := newFingerprintIndex()
	if err := hashEntries(ctx, &options, collected.entries, index, outcome); err != nil {
		return nil, err
	}

	blobs, result := assignBlobs(&options, collected.entries, index)

	stager := &stager{options: &options, directory: staging, outcome: outcome}
	if err := stager.stageBlobs(ctx, blobs); err != nil {
		return nil, err
	}
	if err := stager.stageMetaFiles(ctx, collected.metaFiles); err != nil {
		return nil, err
	}

	manifest := buildManifest(&options, collected)
	encoded, err := manifest.Encode()
	if err != nil {
		return nil, err
	}
	archiveID := ID(encoded)
	items, err := stager.stageMetadata(encoded, manifest)
	if err != nil {
		return nil, err
	}
	for _, file := range collected.metaFiles {
		if !file.failed {
			items = append(items, file.item)
		}
	}
	for _, stored := range blobs {
		if !stored.failed {
			items = append(items, stored.item())
		}
	}

	var planned []volume.PlannedVolume
	if len(options.Recipients) > 0 {
		planned, err = volume.PlanSealed(items, options.MaxVolumeSize, len(options.Recipients))
	} else {
		planned, err = volume.Plan(items, options.MaxVolumeSize)
	}
	if err != nil {
		return nil, err
	}
	for _, oversized := range planned {
		if oversized.Oversized {
			logger.Warn("item exceeds the volume size limit and gets its own volume",
				"volume", oversized.Index,
				"name", oversized.Items[0].Name,
				"size", humanize.IBytes(uint64(oversized.Items[0].Length)),
			)
		}
	}

	paths, err := volume.WriteSet(ctx, planned, volume.WriteOptions{
		Directory:  options.OutputDir,
		Name:       options.Name,
		ArchiveID:  archiveID,
		Recipients: options.Recipients,
		Workers:    options.Workers,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	manifestPath, err := writeAuditCopy(options.OutputDir, manifest)
	if err != nil {
		return nil, err
	}

	result.ArchiveID = archiveID
	result.Volumes = paths
	result.ManifestPath = manifestPath
	result.Manifest = manifest
	for _, item := range items {
		result.RawBytes += item.Size
		result.StoredBytes += item.Length
	}
	result.discount(blobs)
	outcome.Processed(len(items))
	result.Outcome = outcome.Outcome()

	logger.Info("archive written",
		"archive_id", archiveID,
		"volumes", len(paths),
		"unique_blobs", result.UniqueBlobs,
		"duplicates", result.DuplicateFiles,
		"saved", humanize.IBytes(uint64(result.BytesSaved)),
		"stored", humanize.IBytes(uint64(result.StoredBytes)),
		"failed", result.Outcome.Failed,
	)
	return result, nil
}

// hashEntries fingerprints every entry in parallel and claims each
// fingerprint in the dedup index.
func hashEntries(ctx context.Context, options *Options, entries []*entry, index *fingerprintIndex, outcome *report.Collector) error {
	return workpool.Run(ctx, options.Workers, len(entries), func(ctx context.Context, i int) error {
		current := entries[i]
		sum, size, err := fingerprint.HashFile(current.source)
		if err != nil {
			if options.Strict {
				return err
			}
			current.failed = true
			outcome.Fail(current.source, err)
			options.Logger.Warn("skipping unreadable file", "path", current.source, "error", err)
			return nil
		}
		current.fingerprint = sum
		current.size = size
		if options.deduplicates(current.kind) {
			index.claim(sum, current.ordinal)
		}
		return nil
	})
}

// assignBlobs gives every hashed entry its logical path and blob, in
// traversal order. Index owners always precede their duplicates, so a
// duplicate's blob is assigned by the time it is reached.
func assignBlobs(options *Options, entries []*entry, index *fingerprintIndex) ([]*blob, *Result) {
	result := &Result{}
	var blobs []*blob
	used := map[string]bool{}

	for _, current := range entries {
		if current.failed {
			continue
		}
		result.FilesScanned++
		current.logical = uniqueLogical(current, used)

		if options.deduplicates(current.kind) {
			if owner, ok := index.owner(current.fingerprint); ok && owner != current.ordinal {
				current.blob = entries[owner].blob
				current.blob.sources = append(current.blob.sources, current)
				result.DuplicateFiles++
				result.BytesSaved += current.size
				continue
			}
		}
		id := current.fingerprint.String()
		if !options.deduplicates(current.kind) {
			id = fmt.Sprintf("%s.%d", id, current.ordinal)
		}
		current.blob = &blob{
			id:          id,
			kind:        volume.KindBlob,
			sources:     []*entry{current},
			fingerprint: current.fingerprint,
			size:        current.size,
			hint:        hintFor(current.kind),
		}
		blobs = append(blobs, current.blob)
	}
	result.UniqueBlobs = len(blobs)
	return blobs, result
}

// discount removes blobs that failed staging, and the duplicates whose
// sources were rejected, from the dedup counters.
func (r *Result) discount(blobs []*blob) {
	for _, stored := range blobs {
		if stored.failed {
			r.UniqueBlobs--
		}
		if dropped := min(stored.rejected, len(stored.sources)-1); dropped > 0 {
			r.DuplicateFiles -= dropped
			r.BytesSaved -= int64(dropped) * stored.size
		}
	}
}

// uniqueLogical returns the entry's logical path, suffixing the
// ordinal when an earlier entry already holds it.
func uniqueLogical(current *entry, used map[string]bool) string {
	logical := joinLogical(current.dataset, current.relative)
	if current.relative == "" {
		logical = relocatedPath(current)
	}
	if used[logical] {
		extension := path.Ext(logical)
		logical = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(logical, extension), current.ordinal, extension)
	}
	used[logical] = true
	return logical
}

func buildManifest(options *Options, collected *collection) *Manifest {
	manifest := &Manifest{
		Version:     ManifestVersion,
		Deduplicate: options.Deduplicate,
		Entries:     []ManifestEntry{},
	}
	if options.Deduplicate {
		manifest.DedupKinds = options.DedupKinds
	}
	for _, ds := range collected.datasets {
		record := DatasetRecord{Name: ds.spec.Name, LongCoT: ds.spec.LongCoT, Groups: []GroupRecord{}}
		for _, group := range ds.groups {
			groupRecord := GroupRecord{Root: group.logical, MetaFiles: []string{}, Samples: group.samples}
			for _, file := range group.metaFiles {
				if !file.failed {
					groupRecord.MetaFiles = append(groupRecord.MetaFiles, file.logical)
				}
			}
			if len(groupRecord.MetaFiles) > 0 {
				record.Groups = append(record.Groups, groupRecord)
			}
		}
		manifest.Datasets = append(manifest.Datasets, record)
	}
	for _, current := range collected.entries {
		if current.failed || current.blob == nil || current.blob.failed {
			continue
		}
		manifest.Entries = append(manifest.Entries, ManifestEntry{
			LogicalPath: current.logical,
			Fingerprint: current.fingerprint,
			Size:        current.size,
			Source:      current.source,
			Blob:        current.blob.id,
			Kind:        current.kind,
		})
	}
	return manifest
}

func (b *blob) item() volume.Item {
	return volume.Item{
		Kind:        b.kind,
		Name:        b.id,
		Length:      b.stored,
		Size:        b.size,
		Fingerprint: b.fingerprint,
		Compression: b.compression,
		Source:      b.staged,
	}
}

func stagingName(directory, prefix string, n int) string {
	return filepath.Join(directory, fmt.Sprintf("%s-%06d", prefix, n))
}
