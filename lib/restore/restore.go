// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package restore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/datapack/lib/archive"
	"github.com/bureau-foundation/datapack/lib/compress"
	"github.com/bureau-foundation/datapack/lib/config"
	"github.com/bureau-foundation/datapack/lib/dataset"
	"github.com/bureau-foundation/datapack/lib/report"
	"github.com/bureau-foundation/datapack/lib/sealed"
	"github.com/bureau-foundation/datapack/lib/volume"
	"github.com/bureau-foundation/datapack/lib/workpool"
)

// Options configures Restore.
type Options struct {
	// Volumes lists the volume files of one set. A single directory
	// entry is expanded to every volume file inside it.
	Volumes []string

	// Destination is the root the archive is reconstructed under.
	Destination string

	Workers int

	// Identities decrypt sealed volumes.
	Identities []sealed.Identity

	// SkipSpaceCheck disables the free-space preflight.
	SkipSpaceCheck bool

	Logger *slog.Logger
}

// Result summarizes a restoration.
type Result struct {
	ArchiveID   string
	Destination string
	CatalogPath string

	// Files counts media and auxiliary files written, copies
	// included.
	Files     int
	Blobs     int
	MetaFiles int
	// Bytes is the total size of everything written.
	Bytes int64

	Outcome report.Outcome
}

// Restore reconstructs the dataset tree held by a volume set under
// options.Destination. Every file is verified against its recorded
// fingerprint. Any failure fails the whole restoration; the
// destination may then hold a partial tree and should be discarded.
func Restore(ctx context.Context, options Options) (*Result, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if options.Destination == "" {
		return nil, config.Invalid("destination", "is required")
	}
	destination, err := filepath.Abs(options.Destination)
	if err != nil {
		return nil, report.NewIOError("resolve", options.Destination, err)
	}

	paths, err := volumePaths(options.Volumes)
	if err != nil {
		return nil, err
	}
	set, err := volume.OpenSet(paths, options.Identities)
	if err != nil {
		return nil, err
	}
	logger.Info("volume set opened", "archive_id", set.ArchiveID, "volumes", len(set.Volumes))

	manifest, err := readManifest(set, options.Identities)
	if err != nil {
		return nil, err
	}
	table, err := newPathTable(destination, manifest)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(destination, 0o755); err != nil {
		return nil, report.NewIOError("create directory", destination, err)
	}
	need := restoredSize(set, manifest)
	if !options.SkipSpaceCheck {
		if err := checkSpace(destination, need); err != nil {
			return nil, err
		}
	}

	restorer := &restorer{
		identities: options.Identities,
		table:      table,
		byBlob:     manifest.BlobEntries(),
		logger:     logger,
	}
	err = workpool.Run(ctx, options.Workers, len(set.Volumes), func(ctx context.Context, i int) error {
		return restorer.restoreVolume(ctx, set.Volumes[i])
	})
	if err != nil {
		return nil, err
	}
	if missing := len(restorer.byBlob) - int(restorer.blobs.Load()); missing != 0 {
		return nil, fmt.Errorf("volume set %s is missing %d blobs named in its manifest", set.ArchiveID, missing)
	}

	catalogPath, err := writeCatalog(destination, manifest, table)
	if err != nil {
		return nil, err
	}

	collector := &report.Collector{}
	collector.Processed(int(restorer.files.Load() + restorer.metaFiles.Load()))
	result := &Result{
		ArchiveID:   set.ArchiveID,
		Destination: destination,
		CatalogPath: catalogPath,
		Files:       int(restorer.files.Load()),
		Blobs:       int(restorer.blobs.Load()),
		MetaFiles:   int(restorer.metaFiles.Load()),
		Bytes:       restorer.bytes.Load(),
		Outcome:     collector.Outcome(),
	}
	logger.Info("archive restored",
		"archive_id", result.ArchiveID,
		"destination", destination,
		"files", result.Files,
		"metafiles", result.MetaFiles,
		"size", humanize.IBytes(uint64(result.Bytes)),
	)
	return result, nil
}

func volumePaths(volumes []string) ([]string, error) {
	if len(volumes) == 0 {
		return nil, config.Invalid("volumes", "at least one volume or directory is required")
	}
	if len(volumes) == 1 {
		info, err := os.Stat(volumes[0])
		if err != nil {
			return nil, report.NewIOError("stat", volumes[0], err)
		}
		if info.IsDir() {
			return volume.Discover(volumes[0])
		}
	}
	return volumes, nil
}

// readManifest loads the manifest entry and checks it is the one the
// set's archive id names.
func readManifest(set *volume.Set, identities []sealed.Identity) (*archive.Manifest, error) {
	holder, _, ok := set.Find(volume.KindManifest, archive.ManifestName)
	if !ok {
		return nil, fmt.Errorf("volume set %s has no manifest", set.ArchiveID)
	}
	stream, err := volume.OpenStream(holder.Path, identities)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	for {
		entry, reader, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest entry vanished from %s", holder.Path)
		}
		if err != nil {
			return nil, err
		}
		if entry.Kind != volume.KindManifest {
			continue
		}
		encoded, err := io.ReadAll(compress.NewReader(reader))
		if err != nil {
			return nil, fmt.Errorf("reading manifest from %s: %w", holder.Path, err)
		}
		if id := archive.ID(encoded); id != set.ArchiveID {
			return nil, fmt.Errorf("manifest fingerprint %s does not match archive id %s", id, set.ArchiveID)
		}
		return archive.DecodeManifest(encoded)
	}
}

// restoredSize sums the bytes Restore will write: every manifest
// entry (dedup copies each count) and every metafile.
func restoredSize(set *volume.Set, manifest *archive.Manifest) int64 {
	var total int64
	for _, entry := range manifest.Entries {
		total += entry.Size
	}
	for _, member := range set.Volumes {
		for _, entry := range member.Header.Entries {
			if entry.Kind == volume.KindMetaFile || entry.Kind == volume.KindCatalog {
				total += entry.Size
			}
		}
	}
	return total
}

// SpaceError reports a destination without room for the restored
// tree.
type SpaceError struct {
	Path      string
	Need      int64
	Available int64
}

func (e *SpaceError) Error() string {
	return fmt.Sprintf("%s has %s free, restoring needs %s",
		e.Path, humanize.IBytes(uint64(e.Available)), humanize.IBytes(uint64(e.Need)))
}

func checkSpace(destination string, need int64) error {
	available, known, err := freeSpace(destination)
	if err != nil {
		return report.NewIOError("statfs", destination, err)
	}
	if known && available < need {
		return &SpaceError{Path: destination, Need: need, Available: available}
	}
	return nil
}

func writeCatalog(destination string, manifest *archive.Manifest, table *pathTable) (string, error) {
	catalog := manifest.Catalog(table.destinationOf)
	catalog.DataDir = destination
	data, err := catalog.Marshal()
	if err != nil {
		return "", fmt.Errorf("encoding catalog: %w", err)
	}
	path := filepath.Join(destination, dataset.CatalogFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", report.NewIOError("write", path, err)
	}
	return path, nil
}

type restorer struct {
	identities []sealed.Identity
	table      *pathTable
	byBlob     map[string][]archive.ManifestEntry
	logger     *slog.Logger

	files     atomic.Int64
	blobs     atomic.Int64
	metaFiles atomic.Int64
	bytes     atomic.Int64
}

// restoreVolume materializes every entry of one volume.
func (r *restorer) restoreVolume(ctx context.Context, member *volume.Volume) error {
	stream, err := volume.OpenStream(member.Path, r.identities)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, reader, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch entry.Kind {
		case volume.KindBlob:
			err = r.restoreBlob(entry, reader)
		case volume.KindMetaFile:
			err = r.restoreMetaFile(entry, reader)
		}
		if err != nil {
			return fmt.Errorf("restoring %s %s from %s: %w", entry.Kind, entry.Name, filepath.Base(member.Path), err)
		}
	}
	r.logger.Debug("volume restored", "volume", member.Header.Index, "path", member.Path)
	return nil
}
