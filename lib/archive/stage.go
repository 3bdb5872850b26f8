// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/bureau-foundation/datapack/lib/compress"
	"github.com/bureau-foundation/datapack/lib/dataset"
	"github.com/bureau-foundation/datapack/lib/fingerprint"
	"github.com/bureau-foundation/datapack/lib/report"
	"github.com/bureau-foundation/datapack/lib/volume"
	"github.com/bureau-foundation/datapack/lib/workpool"
)

// stager writes frame streams into the staging directory, one file
// per volume item.
type stager struct {
	options   *Options
	directory string
	outcome   *report.Collector
}

func hintFor(kind dataset.MediaKind) compress.Hint {
	if kind.IsMedia() {
		return compress.HintMedia
	}
	return compress.HintUnknown
}

// staged is the result of compressing one stream.
type staged struct {
	path        string
	stored      int64
	raw         int64
	fingerprint fingerprint.Fingerprint
}

// stageStream compresses everything fill writes into a new staging
// file at path, fingerprinting the raw bytes on the way.
func (s *stager) stageStream(path string, hint compress.Hint, fill func(io.Writer) error) (staged, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return staged{}, report.NewIOError("create", path, err)
	}
	defer file.Close()

	buffered := bufio.NewWriterSize(file, compress.FrameSize)
	frames := compress.NewWriter(buffered, s.options.Compression, hint)
	hasher := fingerprint.NewHasher()
	if err := fill(io.MultiWriter(frames, hasher)); err != nil {
		return staged{}, err
	}
	if err := frames.Close(); err != nil {
		return staged{}, report.NewIOError("write", path, err)
	}
	if err := buffered.Flush(); err != nil {
		return staged{}, report.NewIOError("write", path, err)
	}
	if err := file.Close(); err != nil {
		return staged{}, report.NewIOError("close", path, err)
	}
	return staged{
		path:        path,
		stored:      frames.StoredBytes(),
		raw:         frames.RawBytes(),
		fingerprint: hasher.Sum(),
	}, nil
}

// stageBlobs compresses each blob from its first source that still
// matches. A source that changed since it was hashed is a failure like
// an unreadable one, and the next duplicate is tried in its place.
func (s *stager) stageBlobs(ctx context.Context, blobs []*blob) error {
	return workpool.Run(ctx, s.options.Workers, len(blobs), func(ctx context.Context, i int) error {
		current := blobs[i]
		for _, candidate := range current.sources {
			result, err := s.stageBlob(stagingName(s.directory, "blob", i), current, candidate.source)
			if err == nil {
				current.staged = result.path
				current.stored = result.stored
				current.compression = string(s.options.Compression)
				return nil
			}
			if s.options.Strict {
				return err
			}
			candidate.failed = true
			current.rejected++
			s.outcome.Fail(candidate.source, err)
			s.options.Logger.Warn("source rejected while staging", "blob", current.id, "path", candidate.source, "error", err)
		}
		current.failed = true
		s.options.Logger.Warn("dropping blob", "blob", current.id, "sources", len(current.sources))
		return nil
	})
}

// stageBlob stages one source for b at path, replacing any earlier
// attempt.
func (s *stager) stageBlob(path string, b *blob, source string) (staged, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return staged{}, report.NewIOError("remove", path, err)
	}
	result, err := s.stageStream(path, b.hint, func(w io.Writer) error {
		file, err := os.Open(source)
		if err != nil {
			return report.NewIOError("open", source, err)
		}
		defer file.Close()
		if _, err := io.CopyBuffer(w, file, make([]byte, fingerprint.ReadChunkSize)); err != nil {
			return report.NewIOError("read", source, err)
		}
		return nil
	})
	if err == nil && (result.fingerprint != b.fingerprint || result.raw != b.size) {
		err = report.NewIOError("read", source,
			fmt.Errorf("content changed while archiving (%d bytes, was %d)", result.raw, b.size))
	}
	return result, err
}

// stageMetaFiles rewrites every readable metafile so its media
// references hold logical paths. References to files that were not
// archived, and lines that do not parse, pass through unchanged.
func (s *stager) stageMetaFiles(ctx context.Context, files []*metaFile) error {
	return workpool.Run(ctx, s.options.Workers, len(files), func(ctx context.Context, i int) error {
		file := files[i]
		if file.failed {
			return nil
		}
		result, err := s.stageStream(stagingName(s.directory, "meta", i), compress.HintText, func(w io.Writer) error {
			return dataset.ReadRawFile(file.source, func(line dataset.Line) error {
				rewritten := line.Bytes
				if !line.Blank {
					if replaced, err := dataset.RewriteReferences(line.Bytes, file.logicalFor); err == nil {
						rewritten = replaced
					}
				}
				if _, err := w.Write(rewritten); err != nil {
					return err
				}
				_, err := w.Write(line.Terminator)
				return err
			})
		})
		if err != nil {
			if s.options.Strict {
				return err
			}
			file.failed = true
			s.outcome.Fail(file.source, err)
			return nil
		}
		file.item = volume.Item{
			Kind:        volume.KindMetaFile,
			Name:        file.logical,
			Length:      result.stored,
			Size:        result.raw,
			Fingerprint: result.fingerprint,
			Compression: string(s.options.Compression),
			Source:      result.path,
		}
		return nil
	})
}

func (f *metaFile) logicalFor(reference dataset.Reference) (string, error) {
	target := f.references[reference.Path]
	if target == nil || target.failed || target.blob == nil || target.blob.failed {
		return reference.Path, nil
	}
	return target.logical, nil
}

// stageMetadata stages the manifest and the logical catalog, the first
// two items of every archive.
func (s *stager) stageMetadata(encoded []byte, manifest *Manifest) ([]volume.Item, error) {
	catalog := manifest.Catalog(func(logical string) string { return logical })
	catalogBytes, err := catalog.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encoding catalog: %w", err)
	}

	sources := []struct {
		kind volume.EntryKind
		name string
		data []byte
	}{
		{volume.KindManifest, ManifestName, encoded},
		{volume.KindCatalog, dataset.CatalogFileName, catalogBytes},
	}
	items := make([]volume.Item, 0, len(sources))
	for i, source := range sources {
		result, err := s.stageStream(stagingName(s.directory, "metadata", i), compress.HintText, func(w io.Writer) error {
			_, err := w.Write(source.data)
			return err
		})
		if err != nil {
			return nil, err
		}
		items = append(items, volume.Item{
			Kind:        source.kind,
			Name:        source.name,
			Length:      result.stored,
			Size:        result.raw,
			Fingerprint: result.fingerprint,
			Compression: string(s.options.Compression),
			Source:      result.path,
		})
	}
	return items, nil
}
