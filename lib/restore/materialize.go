// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package restore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/datapack/lib/archive"
	"github.com/bureau-foundation/datapack/lib/compress"
	"github.com/bureau-foundation/datapack/lib/dataset"
	"github.com/bureau-foundation/datapack/lib/fingerprint"
	"github.com/bureau-foundation/datapack/lib/report"
	"github.com/bureau-foundation/datapack/lib/volume"
)

// pathTable maps logical paths to absolute destination paths.
type pathTable struct {
	root    string
	mapping map[string]string
}

func newPathTable(root string, manifest *archive.Manifest) (*pathTable, error) {
	table := &pathTable{root: root, mapping: make(map[string]string, len(manifest.Entries))}
	for _, entry := range manifest.Entries {
		destination, err := table.resolve(entry.LogicalPath)
		if err != nil {
			return nil, err
		}
		if _, exists := table.mapping[entry.LogicalPath]; exists {
			return nil, fmt.Errorf("manifest names %s twice", entry.LogicalPath)
		}
		table.mapping[entry.LogicalPath] = destination
	}
	return table, nil
}

// resolve places a logical path under the root, refusing any that
// would escape it.
func (t *pathTable) resolve(logical string) (string, error) {
	local := filepath.FromSlash(logical)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("logical path %q escapes the destination", logical)
	}
	return filepath.Join(t.root, local), nil
}

// destinationOf returns the absolute path for a logical path. Paths
// not in the manifest (metafile directories) resolve under the root.
func (t *pathTable) destinationOf(logical string) string {
	if destination, ok := t.mapping[logical]; ok {
		return destination
	}
	return filepath.Join(t.root, filepath.FromSlash(logical))
}

// restoreBlob writes one blob to every logical path that names it,
// hashing the decoded stream on the way.
func (r *restorer) restoreBlob(entry volume.Entry, stored io.Reader) error {
	targets := r.byBlob[entry.Name]
	if len(targets) == 0 {
		return fmt.Errorf("blob is not named by the manifest")
	}

	files := make([]*os.File, 0, len(targets))
	writers := make([]io.Writer, 0, len(targets)+1)
	defer func() {
		for _, file := range files {
			file.Close()
		}
	}()
	for _, target := range targets {
		if target.Fingerprint != entry.Fingerprint {
			return fmt.Errorf("manifest entry %s records fingerprint %s, volume has %s",
				target.LogicalPath, target.Fingerprint.Short(), entry.Fingerprint.Short())
		}
		path := r.table.mapping[target.LogicalPath]
		file, err := create(path)
		if err != nil {
			return err
		}
		files = append(files, file)
		writers = append(writers, file)
	}
	hasher := fingerprint.NewHasher()
	writers = append(writers, hasher)

	written, err := io.CopyBuffer(io.MultiWriter(writers...), compress.NewReader(stored), make([]byte, compress.FrameSize))
	if err != nil {
		return err
	}
	if err := verify(entry, hasher.Sum(), written); err != nil {
		return err
	}
	for _, file := range files {
		if err := file.Close(); err != nil {
			return report.NewIOError("close", file.Name(), err)
		}
	}
	files = nil

	r.blobs.Add(1)
	r.files.Add(int64(len(targets)))
	r.bytes.Add(written * int64(len(targets)))
	return nil
}

// restoreMetaFile decodes a metafile and rewrites each media
// reference from logical form to its destination path. References the
// manifest does not know and lines that do not parse are written as
// stored.
func (r *restorer) restoreMetaFile(entry volume.Entry, stored io.Reader) error {
	path, err := r.table.resolve(entry.Name)
	if err != nil {
		return err
	}
	file, err := create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	output := bufio.NewWriter(file)
	hasher := fingerprint.NewHasher()
	decoded := io.TeeReader(compress.NewReader(stored), hasher)
	var written int64
	err = dataset.ReadRawLines(decoded, func(line dataset.Line) error {
		rewritten := line.Bytes
		if !line.Blank {
			if replaced, err := dataset.RewriteReferences(line.Bytes, r.absoluteReference); err == nil {
				rewritten = replaced
			}
		}
		n, err := output.Write(rewritten)
		written += int64(n)
		if err != nil {
			return err
		}
		n, err = output.Write(line.Terminator)
		written += int64(n)
		return err
	})
	if err != nil {
		return err
	}
	if err := verify(entry, hasher.Sum(), hasher.Size()); err != nil {
		return err
	}
	if err := output.Flush(); err != nil {
		return report.NewIOError("write", path, err)
	}
	if err := file.Close(); err != nil {
		return report.NewIOError("close", path, err)
	}

	r.metaFiles.Add(1)
	r.bytes.Add(written)
	return nil
}

func (r *restorer) absoluteReference(reference dataset.Reference) (string, error) {
	if destination, ok := r.table.mapping[reference.Path]; ok {
		return destination, nil
	}
	return reference.Path, nil
}

func verify(entry volume.Entry, sum fingerprint.Fingerprint, size int64) error {
	if size != entry.Size {
		return fmt.Errorf("decoded %d bytes, expected %d", size, entry.Size)
	}
	if sum != entry.Fingerprint {
		return fmt.Errorf("content fingerprint %s does not match recorded %s", sum.Short(), entry.Fingerprint.Short())
	}
	return nil
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, report.NewIOError("create directory", filepath.Dir(path), err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, report.NewIOError("create", path, err)
	}
	return file, nil
}
