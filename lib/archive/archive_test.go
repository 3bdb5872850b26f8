// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/datapack/lib/compress"
	"github.com/bureau-foundation/datapack/lib/config"
	"github.com/bureau-foundation/datapack/lib/dataset"
	"github.com/bureau-foundation/datapack/lib/fingerprint"
	"github.com/bureau-foundation/datapack/lib/report"
	"github.com/bureau-foundation/datapack/lib/testutil"
	"github.com/bureau-foundation/datapack/lib/volume"
)

// writeDataset lays out a dataset whose two samples reference images
// with identical content at different paths, plus one unique image.
func writeDataset(t *testing.T, root string) {
	t.Helper()
	shared := testutil.PNG(t, 1)
	testutil.WriteFile(t, filepath.Join(root, "MediaFiles", "images", "a.png"), shared)
	testutil.WriteFile(t, filepath.Join(root, "MediaFiles", "images", "copy_of_a.png"), shared)
	testutil.WriteFile(t, filepath.Join(root, "MediaFiles", "images", "b.png"), testutil.PNG(t, 2))
	testutil.WriteJSONL(t, filepath.Join(root, "MetaFiles", "train.jsonl"),
		testutil.Sample("1", "what is shown?", "a chart", "MediaFiles/images/a.png", "MediaFiles/images/b.png"),
		testutil.Sample("2", "and here?", "the same chart", "MediaFiles/images/copy_of_a.png"),
	)
}

func options(t *testing.T, root string) Options {
	t.Helper()
	return Options{
		Datasets:      []dataset.Dataset{{Name: "charts", Root: root}},
		OutputDir:     filepath.Join(t.TempDir(), "out"),
		Deduplicate:   true,
		Workers:       4,
		MaxVolumeSize: 64 << 20,
	}
}

// readEntry returns the decompressed content of a named entry.
func readEntry(t *testing.T, paths []string, kind volume.EntryKind, name string) []byte {
	t.Helper()
	for _, path := range paths {
		stream, err := volume.OpenStream(path, nil)
		if err != nil {
			t.Fatalf("OpenStream(%s): %v", path, err)
		}
		for {
			entry, reader, err := stream.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				stream.Close()
				t.Fatalf("reading %s: %v", path, err)
			}
			if entry.Kind == kind && entry.Name == name {
				data, err := io.ReadAll(compress.NewReader(reader))
				stream.Close()
				if err != nil {
					t.Fatalf("decoding %s %s: %v", kind, name, err)
				}
				return data
			}
		}
		stream.Close()
	}
	t.Fatalf("no %s entry named %q", kind, name)
	return nil
}

func TestArchiveDeduplicates(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root)

	result, err := Archive(context.Background(), options(t, root))
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if !result.Outcome.OK() {
		t.Fatalf("unexpected failures: %v", result.Outcome.Err())
	}
	if result.FilesScanned != 3 {
		t.Errorf("FilesScanned = %d, want 3", result.FilesScanned)
	}
	if result.UniqueBlobs != 2 {
		t.Errorf("UniqueBlobs = %d, want 2", result.UniqueBlobs)
	}
	if result.DuplicateFiles != 1 {
		t.Errorf("DuplicateFiles = %d, want 1", result.DuplicateFiles)
	}
	if want := int64(len(testutil.PNG(t, 1))); result.BytesSaved != want {
		t.Errorf("BytesSaved = %d, want %d", result.BytesSaved, want)
	}

	byBlob := result.Manifest.BlobEntries()
	shared := fingerprint.Bytes(testutil.PNG(t, 1)).String()
	entries := byBlob[shared]
	if len(entries) != 2 {
		t.Fatalf("blob %s has %d entries, want 2", shared, len(entries))
	}
	// The canonical source is the first in traversal order.
	if entries[0].LogicalPath != "charts/MediaFiles/images/a.png" {
		t.Errorf("first entry = %s, want the a.png reference", entries[0].LogicalPath)
	}
	if entries[1].LogicalPath != "charts/MediaFiles/images/copy_of_a.png" {
		t.Errorf("second entry = %s, want the copy", entries[1].LogicalPath)
	}

	if _, err := os.Stat(result.ManifestPath); err != nil {
		t.Errorf("manifest audit copy: %v", err)
	}
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(result.Volumes[0]), ".datapack-staging-*"))
	if len(leftovers) != 0 {
		t.Errorf("staging directories left behind: %v", leftovers)
	}
}

func TestArchiveWithoutDeduplication(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root)
	opts := options(t, root)
	opts.Deduplicate = false

	result, err := Archive(context.Background(), opts)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if result.UniqueBlobs != 3 || result.DuplicateFiles != 0 {
		t.Errorf("UniqueBlobs = %d, DuplicateFiles = %d; want 3 and 0", result.UniqueBlobs, result.DuplicateFiles)
	}
	seen := map[string]bool{}
	for _, entry := range result.Manifest.Entries {
		if seen[entry.Blob] {
			t.Errorf("blob %s shared with dedup disabled", entry.Blob)
		}
		seen[entry.Blob] = true
	}
}

func TestArchiveDedupScope(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root)
	opts := options(t, root)
	opts.DedupKinds = []dataset.MediaKind{dataset.KindVideo}

	result, err := Archive(context.Background(), opts)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if result.UniqueBlobs != 3 {
		t.Errorf("images outside the dedup scope: UniqueBlobs = %d, want 3", result.UniqueBlobs)
	}
}

func TestArchiveIsDeterministic(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root)

	first, err := Archive(context.Background(), options(t, root))
	if err != nil {
		t.Fatalf("first Archive: %v", err)
	}
	second, err := Archive(context.Background(), options(t, root))
	if err != nil {
		t.Fatalf("second Archive: %v", err)
	}
	if first.ArchiveID != second.ArchiveID {
		t.Errorf("archive ids differ across runs: %s vs %s", first.ArchiveID, second.ArchiveID)
	}
}

func TestArchiveRewritesReferences(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root)

	result, err := Archive(context.Background(), options(t, root))
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	metafile := readEntry(t, result.Volumes, volume.KindMetaFile, "charts/MetaFiles/train.jsonl")
	if !bytes.Contains(metafile, []byte(`"charts/MediaFiles/images/a.png"`)) {
		t.Errorf("metafile not rewritten to logical paths:\n%s", metafile)
	}
	if bytes.Contains(metafile, []byte(`"MediaFiles/images/a.png"`)) {
		t.Errorf("metafile still holds a relative reference:\n%s", metafile)
	}

	catalog := readEntry(t, result.Volumes, volume.KindCatalog, dataset.CatalogFileName)
	if !strings.Contains(string(catalog), "charts/MetaFiles") {
		t.Errorf("catalog does not name the logical metafile directory:\n%s", catalog)
	}

	encoded := readEntry(t, result.Volumes, volume.KindManifest, ManifestName)
	if ID(encoded) != result.ArchiveID {
		t.Error("archive id is not the fingerprint of the stored manifest")
	}
}

func TestArchiveRelocatesOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(t.TempDir(), "elsewhere.png")
	content := testutil.PNG(t, 9)
	testutil.WriteFile(t, outside, content)
	testutil.WriteJSONL(t, filepath.Join(root, "MetaFiles", "train.jsonl"),
		testutil.Sample("1", "q", "a", outside),
	)

	result, err := Archive(context.Background(), options(t, root))
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if len(result.Manifest.Entries) != 1 {
		t.Fatalf("manifest has %d entries, want 1", len(result.Manifest.Entries))
	}
	want := "charts/MediaFiles/images/" + fingerprint.Bytes(content).Short() + ".png"
	if got := result.Manifest.Entries[0].LogicalPath; got != want {
		t.Errorf("relocated path = %s, want %s", got, want)
	}
}

func TestArchiveRecordsMissingFiles(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root)
	testutil.WriteJSONL(t, filepath.Join(root, "MetaFiles", "extra.jsonl"),
		testutil.Sample("3", "q", "a", "MediaFiles/images/missing.png"),
		`{"id": "broken"`,
	)

	result, err := Archive(context.Background(), options(t, root))
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if result.Outcome.Failed != 2 {
		t.Fatalf("Failed = %d, want 2 (missing image, bad line): %v", result.Outcome.Failed, result.Outcome.Errors)
	}
	for _, entry := range result.Manifest.Entries {
		if strings.HasSuffix(entry.LogicalPath, "missing.png") {
			t.Error("missing file has a manifest entry")
		}
	}

	var ioError *report.IOError
	found := false
	for _, failure := range result.Outcome.Errors {
		if errors.As(failure.Err, &ioError) && errors.Is(failure.Err, os.ErrNotExist) {
			found = true
		}
	}
	if !found {
		t.Error("missing image not reported as an IOError wrapping ErrNotExist")
	}

	// The unresolved reference and the unparsable line pass through.
	metafile := readEntry(t, result.Volumes, volume.KindMetaFile, "charts/MetaFiles/extra.jsonl")
	if !bytes.Contains(metafile, []byte(`"MediaFiles/images/missing.png"`)) {
		t.Errorf("missing reference was rewritten:\n%s", metafile)
	}
	if !bytes.Contains(metafile, []byte(`{"id": "broken"`)) {
		t.Errorf("unparsable line was not carried through:\n%s", metafile)
	}
}

func TestArchiveStrictAborts(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root)
	testutil.WriteJSONL(t, filepath.Join(root, "MetaFiles", "extra.jsonl"),
		testutil.Sample("3", "q", "a", "MediaFiles/images/missing.png"),
	)
	opts := options(t, root)
	opts.Strict = true

	_, err := Archive(context.Background(), opts)
	var ioError *report.IOError
	if !errors.As(err, &ioError) {
		t.Fatalf("strict Archive error = %v, want *report.IOError", err)
	}
	leftovers, _ := os.ReadDir(opts.OutputDir)
	if len(leftovers) != 0 {
		names := make([]string, 0, len(leftovers))
		for _, leftover := range leftovers {
			names = append(names, leftover.Name())
		}
		t.Errorf("strict failure left files behind: %v", names)
	}
}

func TestArchiveIncludeUnreferenced(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root)
	testutil.WriteFile(t, filepath.Join(root, "README.txt"), []byte("notes\n"))
	opts := options(t, root)
	opts.IncludeUnreferenced = true

	result, err := Archive(context.Background(), opts)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	var auxiliary []string
	for _, entry := range result.Manifest.Entries {
		if entry.Kind == dataset.KindAuxiliary {
			auxiliary = append(auxiliary, entry.LogicalPath)
		}
	}
	if len(auxiliary) != 1 || auxiliary[0] != "charts/README.txt" {
		t.Errorf("auxiliary entries = %v, want [charts/README.txt]", auxiliary)
	}
	// Auxiliary entries follow every referenced one.
	last := result.Manifest.Entries[len(result.Manifest.Entries)-1]
	if last.Kind != dataset.KindAuxiliary {
		t.Errorf("last entry kind = %s, want auxiliary", last.Kind)
	}
}

func TestArchiveSplitsVolumes(t *testing.T) {
	root := t.TempDir()
	for i := range 6 {
		name := testutil.UniqueID("clip") + ".mp4"
		testutil.WriteFile(t, filepath.Join(root, "MediaFiles", "videos", name), testutil.MP4(t, i, 48<<10))
		testutil.WriteJSONL(t, filepath.Join(root, "MetaFiles", name+".jsonl"), map[string]any{
			"id":       name,
			"messages": []map[string]any{{"role": "user", "content": "<video>"}, {"role": "assistant", "content": "ok"}},
			"videos":   []string{"MediaFiles/videos/" + name},
		})
	}
	opts := options(t, root)
	opts.MaxVolumeSize = 128 << 10

	result, err := Archive(context.Background(), opts)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if len(result.Volumes) < 2 {
		t.Fatalf("got %d volumes, want several", len(result.Volumes))
	}
	for _, path := range result.Volumes {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Size() > opts.MaxVolumeSize {
			t.Errorf("%s is %d bytes, limit %d", filepath.Base(path), info.Size(), opts.MaxVolumeSize)
		}
	}
	set, err := volume.OpenSet(result.Volumes, nil)
	if err != nil {
		t.Fatalf("OpenSet: %v", err)
	}
	if set.ArchiveID != result.ArchiveID {
		t.Errorf("set id = %s, want %s", set.ArchiveID, result.ArchiveID)
	}
}

func TestOptionsValidation(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name   string
		mutate func(*Options)
		field  string
	}{
		{"no datasets", func(o *Options) { o.Datasets = nil }, "datasets"},
		{"bad name", func(o *Options) { o.Datasets[0].Name = "a/b" }, "datasets[0].name"},
		{"duplicate name", func(o *Options) { o.Datasets = append(o.Datasets, o.Datasets[0]) }, "datasets[1].name"},
		{"no output", func(o *Options) { o.OutputDir = "" }, "output"},
		{"zero volume size", func(o *Options) { o.MaxVolumeSize = 0 }, "max_volume_size"},
		{"bad compression", func(o *Options) { o.Compression = "brotli" }, "compression"},
		{"bad kind", func(o *Options) { o.DedupKinds = []dataset.MediaKind{"hologram"} }, "dedup_kinds"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			opts := options(t, root)
			test.mutate(&opts)
			_, err := Archive(context.Background(), opts)
			var configError *config.ConfigError
			if !errors.As(err, &configError) {
				t.Fatalf("error = %v, want *config.ConfigError", err)
			}
			if configError.Field != test.field {
				t.Errorf("Field = %q, want %q", configError.Field, test.field)
			}
		})
	}
}
