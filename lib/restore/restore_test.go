// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package restore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/datapack/lib/archive"
	"github.com/bureau-foundation/datapack/lib/dataset"
	"github.com/bureau-foundation/datapack/lib/sealed"
	"github.com/bureau-foundation/datapack/lib/testutil"
	"github.com/bureau-foundation/datapack/lib/volume"
)

// source is a small dataset with one duplicated image and one video.
type source struct {
	root   string
	images map[string][]byte
	video  []byte
}

func writeSource(t *testing.T) source {
	t.Helper()
	root := t.TempDir()
	shared := testutil.PNG(t, 3)
	s := source{
		root: root,
		images: map[string][]byte{
			"MediaFiles/images/first.png":  shared,
			"MediaFiles/images/second.png": shared,
			"MediaFiles/images/other.jpg":  testutil.JPEG(t, 4),
		},
		video: testutil.MP4(t, 5, 96<<10),
	}
	for name, data := range s.images {
		testutil.WriteFile(t, filepath.Join(root, filepath.FromSlash(name)), data)
	}
	testutil.WriteFile(t, filepath.Join(root, "MediaFiles", "videos", "clip.mp4"), s.video)
	testutil.WriteJSONL(t, filepath.Join(root, "MetaFiles", "train.jsonl"),
		testutil.Sample("1", "compare", "they match", "MediaFiles/images/first.png", "MediaFiles/images/second.png"),
		`{"id":2,"extra":{"keep":"order"},"messages":[{"role":"user","content":"<image>"},{"role":"assistant","content":"ok"}],"images":"MediaFiles/images/other.jpg"}`,
		map[string]any{
			"id":       "3",
			"messages": []map[string]any{{"role": "user", "content": "<video>"}, {"role": "assistant", "content": "a clip"}},
			"videos":   []string{"MediaFiles/videos/clip.mp4"},
		},
	)
	return s
}

func archiveSource(t *testing.T, s source, mutate func(*archive.Options)) *archive.Result {
	t.Helper()
	options := archive.Options{
		Datasets:      []dataset.Dataset{{Name: "mixed", Root: s.root, LongCoT: true}},
		OutputDir:     filepath.Join(t.TempDir(), "volumes"),
		Deduplicate:   true,
		Workers:       3,
		MaxVolumeSize: 1 << 30,
	}
	if mutate != nil {
		mutate(&options)
	}
	result, err := archive.Archive(context.Background(), options)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	return result
}

func checkTree(t *testing.T, s source, destination string) {
	t.Helper()
	base := filepath.Join(destination, "mixed")
	for name, want := range s.images {
		got, err := os.ReadFile(filepath.Join(base, filepath.FromSlash(name)))
		if err != nil {
			t.Errorf("restored %s: %v", name, err)
			continue
		}
		if !bytes.Equal(got, want) {
			t.Errorf("restored %s differs from the source", name)
		}
	}
	video, err := os.ReadFile(filepath.Join(base, "MediaFiles", "videos", "clip.mp4"))
	if err != nil || !bytes.Equal(video, s.video) {
		t.Errorf("restored video differs from the source (err %v)", err)
	}

	metafile, err := os.ReadFile(filepath.Join(base, "MetaFiles", "train.jsonl"))
	if err != nil {
		t.Fatalf("reading restored metafile: %v", err)
	}
	var samples []*dataset.Sample
	err = dataset.ReadLines(bytes.NewReader(metafile), func(line dataset.Line) error {
		sample, err := dataset.ParseSample(line.Bytes)
		samples = append(samples, sample)
		return err
	})
	if err != nil {
		t.Fatalf("parsing restored metafile: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("restored %d samples, want 3", len(samples))
	}
	for _, sample := range samples {
		for _, reference := range sample.References {
			if !filepath.IsAbs(reference.Path) || !strings.HasPrefix(reference.Path, destination) {
				t.Errorf("sample %s reference %q is not an absolute destination path", sample.ID, reference.Path)
			}
			if _, err := os.Stat(reference.Path); err != nil {
				t.Errorf("sample %s reference %q does not resolve: %v", sample.ID, reference.Path, err)
			}
		}
	}
	// Fields other than the media lists keep their bytes and order.
	if !bytes.Contains(metafile, []byte(`{"id":2,"extra":{"keep":"order"},"messages":`)) {
		t.Errorf("untouched fields changed:\n%s", metafile)
	}
	// A single-string reference stays a single string.
	want := `"images":"` + filepath.Join(base, "MediaFiles", "images", "other.jpg") + `"`
	if !bytes.Contains(metafile, []byte(want)) {
		t.Errorf("single-string reference not rewritten in place; want %s in:\n%s", want, metafile)
	}
}

func TestRoundtrip(t *testing.T) {
	s := writeSource(t)
	archived := archiveSource(t, s, nil)
	destination := filepath.Join(t.TempDir(), "restored")

	result, err := Restore(context.Background(), Options{
		Volumes:     []string{filepath.Dir(archived.Volumes[0])},
		Destination: destination,
		Workers:     2,
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if result.ArchiveID != archived.ArchiveID {
		t.Errorf("ArchiveID = %s, want %s", result.ArchiveID, archived.ArchiveID)
	}
	if result.Files != 4 || result.Blobs != 3 || result.MetaFiles != 1 {
		t.Errorf("Files, Blobs, MetaFiles = %d, %d, %d; want 4, 3, 1", result.Files, result.Blobs, result.MetaFiles)
	}
	checkTree(t, s, destination)

	catalog, err := dataset.LoadCatalog(result.CatalogPath)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	entry, ok := catalog.Datasets["mixed"]
	if !ok {
		t.Fatalf("catalog has no mixed dataset: %v", catalog.Names())
	}
	if entry.MetaFiles != filepath.Join(destination, "mixed", "MetaFiles") {
		t.Errorf("catalog MetaFiles = %s", entry.MetaFiles)
	}
	if entry.SampleNums != 3 || !entry.LongCoT {
		t.Errorf("catalog entry = %+v, want 3 samples and long_cot", entry)
	}
}

func TestRoundtripKeepsLineLayout(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "MediaFiles", "images", "a.png"), testutil.PNG(t, 6))
	layout := "{\"id\":\"1\",\"images\":[\"MediaFiles/images/a.png\"]}\r\n" +
		"\r\n" +
		"{\"id\":\"2\",\"images\":\"MediaFiles/images/a.png\"}"
	testutil.WriteFile(t, filepath.Join(root, "MetaFiles", "crlf.jsonl"), []byte(layout))

	archived, err := archive.Archive(context.Background(), archive.Options{
		Datasets:      []dataset.Dataset{{Name: "crlf", Root: root}},
		OutputDir:     filepath.Join(t.TempDir(), "volumes"),
		MaxVolumeSize: 1 << 30,
	})
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	destination := t.TempDir()
	if _, err := Restore(context.Background(), Options{Volumes: archived.Volumes, Destination: destination}); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	base := filepath.Join(destination, "crlf")
	restored, err := os.ReadFile(filepath.Join(base, "MetaFiles", "crlf.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	// Only the reference bytes change: terminators and blank lines stay.
	relative := strings.ReplaceAll(string(restored), base+string(filepath.Separator), "")
	if relative != layout {
		t.Errorf("restored metafile = %q, want %q with absolute references", restored, layout)
	}
}

func TestRoundtripAcrossVolumes(t *testing.T) {
	s := writeSource(t)
	archived := archiveSource(t, s, func(o *archive.Options) { o.MaxVolumeSize = 64 << 10 })
	if len(archived.Volumes) < 2 {
		t.Fatalf("expected several volumes, got %d", len(archived.Volumes))
	}
	destination := t.TempDir()
	if _, err := Restore(context.Background(), Options{Volumes: archived.Volumes, Destination: destination, Workers: 4}); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	checkTree(t, s, destination)
}

func TestRoundtripSealed(t *testing.T) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	recipients, err := sealed.ParseRecipients([]string{keypair.PublicKey})
	if err != nil {
		t.Fatal(err)
	}
	identityPath := filepath.Join(t.TempDir(), "key.txt")
	testutil.WriteFile(t, identityPath, []byte(keypair.IdentityFile()))
	identities, err := sealed.LoadIdentityFile(identityPath)
	if err != nil {
		t.Fatal(err)
	}

	s := writeSource(t)
	archived := archiveSource(t, s, func(o *archive.Options) { o.Recipients = recipients })

	if _, err := Restore(context.Background(), Options{Volumes: archived.Volumes, Destination: t.TempDir()}); err == nil {
		t.Error("restoring sealed volumes without an identity should fail")
	}
	destination := t.TempDir()
	if _, err := Restore(context.Background(), Options{Volumes: archived.Volumes, Destination: destination, Identities: identities}); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	checkTree(t, s, destination)
}

func TestRestoreRejectsIncompleteSet(t *testing.T) {
	s := writeSource(t)
	archived := archiveSource(t, s, func(o *archive.Options) { o.MaxVolumeSize = 64 << 10 })
	if len(archived.Volumes) < 2 {
		t.Fatalf("expected several volumes, got %d", len(archived.Volumes))
	}

	for skip := range archived.Volumes {
		subset := make([]string, 0, len(archived.Volumes)-1)
		for i, path := range archived.Volumes {
			if i != skip {
				subset = append(subset, path)
			}
		}
		_, err := Restore(context.Background(), Options{Volumes: subset, Destination: t.TempDir()})
		var missing *volume.MissingVolumeError
		if !errors.As(err, &missing) {
			t.Fatalf("without volume %d: error = %v, want *volume.MissingVolumeError", skip+1, err)
		}
		if len(missing.Missing) != 1 || missing.Missing[0] != skip+1 {
			t.Errorf("without volume %d: Missing = %v", skip+1, missing.Missing)
		}
	}
}

func TestRestoreDetectsCorruption(t *testing.T) {
	s := writeSource(t)
	archived := archiveSource(t, s, nil)

	// The last payload bytes belong to the final blob, stored raw.
	path := archived.Volumes[len(archived.Volumes)-1]
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = Restore(context.Background(), Options{Volumes: archived.Volumes, Destination: t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "fingerprint") {
		t.Errorf("error = %v, want a fingerprint mismatch", err)
	}
}

func TestRestoreRequiresDestination(t *testing.T) {
	if _, err := Restore(context.Background(), Options{Volumes: []string{"x.dpv"}}); err == nil {
		t.Error("Restore without a destination should fail")
	}
}

func TestPathTableRejectsEscapes(t *testing.T) {
	manifest := &archive.Manifest{Entries: []archive.ManifestEntry{{LogicalPath: "../outside.png"}}}
	if _, err := newPathTable(t.TempDir(), manifest); err == nil {
		t.Error("escaping logical path accepted")
	}
}
