// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package volume

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/bureau-foundation/datapack/lib/config"
	"github.com/bureau-foundation/datapack/lib/fingerprint"
	"github.com/bureau-foundation/datapack/lib/sealed"
)

// stageItems writes one staging file per payload and returns blob
// items for them.
func stageItems(t *testing.T, payloads ...[]byte) []Item {
	t.Helper()
	dir := t.TempDir()
	items := make([]Item, len(payloads))
	for i, payload := range payloads {
		path := filepath.Join(dir, fmt.Sprintf("item%d", i))
		if err := os.WriteFile(path, payload, 0o644); err != nil {
			t.Fatal(err)
		}
		items[i] = Item{
			Kind:        KindBlob,
			Name:        fmt.Sprintf("blob-%d", i),
			Length:      int64(len(payload)),
			Size:        int64(len(payload)),
			Fingerprint: fingerprint.Bytes(payload),
			Compression: "none",
			Source:      path,
		}
	}
	return items
}

func payloads(count, size int) [][]byte {
	result := make([][]byte, count)
	for i := range result {
		result[i] = bytes.Repeat([]byte{byte('a' + i%26)}, size)
	}
	return result
}

func writeSet(t *testing.T, items []Item, maxSize int64, recipients []sealed.Recipient) []string {
	t.Helper()
	var planned []PlannedVolume
	var err error
	if len(recipients) > 0 {
		planned, err = PlanSealed(items, maxSize, len(recipients))
	} else {
		planned, err = Plan(items, maxSize)
	}
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	paths, err := WriteSet(context.Background(), planned, WriteOptions{
		Directory:  t.TempDir(),
		Name:       "testarchive",
		ArchiveID:  "archive-1",
		Recipients: recipients,
		Workers:    2,
	})
	if err != nil {
		t.Fatalf("WriteSet: %v", err)
	}
	return paths
}

func TestPlanRespectsLimit(t *testing.T) {
	items := stageItems(t, payloads(20, 1000)...)
	const limit = 4000
	planned, err := Plan(items, limit)
	if err != nil {
		t.Fatal(err)
	}
	if len(planned) < 2 {
		t.Fatalf("planned %d volumes for 20 KB under a 4 KB limit", len(planned))
	}
	var order []string
	for i, volume := range planned {
		if volume.Index != i+1 {
			t.Errorf("volume %d has index %d", i, volume.Index)
		}
		if volume.Estimate > limit {
			t.Errorf("volume %d estimate %d exceeds limit", volume.Index, volume.Estimate)
		}
		for _, item := range volume.Items {
			order = append(order, item.Name)
		}
	}
	if len(order) != 20 {
		t.Fatalf("plan holds %d items, want 20", len(order))
	}
	for i, name := range order {
		if name != fmt.Sprintf("blob-%d", i) {
			t.Fatalf("plan reorders items: position %d is %s", i, name)
		}
	}

	paths := writeSet(t, items, limit, nil)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Size() > limit {
			t.Errorf("%s is %d bytes, limit %d", filepath.Base(path), info.Size(), limit)
		}
	}
}

func TestPlanOversizedItem(t *testing.T) {
	items := stageItems(t, []byte("small"), bytes.Repeat([]byte{1}, 10000), []byte("small"))
	planned, err := Plan(items, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if len(planned) != 3 {
		t.Fatalf("planned %d volumes, want 3", len(planned))
	}
	if !planned[1].Oversized || len(planned[1].Items) != 1 {
		t.Errorf("large item not isolated in an oversized volume: %+v", planned[1])
	}
	if planned[0].Oversized || planned[2].Oversized {
		t.Error("small volumes flagged oversized")
	}
}

func TestPlanEmpty(t *testing.T) {
	planned, err := Plan(nil, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(planned) != 1 || len(planned[0].Items) != 0 {
		t.Fatalf("empty plan = %+v, want one empty volume", planned)
	}
	paths := writeSet(t, nil, 1000, nil)
	set, err := OpenSet(paths, nil)
	if err != nil {
		t.Fatalf("OpenSet on empty archive: %v", err)
	}
	if len(set.Volumes) != 1 || set.Volumes[0].Header.Total != 1 {
		t.Errorf("empty set = %+v", set.Volumes)
	}
}

func TestPlanRejectsNonPositiveLimit(t *testing.T) {
	for _, limit := range []int64{0, -5} {
		_, err := Plan(nil, limit)
		var configError *config.ConfigError
		if !errors.As(err, &configError) {
			t.Errorf("Plan(limit=%d) error = %v, want *config.ConfigError", limit, err)
		}
	}
}

func TestOpenSetRoundtrip(t *testing.T) {
	data := payloads(6, 3000)
	items := stageItems(t, data...)
	paths := writeSet(t, items, 8000, nil)

	// Order given must not matter.
	shuffled := slices.Clone(paths)
	slices.Reverse(shuffled)
	set, err := OpenSet(shuffled, nil)
	if err != nil {
		t.Fatalf("OpenSet: %v", err)
	}
	if set.ArchiveID != "archive-1" || len(set.Volumes) != len(paths) {
		t.Fatalf("set = %s with %d volumes", set.ArchiveID, len(set.Volumes))
	}

	index := 0
	for _, volume := range set.Volumes {
		stream, err := OpenStream(volume.Path, nil)
		if err != nil {
			t.Fatal(err)
		}
		for {
			entry, reader, err := stream.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatal(err)
			}
			content, err := io.ReadAll(reader)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(content, data[index]) || entry.Fingerprint != fingerprint.Bytes(data[index]) {
				t.Errorf("entry %s content mismatch", entry.Name)
			}
			index++
		}
		stream.Close()
	}
	if index != len(data) {
		t.Errorf("read %d entries, want %d", index, len(data))
	}

	if _, entry, ok := set.Find(KindBlob, "blob-4"); !ok || entry.Length != 3000 {
		t.Errorf("Find(blob-4) = %+v, %v", entry, ok)
	}
	if set.TotalSize() != 6*3000 {
		t.Errorf("TotalSize = %d", set.TotalSize())
	}
}

func TestOpenSetMissingVolumes(t *testing.T) {
	items := stageItems(t, payloads(8, 2000)...)
	paths := writeSet(t, items, 5000, nil)
	if len(paths) < 3 {
		t.Fatalf("need at least 3 volumes, got %d", len(paths))
	}

	// Every proper subset that drops one volume reports exactly it.
	for drop := range paths {
		subset := slices.Delete(slices.Clone(paths), drop, drop+1)
		_, err := OpenSet(subset, nil)
		var missing *MissingVolumeError
		if !errors.As(err, &missing) {
			t.Fatalf("dropping volume %d: error = %v, want *MissingVolumeError", drop+1, err)
		}
		if len(missing.Missing) != 1 || missing.Missing[0] != drop+1 || missing.Total != len(paths) {
			t.Errorf("dropping volume %d: %+v", drop+1, missing)
		}
	}

	_, err := OpenSet(paths[:1], nil)
	var missing *MissingVolumeError
	if !errors.As(err, &missing) || len(missing.Missing) != len(paths)-1 {
		t.Errorf("single volume: error = %v", err)
	}
}

func TestOpenSetDuplicateAndMixed(t *testing.T) {
	items := stageItems(t, payloads(2, 100)...)
	first := writeSet(t, items, 1<<20, nil)
	if _, err := OpenSet([]string{first[0], first[0]}, nil); err == nil {
		t.Error("duplicate volume accepted")
	}

	planned, _ := Plan(items, 1<<20)
	other, err := WriteSet(context.Background(), planned, WriteOptions{
		Directory: t.TempDir(), Name: "other", ArchiveID: "archive-2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := OpenSet([]string{first[0], other[0]}, nil); !errors.Is(err, ErrMixedSet) {
		t.Errorf("mixed archives: error = %v, want ErrMixedSet", err)
	}
}

func TestReadHeaderRejects(t *testing.T) {
	dir := t.TempDir()
	notVolume := filepath.Join(dir, "x.dpv")
	if err := os.WriteFile(notVolume, []byte("PK\x03\x04 definitely a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadHeader(notVolume, nil); !errors.Is(err, ErrNotVolume) {
		t.Errorf("zip file: error = %v, want ErrNotVolume", err)
	}

	items := stageItems(t, payloads(1, 5000)...)
	paths := writeSet(t, items, 1<<20, nil)
	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	truncated := filepath.Join(dir, "truncated.dpv")
	if err := os.WriteFile(truncated, data[:len(data)-10], 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadHeader(truncated, nil); err == nil {
		t.Error("truncated volume accepted")
	}
}

func TestSealedRoundtrip(t *testing.T) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	recipients, err := sealed.ParseRecipients([]string{keypair.PublicKey})
	if err != nil {
		t.Fatal(err)
	}
	identityPath := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(identityPath, []byte(keypair.IdentityFile()), 0o600); err != nil {
		t.Fatal(err)
	}
	identities, err := sealed.LoadIdentityFile(identityPath)
	if err != nil {
		t.Fatal(err)
	}

	data := payloads(4, 70000)
	const limit = 200000
	paths := writeSet(t, stageItems(t, data...), limit, recipients)
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if int64(len(raw)) > limit {
			t.Errorf("sealed volume %s is %d bytes, limit %d", filepath.Base(path), len(raw), limit)
		}
		if bytes.Contains(raw, data[0][:64]) {
			t.Errorf("sealed volume %s contains plaintext", filepath.Base(path))
		}
	}

	if _, err := OpenSet(paths, nil); err == nil {
		t.Error("sealed set opened without identities")
	}
	set, err := OpenSet(paths, identities)
	if err != nil {
		t.Fatalf("OpenSet sealed: %v", err)
	}
	if !set.Volumes[0].Sealed {
		t.Error("volume not marked sealed")
	}

	stream, err := OpenStream(set.Volumes[0].Path, identities)
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()
	_, reader, err := stream.Next()
	if err != nil {
		t.Fatal(err)
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(content, data[0]) {
		t.Error("sealed entry content mismatch")
	}
}

func TestWriteSetFailureLeavesNothing(t *testing.T) {
	items := stageItems(t, payloads(3, 100)...)
	items[2].Source = filepath.Join(t.TempDir(), "vanished")
	planned, err := Plan(items, 400)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	_, err = WriteSet(context.Background(), planned, WriteOptions{Directory: dir, Name: "broken", ArchiveID: "x"})
	if err == nil {
		t.Fatal("WriteSet succeeded with a missing staging file")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("failed write left %d files behind", len(entries))
	}
}

func TestWriteSetDetectsShrunkStaging(t *testing.T) {
	items := stageItems(t, payloads(2, 100)...)
	planned, err := Plan(items, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(items[0].Source, []byte("short"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = WriteSet(context.Background(), planned, WriteOptions{Directory: t.TempDir(), Name: "short", ArchiveID: "x"})
	if err == nil {
		t.Error("WriteSet accepted a staging file shorter than planned")
	}
}

func TestFileName(t *testing.T) {
	if got := FileName("export", 3); got != "export.part0003.dpv" {
		t.Errorf("FileName = %s", got)
	}
}
