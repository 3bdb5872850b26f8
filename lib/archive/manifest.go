// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/datapack/lib/codec"
	"github.com/bureau-foundation/datapack/lib/dataset"
	"github.com/bureau-foundation/datapack/lib/fingerprint"
	"github.com/bureau-foundation/datapack/lib/report"
)

// ManifestVersion is the manifest schema version.
const ManifestVersion = 1

// ManifestName is the volume entry holding the CBOR manifest.
const ManifestName = "manifest.cbor"

// ManifestFileName is the audit copy written beside the volumes.
const ManifestFileName = "manifest.json"

// Manifest describes everything an archive holds. It is stored as
// CBOR inside the volume set (its fingerprint is the archive id) and
// as indented JSON beside the volumes for humans and audits.
type Manifest struct {
	Version     int                 `json:"version"`
	Deduplicate bool                `json:"deduplicate"`
	DedupKinds  []dataset.MediaKind `json:"dedup_kinds,omitempty"`
	Datasets    []DatasetRecord     `json:"datasets"`
	// Entries are in traversal order.
	Entries []ManifestEntry `json:"entries"`
}

// DatasetRecord lists a dataset's groups.
type DatasetRecord struct {
	Name    string        `json:"name"`
	LongCoT bool          `json:"long_cot,omitempty"`
	Groups  []GroupRecord `json:"groups"`
}

// GroupRecord is one MetaFile group in logical form.
type GroupRecord struct {
	// Root is the logical path of the group root ("chartqa" or
	// "chartqa/part2").
	Root string `json:"root"`
	// MetaFiles are logical paths of the group's JSONL files.
	MetaFiles []string `json:"metafiles"`
	Samples   int      `json:"samples"`
}

// ManifestEntry maps one logical path to stored content. Several
// entries may name the same blob.
type ManifestEntry struct {
	LogicalPath string                  `json:"logical_path"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Size        int64                   `json:"size"`
	// Source is the absolute path the content was read from.
	Source string            `json:"source"`
	Blob   string            `json:"blob"`
	Kind   dataset.MediaKind `json:"kind"`
}

// Encode returns the deterministic CBOR form.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := codec.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return data, nil
}

// DecodeManifest parses the CBOR form.
func DecodeManifest(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := codec.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if manifest.Version != ManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", manifest.Version)
	}
	return &manifest, nil
}

// ID returns the archive id for encoded manifest bytes.
func ID(encoded []byte) string {
	return fingerprint.Bytes(encoded).String()
}

// BlobEntries groups entries by blob id, each list in traversal order.
func (m *Manifest) BlobEntries() map[string][]ManifestEntry {
	byBlob := map[string][]ManifestEntry{}
	for _, entry := range m.Entries {
		byBlob[entry.Blob] = append(byBlob[entry.Blob], entry)
	}
	return byBlob
}

// Catalog returns the dataset catalog in logical form: one entry per
// group, MetaFiles paths relative to the archive root. A dataset with
// a single group is keyed by its name; further groups are keyed by
// their logical root.
func (m *Manifest) Catalog(resolve func(logical string) string) *dataset.Catalog {
	catalog := &dataset.Catalog{Datasets: map[string]dataset.CatalogEntry{}}
	for _, record := range m.Datasets {
		for _, group := range record.Groups {
			key := record.Name
			if len(record.Groups) > 1 {
				key = group.Root
			}
			metaDir := group.Root
			if len(group.MetaFiles) > 0 {
				metaDir = logicalDir(group.MetaFiles[0])
			}
			catalog.Datasets[key] = dataset.CatalogEntry{
				MetaFiles:  resolve(metaDir),
				SampleNums: group.Samples,
				LongCoT:    record.LongCoT,
			}
			catalog.TotalSampleNums += group.Samples
		}
	}
	return catalog
}

// writeAuditCopy writes the JSON manifest into directory atomically.
func writeAuditCopy(directory string, manifest *Manifest) (string, error) {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding manifest JSON: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(directory, ManifestFileName)
	temporary := path + ".tmp"
	if err := os.WriteFile(temporary, data, 0o644); err != nil {
		return "", report.NewIOError("write", temporary, err)
	}
	if err := os.Rename(temporary, path); err != nil {
		os.Remove(temporary)
		return "", report.NewIOError("rename", temporary, err)
	}
	return path, nil
}

func logicalDir(logical string) string {
	for i := len(logical) - 1; i >= 0; i-- {
		if logical[i] == '/' {
			return logical[:i]
		}
	}
	return ""
}
