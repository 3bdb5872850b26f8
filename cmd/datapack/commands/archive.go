// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/datapack/cmd/datapack/cli"
	"github.com/bureau-foundation/datapack/lib/archive"
	"github.com/bureau-foundation/datapack/lib/compress"
	"github.com/bureau-foundation/datapack/lib/config"
	"github.com/bureau-foundation/datapack/lib/dataset"
	"github.com/bureau-foundation/datapack/lib/report"
	"github.com/bureau-foundation/datapack/lib/sealed"
)

type archiveParams struct {
	commonParams
	Dataset             []string    `flag:"dataset,d" desc:"dataset as name=root, repeatable; appended to configured datasets"`
	Catalog             string      `flag:"catalog" desc:"dataset_config.yaml listing datasets to archive"`
	Output              string      `flag:"output,o" desc:"directory receiving volumes and manifest.json"`
	Name                string      `flag:"name" desc:"volume file prefix"`
	NoDedup             bool        `flag:"no-dedup" desc:"store every file even when content repeats"`
	DedupKinds          []string    `flag:"dedup-kinds" desc:"media kinds that are deduplicated"`
	IncludeUnreferenced bool        `flag:"include-unreferenced" desc:"also archive files no sample references"`
	MaxVolumeSize       config.Size `flag:"max-volume-size" desc:"volume size limit, e.g. 2GiB"`
	Compression         string      `flag:"compression" desc:"auto, none, lz4 or zstd"`
	Recipient           []string    `flag:"recipient,r" desc:"age public key; seals every volume"`
	RecipientsFile      string      `flag:"recipients-file" desc:"file of age public keys, one per line"`
	Strict              bool        `flag:"strict" desc:"abort on the first unreadable file"`
	Workers             int         `flag:"workers,j" desc:"parallel workers (0: one per CPU)"`
}

// archiveSummary is the --json form of an archive run.
type archiveSummary struct {
	ArchiveID      string         `json:"archive_id"`
	Volumes        []string       `json:"volumes"`
	ManifestPath   string         `json:"manifest_path"`
	FilesScanned   int            `json:"files_scanned"`
	UniqueBlobs    int            `json:"unique_blobs"`
	DuplicateFiles int            `json:"duplicate_files"`
	BytesSaved     int64          `json:"bytes_saved"`
	RawBytes       int64          `json:"raw_bytes"`
	StoredBytes    int64          `json:"stored_bytes"`
	Outcome        report.Outcome `json:"outcome"`
}

func archiveCommand() *cli.Command {
	var (
		params  archiveParams
		command *cli.Command
	)
	command = &cli.Command{
		Name:    "archive",
		Summary: "Pack datasets into deduplicated, hash-verified volumes",
		Description: `Pack one or more datasets into a set of volume files.

Every referenced media file is fingerprinted; identical content is
stored once. Media references inside the JSONL files are rewritten to
archive-relative logical paths, and a manifest maps every logical path
to its content fingerprint. Volumes respect --max-volume-size, except
that a single file larger than the limit gets a volume of its own.`,
		Usage: "datapack archive [flags] [dataset-root...]",
		Examples: []cli.Example{
			{Description: "Archive two datasets into 2 GiB volumes", Command: "datapack archive -d vqa=/data/vqa -d cot=/data/cot -o /backup --max-volume-size 2GiB"},
			{Description: "Archive the datasets of a catalog, sealed for one recipient", Command: "datapack archive --catalog /data/dataset_config.yaml -o /backup -r age1..."},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("archive", &params) },
		Run: func(ctx context.Context, args []string) error {
			options, err := params.options(command, args)
			if err != nil {
				return err
			}
			options.Logger = params.logger("archive")

			result, err := archive.Archive(ctx, options)
			if err != nil {
				return err
			}

			summary := archiveSummary{
				ArchiveID:      result.ArchiveID,
				Volumes:        result.Volumes,
				ManifestPath:   result.ManifestPath,
				FilesScanned:   result.FilesScanned,
				UniqueBlobs:    result.UniqueBlobs,
				DuplicateFiles: result.DuplicateFiles,
				BytesSaved:     result.BytesSaved,
				RawBytes:       result.RawBytes,
				StoredBytes:    result.StoredBytes,
				Outcome:        result.Outcome,
			}
			if done, err := params.EmitJSON(summary); done {
				return err
			}
			fmt.Fprintf(cli.Stdout, "archive %s\n", result.ArchiveID)
			fmt.Fprintf(cli.Stdout, "  files:      %d scanned, %d unique, %d duplicates (%s saved)\n",
				result.FilesScanned, result.UniqueBlobs, result.DuplicateFiles, humanize.IBytes(uint64(result.BytesSaved)))
			fmt.Fprintf(cli.Stdout, "  stored:     %s of %s raw\n",
				humanize.IBytes(uint64(result.StoredBytes)), humanize.IBytes(uint64(result.RawBytes)))
			fmt.Fprintf(cli.Stdout, "  volumes:    %d\n", len(result.Volumes))
			for _, path := range result.Volumes {
				fmt.Fprintf(cli.Stdout, "    %s\n", path)
			}
			fmt.Fprintf(cli.Stdout, "  manifest:   %s\n", result.ManifestPath)
			printOutcome(result.Outcome)
			return nil
		},
	}
	return command
}

// options overlays explicitly given flags on the archive section of
// the configuration.
func (p *archiveParams) options(command *cli.Command, args []string) (archive.Options, error) {
	cfg, _, err := p.loadConfig()
	if err != nil {
		return archive.Options{}, err
	}
	section := cfg.Archive

	if command.Changed("catalog") {
		cfg.Catalog = p.Catalog
	}
	datasets, err := cfg.ResolveDatasets()
	if err != nil {
		return archive.Options{}, err
	}
	extra, err := parseDatasetFlags(append(append([]string{}, p.Dataset...), args...))
	if err != nil {
		return archive.Options{}, err
	}
	datasets = append(datasets, extra...)

	if command.Changed("output") {
		section.Output = p.Output
	}
	if command.Changed("name") {
		section.Name = p.Name
	}
	if command.Changed("no-dedup") {
		section.Deduplicate = !p.NoDedup
	}
	if command.Changed("dedup-kinds") {
		section.DedupKinds = nil
		for _, name := range p.DedupKinds {
			kind, err := dataset.ParseMediaKind(name)
			if err != nil {
				return archive.Options{}, config.Invalid("dedup_kinds", "%v", err)
			}
			section.DedupKinds = append(section.DedupKinds, kind)
		}
	}
	if command.Changed("include-unreferenced") {
		section.IncludeUnreferenced = p.IncludeUnreferenced
	}
	if command.Changed("max-volume-size") {
		section.MaxVolumeSize = p.MaxVolumeSize
	}
	if command.Changed("compression") {
		mode, err := compress.ParseMode(p.Compression)
		if err != nil {
			return archive.Options{}, config.Invalid("compression", "%v", err)
		}
		section.Compression = mode
	}
	if command.Changed("recipients-file") {
		section.RecipientsFile = p.RecipientsFile
	}
	if command.Changed("strict") {
		section.Strict = p.Strict
	}
	if command.Changed("workers") {
		section.Workers = p.Workers
	}

	keys := append(append([]string{}, section.Recipients...), p.Recipient...)
	if section.RecipientsFile != "" {
		fromFile, err := sealed.ReadRecipientsFile(section.RecipientsFile)
		if err != nil {
			return archive.Options{}, err
		}
		keys = append(keys, fromFile...)
	}
	recipients, err := sealed.ParseRecipients(keys)
	if err != nil {
		return archive.Options{}, config.Invalid("recipients", "%v", err)
	}

	return archive.Options{
		Datasets:            datasets,
		OutputDir:           section.Output,
		Name:                section.Name,
		Deduplicate:         section.Deduplicate,
		DedupKinds:          section.DedupKinds,
		IncludeUnreferenced: section.IncludeUnreferenced,
		Workers:             cfg.WorkersFor(section.Workers),
		MaxVolumeSize:       section.MaxVolumeSize.Int64(),
		Strict:              section.Strict,
		Compression:         section.Compression,
		Recipients:          recipients,
	}, nil
}
