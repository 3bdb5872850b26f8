// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package volume

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/datapack/lib/report"
	"github.com/bureau-foundation/datapack/lib/sealed"
	"github.com/bureau-foundation/datapack/lib/workpool"
)

// partialSuffix marks a volume that is still being written.
const partialSuffix = ".partial"

// WriteOptions configures WriteSet.
type WriteOptions struct {
	// Directory receives the volume files.
	Directory string
	// Name is the archive name used in file names.
	Name string
	// ArchiveID is recorded in every header.
	ArchiveID string
	// Recipients seal every volume when non-empty.
	Recipients []sealed.Recipient
	Workers    int
	Logger     *slog.Logger
}

// WriteSet writes every planned volume and returns the final paths
// in index order. Each volume is written under a .partial name; only
// when all volumes are complete are they renamed into place. On error
// every partial file is removed and no volume of the set is left
// behind.
func WriteSet(ctx context.Context, volumes []PlannedVolume, options WriteOptions) ([]string, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if options.Name == "" {
		return nil, fmt.Errorf("volume set has no name")
	}
	if err := os.MkdirAll(options.Directory, 0o755); err != nil {
		return nil, report.NewIOError("create directory", options.Directory, err)
	}

	finals := make([]string, len(volumes))
	partials := make([]string, len(volumes))
	for i, planned := range volumes {
		finals[i] = filepath.Join(options.Directory, FileName(options.Name, planned.Index))
		partials[i] = finals[i] + partialSuffix
	}

	success := false
	defer func() {
		if success {
			return
		}
		for _, partial := range partials {
			os.Remove(partial)
		}
	}()

	err := workpool.Run(ctx, options.Workers, len(volumes), func(ctx context.Context, i int) error {
		header := buildHeader(options.ArchiveID, volumes[i], len(volumes))
		written, err := writeVolume(ctx, partials[i], header, volumes[i].Items, options.Recipients)
		if err != nil {
			return err
		}
		logger.Debug("volume written",
			"volume", filepath.Base(finals[i]),
			"entries", len(header.Entries),
			"bytes", written,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range volumes {
		if err := os.Rename(partials[i], finals[i]); err != nil {
			// Undo renames already made so the set is not left half
			// published.
			for j := range i {
				os.Rename(finals[j], partials[j])
			}
			return nil, report.NewIOError("rename", partials[i], err)
		}
	}
	success = true
	return finals, nil
}

func buildHeader(archiveID string, planned PlannedVolume, total int) *Header {
	header := &Header{
		ArchiveID: archiveID,
		Index:     planned.Index,
		Total:     total,
		Entries:   make([]Entry, len(planned.Items)),
	}
	var offset int64
	for i, item := range planned.Items {
		header.Entries[i] = Entry{
			Kind:        item.Kind,
			Name:        item.Name,
			Offset:      offset,
			Length:      item.Length,
			Size:        item.Size,
			Fingerprint: item.Fingerprint,
			Compression: item.Compression,
		}
		offset += item.Length
	}
	return header
}

func writeVolume(ctx context.Context, path string, header *Header, items []Item, recipients []sealed.Recipient) (int64, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, report.NewIOError("create", path, err)
	}
	defer file.Close()

	headerBytes, err := encodeHeader(header)
	if err != nil {
		return 0, err
	}

	flags := uint16(0)
	if len(recipients) > 0 {
		flags |= FlagSealed
	}
	buffered := bufio.NewWriterSize(file, 1<<20)
	counter := &countingWriter{writer: buffered}
	if _, err := counter.Write(preamble{version: FormatVersion, flags: flags, headerLength: uint32(len(headerBytes))}.encode()); err != nil {
		return 0, report.NewIOError("write", path, err)
	}

	var body io.Writer = counter
	var sealer io.WriteCloser
	if len(recipients) > 0 {
		sealer, err = sealed.Encrypt(counter, recipients)
		if err != nil {
			return 0, err
		}
		body = sealer
	}

	if _, err := body.Write(headerBytes); err != nil {
		return 0, report.NewIOError("write", path, err)
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := copyItem(body, item); err != nil {
			return 0, err
		}
	}

	if sealer != nil {
		if err := sealer.Close(); err != nil {
			return 0, report.NewIOError("seal", path, err)
		}
	}
	if err := buffered.Flush(); err != nil {
		return 0, report.NewIOError("write", path, err)
	}
	if err := file.Sync(); err != nil {
		return 0, report.NewIOError("sync", path, err)
	}
	if err := file.Close(); err != nil {
		return 0, report.NewIOError("close", path, err)
	}
	return counter.count, nil
}

// copyItem appends an item's staged bytes, checking the staging file
// still has the length the plan was made with.
func copyItem(destination io.Writer, item Item) error {
	source, err := os.Open(item.Source)
	if err != nil {
		return report.NewIOError("open", item.Source, err)
	}
	defer source.Close()

	copied, err := io.Copy(destination, io.LimitReader(source, item.Length+1))
	if err != nil {
		return report.NewIOError("copy", item.Source, err)
	}
	if copied != item.Length {
		return report.NewIOError("copy", item.Source,
			fmt.Errorf("staged %s %s is %d bytes, planned %d", item.Kind, item.Name, copied, item.Length))
	}
	return nil
}

type countingWriter struct {
	writer io.Writer
	count  int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.writer.Write(p)
	w.count += int64(n)
	return n, err
}
