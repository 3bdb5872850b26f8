// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package volume

import (
	"github.com/bureau-foundation/datapack/lib/config"
	"github.com/bureau-foundation/datapack/lib/fingerprint"
)

// Item is one atom to be stored: a staged frame stream of Length
// bytes. Items never straddle volumes.
type Item struct {
	Kind        EntryKind
	Name        string
	Length      int64
	Size        int64
	Fingerprint fingerprint.Fingerprint
	Compression string
	// Source is the staging file holding the stored bytes.
	Source string
}

// PlannedVolume is the set of items assigned to one volume.
type PlannedVolume struct {
	// Index is 1-based.
	Index int
	Items []Item
	// Estimate is an upper bound on the written file size.
	Estimate int64
	// Oversized is set when a single item alone exceeds the limit.
	Oversized bool
}

// Overhead bounds, in bytes. The CBOR header of a volume is at most
// headerOverhead plus entryOverhead+len(name) per entry; the real
// encoding is well under both.
const (
	headerOverhead = PreambleSize + 256
	entryOverhead  = 192

	// age: fixed header plus one stanza per recipient, and a 16-byte
	// tag per 64 KiB plaintext chunk.
	ageHeaderOverhead    = 128
	ageRecipientOverhead = 128
	ageChunkSize         = 64 << 10
	ageChunkOverhead     = 16
)

// Plan assigns items to volumes of at most maxSize bytes, next-fit in
// item order: when an item does not fit in the current volume, a new
// volume is opened. A lone item larger than the limit gets a volume to
// itself. No items still plan one (empty) volume, so every archive has
// at least one volume carrying its id.
func Plan(items []Item, maxSize int64) ([]PlannedVolume, error) {
	return plan(items, maxSize, 0)
}

// PlanSealed is Plan for volumes sealed to recipientCount age
// recipients, with the encryption overhead included in the bound.
func PlanSealed(items []Item, maxSize int64, recipientCount int) ([]PlannedVolume, error) {
	if recipientCount < 1 {
		return nil, config.Invalid("recipients", "sealed volumes need at least one recipient")
	}
	return plan(items, maxSize, recipientCount)
}

func plan(items []Item, maxSize int64, recipients int) ([]PlannedVolume, error) {
	if maxSize <= 0 {
		return nil, config.Invalid("max_volume_size", "must be positive, got %d", maxSize)
	}

	fixed := int64(headerOverhead)
	if recipients > 0 {
		fixed += ageHeaderOverhead + int64(recipients)*ageRecipientOverhead + ageChunkOverhead
	}
	cost := func(item Item) int64 {
		size := entryOverhead + int64(len(item.Name)) + item.Length
		if recipients > 0 {
			size += (size/ageChunkSize + 1) * ageChunkOverhead
		}
		return size
	}

	volumes := []PlannedVolume{{Index: 1, Estimate: fixed}}
	for _, item := range items {
		current := &volumes[len(volumes)-1]
		itemCost := cost(item)
		if len(current.Items) > 0 && current.Estimate+itemCost > maxSize {
			volumes = append(volumes, PlannedVolume{Index: len(volumes) + 1, Estimate: fixed})
			current = &volumes[len(volumes)-1]
		}
		current.Items = append(current.Items, item)
		current.Estimate += itemCost
		if current.Estimate > maxSize {
			current.Oversized = true
		}
	}
	return volumes, nil
}
