// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"sync"

	"github.com/bureau-foundation/datapack/lib/fingerprint"
)

const indexShards = 64

// fingerprintIndex maps content fingerprints to the traversal ordinal
// of the entry that stores them. It is the only state the hashing
// workers share. Each shard has its own lock, so workers hashing
// unrelated content rarely contend.
type fingerprintIndex struct {
	shards [indexShards]indexShard
}

type indexShard struct {
	mutex  sync.Mutex
	owners map[fingerprint.Fingerprint]int
}

func newFingerprintIndex() *fingerprintIndex {
	index := &fingerprintIndex{}
	for i := range index.shards {
		index.shards[i].owners = map[fingerprint.Fingerprint]int{}
	}
	return index
}

func (x *fingerprintIndex) shard(key fingerprint.Fingerprint) *indexShard {
	return &x.shards[int(key[0])%indexShards]
}

// claim records ordinal as a holder of key and reports whether it is
// now the owner. The lowest ordinal always wins, so the outcome does
// not depend on which worker finished hashing first.
func (x *fingerprintIndex) claim(key fingerprint.Fingerprint, ordinal int) bool {
	shard := x.shard(key)
	shard.mutex.Lock()
	defer shard.mutex.Unlock()
	owner, exists := shard.owners[key]
	if !exists || ordinal < owner {
		shard.owners[key] = ordinal
		return true
	}
	return owner == ordinal
}

// owner returns the winning ordinal for key.
func (x *fingerprintIndex) owner(key fingerprint.Fingerprint) (int, bool) {
	shard := x.shard(key)
	shard.mutex.Lock()
	defer shard.mutex.Unlock()
	owner, exists := shard.owners[key]
	return owner, exists
}
