// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package logcache

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/derion-io/engine/events"
)

// Snapshot is what the cache keeps per (chain, kind, account): the
// deduplicated log set and the head block it is complete through.
type Snapshot struct {
	Logs      []*events.RawLog `json:"logs"`
	LastBlock uint64           `json:"lastBlock"`
}

// Store is the persistence collaborator. Implementations must return a
// zero Snapshot, not an error, for keys never written.
type Store interface {
	Load(ctx context.Context, key Key) (Snapshot, error)
	Save(ctx context.Context, key Key, snap Snapshot) error
}

// Key namespaces a snapshot. Kind separates the independent log feeds
// an account has (token movements, swaps, pool deployments).
type Key struct {
	ChainID uint64
	Kind    string
	Account string
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%s:%s", k.ChainID, k.Kind, k.Account)
}

// Cache merges fetched log ranges into persisted snapshots. Concurrent
// applies for different accounts proceed in parallel; applies for the
// same key serialize.
type Cache struct {
	store Store

	// Overlap is how many blocks below the cached head a refetch
	// starts at, guarding against logs that landed after the head was
	// recorded. Merging makes the overlap harmless.
	Overlap uint64

	mu    sync.Mutex
	locks map[Key]*sync.Mutex
}

// NewCache wraps a store with merge semantics.
func NewCache(store Store) *Cache {
	return &Cache{
		store:   store,
		Overlap: 64,
		locks:   make(map[Key]*sync.Mutex),
	}
}

func (c *Cache) keyLock(key Key) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// Load returns the cached snapshot for a key.
func (c *Cache) Load(ctx context.Context, key Key) (Snapshot, error) {
	l := c.keyLock(key)
	l.Lock()
	defer l.Unlock()
	return c.store.Load(ctx, key)
}

// FromBlock returns the block a fetch for this key should start at:
// the cached head minus the overlap, floored at the genesis block the
// caller supplies.
func (c *Cache) FromBlock(ctx context.Context, key Key, genesis uint64) (uint64, error) {
	snap, err := c.Load(ctx, key)
	if err != nil {
		return 0, err
	}
	if snap.LastBlock == 0 {
		return genesis, nil
	}
	from := snap.LastBlock
	if from > c.Overlap {
		from -= c.Overlap
	} else {
		from = 0
	}
	if from < genesis {
		from = genesis
	}
	return from, nil
}

// Apply merges freshly fetched logs into the snapshot and advances the
// head to the block the fetch ran against. The head moves even when the
// fetch returned nothing: empty ranges are knowledge too.
func (c *Cache) Apply(ctx context.Context, key Key, fetched []*events.RawLog, headBlock uint64) (Snapshot, error) {
	l := c.keyLock(key)
	l.Lock()
	defer l.Unlock()

	snap, err := c.store.Load(ctx, key)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load %s: %w", key, err)
	}
	before := len(snap.Logs)
	snap.Logs = Merge(snap.Logs, fetched)
	if headBlock > snap.LastBlock {
		snap.LastBlock = headBlock
	}
	if err := c.store.Save(ctx, key, snap); err != nil {
		return Snapshot{}, fmt.Errorf("save %s: %w", key, err)
	}
	if added := len(snap.Logs) - before; added > 0 {
		log.Printf("[logcache] %s: +%d logs (%d total), head %d", key, added, len(snap.Logs), snap.LastBlock)
	}
	return snap, nil
}
