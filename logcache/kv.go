// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package logcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/database/prefixdb"
)

var snapshotPrefix = []byte("logs:")

// KVConfig configures the embedded key-value backend.
type KVConfig struct {
	// Path to the database directory. Empty means in-memory.
	Path string

	// Prefix namespaces this engine's data when the database is shared.
	Prefix []byte
}

// KVStore persists snapshots in a luxfi database: BadgerDB on disk, or
// memdb when no path is configured.
type KVStore struct {
	db    database.Database
	snaps database.Database
	owned bool
}

// NewKV opens the key-value backend.
func NewKV(cfg KVConfig) (*KVStore, error) {
	var db database.Database
	if cfg.Path == "" {
		db = memdb.New()
	} else {
		var err error
		db, err = badgerdb.New(cfg.Path, nil, "", nil)
		if err != nil {
			return nil, fmt.Errorf("open badgerdb: %w", err)
		}
	}
	if len(cfg.Prefix) > 0 {
		db = prefixdb.New(cfg.Prefix, db)
	}
	return &KVStore{
		db:    db,
		snaps: prefixdb.New(snapshotPrefix, db),
		owned: true,
	}, nil
}

// NewMemoryKV creates an in-memory store (for testing).
func NewMemoryKV() *KVStore {
	db := memdb.New()
	return &KVStore{
		db:    db,
		snaps: prefixdb.New(snapshotPrefix, db),
		owned: true,
	}
}

// Load implements Store.
func (s *KVStore) Load(_ context.Context, key Key) (Snapshot, error) {
	raw, err := s.snaps.Get([]byte(key.String()))
	if errors.Is(err, database.ErrNotFound) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("kv get: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Save implements Store.
func (s *KVStore) Save(_ context.Context, key Key, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.snaps.Put([]byte(key.String()), raw); err != nil {
		return fmt.Errorf("kv put: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *KVStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
