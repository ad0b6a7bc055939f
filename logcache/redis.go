// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package logcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists snapshots in Redis, for deployments where several
// engine instances share one cache. Entries expire so abandoned
// accounts age out on their own.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis wraps a Redis client as a snapshot store. A zero ttl keeps
// snapshots forever.
func NewRedis(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func redisKey(key Key) string {
	return "derion:logs:" + key.String()
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, key Key) (Snapshot, error) {
	raw, err := s.rdb.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("redis get: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, key Key, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, redisKey(key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
