// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package logcache

import (
	"context"
	"sync"
	"testing"

	"github.com/derion-io/engine/events"
)

func mkLog(block, index uint64, tx string) *events.RawLog {
	return &events.RawLog{
		BlockNumber: block,
		LogIndex:    index,
		TxHash:      tx,
		Timestamp:   block * 10,
	}
}

func TestMerge(t *testing.T) {
	t.Run("dedup by identity", func(t *testing.T) {
		a := []*events.RawLog{mkLog(1, 0, "0xa"), mkLog(2, 3, "0xb")}
		b := []*events.RawLog{mkLog(2, 3, "0xb"), mkLog(2, 5, "0xb")}
		merged := Merge(a, b)
		if len(merged) != 3 {
			t.Fatalf("got %d logs, want 3", len(merged))
		}
	})
	t.Run("sorted by block then index", func(t *testing.T) {
		a := []*events.RawLog{mkLog(5, 1, "0xc"), mkLog(2, 9, "0xa")}
		b := []*events.RawLog{mkLog(2, 3, "0xa"), mkLog(3, 0, "0xb")}
		merged := Merge(a, b)
		for i := 1; i < len(merged); i++ {
			if !merged[i-1].Before(merged[i]) {
				t.Fatalf("out of order at %d", i)
			}
		}
	})
	t.Run("incoming copy wins", func(t *testing.T) {
		stale := mkLog(1, 0, "0xa")
		stale.Timestamp = 0
		fresh := mkLog(1, 0, "0xa")
		merged := Merge([]*events.RawLog{stale}, []*events.RawLog{fresh})
		if merged[0].Timestamp != 10 {
			t.Fatalf("stale copy survived merge")
		}
	})
	t.Run("idempotent", func(t *testing.T) {
		logs := []*events.RawLog{mkLog(1, 0, "0xa"), mkLog(1, 1, "0xa")}
		once := Merge(nil, logs)
		twice := Merge(once, logs)
		if len(twice) != len(once) {
			t.Fatalf("remerge grew the set: %d -> %d", len(once), len(twice))
		}
	})
}

func TestGroupByTx(t *testing.T) {
	logs := []*events.RawLog{
		mkLog(1, 0, "0xa"), mkLog(1, 1, "0xa"),
		mkLog(1, 2, "0xb"),
		mkLog(2, 0, "0xc"), mkLog(2, 1, "0xc"),
	}
	groups := GroupByTx(logs)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	if len(groups[0]) != 2 || len(groups[1]) != 1 || len(groups[2]) != 2 {
		t.Fatalf("group sizes = %d/%d/%d", len(groups[0]), len(groups[1]), len(groups[2]))
	}
}

func TestCacheApply(t *testing.T) {
	ctx := context.Background()
	key := Key{ChainID: 42161, Kind: "token", Account: "0xabc"}
	cache := NewCache(NewMemoryKV())

	snap, err := cache.Apply(ctx, key, []*events.RawLog{mkLog(10, 0, "0xa")}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if snap.LastBlock != 100 {
		t.Fatalf("lastBlock = %d, want 100", snap.LastBlock)
	}

	t.Run("head advances on empty fetch", func(t *testing.T) {
		snap, err := cache.Apply(ctx, key, nil, 200)
		if err != nil {
			t.Fatal(err)
		}
		if snap.LastBlock != 200 || len(snap.Logs) != 1 {
			t.Fatalf("snap = %d blocks, %d logs", snap.LastBlock, len(snap.Logs))
		}
	})
	t.Run("head never regresses", func(t *testing.T) {
		snap, err := cache.Apply(ctx, key, nil, 150)
		if err != nil {
			t.Fatal(err)
		}
		if snap.LastBlock != 200 {
			t.Fatalf("lastBlock regressed to %d", snap.LastBlock)
		}
	})
	t.Run("overlapping refetch does not duplicate", func(t *testing.T) {
		snap, err := cache.Apply(ctx, key, []*events.RawLog{mkLog(10, 0, "0xa")}, 250)
		if err != nil {
			t.Fatal(err)
		}
		if len(snap.Logs) != 1 {
			t.Fatalf("duplicate after refetch: %d logs", len(snap.Logs))
		}
	})
}

func TestCacheFromBlock(t *testing.T) {
	ctx := context.Background()
	key := Key{ChainID: 1, Kind: "swap", Account: "0xabc"}
	cache := NewCache(NewMemoryKV())
	cache.Overlap = 10

	from, err := cache.FromBlock(ctx, key, 500)
	if err != nil {
		t.Fatal(err)
	}
	if from != 500 {
		t.Fatalf("cold cache from = %d, want genesis", from)
	}

	if _, err := cache.Apply(ctx, key, nil, 1000); err != nil {
		t.Fatal(err)
	}
	from, err = cache.FromBlock(ctx, key, 500)
	if err != nil {
		t.Fatal(err)
	}
	if from != 990 {
		t.Fatalf("from = %d, want head minus overlap", from)
	}
}

func TestCacheKeysIsolated(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(NewMemoryKV())
	a := Key{ChainID: 1, Kind: "token", Account: "0xaaa"}
	b := Key{ChainID: 1, Kind: "token", Account: "0xbbb"}

	if _, err := cache.Apply(ctx, a, []*events.RawLog{mkLog(1, 0, "0xa")}, 10); err != nil {
		t.Fatal(err)
	}
	snap, err := cache.Load(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Logs) != 0 || snap.LastBlock != 0 {
		t.Fatalf("key b not isolated: %+v", snap)
	}
}

func TestCacheConcurrentApply(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(NewMemoryKV())
	key := Key{ChainID: 1, Kind: "token", Account: "0xaaa"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			logs := []*events.RawLog{mkLog(uint64(i+1), uint64(i), "0xconcurrent")}
			if _, err := cache.Apply(ctx, key, logs, uint64(100+i)); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	snap, err := cache.Load(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Logs) != 8 {
		t.Fatalf("lost writes: %d logs, want 8", len(snap.Logs))
	}
	if snap.LastBlock != 107 {
		t.Fatalf("lastBlock = %d, want 107", snap.LastBlock)
	}
}
