// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

// Package logcache persists per-account log sets between sessions so a
// rebuild only fetches the blocks past the last cached head. Entries
// are deduplicated by (tx hash, log index) and kept in chain order.
package logcache

import (
	"sort"

	"github.com/derion-io/engine/events"
)

// Merge combines two log sets into one sorted, duplicate-free set.
// When the same (tx hash, log index) appears in both, the incoming copy
// wins: a refetched log may carry a timestamp the cached one lacks.
func Merge(cached, incoming []*events.RawLog) []*events.RawLog {
	seen := make(map[events.LogKey]*events.RawLog, len(cached)+len(incoming))
	for _, l := range cached {
		seen[l.Key()] = l
	}
	for _, l := range incoming {
		seen[l.Key()] = l
	}
	merged := make([]*events.RawLog, 0, len(seen))
	for _, l := range seen {
		merged = append(merged, l)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Before(merged[j])
	})
	return merged
}

// GroupByTx splits a sorted log set into per-transaction groups,
// preserving order both across and within transactions.
func GroupByTx(logs []*events.RawLog) [][]*events.RawLog {
	var groups [][]*events.RawLog
	var current string
	for _, l := range logs {
		if len(groups) == 0 || l.TxHash != current {
			groups = append(groups, nil)
			current = l.TxHash
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], l)
	}
	return groups
}
