// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package resource

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"

	"github.com/derion-io/engine/chain"
	"github.com/derion-io/engine/events"
)

// LogSource feeds raw logs, satisfied by chain.Client.
type LogSource interface {
	GetLogs(ctx context.Context, filter chain.LogFilter) ([]*events.RawLog, error)
}

// DiscoverPools extracts the pool addresses an account has touched
// from its position token transfer logs: every id with a net positive
// balance names a pool with an opening position.
func (b *Builder) DiscoverPools(logs []*events.RawLog, account string) []string {
	account = strings.ToLower(account)
	balances := make(map[string]*big.Int)
	ids := make(map[string]*big.Int)

	add := func(id *big.Int, value *big.Int, from, to string) {
		key := events.IDHex(id)
		ids[key] = id
		bal, ok := balances[key]
		if !ok {
			bal = new(big.Int)
			balances[key] = bal
		}
		if to == account {
			bal.Add(bal, value)
		}
		if from == account {
			bal.Sub(bal, value)
		}
	}

	for _, l := range logs {
		if strings.ToLower(l.Address) != b.Profile.Derivable.Token {
			continue
		}
		switch events.Classify(l) {
		case events.KindTransferSingle:
			ts, err := events.DecodeTransferSingle(l)
			if err != nil {
				log.Printf("[resource] skip transfer log %s/%d: %v", l.TxHash, l.LogIndex, err)
				continue
			}
			add(ts.ID, ts.Value, ts.From, ts.To)
		case events.KindTransferBatch:
			tb, err := events.DecodeTransferBatch(l)
			if err != nil {
				log.Printf("[resource] skip transfer log %s/%d: %v", l.TxHash, l.LogIndex, err)
				continue
			}
			for i := range tb.IDs {
				add(tb.IDs[i], tb.Values[i], tb.From, tb.To)
			}
		}
	}

	seen := make(map[string]bool)
	var pools []string
	for key, bal := range balances {
		if bal.Sign() <= 0 {
			continue
		}
		_, pool := events.UnpackID(ids[key])
		if !seen[pool] {
			seen[pool] = true
			pools = append(pools, pool)
		}
	}
	return pools
}

// IngestLogs derives candidate pools from a log set and loads them:
// pool deployments named by PoolCreated logs, plus every pool behind a
// position the account still holds.
func (b *Builder) IngestLogs(ctx context.Context, logs []*events.RawLog, account string, playMode bool) (*Resource, error) {
	return b.LoadPools(ctx, b.candidatePools(logs, account), playMode)
}

// candidatePools unions the deployments a log set announces with the
// pools the account holds positions in.
func (b *Builder) candidatePools(logs []*events.RawLog, account string) []string {
	seen := make(map[string]bool)
	var pools []string
	for _, l := range logs {
		if events.Classify(l) != events.KindPoolCreated {
			continue
		}
		pc, err := events.DecodePoolCreated(l)
		if err != nil {
			log.Printf("[resource] skip poolCreated log %s/%d: %v", l.TxHash, l.LogIndex, err)
			continue
		}
		if !seen[pc.PoolAddress] {
			seen[pc.PoolAddress] = true
			pools = append(pools, pc.PoolAddress)
		}
	}
	for _, pool := range b.DiscoverPools(logs, account) {
		if !seen[pool] {
			seen[pool] = true
			pools = append(pools, pool)
		}
	}
	return pools
}

// SearchEntry is one deployed pool found by a search, config only: the
// caller loads live state for the pools it cares about.
type SearchEntry struct {
	Created     *events.PoolCreated
	BlockNumber uint64
	Timestamp   uint64
}

// SearchGroup collects the deployments of one market.
type SearchGroup struct {
	Pools       []*SearchEntry
	PairAddress string
	Pair        *PairInfo
}

// SearchPools scans the deployer's PoolCreated logs and returns the
// markets matching a keyword: a pool, pair or reserve token address,
// or empty for everything.
func (b *Builder) SearchPools(ctx context.Context, src LogSource, keyword string) (map[string]*SearchGroup, error) {
	logs, err := src.GetLogs(ctx, chain.LogFilter{
		FromBlock: b.Profile.StartBlock,
		Addresses: []string{b.Profile.Derivable.PoolDeployer},
		Topics:    [][]string{{events.PoolCreatedSig}},
	})
	if err != nil {
		return nil, fmt.Errorf("search pools: %w", err)
	}

	keyword = strings.ToLower(strings.TrimPrefix(keyword, "0x"))
	groups := make(map[string]*SearchGroup)
	for _, l := range logs {
		created, err := events.DecodePoolCreated(l)
		if err != nil {
			log.Printf("[resource] skip pool log %s/%d: %v", l.TxHash, l.LogIndex, err)
			continue
		}
		if keyword != "" && !matchesKeyword(created, keyword) {
			continue
		}
		pair, quoteTokenIndex, _ := parseOracle(created.Oracle)
		id := GroupID(pair, quoteTokenIndex, created.TokenR)
		g, ok := groups[id]
		if !ok {
			g = &SearchGroup{PairAddress: pair}
			groups[id] = g
		}
		g.Pools = append(g.Pools, &SearchEntry{
			Created:     created,
			BlockNumber: l.BlockNumber,
			Timestamp:   l.Timestamp,
		})
	}

	pairAddrs := make([]string, 0, len(groups))
	for _, g := range groups {
		pairAddrs = append(pairAddrs, g.PairAddress)
	}
	pairs, err := b.LoadPairs(ctx, dedupe(pairAddrs))
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		g.Pair = pairs[g.PairAddress]
	}
	return groups, nil
}

func matchesKeyword(created *events.PoolCreated, keyword string) bool {
	pair, _, _ := parseOracle(created.Oracle)
	for _, candidate := range []string{created.PoolAddress, created.TokenR, pair} {
		if strings.Contains(strings.TrimPrefix(candidate, "0x"), keyword) {
			return true
		}
	}
	return false
}
