// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

// Package engine orchestrates one reconstruction session: fetch the
// account's logs on top of the cache, load the pool universe, replay
// positions and balances, and hand back an immutable snapshot.
package engine

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/derion-io/engine/chain"
	"github.com/derion-io/engine/events"
	"github.com/derion-io/engine/ledger"
	"github.com/derion-io/engine/logcache"
	"github.com/derion-io/engine/multicall"
	"github.com/derion-io/engine/profile"
	"github.com/derion-io/engine/reconcile"
	"github.com/derion-io/engine/resource"
)

// cache feed kinds
const (
	kindAccount  = "account"
	kindProtocol = "protocol"
)

// Engine wires the collaborators one chain's sessions share. Logs
// serves eth_getLogs and may point at a scan API; everything else
// goes through Chain.
type Engine struct {
	Profile *profile.Profile
	Chain   *chain.Client
	Logs    *chain.Client
	Cache   *logcache.Cache
	Builder *resource.Builder
}

// New assembles an engine from a profile, creating the chain client
// and multicall batcher from its endpoints.
func New(p *profile.Profile, store logcache.Store) *Engine {
	client := chain.New(p.RPC)
	logs := client
	if p.ScanAPI != "" {
		logs = chain.New(p.ScanAPI)
	}
	return &Engine{
		Profile: p,
		Chain:   client,
		Logs:    logs,
		Cache:   logcache.NewCache(store),
		Builder: resource.NewBuilder(p, multicall.New(client, p.Derivable.Multicall)),
	}
}

// Options tune one session run.
type Options struct {
	// WithNative merges the account's native coin balance into the
	// reconciled balances.
	WithNative bool
	// PlayMode keeps only pools whose reserve is the play token.
	PlayMode bool
}

// Session is the reconstructed view of one account at one head block.
type Session struct {
	ID      string
	Account string
	Head    uint64

	Resource    *resource.Resource
	Positions   map[string]*ledger.Position
	Transitions []ledger.Transition
	History     []ledger.SwapEntry

	Balances   map[string]*big.Int
	Allowances map[string]*big.Int
	Maturities map[string]uint64
	Assets     *reconcile.Assets
}

// Run rebuilds an account's full state. The whitelist universe, the
// account's transfer logs, and the protocol's own logs load
// concurrently and join before replay.
func (e *Engine) Run(ctx context.Context, account string, opts Options) (*Session, error) {
	account = strings.ToLower(account)
	head, err := e.Chain.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain head: %w", err)
	}

	var (
		wg        sync.WaitGroup
		whitelist *resource.Resource
		acctLogs  []*events.RawLog
		protoLogs []*events.RawLog
		errs      = make([]error, 3)
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		whitelist, errs[0] = e.Builder.LoadPools(ctx, e.Profile.WhitelistPools, opts.PlayMode)
	}()
	go func() {
		defer wg.Done()
		acctLogs, errs[1] = e.loadFeed(ctx, kindAccount, account, head, e.fetchAccountLogs)
	}()
	go func() {
		defer wg.Done()
		protoLogs, errs[2] = e.loadFeed(ctx, kindProtocol, account, head, e.fetchProtocolLogs)
	}()
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	merged := logcache.Merge(acctLogs, protoLogs)

	// pools the log set names, on top of the curated set: deployments
	// plus the pools the account actually holds
	extra, err := e.Builder.IngestLogs(ctx, merged, account, opts.PlayMode)
	if err != nil {
		log.Printf("[engine] ingested pool load failed: %v", err)
	} else {
		whitelist.Merge(extra)
	}

	sess := &Session{
		ID:       uuid.NewString(),
		Account:  account,
		Head:     head,
		Resource: whitelist,
	}

	led := ledger.New(account, e.Profile.Derivable.Token)
	led.Replay(logcache.GroupByTx(merged))
	sess.Positions = led.Positions()
	sess.Transitions = led.Transitions()

	hist := &ledger.History{
		Account:  account,
		ChainID:  e.Profile.ChainID,
		Profile:  e.Profile,
		Resource: whitelist,
	}
	sess.History = hist.FormatSwapHistory(e.accountSwaps(merged, account), acctLogs)

	rec := reconcile.New(account, e.Profile.Derivable.Token, e.Profile.Derivable.Router)
	rec.Apply(acctLogs)
	rec.StampVesting(whitelist)
	if opts.WithNative {
		balance, err := e.Chain.Balance(ctx, account)
		if err != nil {
			log.Printf("[engine] native balance: %v", err)
		} else {
			rec.SetNativeBalance(balance)
		}
	}
	sess.Balances = rec.Balances
	sess.Allowances = rec.Allowances
	sess.Maturities = rec.Maturities

	assets := reconcile.NewAssets(account)
	assets.Update(acctLogs)
	sess.Assets = assets

	return sess, nil
}

type fetchFunc func(ctx context.Context, account string, fromBlock, toBlock uint64) ([]*events.RawLog, error)

// loadFeed loads one cached log feed and tops it up from the chain,
// applying the fetched range back into the cache.
func (e *Engine) loadFeed(ctx context.Context, kind, account string, head uint64, fetch fetchFunc) ([]*events.RawLog, error) {
	key := logcache.Key{ChainID: e.Profile.ChainID, Kind: kind, Account: account}
	from, err := e.Cache.FromBlock(ctx, key, e.Profile.StartBlock)
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", kind, err)
	}
	fetched, err := fetch(ctx, account, from, head)
	if err != nil {
		return nil, fmt.Errorf("fetch %s logs: %w", kind, err)
	}
	snap, err := e.Cache.Apply(ctx, key, fetched, head)
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", kind, err)
	}
	return snap.Logs, nil
}

// fetchAccountLogs collects every transfer or approval log touching
// the account: one query per indexed slot the account can occupy.
func (e *Engine) fetchAccountLogs(ctx context.Context, account string, fromBlock, toBlock uint64) ([]*events.RawLog, error) {
	topic := events.AddressTopic(account)
	kinds := []string{
		events.TransferSig,
		events.ApprovalSig,
		events.TransferSingleSig,
		events.TransferBatchSig,
		events.ApprovalForAllSig,
	}
	slots := [][][]string{
		{kinds, {topic}},           // from, owner
		{kinds, nil, {topic}},      // to, spender
		{kinds, nil, nil, {topic}}, // 1155 recipient
	}

	var all []*events.RawLog
	for _, topics := range slots {
		logs, err := e.Logs.GetLogs(ctx, chain.LogFilter{
			FromBlock: fromBlock,
			ToBlock:   toBlock,
			Topics:    topics,
		})
		if err != nil {
			return nil, err
		}
		all = logcache.Merge(all, logs)
	}
	return all, nil
}

// fetchProtocolLogs collects the protocol's own logs: mints and helper
// swaps carrying the entry terms the account feed cannot see.
func (e *Engine) fetchProtocolLogs(ctx context.Context, _ string, fromBlock, toBlock uint64) ([]*events.RawLog, error) {
	return e.Logs.GetLogs(ctx, chain.LogFilter{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Addresses: []string{
			e.Profile.Derivable.Token,
			e.Profile.Derivable.Helper,
		},
	})
}

// accountSwaps filters swap logs down to those the account took part
// in: the payer or recipient rides in the data section, not a topic.
func (e *Engine) accountSwaps(logs []*events.RawLog, account string) []*events.RawLog {
	var out []*events.RawLog
	for _, lg := range logs {
		if !events.Classify(lg).IsSwap() {
			continue
		}
		swap, err := events.DecodeSwap(lg)
		if err != nil {
			continue
		}
		if swap.Payer == account || swap.Recipient == account {
			out = append(out, lg)
		}
	}
	return out
}
