// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package resource

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"strings"

	"github.com/derion-io/engine/multicall"
	"github.com/derion-io/engine/profile"
)

var (
	loadConfigSelector = multicall.Selector("loadConfig()")
	computeSelector    = multicall.Selector("compute(address,uint256,uint256,uint256)")
	token0Selector     = multicall.Selector("token0()")
	token1Selector     = multicall.Selector("token1()")
	symbolSelector     = multicall.Selector("symbol()")
	decimalsSelector   = multicall.Selector("decimals()")
)

// Builder loads and assembles the pool universe.
type Builder struct {
	Profile *profile.Profile
	Batcher *multicall.Batcher
}

// NewBuilder wires a builder to a deployment profile and a multicall
// batcher.
func NewBuilder(p *profile.Profile, b *multicall.Batcher) *Builder {
	return &Builder{Profile: p, Batcher: b}
}

// LoadPools fetches config and state for each pool address in one
// multicall round trip and assembles the full universe: pools with
// analytics, groups, and derived token metadata. Pools whose calls
// fail are skipped with a warning. playMode keeps only pools whose
// reserve is the play token; off, it drops them.
func (b *Builder) LoadPools(ctx context.Context, addresses []string, playMode bool) (*Resource, error) {
	addresses = dedupe(addresses)
	pools := make(map[string]*Pool, len(addresses))

	groups := make([]multicall.Group, 0, len(addresses))
	computeData := computeCalldata(b.Profile.Derivable.Token)
	for _, addr := range addresses {
		addr := strings.ToLower(addr)
		groups = append(groups, multicall.Group{
			Reference: "pools-" + addr,
			Calls: []multicall.Call{
				{Target: addr, Data: loadConfigSelector},
				{Target: addr, Data: computeData},
			},
			OnResult: func(results []multicall.Result) error {
				pool, err := parsePool(addr, results[0], results[1])
				if err != nil {
					log.Printf("[resource] cannot get states of %s: %v", addr, err)
					return nil
				}
				pools[addr] = pool
				return nil
			},
		})
	}
	if err := b.Batcher.Execute(ctx, groups...); err != nil {
		return nil, fmt.Errorf("load pools: %w", err)
	}

	for addr, p := range pools {
		if playMode != (p.TokenR == b.Profile.Derivable.PlayToken) {
			delete(pools, addr)
		}
	}

	pairAddrs := make([]string, 0, len(pools))
	for _, p := range pools {
		pairAddrs = append(pairAddrs, p.Pair)
	}
	pairs, err := b.LoadPairs(ctx, dedupe(pairAddrs))
	if err != nil {
		return nil, err
	}

	return b.assemble(pools, pairs), nil
}

// computeCalldata encodes compute(positionToken, 5, 0, 0): the
// view-mode flag and zeroed price hints mirror what the state helper
// expects for a read-only evaluation.
func computeCalldata(positionToken string) string {
	data := computeSelector
	data += leftPadAddress(positionToken)
	data += leftPadUint(5)
	data += leftPadUint(0)
	data += leftPadUint(0)
	return data
}

// parsePool decodes the loadConfig and compute return data into a Pool
// with analytics attached.
func parsePool(addr string, config, state multicall.Result) (*Pool, error) {
	if !config.Success || !state.Success {
		return nil, fmt.Errorf("%w: call reverted", ErrMissingPoolData)
	}
	cw, err := returnWords(config.ReturnData, 11)
	if err != nil {
		return nil, fmt.Errorf("loadConfig: %v", err)
	}
	sw, err := returnWords(state.ReturnData, 10)
	if err != nil {
		return nil, fmt.Errorf("compute: %v", err)
	}

	p := &Pool{
		Address:      addr,
		Fetcher:      wordAddr(cw[0]),
		TokenR:       wordAddr(cw[2]),
		K:            int(wordBig(cw[3]).Int64()),
		Mark:         wordBig(cw[4]),
		InterestHL:   wordBig(cw[5]),
		PremiumHL:    wordBig(cw[6]),
		Maturity:     wordBig(cw[7]).Uint64(),
		MaturityVest: wordBig(cw[8]).Uint64(),
		MaturityRate: wordBig(cw[9]),
		OpenRate:     wordBig(cw[10]),
		State: &State{
			R:    wordBig(sw[0]),
			A:    wordBig(sw[1]),
			B:    wordBig(sw[2]),
			RA:   wordBig(sw[3]),
			RB:   wordBig(sw[4]),
			RC:   wordBig(sw[5]),
			SA:   wordBig(sw[6]),
			SB:   wordBig(sw[7]),
			SC:   wordBig(sw[8]),
			Spot: wordBig(sw[9]),
		},
	}
	split := new(big.Int).Add(p.State.RA, p.State.RB)
	split.Add(split, p.State.RC)
	if split.Cmp(p.State.R) != 0 {
		return nil, fmt.Errorf("%w: side reserves %s do not sum to R %s", ErrMissingPoolData, split, p.State.R)
	}
	copy(p.Oracle[:], cw[1])
	p.Pair, p.QuoteTokenIndex, p.Window = parseOracle(p.Oracle)
	p.Exp = fetcherExp(p.Fetcher)
	p.Analytics = CalcAnalytics(p)
	return p, nil
}

// parseOracle unpacks the oracle word: the pair address in the low 20
// bytes, the quote token index flagged in the top nibble, and the TWAP
// window in bytes 4..8.
func parseOracle(oracle [32]byte) (pair string, quoteTokenIndex int, window uint64) {
	pair = "0x" + hex.EncodeToString(oracle[12:])
	if oracle[0]>>4 > 0 {
		quoteTokenIndex = 1
	}
	window = uint64(oracle[4])<<24 | uint64(oracle[5])<<16 | uint64(oracle[6])<<8 | uint64(oracle[7])
	return pair, quoteTokenIndex, window
}

// fetcherExp returns the price exponent of a pool's fetcher: pools on
// the zero fetcher read sqrt prices from the oracle, external fetchers
// report plain prices.
func fetcherExp(fetcher string) int {
	if wordIsZeroAddr(fetcher) {
		return 2
	}
	return 1
}

func dedupe(addrs []string) []string {
	seen := make(map[string]bool, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		a = strings.ToLower(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
