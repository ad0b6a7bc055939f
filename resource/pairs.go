// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package resource

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/derion-io/engine/multicall"
	"github.com/derion-io/engine/profile"
)

// PairInfo is the oracle pair's token pair, with display metadata.
type PairInfo struct {
	Address string
	Token0  profile.Token
	Token1  profile.Token
}

// LoadPairs fetches token0/token1 for each oracle pair, then the
// symbol and decimals of any token the whitelist doesn't cover, all in
// one round trip per layer.
func (b *Builder) LoadPairs(ctx context.Context, pairAddrs []string) (map[string]*PairInfo, error) {
	pairs := make(map[string]*PairInfo, len(pairAddrs))

	groups := make([]multicall.Group, 0, len(pairAddrs))
	for _, addr := range pairAddrs {
		addr := strings.ToLower(addr)
		groups = append(groups, multicall.Group{
			Reference: "pair-" + addr,
			Calls: []multicall.Call{
				{Target: addr, Data: token0Selector},
				{Target: addr, Data: token1Selector},
			},
			OnResult: func(results []multicall.Result) error {
				if !results[0].Success || !results[1].Success {
					log.Printf("[resource] pair %s: token calls reverted", addr)
					return nil
				}
				w0, err0 := returnWords(results[0].ReturnData, 1)
				w1, err1 := returnWords(results[1].ReturnData, 1)
				if err0 != nil || err1 != nil {
					log.Printf("[resource] pair %s: bad token return data", addr)
					return nil
				}
				pairs[addr] = &PairInfo{
					Address: addr,
					Token0:  profile.Token{Address: wordAddr(w0[0])},
					Token1:  profile.Token{Address: wordAddr(w1[0])},
				}
				return nil
			},
		})
	}
	if err := b.Batcher.Execute(ctx, groups...); err != nil {
		return nil, fmt.Errorf("load pairs: %w", err)
	}

	if err := b.fillTokenMeta(ctx, pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

// fillTokenMeta resolves symbol/decimals for pair tokens: whitelist
// first, then on-chain for the rest.
func (b *Builder) fillTokenMeta(ctx context.Context, pairs map[string]*PairInfo) error {
	need := make(map[string]*profile.Token)
	for _, p := range pairs {
		for _, t := range []*profile.Token{&p.Token0, &p.Token1} {
			if known := b.Profile.TokenByAddress(t.Address); known.Symbol != "" && known.Decimals > 0 && isWhitelisted(b.Profile, t.Address) {
				*t = known
				continue
			}
			need[t.Address] = t
		}
	}
	if len(need) == 0 {
		return nil
	}

	groups := make([]multicall.Group, 0, len(need))
	for addr, t := range need {
		addr, t := addr, t
		groups = append(groups, multicall.Group{
			Reference: "token-" + addr,
			Calls: []multicall.Call{
				{Target: addr, Data: symbolSelector},
				{Target: addr, Data: decimalsSelector},
			},
			OnResult: func(results []multicall.Result) error {
				t.Symbol = b.Profile.TokenByAddress(addr).Symbol
				t.Decimals = 18
				if results[0].Success {
					if s := decodeSymbol(results[0].ReturnData); s != "" {
						t.Symbol = s
					}
				}
				if results[1].Success {
					if w, err := returnWords(results[1].ReturnData, 1); err == nil {
						t.Decimals = int32(wordBig(w[0]).Int64())
					}
				}
				return nil
			},
		})
	}
	if err := b.Batcher.Execute(ctx, groups...); err != nil {
		return fmt.Errorf("load token meta: %w", err)
	}

	// copies in other pairs referencing the same token
	for _, p := range pairs {
		for _, t := range []*profile.Token{&p.Token0, &p.Token1} {
			if resolved, ok := need[t.Address]; ok && t != resolved {
				*t = *resolved
			}
		}
	}
	return nil
}

func isWhitelisted(p *profile.Profile, address string) bool {
	address = strings.ToLower(address)
	for _, t := range p.Tokens {
		if t.Address == address {
			return true
		}
	}
	return false
}
