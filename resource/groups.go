// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package resource

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/derion-io/engine/events"
	"github.com/derion-io/engine/pricing"
	"github.com/derion-io/engine/profile"
)

// assemble resolves base/quote per pool, folds pools into groups and
// derives the synthetic token metadata.
func (b *Builder) assemble(pools map[string]*Pool, pairs map[string]*PairInfo) *Resource {
	res := NewResource()
	res.Pools = pools

	addrs := make([]string, 0, len(pools))
	for addr := range pools {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	for _, addr := range addrs {
		p := pools[addr]
		pair, ok := pairs[p.Pair]
		if !ok {
			continue
		}
		// quote index 0 means token0 is the quote side
		base, quote := pair.Token1, pair.Token0
		if p.QuoteTokenIndex == 1 {
			base, quote = pair.Token0, pair.Token1
		}
		p.BaseToken = base.Address
		p.QuoteToken = quote.Address

		id := GroupID(p.Pair, p.QuoteTokenIndex, p.TokenR)
		g, ok := res.Groups[id]
		if !ok {
			g = &Group{
				ID:              id,
				Pair:            pair,
				QuoteTokenIndex: p.QuoteTokenIndex,
				TokenR:          p.TokenR,
				BaseToken:       base.Address,
				QuoteToken:      quote.Address,
				Pools:           make(map[string]*Pool),
			}
			res.Groups[id] = g
		}
		g.Pools[addr] = p
		g.BasePrice = pricing.FormatQ128(p.State.Spot, base.Decimals, quote.Decimals)
		g.Ks = append(g.Ks, p.K)
		g.Powers = append(g.Powers, float64(p.K), -float64(p.K))
		g.DTokens = append(g.DTokens, p.SideID(events.SideA), p.SideID(events.SideB))
		g.AllTokens = append(g.AllTokens, p.SideID(events.SideA), p.SideID(events.SideB), p.SideID(events.SideC))

		poolsOf := make([]*Pool, 0, len(g.Pools))
		for _, gp := range g.Pools {
			poolsOf = append(poolsOf, gp)
		}
		g.States = Rdc(poolsOf)

		rDecimals := b.Profile.TokenByAddress(p.TokenR).Decimals
		half := formatPower(float64(p.K) / 2)
		res.Tokens = append(res.Tokens,
			profile.Token{
				Address:  p.SideID(events.SideA),
				Symbol:   fmt.Sprintf("%s^%s", base.Symbol, formatPower(1+float64(p.K)/2)),
				Decimals: rDecimals,
			},
			profile.Token{
				Address:  p.SideID(events.SideB),
				Symbol:   fmt.Sprintf("%s^%s", base.Symbol, formatPower(1-float64(p.K)/2)),
				Decimals: rDecimals,
			},
			profile.Token{
				Address:  p.SideID(events.SideC),
				Symbol:   fmt.Sprintf("DLP-%s-%s", base.Symbol, half),
				Decimals: rDecimals,
			},
			base,
			quote,
		)
	}

	res.Tokens = dedupeTokens(res.Tokens)
	return res
}

func formatPower(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func dedupeTokens(tokens []profile.Token) []profile.Token {
	seen := make(map[string]bool, len(tokens))
	out := make([]profile.Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Address == "" || seen[t.Address] {
			continue
		}
		seen[t.Address] = true
		out = append(out, t)
	}
	return out
}
