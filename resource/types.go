// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

// Package resource reconstructs the protocol's pool universe: configs
// and live state fetched in one multicall round trip, pools grouped by
// their underlying index, and per-pool risk analytics.
package resource

import (
	"fmt"
	"math/big"

	"github.com/derion-io/engine/events"
	"github.com/derion-io/engine/profile"
)

// ErrMissingPoolData marks an item referencing a pool the resource set
// has no config or state for. Callers skip the item.
var ErrMissingPoolData = fmt.Errorf("missing pool data")

// Pool is one derivative pool: immutable config plus last loaded state.
type Pool struct {
	Address string

	// config, from loadConfig or the PoolCreated log
	Fetcher      string
	Oracle       [32]byte
	TokenR       string
	K            int
	Mark         *big.Int
	InterestHL   *big.Int
	PremiumHL    *big.Int
	Maturity     uint64
	MaturityVest uint64
	MaturityRate *big.Int
	OpenRate     *big.Int

	// derived from the oracle word
	Pair            string
	QuoteTokenIndex int
	Window          uint64

	// Exp is the price exponent of the pool's fetcher: 2 when the
	// oracle reports sqrt prices, 1 for plain prices.
	Exp int

	BaseToken  string
	QuoteToken string

	State     *State
	Analytics *Analytics
}

// State is a pool's reserve split at one observation.
type State struct {
	R *big.Int // total reserve
	A *big.Int // long coefficient
	B *big.Int // short coefficient

	RA *big.Int // long reserve
	RB *big.Int // short reserve
	RC *big.Int // liquidity reserve
	SA *big.Int // long supply
	SB *big.Int // short supply
	SC *big.Int // liquidity supply

	Spot *big.Int // Q128 index price
}

// Power returns the pool's rate power, its leverage over the price
// exponent.
func (p *Pool) Power() float64 {
	exp := p.Exp
	if exp == 0 {
		exp = 2
	}
	return float64(p.K) / float64(exp)
}

// SideID returns the synthetic asset id string for one of the pool's
// sides, the form position maps key by.
func (p *Pool) SideID(side int) string {
	id, err := events.PackID(side, p.Address)
	if err != nil {
		return ""
	}
	return events.IDHex(id)
}

// Analytics is the derived risk view of one pool.
type Analytics struct {
	// RiskFactor is (rA-rB)/rC, the imbalance the liquidity side
	// absorbs, as a Q128 ratio. Zero when the pool has no liquidity.
	RiskFactor *big.Int

	// DeleverageRiskA/B are 2*r/R: a side deleverages when its value
	// reaches 1.
	DeleverageRiskA float64
	DeleverageRiskB float64

	InterestRate   float64
	MaxPremiumRate float64

	Sides map[int]SideInfo
}

// SideInfo is per-side effective leverage and funding.
type SideInfo struct {
	// K is the effective leverage, the nominal k clamped by the
	// deleverage curve.
	K float64
	// Premium is the rebalancing flow: positive pays, negative earns.
	Premium float64
	// Interest is the decompounded daily rate the side bleeds.
	Interest float64
}

// Group gathers the pools that share one (pair, quote index, reserve
// token) — one market across its leverages.
type Group struct {
	ID              string
	Pair            *PairInfo
	QuoteTokenIndex int
	TokenR          string
	BaseToken       string
	QuoteToken      string

	Pools map[string]*Pool

	Ks     []int
	Powers []float64

	// DTokens are the long/short synthetic ids; AllTokens add the
	// liquidity side.
	DTokens   []string
	AllTokens []string

	// BasePrice is the group's index price in display units.
	BasePrice string

	States GroupStates
}

// GroupStates is the aggregate reserve view of a group.
type GroupStates struct {
	R        *big.Int
	RC       *big.Int
	RDcLong  *big.Int
	RDcShort *big.Int

	// per-leverage reserve and supply details, keyed by signed k
	RDetails      map[int]*big.Int
	SupplyDetails map[int]*big.Int
}

// GroupID builds the canonical group key.
func GroupID(pair string, quoteTokenIndex int, tokenR string) string {
	return fmt.Sprintf("%s-%d-%s", pair, quoteTokenIndex, tokenR)
}

// Resource is the full reconstructed universe handed to the ledger and
// reconciler.
type Resource struct {
	Pools  map[string]*Pool
	Groups map[string]*Group
	Tokens []profile.Token
}

// NewResource returns an empty universe.
func NewResource() *Resource {
	return &Resource{
		Pools:  make(map[string]*Pool),
		Groups: make(map[string]*Group),
	}
}

// Merge folds another universe in, the incoming side winning on
// conflicts.
func (r *Resource) Merge(other *Resource) {
	for addr, p := range other.Pools {
		r.Pools[addr] = p
	}
	for id, g := range other.Groups {
		r.Groups[id] = g
	}
	seen := make(map[string]bool, len(r.Tokens))
	for _, t := range r.Tokens {
		seen[t.Address] = true
	}
	for _, t := range other.Tokens {
		if !seen[t.Address] {
			r.Tokens = append(r.Tokens, t)
			seen[t.Address] = true
		}
	}
}
