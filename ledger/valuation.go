// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package ledger

import (
	"math/big"

	"github.com/derion-io/engine/events"
	"github.com/derion-io/engine/pricing"
	"github.com/derion-io/engine/profile"
	"github.com/derion-io/engine/resource"
)

// PositionView is a position valued against the pool's current state.
// Raw amounts stay in big.Int; prices render in display units.
type PositionView struct {
	ID      string
	Pool    string
	Side    int
	Balance *big.Int

	Leverage          float64
	EffectiveLeverage float64

	// entry cost basis
	EntryValueR *big.Int
	EntryValueU *big.Int
	EntryPrice  string

	// current worth
	ValueR *big.Int
	ValueU *big.Int

	CurrentPrice string

	// DeleverageRange is the price band the position survives inside,
	// "low-high" in display units. Open ends render empty.
	DeleverageRange string

	// FundingRate is the daily bleed: interest plus premium, negative
	// when the side earns.
	FundingRate float64

	Maturity uint64

	// PnL is realized-against-entry: valueU/entryValueU - 1.
	PnL float64
	// LinearPnL and CompoundPnL are what the price move alone predicts,
	// without and with decompounding.
	LinearPnL   float64
	CompoundPnL float64
}

// Valuer values ledger positions against a resource universe.
type Valuer struct {
	Profile  *profile.Profile
	Resource *resource.Resource
}

// Value builds the view of one position. currentPriceR is the reserve
// token's current Q128 price in its USD route, nil when unpriced.
func (v *Valuer) Value(pos *Position, currentPriceR *big.Int) (*PositionView, bool) {
	id, err := events.ParseIDHex(pos.ID)
	if err != nil {
		return nil, false
	}
	side, poolAddr := events.UnpackID(id)
	pool, ok := v.Resource.Pools[poolAddr]
	if !ok || pool.State == nil {
		return nil, false
	}
	s := pool.State

	view := &PositionView{
		ID:       pos.ID,
		Pool:     poolAddr,
		Side:     side,
		Balance:  pos.Balance,
		Maturity: pos.Maturity,
	}

	base := v.Profile.TokenByAddress(pool.BaseToken)
	quote := v.Profile.TokenByAddress(pool.QuoteToken)
	if s.Spot != nil && s.Spot.Sign() > 0 {
		view.CurrentPrice = pricing.FormatQ128(s.Spot, base.Decimals, quote.Decimals)
	}
	if pos.Price != nil && pos.Price.Sign() > 0 {
		view.EntryPrice = pricing.FormatQ128(pos.Price, base.Decimals, quote.Decimals)
	}

	view.EntryValueR = pos.EntryValueR()
	if pos.PriceR != nil {
		view.EntryValueU = pricing.MulX128(view.EntryValueR, pos.PriceR)
	} else {
		view.EntryValueU = new(big.Int)
	}

	view.ValueR = sideValue(s, side, pos.Balance)
	if currentPriceR != nil {
		view.ValueU = pricing.MulX128(view.ValueR, currentPriceR)
	} else {
		view.ValueU = new(big.Int)
	}

	view.Leverage, view.EffectiveLeverage = leverages(pool, side)
	view.DeleverageRange = deleverageRange(pool, base.Decimals, quote.Decimals)

	if an := pool.Analytics; an != nil {
		if info, ok := an.Sides[side]; ok {
			view.FundingRate = info.Interest + info.Premium
		}
	}

	view.PnL = ratioMinusOne(view.ValueU, view.EntryValueU)
	view.LinearPnL, view.CompoundPnL = projectedPnL(pool, side, pos.Price, s.Spot)

	return view, true
}

// sideValue converts a balance into its reserve worth, the side's
// reserve split over its supply.
func sideValue(s *resource.State, side int, balance *big.Int) *big.Int {
	var r, supply *big.Int
	switch side {
	case events.SideA:
		r, supply = s.RA, s.SA
	case events.SideB:
		r, supply = s.RB, s.SB
	case events.SideC:
		r, supply = s.RC, s.SC
	default:
		return new(big.Int)
	}
	if r == nil || supply == nil || supply.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(r, balance)
	return out.Div(out, supply)
}

func leverages(p *resource.Pool, side int) (nominal, effective float64) {
	power := p.Power()
	switch side {
	case events.SideA:
		nominal = power / 2
	case events.SideB:
		nominal = -power / 2
	}
	effective = nominal
	if an := p.Analytics; an != nil {
		if info, ok := an.Sides[side]; ok {
			effective = info.K / 2
			if side == events.SideB {
				effective = -effective
			}
		}
	}
	return nominal, effective
}

// deleverageRange renders the "low-high" price band between the two
// sides' deleverage points.
func deleverageRange(p *resource.Pool, baseDecimals, quoteDecimals int32) string {
	s := p.State
	xA := pricing.DeleverageX(p.K, s.R, s.A)
	xB := pricing.DeleverageX(-p.K, s.R, s.B)
	var lo, hi string
	if xB != nil {
		lo = pricing.FormatQ128(pricing.MulX128(p.Mark, xB), baseDecimals, quoteDecimals)
	}
	if xA != nil {
		hi = pricing.FormatQ128(pricing.MulX128(p.Mark, xA), baseDecimals, quoteDecimals)
	}
	if lo == "" && hi == "" {
		return ""
	}
	return lo + "-" + hi
}

// projectedPnL predicts the return of the price move since entry,
// linearly and through the pool's power curve. The liquidity side has
// no directional projection.
func projectedPnL(p *resource.Pool, side int, entryPrice, spot *big.Int) (linear, compound float64) {
	if entryPrice == nil || entryPrice.Sign() == 0 || spot == nil || spot.Sign() == 0 {
		return 0, 0
	}
	if side != events.SideA && side != events.SideB {
		return 0, 0
	}
	rate := pricing.FloatX128(pricing.DivX128(spot, entryPrice))

	n := int(p.Power())
	if side == events.SideB {
		n = -n
	}
	linear = float64(n) * (rate - 1)

	compoundRate := pricing.FloatX128(pricing.PowX128(pricing.DivX128(spot, entryPrice), n))
	compound = compoundRate - 1
	return linear, compound
}

func ratioMinusOne(num, den *big.Int) float64 {
	if den == nil || den.Sign() == 0 {
		return 0
	}
	return pricing.Float(num)/pricing.Float(den) - 1
}
