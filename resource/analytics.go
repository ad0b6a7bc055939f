// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package resource

import (
	"math"
	"math/big"

	"github.com/derion-io/engine/events"
	"github.com/derion-io/engine/pricing"
)

// CalcAnalytics derives the risk view of a pool from its config and
// current state.
func CalcAnalytics(p *Pool) *Analytics {
	s := p.State
	a := &Analytics{
		RiskFactor: new(big.Int),
		Sides:      make(map[int]SideInfo, 3),
	}
	if s == nil {
		return a
	}

	if s.RC.Sign() > 0 {
		a.RiskFactor = pricing.DivX128(new(big.Int).Sub(s.RA, s.RB), s.RC)
	}
	if s.R.Sign() > 0 {
		a.DeleverageRiskA = 2 * pricing.Float(s.RA) / pricing.Float(s.R)
		a.DeleverageRiskB = 2 * pricing.Float(s.RB) / pricing.Float(s.R)
	}

	kA := math.Min(float64(p.K), pricing.Kx(p.K, s.R, s.A, s.Spot, p.Mark))
	kB := math.Min(float64(p.K), pricing.Kx(-p.K, s.R, s.B, s.Spot, p.Mark))
	var kC float64
	if rAB := new(big.Int).Add(s.RA, s.RB); rAB.Sign() > 0 {
		kC = (pricing.Float(s.RA)*kA + pricing.Float(s.RB)*kB) / pricing.Float(rAB)
	}

	power := p.Power()
	a.InterestRate = pricing.RateFromHalfLife(p.InterestHL, power)
	a.MaxPremiumRate = pricing.RateFromHalfLife(p.PremiumHL, power)

	sides := map[int]SideInfo{
		events.SideA: {K: kA},
		events.SideB: {K: kB},
		events.SideC: {K: kC},
	}

	// The heavier side pays the premium, the lighter side earns it,
	// liquidity stays neutral.
	if a.MaxPremiumRate > 0 && s.R.Sign() > 0 && s.RA.Cmp(s.RB) != 0 {
		rDiff := new(big.Int).Sub(s.RA, s.RB)
		rDiff.Abs(rDiff)
		givingRate := pricing.Float(rDiff) * a.MaxPremiumRate * pricing.Float(new(big.Int).Add(s.RA, s.RB)) / pricing.Float(s.R)
		if s.RA.Cmp(s.RB) > 0 {
			sides[events.SideA] = withPremium(sides[events.SideA], givingRate/pricing.Float(s.RA))
			sides[events.SideB] = withPremium(sides[events.SideB], -givingRate/pricing.Float(s.RB))
		} else {
			sides[events.SideB] = withPremium(sides[events.SideB], givingRate/pricing.Float(s.RB))
			sides[events.SideA] = withPremium(sides[events.SideA], -givingRate/pricing.Float(s.RA))
		}
	}

	// decompound the interest
	for _, side := range []int{events.SideA, events.SideB} {
		info := sides[side]
		if info.K > 0 {
			info.Interest = a.InterestRate * float64(p.K) / info.K
		}
		sides[side] = info
	}
	if s.RC.Sign() > 0 {
		info := sides[events.SideC]
		info.Interest = pricing.Float(new(big.Int).Add(s.RA, s.RB)) * a.InterestRate / pricing.Float(s.RC)
		sides[events.SideC] = info
	}

	a.Sides = sides
	return a
}

func withPremium(info SideInfo, premium float64) SideInfo {
	info.Premium = premium
	return info
}

// Rdc aggregates the reserve decomposition of a group's pools.
func Rdc(pools []*Pool) GroupStates {
	g := GroupStates{
		R:             new(big.Int),
		RC:            new(big.Int),
		RDcLong:       new(big.Int),
		RDcShort:      new(big.Int),
		RDetails:      make(map[int]*big.Int),
		SupplyDetails: make(map[int]*big.Int),
	}
	for _, p := range pools {
		if p.State == nil {
			continue
		}
		g.RC = p.State.RC
		g.RDcLong = p.State.RA
		g.RDcShort = p.State.RB
		g.RDetails[p.K] = p.State.RA
		g.RDetails[-p.K] = p.State.RB
		g.SupplyDetails[p.K] = p.State.SA
		g.SupplyDetails[-p.K] = p.State.SB
	}
	g.R = new(big.Int).Add(g.RC, new(big.Int).Add(g.RDcLong, g.RDcShort))
	return g
}

// RentRates splits a total rent rate across the long and short sides
// in proportion to their reserves.
func RentRates(g GroupStates, rentRate *big.Int) (long, short *big.Int) {
	long, short = new(big.Int), new(big.Int)
	if g.R.Sign() == 0 {
		return long, short
	}
	diff := new(big.Int).Sub(g.RDcLong, g.RDcShort)
	diff.Abs(diff)
	rate := new(big.Int).Mul(diff, rentRate)
	rate.Div(rate, g.R)
	total := new(big.Int).Add(g.RDcLong, g.RDcShort)
	if total.Sign() == 0 {
		return long, short
	}
	long.Mul(rate, g.RDcLong).Div(long, total)
	short.Mul(rate, g.RDcShort).Div(short, total)
	return long, short
}
