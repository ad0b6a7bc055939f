// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package pricing

import (
	"math"
	"math/big"
)

// SecondsPerDay is the period all half-life rates are quoted over.
const SecondsPerDay = 86400

// RateFromHalfLife converts an on-chain half-life (seconds, scaled by
// the pool's power) into a daily decay rate: the fraction of value that
// bleeds off per day. A zero half-life means no decay.
func RateFromHalfLife(halfLife *big.Int, power float64) float64 {
	if halfLife == nil || halfLife.Sign() == 0 || power == 0 {
		return 0
	}
	hl := Float(halfLife)
	return 1 - math.Pow(0.5, SecondsPerDay/(hl*power))
}

// Kx returns the effective leverage of one side's reserve curve at the
// current index price. v is the side coefficient (a or b), spot and
// mark are Q128 prices, k is signed: positive for long, negative for
// short. Outside the deleverage zone the curve's leverage exceeds |k|
// and callers clamp with min(|k|, Kx).
func Kx(k int, R, v, spot, mark *big.Int) float64 {
	if R == nil || v == nil || spot == nil || mark == nil {
		return 0
	}
	if R.Sign() == 0 || v.Sign() == 0 || spot.Sign() == 0 || mark.Sign() == 0 {
		return 0
	}
	xk := PowX128(DivX128(spot, mark), k)
	w := MulX128(v, xk) // side reserve coefficient at current price
	// In the deleveraged zone the reserve is R - R^2/(4w) and its
	// elasticity works out to |k|*R/(4w - R).
	denom := new(big.Int).Lsh(w, 2)
	denom.Sub(denom, R)
	if denom.Sign() <= 0 {
		return math.Inf(1)
	}
	num := new(big.Int).Mul(R, big.NewInt(int64(abs(k))))
	return Float(num) / Float(denom)
}

// DeleverageX returns the price multiple x at which a side with
// coefficient v deleverages: the x solving 2*v*x^k = R, as a Q128
// ratio over the mark price. Returns nil when the side is empty.
func DeleverageX(k int, R, v *big.Int) *big.Int {
	if v == nil || v.Sign() == 0 || R == nil || R.Sign() == 0 {
		return nil
	}
	// x = (R / 2v)^(1/k), computed in floats: the result feeds display
	// ranges, not consensus math.
	ratio := Float(R) / (2 * Float(v))
	if ratio <= 0 {
		return nil
	}
	x := math.Pow(ratio, 1/float64(k))
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	f := new(big.Float).Mul(big.NewFloat(x), new(big.Float).SetInt(Q128))
	out, _ := f.Int(nil)
	return out
}

func abs(k int) int {
	if k < 0 {
		return -k
	}
	return k
}
