// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

// Package pricing holds the fixed-point math the engine shares: Q128
// ratios, half-life rates, curve leverage and human price formatting.
package pricing

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	// Q128 is the fixed-point unit: ratios are scaled by 2^128.
	Q128 = new(big.Int).Lsh(big.NewInt(1), 128)
	// M256 is the largest uint256 value.
	M256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// MulX128 returns a*b >> 128, the Q128 product.
func MulX128(a, b *big.Int) *big.Int {
	r := new(big.Int).Mul(a, b)
	return r.Rsh(r, 128)
}

// DivX128 returns (a << 128) / b, the Q128 quotient. Division by zero
// returns zero rather than panicking; callers treat it as "no price".
func DivX128(a, b *big.Int) *big.Int {
	if b.Sign() == 0 {
		return new(big.Int)
	}
	r := new(big.Int).Lsh(a, 128)
	return r.Div(r, b)
}

// PowX128 raises a Q128 value to an integer power by repeated squaring,
// renormalizing after every multiply. Negative exponents invert the
// base first.
func PowX128(x *big.Int, n int) *big.Int {
	base := new(big.Int).Set(x)
	if n < 0 {
		base = DivX128(Q128, base)
		n = -n
	}
	result := new(big.Int).Set(Q128)
	for n > 0 {
		if n&1 == 1 {
			result = MulX128(result, base)
		}
		base = MulX128(base, base)
		n >>= 1
	}
	return result
}

// Float converts a big integer to float64 for rate math where Q128
// precision is not required.
func Float(x *big.Int) float64 {
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}

// FloatX128 converts a Q128 ratio to float64.
func FloatX128(x *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(x), new(big.Float).SetInt(Q128)).Float64()
	return f
}

// FormatQ128 renders a Q128 price as a decimal string, shifting by the
// base/quote decimal difference so the result reads in display units.
func FormatQ128(price *big.Int, baseDecimals, quoteDecimals int32) string {
	d := decimal.NewFromBigInt(price, 0).
		DivRound(decimal.NewFromBigInt(Q128, 0), 36).
		Shift(baseDecimals - quoteDecimals)
	return d.String()
}
