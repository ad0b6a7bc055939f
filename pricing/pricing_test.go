// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package pricing

import (
	"math"
	"math/big"
	"testing"
)

func q(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Q128)
}

func TestMulDivX128(t *testing.T) {
	if got := MulX128(q(6), q(7)); got.Cmp(q(42)) != 0 {
		t.Fatalf("6*7 = %s", got)
	}
	if got := DivX128(q(42), q(6)); got.Cmp(q(7)) != 0 {
		t.Fatalf("42/6 = %s", got)
	}
	if got := DivX128(q(1), new(big.Int)); got.Sign() != 0 {
		t.Fatalf("div by zero = %s", got)
	}
}

func TestPowX128(t *testing.T) {
	cases := []struct {
		name string
		base *big.Int
		n    int
		want *big.Int
	}{
		{"identity", q(5), 1, q(5)},
		{"zeroth power", q(5), 0, q(1)},
		{"square", q(3), 2, q(9)},
		{"cube", q(2), 3, q(8)},
		{"negative power", q(2), -1, new(big.Int).Rsh(Q128, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PowX128(tc.base, tc.n); got.Cmp(tc.want) != 0 {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRateFromHalfLife(t *testing.T) {
	if got := RateFromHalfLife(new(big.Int), 2); got != 0 {
		t.Fatalf("zero half-life rate = %v", got)
	}
	if got := RateFromHalfLife(nil, 2); got != 0 {
		t.Fatalf("nil half-life rate = %v", got)
	}
	// A half-life of exactly one day at power 1 decays half per day.
	got := RateFromHalfLife(big.NewInt(SecondsPerDay), 1)
	if math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("one day half-life rate = %v", got)
	}
	// Longer half-life, slower decay.
	slower := RateFromHalfLife(big.NewInt(10*SecondsPerDay), 1)
	if slower >= got {
		t.Fatalf("decay did not slow: %v >= %v", slower, got)
	}
}

func TestKx(t *testing.T) {
	R := q(100)

	t.Run("deleveraged side has reduced leverage", func(t *testing.T) {
		// v*x^k = 100 > R/2: leverage = k*R/(4*100-R) = 5*100/300.
		got := Kx(5, R, q(100), Q128, Q128)
		want := 5.0 * 100 / 300
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("got %v, want %v", got, want)
		}
	})
	t.Run("at the deleverage boundary leverage equals k", func(t *testing.T) {
		// v*x^k = R/2 exactly.
		got := Kx(5, R, q(50), Q128, Q128)
		if math.Abs(got-5) > 1e-9 {
			t.Fatalf("got %v, want 5", got)
		}
	})
	t.Run("healthy side exceeds k", func(t *testing.T) {
		// v*x^k = 40 > R/4 but below R/2: still finite, above k.
		got := Kx(5, R, q(40), Q128, Q128)
		if got <= 5 {
			t.Fatalf("got %v, want > 5", got)
		}
	})
	t.Run("far from deleverage is unbounded", func(t *testing.T) {
		if got := Kx(5, R, q(1), Q128, Q128); !math.IsInf(got, 1) {
			t.Fatalf("got %v, want +Inf", got)
		}
	})
	t.Run("zero inputs", func(t *testing.T) {
		if got := Kx(5, R, new(big.Int), Q128, Q128); got != 0 {
			t.Fatalf("got %v", got)
		}
	})
	t.Run("short side mirrors long", func(t *testing.T) {
		// With spot == mark, the sign of k only flips the exponent of 1.
		long := Kx(5, R, q(40), Q128, Q128)
		short := Kx(-5, R, q(40), Q128, Q128)
		if math.Abs(long-short) > 1e-9 {
			t.Fatalf("long %v != short %v", long, short)
		}
	})
}

func TestDeleverageX(t *testing.T) {
	R := q(100)
	// 2*v*x^k = R with v = 25, k = 2: x = sqrt(2) .
	x := DeleverageX(2, R, q(25))
	if x == nil {
		t.Fatal("nil deleverage point")
	}
	got := FloatX128(x)
	if math.Abs(got-math.Sqrt2) > 1e-9 {
		t.Fatalf("got %v, want sqrt(2)", got)
	}
	if DeleverageX(2, R, new(big.Int)) != nil {
		t.Fatal("empty side must have no deleverage point")
	}
}

func TestFormatQ128(t *testing.T) {
	cases := []struct {
		name        string
		price       *big.Int
		base, quote int32
		want        string
	}{
		{"unit price equal decimals", q(1), 18, 18, "1"},
		{"shifted by decimals", q(1), 18, 6, "1000000000000"},
		{"fractional", new(big.Int).Rsh(Q128, 2), 18, 18, "0.25"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatQ128(tc.price, tc.base, tc.quote); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}
