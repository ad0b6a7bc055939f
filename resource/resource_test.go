// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package resource

import (
	"errors"
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/derion-io/engine/events"
	"github.com/derion-io/engine/multicall"
	"github.com/derion-io/engine/pricing"
	"github.com/derion-io/engine/profile"
)

const (
	poolAddr = "0x00000000000000000000000000000000000000ab"
	pairAddr = "0x00000000000000000000000000000000000000cd"
	tokenR   = "0x00000000000000000000000000000000000000ef"
	account  = "0x1111111111111111111111111111111111111111"
	posToken = "0x9999999999999999999999999999999999999999"
)

func q(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), pricing.Q128)
}

func testPool(t *testing.T) *Pool {
	t.Helper()
	p := &Pool{
		Address:    poolAddr,
		TokenR:     tokenR,
		K:          4,
		Mark:       pricing.Q128,
		InterestHL: big.NewInt(10 * pricing.SecondsPerDay),
		PremiumHL:  big.NewInt(5 * pricing.SecondsPerDay),
		Exp:        2,
		Pair:       pairAddr,
		State: &State{
			R:    big.NewInt(1000),
			A:    big.NewInt(100),
			B:    big.NewInt(50),
			RA:   big.NewInt(300),
			RB:   big.NewInt(200),
			RC:   big.NewInt(500),
			SA:   big.NewInt(30),
			SB:   big.NewInt(20),
			SC:   big.NewInt(50),
			Spot: pricing.Q128,
		},
	}
	p.Analytics = CalcAnalytics(p)
	return p
}

func TestCalcAnalytics(t *testing.T) {
	p := testPool(t)
	a := p.Analytics

	t.Run("risk factor", func(t *testing.T) {
		// (300-200)/500 = 0.2
		if got := pricing.FloatX128(a.RiskFactor); math.Abs(got-0.2) > 1e-12 {
			t.Fatalf("riskFactor = %v", got)
		}
	})
	t.Run("deleverage risks", func(t *testing.T) {
		if math.Abs(a.DeleverageRiskA-0.6) > 1e-12 {
			t.Fatalf("deleverageRiskA = %v", a.DeleverageRiskA)
		}
		if math.Abs(a.DeleverageRiskB-0.4) > 1e-12 {
			t.Fatalf("deleverageRiskB = %v", a.DeleverageRiskB)
		}
	})
	t.Run("effective leverage clamped at k", func(t *testing.T) {
		for _, side := range []int{events.SideA, events.SideB} {
			if a.Sides[side].K > float64(p.K) {
				t.Fatalf("side %x leverage %v exceeds k", side, a.Sides[side].K)
			}
		}
	})
	t.Run("liquidity leverage is reserve weighted", func(t *testing.T) {
		kA, kB := a.Sides[events.SideA].K, a.Sides[events.SideB].K
		want := (300*kA + 200*kB) / 500
		if math.Abs(a.Sides[events.SideC].K-want) > 1e-9 {
			t.Fatalf("kC = %v, want %v", a.Sides[events.SideC].K, want)
		}
	})
	t.Run("premium flows heavy to light", func(t *testing.T) {
		// rA > rB: long pays, short earns, liquidity neutral
		if a.Sides[events.SideA].Premium <= 0 {
			t.Fatalf("premiumA = %v, want positive", a.Sides[events.SideA].Premium)
		}
		if a.Sides[events.SideB].Premium >= 0 {
			t.Fatalf("premiumB = %v, want negative", a.Sides[events.SideB].Premium)
		}
		if a.Sides[events.SideC].Premium != 0 {
			t.Fatalf("premiumC = %v", a.Sides[events.SideC].Premium)
		}
	})
	t.Run("interest decompounds against reduced leverage", func(t *testing.T) {
		for _, side := range []int{events.SideA, events.SideB} {
			if a.Sides[side].Interest < a.InterestRate {
				t.Fatalf("side %x interest %v below base rate", side, a.Sides[side].Interest)
			}
		}
		wantC := float64(300+200) * a.InterestRate / 500
		if math.Abs(a.Sides[events.SideC].Interest-wantC) > 1e-12 {
			t.Fatalf("interestC = %v, want %v", a.Sides[events.SideC].Interest, wantC)
		}
	})
	t.Run("balanced pool has no premium", func(t *testing.T) {
		bal := testPool(t)
		bal.State.RB = big.NewInt(300)
		an := CalcAnalytics(bal)
		if an.Sides[events.SideA].Premium != 0 || an.Sides[events.SideB].Premium != 0 {
			t.Fatal("balanced sides must not pay premium")
		}
	})
	t.Run("empty pool", func(t *testing.T) {
		empty := &Pool{K: 2, Mark: pricing.Q128, State: &State{
			R: new(big.Int), A: new(big.Int), B: new(big.Int),
			RA: new(big.Int), RB: new(big.Int), RC: new(big.Int),
			SA: new(big.Int), SB: new(big.Int), SC: new(big.Int),
			Spot: new(big.Int),
		}}
		an := CalcAnalytics(empty)
		if an.RiskFactor.Sign() != 0 || an.DeleverageRiskA != 0 {
			t.Fatal("empty pool must produce zero analytics")
		}
	})
}

func TestRdc(t *testing.T) {
	p := testPool(t)
	g := Rdc([]*Pool{p})
	if g.R.Int64() != 1000 {
		t.Fatalf("R = %s", g.R)
	}
	if g.RDcLong.Int64() != 300 || g.RDcShort.Int64() != 200 {
		t.Fatalf("rDc = %s/%s", g.RDcLong, g.RDcShort)
	}
	if g.RDetails[4].Int64() != 300 || g.RDetails[-4].Int64() != 200 {
		t.Fatalf("rDetails = %v", g.RDetails)
	}
	if g.SupplyDetails[4].Int64() != 30 || g.SupplyDetails[-4].Int64() != 20 {
		t.Fatalf("supplyDetails = %v", g.SupplyDetails)
	}
}

func TestRentRates(t *testing.T) {
	g := Rdc([]*Pool{testPool(t)})
	long, short := RentRates(g, big.NewInt(1000))
	// diff=100, rate=100*1000/1000=100; long=100*300/500, short=100*200/500
	if long.Int64() != 60 || short.Int64() != 40 {
		t.Fatalf("rent = %s/%s", long, short)
	}

	t.Run("empty group", func(t *testing.T) {
		long, short := RentRates(GroupStates{R: new(big.Int), RDcLong: new(big.Int), RDcShort: new(big.Int)}, big.NewInt(1000))
		if long.Sign() != 0 || short.Sign() != 0 {
			t.Fatal("empty group must not rent")
		}
	})
}

func TestParseOracle(t *testing.T) {
	var oracle [32]byte
	oracle[0] = 0x10 // quote token index flag
	oracle[6] = 0x01 // window = 256+... bytes 4..8
	oracle[7] = 0x2c
	copy(oracle[12:], mustAddr(pairAddr))

	pair, quoteTokenIndex, window := parseOracle(oracle)
	if pair != pairAddr {
		t.Fatalf("pair = %s", pair)
	}
	if quoteTokenIndex != 1 {
		t.Fatalf("quoteTokenIndex = %d", quoteTokenIndex)
	}
	if window != 300 {
		t.Fatalf("window = %d", window)
	}

	t.Run("quote index zero", func(t *testing.T) {
		var o [32]byte
		copy(o[12:], mustAddr(pairAddr))
		_, idx, _ := parseOracle(o)
		if idx != 0 {
			t.Fatalf("quoteTokenIndex = %d", idx)
		}
	})
}

func TestParsePool(t *testing.T) {
	config := "0x" +
		leftPadAddress("0x0000000000000000000000000000000000000000") + // zero fetcher
		oracleHex(pairAddr, 0) +
		leftPadAddress(tokenR) +
		leftPadUint(4) + // K
		leftPadUint(1) + // MARK (placeholder)
		leftPadUint(864000) +
		leftPadUint(432000) +
		leftPadUint(60) +
		leftPadUint(30) +
		leftPadUint(10) +
		leftPadUint(980000)
	state := "0x" +
		leftPadUint(1000) + leftPadUint(100) + leftPadUint(50) +
		leftPadUint(300) + leftPadUint(200) + leftPadUint(500) +
		leftPadUint(30) + leftPadUint(20) + leftPadUint(50) +
		leftPadUint(1)

	p, err := parsePool(poolAddr, multicall.Result{Success: true, ReturnData: config}, multicall.Result{Success: true, ReturnData: state})
	if err != nil {
		t.Fatal(err)
	}
	if p.K != 4 || p.TokenR != tokenR || p.Pair != pairAddr {
		t.Fatalf("pool = %+v", p)
	}
	if p.Exp != 2 {
		t.Fatalf("exp = %d, want sqrt fetcher", p.Exp)
	}
	if p.Maturity != 60 || p.MaturityVest != 30 {
		t.Fatalf("maturity = %d/%d", p.Maturity, p.MaturityVest)
	}
	if p.State.R.Int64() != 1000 || p.State.SC.Int64() != 50 {
		t.Fatalf("state = %+v", p.State)
	}
	if p.Analytics == nil {
		t.Fatal("analytics not derived")
	}

	t.Run("reverted call", func(t *testing.T) {
		_, err := parsePool(poolAddr, multicall.Result{Success: false}, multicall.Result{Success: true, ReturnData: state})
		if err == nil {
			t.Fatal("want error")
		}
	})

	t.Run("side reserves must sum to R", func(t *testing.T) {
		bad := "0x" +
			leftPadUint(1000) + leftPadUint(100) + leftPadUint(50) +
			leftPadUint(300) + leftPadUint(200) + leftPadUint(400) + // rC short by 100
			leftPadUint(30) + leftPadUint(20) + leftPadUint(50) +
			leftPadUint(1)
		_, err := parsePool(poolAddr, multicall.Result{Success: true, ReturnData: config}, multicall.Result{Success: true, ReturnData: bad})
		if !errors.Is(err, ErrMissingPoolData) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestAssembleGroups(t *testing.T) {
	b := &Builder{Profile: &profile.Profile{
		Tokens: []profile.Token{{Address: tokenR, Symbol: "WETH", Decimals: 18}},
	}}
	p := testPool(t)
	p2 := testPool(t)
	p2.Address = "0x00000000000000000000000000000000000000ac"
	p2.K = 8

	pairs := map[string]*PairInfo{
		pairAddr: {
			Address: pairAddr,
			Token0:  profile.Token{Address: "0x0000000000000000000000000000000000000001", Symbol: "USDC", Decimals: 6},
			Token1:  profile.Token{Address: "0x0000000000000000000000000000000000000002", Symbol: "WETH", Decimals: 18},
		},
	}
	res := b.assemble(map[string]*Pool{p.Address: p, p2.Address: p2}, pairs)

	if len(res.Groups) != 1 {
		t.Fatalf("groups = %d, want both pools in one market", len(res.Groups))
	}
	var g *Group
	for _, gg := range res.Groups {
		g = gg
	}
	if len(g.Pools) != 2 {
		t.Fatalf("group pools = %d", len(g.Pools))
	}
	if g.BaseToken != "0x0000000000000000000000000000000000000002" {
		t.Fatalf("base = %s, want token1 for quote index 0", g.BaseToken)
	}
	if len(g.DTokens) != 4 || len(g.AllTokens) != 6 {
		t.Fatalf("dTokens/allTokens = %d/%d", len(g.DTokens), len(g.AllTokens))
	}
	if g.States.R == nil || g.States.R.Sign() == 0 {
		t.Fatal("group states not aggregated")
	}

	// derived tokens carry leverage symbols
	var longSym string
	for _, tok := range res.Tokens {
		if tok.Address == p.SideID(events.SideA) {
			longSym = tok.Symbol
		}
	}
	if longSym != "WETH^3" {
		t.Fatalf("long symbol = %q", longSym)
	}

	t.Run("base price follows the last member added", func(t *testing.T) {
		fresh := testPool(t)
		moved := testPool(t)
		moved.Address = "0x00000000000000000000000000000000000000ac"
		moved.State.Spot = new(big.Int).Lsh(big.NewInt(9), 128)

		res := b.assemble(map[string]*Pool{fresh.Address: fresh, moved.Address: moved}, pairs)
		for _, gg := range res.Groups {
			// spot 9 over 18/6 decimals
			if gg.BasePrice != "9000000000000" {
				t.Fatalf("basePrice = %q, group must reprice on every add", gg.BasePrice)
			}
		}
	})
}

func TestDiscoverPools(t *testing.T) {
	b := &Builder{Profile: &profile.Profile{
		Derivable: profile.Derivable{Token: posToken},
	}}
	idA, _ := events.PackID(events.SideA, poolAddr)

	mint := transferSingleLog(posToken, zeroAddr, account, idA, 5)
	burnSome := transferSingleLog(posToken, account, zeroAddr, idA, 2)

	pools := b.DiscoverPools([]*events.RawLog{mint, burnSome}, account)
	if len(pools) != 1 || pools[0] != poolAddr {
		t.Fatalf("pools = %v", pools)
	}

	t.Run("zeroed position drops out", func(t *testing.T) {
		burnRest := transferSingleLog(posToken, account, zeroAddr, idA, 3)
		pools := b.DiscoverPools([]*events.RawLog{mint, burnSome, burnRest}, account)
		if len(pools) != 0 {
			t.Fatalf("pools = %v", pools)
		}
	})
	t.Run("foreign token ignored", func(t *testing.T) {
		other := transferSingleLog("0x7777777777777777777777777777777777777777", zeroAddr, account, idA, 5)
		pools := b.DiscoverPools([]*events.RawLog{other}, account)
		if len(pools) != 0 {
			t.Fatalf("pools = %v", pools)
		}
	})
}

func poolCreatedLog(deployed string) *events.RawLog {
	data := "0x" +
		leftPadAddress(zeroAddr) +
		oracleHex(pairAddr, 0) +
		leftPadAddress(tokenR) +
		leftPadUint(4) +
		leftPadUint(1) +
		leftPadUint(864000) +
		leftPadUint(432000) +
		leftPadUint(60) +
		leftPadUint(30) +
		leftPadUint(10) +
		leftPadUint(980000) +
		leftPadAddress(deployed)
	return &events.RawLog{
		Address: "0x6666666666666666666666666666666666666666",
		Topics:  []string{events.PoolCreatedSig},
		Data:    data,
	}
}

func TestCandidatePools(t *testing.T) {
	b := &Builder{Profile: &profile.Profile{
		Derivable: profile.Derivable{Token: posToken},
	}}
	idA, _ := events.PackID(events.SideA, poolAddr)
	deployed := "0x00000000000000000000000000000000000000ac"

	logs := []*events.RawLog{
		poolCreatedLog(deployed),
		transferSingleLog(posToken, zeroAddr, account, idA, 5),
	}
	pools := b.candidatePools(logs, account)
	if len(pools) != 2 {
		t.Fatalf("pools = %v, want deployment and held pool", pools)
	}
	if pools[0] != deployed || pools[1] != poolAddr {
		t.Fatalf("pools = %v", pools)
	}

	t.Run("deployment of a held pool dedupes", func(t *testing.T) {
		logs := []*events.RawLog{
			poolCreatedLog(poolAddr),
			transferSingleLog(posToken, zeroAddr, account, idA, 5),
		}
		pools := b.candidatePools(logs, account)
		if len(pools) != 1 || pools[0] != poolAddr {
			t.Fatalf("pools = %v", pools)
		}
	})
}

const zeroAddr = "0x0000000000000000000000000000000000000000"

func transferSingleLog(token, from, to string, id *big.Int, value int64) *events.RawLog {
	pad := func(addr string) string {
		return "0x" + strings.Repeat("0", 24) + strings.TrimPrefix(addr, "0x")
	}
	return &events.RawLog{
		Address: token,
		Topics:  []string{events.TransferSingleSig, pad(zeroAddr), pad(from), pad(to)},
		Data:    "0x" + leftPadUint64Hex(id) + leftPadUint(uint64(value)),
	}
}

func leftPadUint64Hex(v *big.Int) string {
	h := v.Text(16)
	return strings.Repeat("0", 64-len(h)) + h
}

func oracleHex(pair string, quoteTokenIndex int) string {
	var o [32]byte
	if quoteTokenIndex == 1 {
		o[0] = 0x10
	}
	copy(o[12:], mustAddr(pair))
	h := ""
	for _, b := range o {
		h += hexByte(b)
	}
	return h
}

func hexByte(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0x0f]})
}

func mustAddr(addr string) []byte {
	raw := make([]byte, 20)
	n := new(big.Int)
	n.SetString(strings.TrimPrefix(addr, "0x"), 16)
	n.FillBytes(raw)
	return raw
}
