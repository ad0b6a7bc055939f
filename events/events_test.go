// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package events

import (
	"math/big"
	"strings"
	"testing"
)

func word(hexDigits string) string {
	return strings.Repeat("0", 64-len(hexDigits)) + hexDigits
}

func addrTopic(addr string) string {
	return "0x" + word(strings.TrimPrefix(addr, "0x"))
}

const (
	pool   = "0x00000000000000000000000000000000000000ab"
	alice  = "0x1111111111111111111111111111111111111111"
	bob    = "0x2222222222222222222222222222222222222222"
	someTx = "0xdead"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		topics []string
		want   Kind
	}{
		{"transfer", []string{TransferSig}, KindTransfer},
		{"approval", []string{ApprovalSig}, KindApproval},
		{"transferSingle", []string{TransferSingleSig}, KindTransferSingle},
		{"transferBatch", []string{TransferBatchSig}, KindTransferBatch},
		{"approvalForAll", []string{ApprovalForAllSig}, KindApprovalForAll},
		{"swap", []string{SwapSig}, KindSwap},
		{"swap1", []string{Swap1Sig}, KindSwap1},
		{"swap2", []string{Swap2Sig}, KindSwap2},
		{"positionMinted", []string{PositionMintedSig}, KindPositionMinted},
		{"poolCreated", []string{PoolCreatedSig}, KindPoolCreated},
		{"no topics", nil, KindUnknown},
		{"unknown topic", []string{"0x" + word("1234")}, KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(&RawLog{Topics: tc.topics})
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSwapTopicsDistinct(t *testing.T) {
	if SwapSig == Swap1Sig || Swap1Sig == Swap2Sig || SwapSig == Swap2Sig {
		t.Fatal("swap variant topics must be distinct")
	}
	for _, sig := range []string{SwapSig, Swap1Sig, Swap2Sig, PoolCreatedSig} {
		if len(sig) != 66 || !strings.HasPrefix(sig, "0x") {
			t.Fatalf("bad topic hash %q", sig)
		}
	}
}

func TestEventTopicKnownHash(t *testing.T) {
	// keccak256("Transfer(address,address,uint256)") is the canonical
	// ERC-20 transfer topic.
	if got := EventTopic("Transfer(address,address,uint256)"); got != TransferSig {
		t.Fatalf("got %s, want %s", got, TransferSig)
	}
}

func TestDecodeTransfer(t *testing.T) {
	l := &RawLog{
		Address: "0xToken",
		Topics:  []string{TransferSig, addrTopic(alice), addrTopic(bob)},
		Data:    "0x" + word("64"),
	}
	tr, err := DecodeTransfer(l)
	if err != nil {
		t.Fatal(err)
	}
	if tr.From != alice || tr.To != bob {
		t.Fatalf("from/to = %s/%s", tr.From, tr.To)
	}
	if tr.Value.Cmp(big.NewInt(0x64)) != 0 {
		t.Fatalf("value = %s", tr.Value)
	}

	t.Run("missing topics", func(t *testing.T) {
		bad := &RawLog{Topics: []string{TransferSig}, Data: "0x" + word("64")}
		if _, err := DecodeTransfer(bad); err == nil {
			t.Fatal("want decode error")
		}
	})
	t.Run("ragged data", func(t *testing.T) {
		bad := &RawLog{Topics: l.Topics, Data: "0x1234"}
		if _, err := DecodeTransfer(bad); err == nil {
			t.Fatal("want decode error")
		}
	})
}

func TestDecodeTransferSingle(t *testing.T) {
	id, err := PackID(SideA, pool)
	if err != nil {
		t.Fatal(err)
	}
	l := &RawLog{
		Address: pool,
		Topics:  []string{TransferSingleSig, addrTopic(alice), addrTopic(alice), addrTopic(bob)},
		Data:    "0x" + word(id.Text(16)) + word("2a"),
	}
	ts, err := DecodeTransferSingle(l)
	if err != nil {
		t.Fatal(err)
	}
	if ts.From != alice || ts.To != bob {
		t.Fatalf("from/to = %s/%s", ts.From, ts.To)
	}
	if ts.ID.Cmp(id) != 0 {
		t.Fatalf("id = %s", ts.ID.Text(16))
	}
	if ts.Value.Int64() != 42 {
		t.Fatalf("value = %s", ts.Value)
	}
}

func TestDecodeTransferBatch(t *testing.T) {
	idA, _ := PackID(SideA, pool)
	idB, _ := PackID(SideB, pool)
	data := "0x" +
		word("40") + // ids offset
		word("a0") + // values offset
		word("2") + word(idA.Text(16)) + word(idB.Text(16)) +
		word("2") + word("5") + word("7")
	l := &RawLog{
		Address: pool,
		Topics:  []string{TransferBatchSig, addrTopic(alice), addrTopic(alice), addrTopic(bob)},
		Data:    data,
	}
	tb, err := DecodeTransferBatch(l)
	if err != nil {
		t.Fatal(err)
	}
	if len(tb.IDs) != 2 || len(tb.Values) != 2 {
		t.Fatalf("lengths = %d/%d", len(tb.IDs), len(tb.Values))
	}
	if tb.IDs[1].Cmp(idB) != 0 || tb.Values[1].Int64() != 7 {
		t.Fatalf("second entry = %s/%s", tb.IDs[1].Text(16), tb.Values[1])
	}

	t.Run("length mismatch", func(t *testing.T) {
		bad := "0x" + word("40") + word("80") +
			word("1") + word(idA.Text(16)) +
			word("2") + word("5") + word("7")
		l := &RawLog{Topics: l.Topics, Data: bad}
		if _, err := DecodeTransferBatch(l); err == nil {
			t.Fatal("want decode error")
		}
	})
}

func TestDecodeSwapVariants(t *testing.T) {
	base := word(strings.TrimPrefix(alice, "0x")) +
		word(strings.TrimPrefix(pool, "0x")) +
		word(strings.TrimPrefix(pool, "0x")) +
		word(strings.TrimPrefix(bob, "0x")) +
		word("0") + // sideIn = R
		word("10") + // sideOut = A
		word("64") +
		word("c8")

	t.Run("swap", func(t *testing.T) {
		s, err := DecodeSwap(&RawLog{Topics: []string{SwapSig}, Data: "0x" + base})
		if err != nil {
			t.Fatal(err)
		}
		if s.Price != nil || s.PriceR != nil {
			t.Fatal("plain swap must not carry prices")
		}
		if s.SideOut.Int64() != SideA || s.AmountOut.Int64() != 0xc8 {
			t.Fatalf("sideOut/amountOut = %s/%s", s.SideOut, s.AmountOut)
		}
	})
	t.Run("swap1", func(t *testing.T) {
		s, err := DecodeSwap(&RawLog{Topics: []string{Swap1Sig}, Data: "0x" + base + word("ff")})
		if err != nil {
			t.Fatal(err)
		}
		if s.Price == nil || s.Price.Int64() != 0xff {
			t.Fatalf("price = %v", s.Price)
		}
		if s.PriceR != nil {
			t.Fatal("swap1 must not carry priceR")
		}
	})
	t.Run("swap2", func(t *testing.T) {
		s, err := DecodeSwap(&RawLog{Topics: []string{Swap2Sig}, Data: "0x" + base + word("ff") + word("aa") + word("bb")})
		if err != nil {
			t.Fatal(err)
		}
		if s.PriceR.Int64() != 0xaa || s.AmountR.Int64() != 0xbb {
			t.Fatalf("priceR/amountR = %s/%s", s.PriceR, s.AmountR)
		}
	})
	t.Run("word count checked per variant", func(t *testing.T) {
		// swap1 payload under a swap2 topic must fail, not truncate
		if _, err := DecodeSwap(&RawLog{Topics: []string{Swap2Sig}, Data: "0x" + base + word("ff")}); err == nil {
			t.Fatal("want decode error")
		}
	})
}

func TestDecodeHelperSwapPriceR(t *testing.T) {
	sqrt := new(big.Int).Lsh(big.NewInt(3), 64) // sqrt price 3 in Q64.64
	data := "0x"
	for i := 0; i < 6; i++ {
		data += word("0")
	}
	data += word(sqrt.Text(16))
	priceR, err := DecodeHelperSwapPriceR(&RawLog{Topics: []string{HelperSwapSig}, Data: data, TxHash: someTx})
	if err != nil {
		t.Fatal(err)
	}
	if priceR.Int64() != 9 {
		t.Fatalf("priceR = %s, want 9", priceR)
	}
}

func TestPackUnpackID(t *testing.T) {
	for _, side := range []int{SideR, SideNative, SideA, SideB, SideC} {
		id, err := PackID(side, pool)
		if err != nil {
			t.Fatal(err)
		}
		gotSide, gotPool := UnpackID(id)
		if gotSide != side || gotPool != pool {
			t.Fatalf("round trip %x: got %x/%s", side, gotSide, gotPool)
		}
	}
	if _, err := PackID(SideA, "0x1234"); err == nil {
		t.Fatal("short address must fail")
	}
}

func TestIDHex(t *testing.T) {
	id, _ := PackID(SideC, pool)
	h := IDHex(id)
	if len(h) != 66 {
		t.Fatalf("len = %d", len(h))
	}
	if !strings.HasSuffix(h, strings.TrimPrefix(pool, "0x")) {
		t.Fatalf("id hex %s does not embed pool", h)
	}
}
