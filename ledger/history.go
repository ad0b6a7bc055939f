// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package ledger

import (
	"log"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/derion-io/engine/events"
	"github.com/derion-io/engine/pricing"
	"github.com/derion-io/engine/profile"
	"github.com/derion-io/engine/resource"
)

// bscPriceRFixBlock: below this block on BSC the helper emitted priceR
// inverted when the reserve token sorted above its quote.
const (
	bscChainID        = 56
	bscPriceRFixBlock = 33077333
)

// SwapEntry is one decoded swap projected into display terms.
type SwapEntry struct {
	TxHash      string
	BlockNumber uint64
	LogIndex    uint64
	Timestamp   uint64

	PoolIn  string
	PoolOut string

	TokenIn  string
	TokenOut string

	SideIn    int
	SideOut   int
	AmountIn  *big.Int
	AmountOut *big.Int

	Price   *big.Int
	PriceR  *big.Int
	AmountR *big.Int

	// EntryValue is the USD value of the reserve leg, when a route to
	// USD exists. EntryPrice is the index price in display units.
	EntryValue string
	EntryPrice string
}

// History projects an account's swap logs against a loaded resource
// universe.
type History struct {
	Account  string
	ChainID  uint64
	Profile  *profile.Profile
	Resource *resource.Resource
}

// FormatSwapHistory decodes swap logs into entries, dropping swaps
// whose pools the resource set does not know. Same-transaction ERC-20
// transfers touching the account override the entry's token legs.
func (h *History) FormatSwapHistory(swapLogs, transferLogs []*events.RawLog) []SwapEntry {
	account := strings.ToLower(h.Account)
	entries := make([]SwapEntry, 0, len(swapLogs))

	for _, lg := range swapLogs {
		kind := events.Classify(lg)
		if !kind.IsSwap() {
			continue
		}
		swap, err := events.DecodeSwap(lg)
		if err != nil {
			log.Printf("[ledger] skip swap %s/%d: %v", lg.TxHash, lg.LogIndex, err)
			continue
		}

		_, knownIn := h.Resource.Pools[swap.PoolIn]
		_, knownOut := h.Resource.Pools[swap.PoolOut]
		if !knownIn && !knownOut {
			continue
		}

		sideIn := int(swap.SideIn.Int64())
		sideOut := int(swap.SideOut.Int64())

		entry := SwapEntry{
			TxHash:      lg.TxHash,
			BlockNumber: lg.BlockNumber,
			LogIndex:    lg.LogIndex,
			Timestamp:   lg.Timestamp,
			PoolIn:      swap.PoolIn,
			PoolOut:     swap.PoolOut,
			TokenIn:     h.tokenBySide(swap.PoolIn, sideIn),
			TokenOut:    h.tokenBySide(swap.PoolOut, sideOut),
			SideIn:      sideIn,
			SideOut:     sideOut,
			AmountIn:    swap.AmountIn,
			AmountOut:   swap.AmountOut,
			Price:       swap.Price,
			PriceR:      swap.PriceR,
			AmountR:     swap.AmountR,
		}

		// The aggregator can enter through a pool it only routes
		// through, so the reserve leg names the pool that is known.
		pool := h.Resource.Pools[swap.PoolOut]
		if isReserveSide(sideIn) {
			if p, ok := h.Resource.Pools[swap.PoolIn]; ok {
				pool = p
			}
		}
		if pool != nil {
			entry.EntryValue = h.entryValue(swap, pool, sideIn, sideOut, entry.TokenIn, lg)
			if swap.Price != nil && swap.Price.Sign() > 0 {
				base := h.Profile.TokenByAddress(pool.BaseToken)
				quote := h.Profile.TokenByAddress(pool.QuoteToken)
				entry.EntryPrice = pricing.FormatQ128(swap.Price, base.Decimals, quote.Decimals)
			}
		}

		// same-transaction token leg override
		for _, tl := range transferLogs {
			if tl.TxHash != lg.TxHash || events.Classify(tl) != events.KindTransfer {
				continue
			}
			transfer, err := events.DecodeTransfer(tl)
			if err != nil {
				continue
			}
			if transfer.From == account {
				entry.TokenIn = transfer.Token
				entry.AmountIn = transfer.Value
			} else if transfer.To == account {
				entry.TokenOut = transfer.Token
				entry.AmountOut = transfer.Value
			}
		}

		entries = append(entries, entry)
	}
	return entries
}

// tokenBySide maps a pool side to its human token address: native and
// reserve sides name real tokens, position sides name synthetic ids.
func (h *History) tokenBySide(poolAddr string, side int) string {
	if side == events.SideNative {
		return profile.NativeAddress
	}
	if side == events.SideR {
		if pool, ok := h.Resource.Pools[poolAddr]; ok {
			return pool.TokenR
		}
		return profile.NativeAddress
	}
	id, err := events.PackID(side, poolAddr)
	if err != nil {
		return ""
	}
	return events.IDHex(id)
}

// entryValue prices the reserve leg of a swap in USD.
func (h *History) entryValue(swap *events.Swap, pool *resource.Pool, sideIn, sideOut int, tokenIn string, lg *events.RawLog) string {
	if !isReserveSide(sideIn) && !isReserveSide(sideOut) {
		return ""
	}
	isPlay := pool.TokenR == h.Profile.Derivable.PlayToken && pool.TokenR != ""
	hasPriceR := swap.PriceR != nil && swap.PriceR.Sign() > 0
	// When the reserve is the base token quoted in a stablecoin, the
	// swap's own index price already prices the reserve in USD.
	stableProxy := !hasPriceR && pool.TokenR == pool.BaseToken &&
		h.Profile.IsStablecoin(pool.QuoteToken) &&
		swap.Price != nil && swap.Price.Sign() > 0
	if !hasPriceR && !isPlay && !stableProxy {
		return ""
	}

	amount := swap.AmountOut
	if isReserveSide(sideIn) {
		amount = swap.AmountIn
	}

	var priceR decimal.Decimal
	switch {
	case isPlay:
		// play reserves price at par
		priceR = decimal.NewFromInt(1)
	case stableProxy:
		base := h.Profile.TokenByAddress(pool.BaseToken)
		quote := h.Profile.TokenByAddress(pool.QuoteToken)
		d, err := decimal.NewFromString(pricing.FormatQ128(swap.Price, base.Decimals, quote.Decimals))
		if err != nil {
			return ""
		}
		priceR = d
	default:
		var ok bool
		priceR, ok = h.priceRToUSD(swap.PriceR, pool.TokenR, lg.BlockNumber)
		if !ok {
			log.Printf("[ledger] unable to extract priceR for %s", pool.TokenR)
			return ""
		}
	}

	decimals := h.Profile.TokenByAddress(tokenIn).Decimals
	value := decimal.NewFromBigInt(amount, -decimals).Mul(priceR)
	return value.String()
}

// priceRToUSD converts the emitted reserve price through the token's
// single-hop USD route.
func (h *History) priceRToUSD(priceR *big.Int, tokenR string, blockNumber uint64) (decimal.Decimal, bool) {
	route, ok := h.Profile.RouteToUSD(tokenR)
	if !ok {
		log.Printf("[ledger] missing route to USD for %s", tokenR)
		return decimal.Zero, false
	}
	quote := h.Profile.TokenByAddress(route.QuoteToken)
	tr := h.Profile.TokenByAddress(tokenR)

	adjusted := priceR
	// fix a historical bug in BSC
	if h.ChainID == bscChainID && blockNumber < bscPriceRFixBlock {
		if strings.Compare(tokenR, route.QuoteToken) > 0 {
			adjusted = new(big.Int).Div(pricing.M256, priceR)
		}
	}
	formatted := pricing.FormatQ128(adjusted, tr.Decimals, quote.Decimals)
	d, err := decimal.NewFromString(formatted)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func isReserveSide(side int) bool {
	return side == events.SideR || side == events.SideNative
}
