// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

// Package ledger replays an account's position token logs into live
// positions with volume-weighted cost bases, and projects swap logs
// into a readable trade history.
package ledger

import (
	"log"
	"math/big"
	"strings"

	"github.com/derion-io/engine/events"
	"github.com/derion-io/engine/pricing"
)

// Position is one synthetic asset holding with its cost bases. The
// price fields are Q128 volume-weighted averages over the position's
// entries.
type Position struct {
	ID      string
	Balance *big.Int

	// Price is the average entry index price.
	Price *big.Int
	// PriceR is the average reserve token price at entry, in the
	// reserve's USD route.
	PriceR *big.Int
	// RPerBalance is the reserve value backing one balance unit.
	RPerBalance *big.Int

	// Maturity is the vesting deadline of the latest entry.
	Maturity uint64
}

// EntryValueR is the reserve value of the position at its entries.
func (p *Position) EntryValueR() *big.Int {
	return pricing.MulX128(p.Balance, p.RPerBalance)
}

// Transition is the net effect of one transaction on the account's
// positions. Transactions whose transfers cancel out produce none.
type Transition struct {
	TxHash      string
	BlockNumber uint64
	Timestamp   uint64

	// NetTransfers is the signed per-asset balance change: positive
	// into the account, negative out.
	NetTransfers map[string]*big.Int

	// Entry terms, present when the transaction minted a position.
	Price    *big.Int
	PriceR   *big.Int
	ValueR   *big.Int
	Maturity uint64
}

// Ledger folds an account's transaction log groups into positions.
// Groups replay in chain order exactly once: a watermark drops groups
// already applied, so overlapping fetches are harmless.
type Ledger struct {
	account       string
	positionToken string

	positions   map[string]*Position
	transitions []Transition

	lastBlock    uint64
	lastLogIndex uint64
}

// New creates an empty ledger for one account.
func New(account, positionToken string) *Ledger {
	return &Ledger{
		account:       strings.ToLower(account),
		positionToken: strings.ToLower(positionToken),
		positions:     make(map[string]*Position),
	}
}

// Positions returns the live positions, keyed by synthetic asset id.
// Zero-balance positions are already removed.
func (l *Ledger) Positions() map[string]*Position {
	return l.positions
}

// Transitions returns every applied position change in replay order.
func (l *Ledger) Transitions() []Transition {
	return l.transitions
}

// Replay applies per-transaction log groups in order. Malformed logs
// are skipped with a warning; the group's remaining logs still apply.
func (l *Ledger) Replay(txGroups [][]*events.RawLog) {
	for _, txLogs := range txGroups {
		if len(txLogs) == 0 {
			continue
		}
		first := txLogs[0]
		if first.BlockNumber < l.lastBlock ||
			(first.BlockNumber == l.lastBlock && first.LogIndex <= l.lastLogIndex) {
			continue
		}
		l.applyTx(txLogs)
		last := txLogs[len(txLogs)-1]
		l.lastBlock = last.BlockNumber
		l.lastLogIndex = last.LogIndex
	}
}

func (l *Ledger) applyTx(txLogs []*events.RawLog) {
	first := txLogs[0]
	tr := Transition{
		TxHash:       first.TxHash,
		BlockNumber:  first.BlockNumber,
		Timestamp:    first.Timestamp,
		NetTransfers: make(map[string]*big.Int),
	}

	for _, lg := range txLogs {
		switch events.Classify(lg) {
		case events.KindTransfer:
			if len(lg.Topics) != 3 {
				continue
			}
			t, err := events.DecodeTransfer(lg)
			if err != nil {
				log.Printf("[ledger] skip transfer %s/%d: %v", lg.TxHash, lg.LogIndex, err)
				continue
			}
			l.net(&tr, t.Token, t.From, t.To, t.Value)
		case events.KindTransferSingle:
			if len(lg.Topics) != 4 {
				continue
			}
			ts, err := events.DecodeTransferSingle(lg)
			if err != nil {
				log.Printf("[ledger] skip transfer %s/%d: %v", lg.TxHash, lg.LogIndex, err)
				continue
			}
			l.net(&tr, events.IDHex(ts.ID), ts.From, ts.To, ts.Value)
			if strings.ToLower(lg.Address) == l.positionToken {
				l.applyTransferSingle(txLogs, ts, &tr)
			}
		case events.KindTransferBatch:
			tb, err := events.DecodeTransferBatch(lg)
			if err != nil {
				log.Printf("[ledger] skip transfer %s/%d: %v", lg.TxHash, lg.LogIndex, err)
				continue
			}
			for i, id := range tb.IDs {
				l.net(&tr, events.IDHex(id), tb.From, tb.To, tb.Values[i])
			}
		}
	}

	for id, amount := range tr.NetTransfers {
		if amount.Sign() == 0 {
			delete(tr.NetTransfers, id)
		}
	}
	if len(tr.NetTransfers) > 0 {
		l.transitions = append(l.transitions, tr)
	}
}

// net folds one transfer leg into the transition's signed per-asset
// totals. Legs not touching the account leave the map alone.
func (l *Ledger) net(tr *Transition, key, from, to string, value *big.Int) {
	if to != l.account && from != l.account {
		return
	}
	amount, ok := tr.NetTransfers[key]
	if !ok {
		amount = new(big.Int)
		tr.NetTransfers[key] = amount
	}
	if to == l.account {
		amount.Add(amount, value)
	}
	if from == l.account {
		amount.Sub(amount, value)
	}
}

func (l *Ledger) applyTransferSingle(txLogs []*events.RawLog, ts *events.TransferSingle, tr *Transition) {
	id := events.IDHex(ts.ID)
	pos, ok := l.positions[id]
	if !ok {
		pos = &Position{
			ID:          id,
			Balance:     new(big.Int),
			Price:       new(big.Int),
			PriceR:      new(big.Int),
			RPerBalance: new(big.Int),
		}
		l.positions[id] = pos
	}

	if ts.To == l.account {
		priceR := l.findTxPriceR(txLogs)
		if mint := l.findTxMint(txLogs, ts.ID); mint != nil {
			l.applyMint(pos, mint, priceR)
			tr.Price = pos.Price
			tr.PriceR = priceR
			tr.ValueR = mint.ValueR
			tr.Maturity = pos.Maturity
		}
		pos.Balance.Add(pos.Balance, ts.Value)
	}
	if ts.From == l.account {
		pos.Balance.Sub(pos.Balance, ts.Value)
	}
	if pos.Balance.Sign() == 0 {
		delete(l.positions, id)
	}
}

// applyMint folds a mint into the position's volume-weighted cost
// bases.
func (l *Ledger) applyMint(pos *Position, mint *events.PositionMinted, priceR *big.Int) {
	newBalance := new(big.Int).Add(pos.Balance, mint.Amount)
	if newBalance.Sign() == 0 {
		return
	}

	if mint.Price.Sign() > 0 {
		// the mint reports sqrt price; square back to the index
		priceIdx := new(big.Int).Mul(mint.Price, mint.Price)
		priceIdx.Rsh(priceIdx, 128)
		weighted := new(big.Int).Mul(pos.Price, pos.Balance)
		weighted.Add(weighted, new(big.Int).Mul(mint.Amount, priceIdx))
		pos.Price = weighted.Div(weighted, newBalance)
	}

	posValueR := pos.EntryValueR()
	if mint.ValueR.Sign() > 0 {
		total := new(big.Int).Add(posValueR, mint.ValueR)
		pos.RPerBalance = pricing.DivX128(total, newBalance)
	}
	if priceR.Sign() > 0 {
		// value-weighted: the reserve price averages over the value
		// already held and the value entering
		total := new(big.Int).Add(posValueR, mint.ValueR)
		if total.Sign() > 0 {
			weighted := new(big.Int).Mul(posValueR, pos.PriceR)
			weighted.Add(weighted, new(big.Int).Mul(mint.ValueR, priceR))
			pos.PriceR = weighted.Div(weighted, total)
		}
	}
	if mint.Maturity.IsUint64() {
		pos.Maturity = mint.Maturity.Uint64()
	}
}

// findTxPriceR scans a transaction's logs for the helper swap carrying
// the reserve price.
func (l *Ledger) findTxPriceR(txLogs []*events.RawLog) *big.Int {
	for _, lg := range txLogs {
		if len(lg.Topics) == 0 || lg.Topics[0] != events.HelperSwapSig {
			continue
		}
		priceR, err := events.DecodeHelperSwapPriceR(lg)
		if err != nil {
			log.Printf("[ledger] skip helper swap %s/%d: %v", lg.TxHash, lg.LogIndex, err)
			continue
		}
		return priceR
	}
	return new(big.Int)
}

// findTxMint scans a transaction's logs for the position mint matching
// the transferred id.
func (l *Ledger) findTxMint(txLogs []*events.RawLog, id *big.Int) *events.PositionMinted {
	for _, lg := range txLogs {
		if len(lg.Topics) == 0 || lg.Topics[0] != events.PositionMintedSig {
			continue
		}
		mint, err := events.DecodePositionMinted(lg)
		if err != nil {
			log.Printf("[ledger] skip mint %s/%d: %v", lg.TxHash, lg.LogIndex, err)
			continue
		}
		if mint.PosID.Cmp(id) != 0 {
			continue
		}
		return mint
	}
	return nil
}
