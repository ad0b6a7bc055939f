// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

// Package reconcile replays an account's transfer and approval logs
// into current balances, router allowances, and vesting maturities.
package reconcile

import (
	"log"
	"math/big"
	"strings"

	"github.com/derion-io/engine/events"
	"github.com/derion-io/engine/profile"
	"github.com/derion-io/engine/resource"
)

// MaxAllowance marks the position token's unconditional router
// approval.
var MaxAllowance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Reconciler folds logs into an account's token state. Keys are ERC-20
// addresses, synthetic asset ids, or the native sentinel address.
type Reconciler struct {
	account       string
	positionToken string
	router        string

	Balances   map[string]*big.Int
	Allowances map[string]*big.Int
	Maturities map[string]uint64
}

// New creates an empty reconciler for one account. router is the only
// spender ERC-20 approvals are tracked for.
func New(account, positionToken, router string) *Reconciler {
	return &Reconciler{
		account:       strings.ToLower(account),
		positionToken: strings.ToLower(positionToken),
		router:        strings.ToLower(router),
		Balances:      make(map[string]*big.Int),
		Allowances:    make(map[string]*big.Int),
		Maturities:    make(map[string]uint64),
	}
}

// Apply replays logs in the order given. Logs not touching the account
// and malformed logs are skipped.
func (r *Reconciler) Apply(logs []*events.RawLog) {
	for _, lg := range logs {
		switch events.Classify(lg) {
		case events.KindTransfer:
			if len(lg.Topics) != 3 {
				continue // ERC-721 shape, not a fungible transfer
			}
			tr, err := events.DecodeTransfer(lg)
			if err != nil {
				log.Printf("[reconcile] skip transfer %s/%d: %v", lg.TxHash, lg.LogIndex, err)
				continue
			}
			r.applyTransfer(tr)
		case events.KindApproval:
			ap, err := events.DecodeTransfer(lg)
			if err != nil {
				log.Printf("[reconcile] skip approval %s/%d: %v", lg.TxHash, lg.LogIndex, err)
				continue
			}
			r.applyApproval(ap)
		case events.KindTransferSingle:
			if strings.ToLower(lg.Address) != r.positionToken {
				continue
			}
			ts, err := events.DecodeTransferSingle(lg)
			if err != nil {
				log.Printf("[reconcile] skip transferSingle %s/%d: %v", lg.TxHash, lg.LogIndex, err)
				continue
			}
			r.applyID(ts.From, ts.To, ts.ID, ts.Value, lg.Timestamp)
		case events.KindTransferBatch:
			if strings.ToLower(lg.Address) != r.positionToken {
				continue
			}
			tb, err := events.DecodeTransferBatch(lg)
			if err != nil {
				log.Printf("[reconcile] skip transferBatch %s/%d: %v", lg.TxHash, lg.LogIndex, err)
				continue
			}
			for i, id := range tb.IDs {
				r.applyID(tb.From, tb.To, id, tb.Values[i], lg.Timestamp)
			}
		}
	}
}

func (r *Reconciler) applyTransfer(tr *events.Transfer) {
	if tr.To == r.account {
		r.add(tr.Token, tr.Value)
	}
	if tr.From == r.account {
		r.add(tr.Token, new(big.Int).Neg(tr.Value))
	}
}

// applyApproval tracks only approvals granted to the protocol router.
func (r *Reconciler) applyApproval(ap *events.Transfer) {
	if ap.From != r.account || ap.To != r.router {
		return
	}
	if ap.Value.Sign() == 0 {
		delete(r.Allowances, ap.Token)
		return
	}
	r.Allowances[ap.Token] = ap.Value
}

// applyID folds one 1155 id movement. The position token is always
// router-approved by construction, so any touch pins the allowance.
// Maturity is stamped on receipt only.
func (r *Reconciler) applyID(from, to string, id, value *big.Int, timestamp uint64) {
	key := events.IDHex(id)
	r.Allowances[key] = MaxAllowance
	if to == r.account {
		r.add(key, value)
		r.Maturities[key] = timestamp
	}
	if from == r.account {
		r.add(key, new(big.Int).Neg(value))
	}
}

func (r *Reconciler) add(key string, delta *big.Int) {
	cur, ok := r.Balances[key]
	if !ok {
		cur = new(big.Int)
		r.Balances[key] = cur
	}
	cur.Add(cur, delta)
	if cur.Sign() == 0 {
		delete(r.Balances, key)
	}
}

// StampVesting shifts each stamped maturity by its pool's vesting
// offset. Call once, after the full log set has been applied.
func (r *Reconciler) StampVesting(res *resource.Resource) {
	for key, stamped := range r.Maturities {
		id, err := events.ParseIDHex(key)
		if err != nil {
			continue
		}
		_, poolAddr := events.UnpackID(id)
		pool, ok := res.Pools[poolAddr]
		if !ok || pool.Maturity == 0 {
			continue
		}
		r.Maturities[key] = stamped + pool.Maturity
	}
}

// SetNativeBalance merges an out-of-band native coin balance under the
// sentinel native address.
func (r *Reconciler) SetNativeBalance(balance *big.Int) {
	if balance == nil || balance.Sign() == 0 {
		delete(r.Balances, profile.NativeAddress)
		return
	}
	r.Balances[profile.NativeAddress] = balance
}
