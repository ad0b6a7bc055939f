// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package reconcile

import (
	"log"
	"math/big"
	"strings"

	"github.com/derion-io/engine/events"
)

// Assets tracks every token contract an account's logs touch, across
// the three transfer standards. The ERC-20/721 split rides on the
// shared Transfer topic: 721 indexes the token id as a fourth topic.
type Assets struct {
	account string

	// ERC20 is balance by token address.
	ERC20 map[string]*big.Int
	// ERC721 is the owned id set by token address.
	ERC721 map[string]map[string]bool
	// ERC1155 is balance by token address then id.
	ERC1155 map[string]map[string]*big.Int
	// Operators is ApprovalForAll state by token address then operator.
	Operators map[string]map[string]bool
}

// NewAssets creates an empty tracker for one account.
func NewAssets(account string) *Assets {
	return &Assets{
		account:   strings.ToLower(account),
		ERC20:     make(map[string]*big.Int),
		ERC721:    make(map[string]map[string]bool),
		ERC1155:   make(map[string]map[string]*big.Int),
		Operators: make(map[string]map[string]bool),
	}
}

// Update folds logs into the tracked asset maps.
func (a *Assets) Update(logs []*events.RawLog) {
	for _, lg := range logs {
		switch events.Classify(lg) {
		case events.KindTransfer:
			if len(lg.Topics) == 4 {
				a.apply721(lg)
				continue
			}
			tr, err := events.DecodeTransfer(lg)
			if err != nil {
				log.Printf("[reconcile] skip asset transfer %s/%d: %v", lg.TxHash, lg.LogIndex, err)
				continue
			}
			a.apply20(tr)
		case events.KindTransferSingle:
			ts, err := events.DecodeTransferSingle(lg)
			if err != nil {
				continue
			}
			a.apply1155(ts.Token, ts.From, ts.To, ts.ID, ts.Value)
		case events.KindTransferBatch:
			tb, err := events.DecodeTransferBatch(lg)
			if err != nil {
				continue
			}
			for i, id := range tb.IDs {
				a.apply1155(tb.Token, tb.From, tb.To, id, tb.Values[i])
			}
		case events.KindApprovalForAll:
			af, err := events.DecodeApprovalForAll(lg)
			if err != nil {
				continue
			}
			if af.Owner != a.account {
				continue
			}
			ops, ok := a.Operators[af.Token]
			if !ok {
				ops = make(map[string]bool)
				a.Operators[af.Token] = ops
			}
			if af.Approved {
				ops[af.Operator] = true
			} else {
				delete(ops, af.Operator)
			}
			if len(ops) == 0 {
				delete(a.Operators, af.Token)
			}
		}
	}
}

func (a *Assets) apply20(tr *events.Transfer) {
	if tr.To != a.account && tr.From != a.account {
		return
	}
	cur, ok := a.ERC20[tr.Token]
	if !ok {
		cur = new(big.Int)
		a.ERC20[tr.Token] = cur
	}
	if tr.To == a.account {
		cur.Add(cur, tr.Value)
	}
	if tr.From == a.account {
		cur.Sub(cur, tr.Value)
	}
	if cur.Sign() == 0 {
		delete(a.ERC20, tr.Token)
	}
}

// apply721 toggles ownership of one token id.
func (a *Assets) apply721(lg *events.RawLog) {
	token := strings.ToLower(lg.Address)
	from := topicAddr(lg.Topics[1])
	to := topicAddr(lg.Topics[2])
	id := strings.ToLower(lg.Topics[3])

	if to == a.account {
		ids, ok := a.ERC721[token]
		if !ok {
			ids = make(map[string]bool)
			a.ERC721[token] = ids
		}
		ids[id] = true
	}
	if from == a.account {
		if ids, ok := a.ERC721[token]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(a.ERC721, token)
			}
		}
	}
}

func (a *Assets) apply1155(token, from, to string, id, value *big.Int) {
	if to != a.account && from != a.account {
		return
	}
	ids, ok := a.ERC1155[token]
	if !ok {
		ids = make(map[string]*big.Int)
		a.ERC1155[token] = ids
	}
	key := events.IDHex(id)
	cur, ok := ids[key]
	if !ok {
		cur = new(big.Int)
		ids[key] = cur
	}
	if to == a.account {
		cur.Add(cur, value)
	}
	if from == a.account {
		cur.Sub(cur, value)
	}
	if cur.Sign() == 0 {
		delete(ids, key)
		if len(ids) == 0 {
			delete(a.ERC1155, token)
		}
	}
}

// topicAddr extracts the low 20 bytes of a 32-byte topic as an address.
func topicAddr(topic string) string {
	t := strings.ToLower(strings.TrimPrefix(topic, "0x"))
	if len(t) < 40 {
		return ""
	}
	return "0x" + t[len(t)-40:]
}
