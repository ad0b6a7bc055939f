// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

// Package events classifies and decodes the raw EVM logs the engine
// reconstructs state from: ERC-20/1155 token movements, Derion pool
// swaps, position mints and pool deployments.
package events

import (
	"math/big"
	"strings"
)

// RawLog is a single EVM log as returned by eth_getLogs.
// Topics and Data are 0x-prefixed hex, Address is lowercased on ingest.
type RawLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber uint64   `json:"blockNumber"`
	LogIndex    uint64   `json:"logIndex"`
	TxHash      string   `json:"transactionHash"`
	Timestamp   uint64   `json:"timeStamp"`
}

// Key identifies a log within a chain: two logs with equal keys are the
// same log regardless of which fetch produced them.
func (l *RawLog) Key() LogKey {
	return LogKey{TxHash: strings.ToLower(l.TxHash), LogIndex: l.LogIndex}
}

// Before reports whether l precedes other in chain order.
func (l *RawLog) Before(other *RawLog) bool {
	if l.BlockNumber != other.BlockNumber {
		return l.BlockNumber < other.BlockNumber
	}
	return l.LogIndex < other.LogIndex
}

// LogKey is the identity of a log: (transaction hash, log index).
type LogKey struct {
	TxHash   string
	LogIndex uint64
}

// Kind is the classified event type of a log.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransfer
	KindApproval
	KindTransferSingle
	KindTransferBatch
	KindApprovalForAll
	KindSwap
	KindSwap1
	KindSwap2
	KindPositionMinted
	KindPoolCreated
)

var kindNames = map[Kind]string{
	KindUnknown:        "Unknown",
	KindTransfer:       "Transfer",
	KindApproval:       "Approval",
	KindTransferSingle: "TransferSingle",
	KindTransferBatch:  "TransferBatch",
	KindApprovalForAll: "ApprovalForAll",
	KindSwap:           "Swap",
	KindSwap1:          "Swap1",
	KindSwap2:          "Swap2",
	KindPositionMinted: "PositionMinted",
	KindPoolCreated:    "PoolCreated",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// IsSwap reports whether k is any of the three pool swap variants.
func (k Kind) IsSwap() bool {
	return k == KindSwap || k == KindSwap1 || k == KindSwap2
}

// Pool sides. A synthetic asset id packs one of these above a pool address.
const (
	SideR      = 0x00
	SideNative = 0x01
	SideA      = 0x10
	SideB      = 0x20
	SideC      = 0x30
)

// PositionSides lists the sides that represent holdable positions.
var PositionSides = []int{SideA, SideB, SideC}

// Transfer is a decoded ERC-20 Transfer or Approval log.
type Transfer struct {
	Token string
	From  string // owner for Approval
	To    string // spender for Approval
	Value *big.Int
}

// TransferSingle is a decoded ERC-1155 TransferSingle log.
type TransferSingle struct {
	Token    string
	Operator string
	From     string
	To       string
	ID       *big.Int
	Value    *big.Int
}

// TransferBatch is a decoded ERC-1155 TransferBatch log.
type TransferBatch struct {
	Token    string
	Operator string
	From     string
	To       string
	IDs      []*big.Int
	Values   []*big.Int
}

// ApprovalForAll is a decoded ERC-1155/721 ApprovalForAll log.
type ApprovalForAll struct {
	Token    string
	Owner    string
	Operator string
	Approved bool
}

// Swap is a decoded Derion pool swap. Price, PriceR and AmountR are nil
// for the variants that do not carry them.
type Swap struct {
	Payer     string
	PoolIn    string
	PoolOut   string
	Recipient string
	SideIn    *big.Int
	SideOut   *big.Int
	AmountIn  *big.Int
	AmountOut *big.Int
	Price     *big.Int
	PriceR    *big.Int
	AmountR   *big.Int
}

// PositionMinted is a decoded position mint from the Derion position token.
type PositionMinted struct {
	PosID    *big.Int
	Amount   *big.Int
	Maturity *big.Int
	Price    *big.Int
	ValueR   *big.Int
}

// PoolCreated is a decoded pool deployment log carrying the full
// immutable pool configuration.
type PoolCreated struct {
	Fetcher      string
	Oracle       [32]byte
	TokenR       string
	K            *big.Int
	Mark         *big.Int
	InterestHL   *big.Int
	PremiumHL    *big.Int
	Maturity     *big.Int
	MaturityVest *big.Int
	MaturityRate *big.Int
	OpenRate     *big.Int
	PoolAddress  string
}
