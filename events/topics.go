// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package events

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Standard token event signatures (keccak256 hashes)
const (
	TransferSig       = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	ApprovalSig       = "0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925"
	TransferSingleSig = "0xc3d58168c5ae7397731d063d5bbf3d657854427343f4c083240f7aacaa2d0f62"
	TransferBatchSig  = "0x4a39dc06d4c0dbc64b70af90fd698a233a518aa5d07e595d983b8c0526c8f7fb"
	ApprovalForAllSig = "0x17307eab39ab6107e8899845ad3d59bd9653f200f220920489ca2b5937696c31"
)

// Derion protocol event signatures
const (
	PositionMintedSig = "0xba5c330f8eb505cee9b4eb08fecf34234a327cfb6f9e480f9d3b4dfae5b23e4d"
	HelperSwapSig     = "0xf7462f2a86b97b14a4669ae97bf107eb47f1574e511038ba3bb2c0cace5bb227"
)

// Pool swap and deployment topics are derived from their signatures at
// startup. The three swap variants share a name and differ in arity, so
// each hashes to a distinct topic0.
var (
	SwapSig        string
	Swap1Sig       string
	Swap2Sig       string
	PoolCreatedSig string
)

var topicKinds map[string]Kind

func init() {
	SwapSig = EventTopic("Swap(address,address,address,address,uint256,uint256,uint256,uint256)")
	Swap1Sig = EventTopic("Swap(address,address,address,address,uint256,uint256,uint256,uint256,uint256)")
	Swap2Sig = EventTopic("Swap(address,address,address,address,uint256,uint256,uint256,uint256,uint256,uint256,uint256)")
	PoolCreatedSig = EventTopic("PoolCreated(address,bytes32,address,uint256,uint256,uint256,uint256,uint256,uint256,uint256,uint256,address)")

	topicKinds = map[string]Kind{
		TransferSig:       KindTransfer,
		ApprovalSig:       KindApproval,
		TransferSingleSig: KindTransferSingle,
		TransferBatchSig:  KindTransferBatch,
		ApprovalForAllSig: KindApprovalForAll,
		SwapSig:           KindSwap,
		Swap1Sig:          KindSwap1,
		Swap2Sig:          KindSwap2,
		PositionMintedSig: KindPositionMinted,
		PoolCreatedSig:    KindPoolCreated,
	}
}

// EventTopic returns the topic0 hash of a canonical event signature.
func EventTopic(signature string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// Classify maps a log to its event kind by exact topic0 lookup. Logs
// with no topics or an unrecognized topic0 classify as KindUnknown.
func Classify(l *RawLog) Kind {
	if len(l.Topics) == 0 {
		return KindUnknown
	}
	return topicKinds[l.Topics[0]]
}
