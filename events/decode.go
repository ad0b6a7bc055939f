// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package events

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// ErrDecode marks a log whose payload does not match its classified
// shape. Callers skip the log and keep going.
var ErrDecode = fmt.Errorf("malformed event payload")

// dataWords decodes 0x-prefixed hex into 32-byte words.
func dataWords(data string) ([][]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(raw)%32 != 0 {
		return nil, fmt.Errorf("%w: data length %d not word aligned", ErrDecode, len(raw))
	}
	words := make([][]byte, 0, len(raw)/32)
	for i := 0; i+32 <= len(raw); i += 32 {
		words = append(words, raw[i:i+32])
	}
	return words, nil
}

func wordBig(w []byte) *big.Int { return new(big.Int).SetBytes(w) }

func wordAddress(w []byte) string { return "0x" + hex.EncodeToString(w[12:32]) }

func topicAddress(topic string) string {
	t := strings.TrimPrefix(strings.ToLower(topic), "0x")
	if len(t) != 64 {
		return ""
	}
	return "0x" + t[24:]
}

// DecodeTransfer decodes an ERC-20 Transfer or Approval log.
func DecodeTransfer(l *RawLog) (*Transfer, error) {
	if len(l.Topics) != 3 {
		return nil, fmt.Errorf("%w: transfer wants 3 topics, got %d", ErrDecode, len(l.Topics))
	}
	words, err := dataWords(l.Data)
	if err != nil {
		return nil, err
	}
	if len(words) != 1 {
		return nil, fmt.Errorf("%w: transfer wants 1 data word, got %d", ErrDecode, len(words))
	}
	return &Transfer{
		Token: strings.ToLower(l.Address),
		From:  topicAddress(l.Topics[1]),
		To:    topicAddress(l.Topics[2]),
		Value: wordBig(words[0]),
	}, nil
}

// DecodeTransferSingle decodes an ERC-1155 TransferSingle log. The id
// word carries a packed synthetic asset id.
func DecodeTransferSingle(l *RawLog) (*TransferSingle, error) {
	if len(l.Topics) != 4 {
		return nil, fmt.Errorf("%w: transferSingle wants 4 topics, got %d", ErrDecode, len(l.Topics))
	}
	words, err := dataWords(l.Data)
	if err != nil {
		return nil, err
	}
	if len(words) != 2 {
		return nil, fmt.Errorf("%w: transferSingle wants 2 data words, got %d", ErrDecode, len(words))
	}
	return &TransferSingle{
		Token:    strings.ToLower(l.Address),
		Operator: topicAddress(l.Topics[1]),
		From:     topicAddress(l.Topics[2]),
		To:       topicAddress(l.Topics[3]),
		ID:       wordBig(words[0]),
		Value:    wordBig(words[1]),
	}, nil
}

// DecodeTransferBatch decodes an ERC-1155 TransferBatch log with its
// two dynamic arrays. The arrays must be the same length.
func DecodeTransferBatch(l *RawLog) (*TransferBatch, error) {
	if len(l.Topics) != 4 {
		return nil, fmt.Errorf("%w: transferBatch wants 4 topics, got %d", ErrDecode, len(l.Topics))
	}
	words, err := dataWords(l.Data)
	if err != nil {
		return nil, err
	}
	if len(words) < 4 {
		return nil, fmt.Errorf("%w: transferBatch data too short", ErrDecode)
	}
	ids, err := dynamicUints(words, wordBig(words[0]))
	if err != nil {
		return nil, err
	}
	values, err := dynamicUints(words, wordBig(words[1]))
	if err != nil {
		return nil, err
	}
	if len(ids) != len(values) {
		return nil, fmt.Errorf("%w: transferBatch ids/values length mismatch", ErrDecode)
	}
	return &TransferBatch{
		Token:    strings.ToLower(l.Address),
		Operator: topicAddress(l.Topics[1]),
		From:     topicAddress(l.Topics[2]),
		To:       topicAddress(l.Topics[3]),
		IDs:      ids,
		Values:   values,
	}, nil
}

// dynamicUints reads a uint256[] at a byte offset into the data section.
func dynamicUints(words [][]byte, offset *big.Int) ([]*big.Int, error) {
	if !offset.IsUint64() || offset.Uint64()%32 != 0 {
		return nil, fmt.Errorf("%w: bad array offset", ErrDecode)
	}
	at := int(offset.Uint64() / 32)
	if at >= len(words) {
		return nil, fmt.Errorf("%w: array offset out of range", ErrDecode)
	}
	length := wordBig(words[at])
	if !length.IsUint64() || at+1+int(length.Uint64()) > len(words) {
		return nil, fmt.Errorf("%w: array length out of range", ErrDecode)
	}
	out := make([]*big.Int, length.Uint64())
	for i := range out {
		out[i] = wordBig(words[at+1+i])
	}
	return out, nil
}

// DecodeApprovalForAll decodes an ERC-1155/721 ApprovalForAll log.
func DecodeApprovalForAll(l *RawLog) (*ApprovalForAll, error) {
	if len(l.Topics) != 3 {
		return nil, fmt.Errorf("%w: approvalForAll wants 3 topics, got %d", ErrDecode, len(l.Topics))
	}
	words, err := dataWords(l.Data)
	if err != nil {
		return nil, err
	}
	if len(words) != 1 {
		return nil, fmt.Errorf("%w: approvalForAll wants 1 data word, got %d", ErrDecode, len(words))
	}
	return &ApprovalForAll{
		Token:    strings.ToLower(l.Address),
		Owner:    topicAddress(l.Topics[1]),
		Operator: topicAddress(l.Topics[2]),
		Approved: wordBig(words[0]).Sign() != 0,
	}, nil
}

// swap data word counts per variant
const (
	swapWords  = 8
	swap1Words = 9
	swap2Words = 11
)

// DecodeSwap decodes any of the three pool swap variants. The variant
// is chosen by exact topic0, never inferred from the payload size.
func DecodeSwap(l *RawLog) (*Swap, error) {
	kind := Classify(l)
	var want int
	switch kind {
	case KindSwap:
		want = swapWords
	case KindSwap1:
		want = swap1Words
	case KindSwap2:
		want = swap2Words
	default:
		return nil, fmt.Errorf("%w: not a swap topic", ErrDecode)
	}
	words, err := dataWords(l.Data)
	if err != nil {
		return nil, err
	}
	if len(words) != want {
		return nil, fmt.Errorf("%w: %s wants %d data words, got %d", ErrDecode, kind, want, len(words))
	}
	s := &Swap{
		Payer:     wordAddress(words[0]),
		PoolIn:    wordAddress(words[1]),
		PoolOut:   wordAddress(words[2]),
		Recipient: wordAddress(words[3]),
		SideIn:    wordBig(words[4]),
		SideOut:   wordBig(words[5]),
		AmountIn:  wordBig(words[6]),
		AmountOut: wordBig(words[7]),
	}
	if want >= swap1Words {
		s.Price = wordBig(words[8])
	}
	if want == swap2Words {
		s.PriceR = wordBig(words[9])
		s.AmountR = wordBig(words[10])
	}
	return s, nil
}

// DecodePositionMinted decodes a position mint:
// (bytes32 posId, amount, maturity, price, valueR).
func DecodePositionMinted(l *RawLog) (*PositionMinted, error) {
	words, err := dataWords(l.Data)
	if err != nil {
		return nil, err
	}
	if len(words) != 5 {
		return nil, fmt.Errorf("%w: positionMinted wants 5 data words, got %d", ErrDecode, len(words))
	}
	return &PositionMinted{
		PosID:    wordBig(words[0]),
		Amount:   wordBig(words[1]),
		Maturity: wordBig(words[2]),
		Price:    wordBig(words[3]),
		ValueR:   wordBig(words[4]),
	}, nil
}

// DecodeHelperSwapPriceR extracts the reserve price from a helper swap
// log: the last of its seven data words is sqrt(priceR) in Q64.64, so
// priceR = sqrt² >> 128.
func DecodeHelperSwapPriceR(l *RawLog) (*big.Int, error) {
	words, err := dataWords(l.Data)
	if err != nil {
		return nil, err
	}
	if len(words) != 7 {
		return nil, fmt.Errorf("%w: helper swap wants 7 data words, got %d", ErrDecode, len(words))
	}
	sqrt := wordBig(words[6])
	priceR := new(big.Int).Mul(sqrt, sqrt)
	return priceR.Rsh(priceR, 128), nil
}

// DecodePoolCreated decodes a pool deployment log into its config.
func DecodePoolCreated(l *RawLog) (*PoolCreated, error) {
	words, err := dataWords(l.Data)
	if err != nil {
		return nil, err
	}
	if len(words) != 12 {
		return nil, fmt.Errorf("%w: poolCreated wants 12 data words, got %d", ErrDecode, len(words))
	}
	p := &PoolCreated{
		Fetcher:      wordAddress(words[0]),
		TokenR:       wordAddress(words[2]),
		K:            wordBig(words[3]),
		Mark:         wordBig(words[4]),
		InterestHL:   wordBig(words[5]),
		PremiumHL:    wordBig(words[6]),
		Maturity:     wordBig(words[7]),
		MaturityVest: wordBig(words[8]),
		MaturityRate: wordBig(words[9]),
		OpenRate:     wordBig(words[10]),
		PoolAddress:  wordAddress(words[11]),
	}
	copy(p.Oracle[:], words[1])
	return p, nil
}
