// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package multicall

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Hand-rolled ABI coding for the one shape multicall needs:
// aggregate3(Call3[]) in, Result[] out. Both are dynamic arrays of
// two-or-three field tuples with one dynamic bytes member.

func encodeAggregate3(calls []Call) (string, error) {
	var body []byte

	// head: offset of the array, then its length
	body = appendWord(body, big.NewInt(32))
	body = appendWord(body, big.NewInt(int64(len(calls))))

	// tuple offsets, relative to the start of the tuple area
	tuples := make([][]byte, len(calls))
	for i, c := range calls {
		t, err := encodeCall3(c)
		if err != nil {
			return "", err
		}
		tuples[i] = t
	}
	offset := int64(len(calls) * 32)
	for _, t := range tuples {
		body = appendWord(body, big.NewInt(offset))
		offset += int64(len(t))
	}
	for _, t := range tuples {
		body = append(body, t...)
	}

	return aggregate3Selector + hex.EncodeToString(body), nil
}

// encodeCall3 encodes one (address,bool,bytes) tuple: allowFailure is
// always true, individual call failures surface as Result.Success.
func encodeCall3(c Call) ([]byte, error) {
	addr, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(c.Target), "0x"))
	if err != nil || len(addr) != 20 {
		return nil, fmt.Errorf("bad call target %q", c.Target)
	}
	data, err := hex.DecodeString(strings.TrimPrefix(c.Data, "0x"))
	if err != nil {
		return nil, fmt.Errorf("bad calldata for %s: %v", c.Target, err)
	}

	var out []byte
	out = appendWord(out, new(big.Int).SetBytes(addr))
	out = appendWord(out, big.NewInt(1))  // allowFailure
	out = appendWord(out, big.NewInt(96)) // offset of bytes within tuple
	out = appendWord(out, big.NewInt(int64(len(data))))
	out = append(out, pad32(data)...)
	return out, nil
}

func decodeAggregate3(raw string) ([]Result, error) {
	body, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("bad response hex: %v", err)
	}
	arrayOffset, err := wordAt(body, 0)
	if err != nil {
		return nil, err
	}
	length, err := wordAt(body, arrayOffset)
	if err != nil {
		return nil, err
	}
	base := arrayOffset + 32 // tuple offsets are relative to here

	results := make([]Result, 0, length)
	for i := 0; i < length; i++ {
		tupleOffset, err := wordAt(body, base+i*32)
		if err != nil {
			return nil, err
		}
		at := base + tupleOffset
		success, err := wordAt(body, at)
		if err != nil {
			return nil, err
		}
		dataOffset, err := wordAt(body, at+32)
		if err != nil {
			return nil, err
		}
		dataLen, err := wordAt(body, at+dataOffset)
		if err != nil {
			return nil, err
		}
		start := at + dataOffset + 32
		if start+dataLen > len(body) {
			return nil, fmt.Errorf("result %d data out of range", i)
		}
		results = append(results, Result{
			Success:    success != 0,
			ReturnData: "0x" + hex.EncodeToString(body[start:start+dataLen]),
		})
	}
	return results, nil
}

func appendWord(dst []byte, v *big.Int) []byte {
	var w [32]byte
	v.FillBytes(w[:])
	return append(dst, w[:]...)
}

func pad32(data []byte) []byte {
	if rem := len(data) % 32; rem != 0 {
		data = append(data, make([]byte, 32-rem)...)
	}
	return data
}

func wordAt(body []byte, at int) (int, error) {
	if at < 0 || at+32 > len(body) {
		return 0, fmt.Errorf("word at %d out of range", at)
	}
	v := new(big.Int).SetBytes(body[at : at+32])
	if !v.IsInt64() {
		return 0, fmt.Errorf("word at %d too large", at)
	}
	return int(v.Int64()), nil
}
