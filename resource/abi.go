// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package resource

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// returnWords decodes call return data into 32-byte words, requiring
// at least min of them.
func returnWords(data string, min int) ([][]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
	if err != nil {
		return nil, fmt.Errorf("bad return hex: %v", err)
	}
	if len(raw) < min*32 {
		return nil, fmt.Errorf("return data too short: %d bytes, want %d words", len(raw), min)
	}
	words := make([][]byte, 0, len(raw)/32)
	for i := 0; i+32 <= len(raw); i += 32 {
		words = append(words, raw[i:i+32])
	}
	return words, nil
}

func wordBig(w []byte) *big.Int { return new(big.Int).SetBytes(w) }

func wordAddr(w []byte) string { return "0x" + hex.EncodeToString(w[12:32]) }

func wordIsZeroAddr(addr string) bool {
	return strings.TrimLeft(strings.TrimPrefix(addr, "0x"), "0") == ""
}

func leftPadAddress(addr string) string {
	a := strings.TrimPrefix(strings.ToLower(addr), "0x")
	return strings.Repeat("0", 64-len(a)) + a
}

func leftPadUint(v uint64) string {
	h := new(big.Int).SetUint64(v).Text(16)
	return strings.Repeat("0", 64-len(h)) + h
}

// decodeSymbol reads a symbol() return value, accepting both the
// dynamic string encoding and the legacy bytes32 form.
func decodeSymbol(data string) string {
	words, err := returnWords(data, 1)
	if err != nil {
		return ""
	}
	if len(words) >= 3 {
		length := wordBig(words[1])
		if length.IsUint64() && int(length.Uint64()) <= (len(words)-2)*32 {
			raw := make([]byte, 0, length.Uint64())
			for _, w := range words[2:] {
				raw = append(raw, w...)
			}
			return strings.ToValidUTF8(string(raw[:length.Uint64()]), "")
		}
	}
	return strings.TrimRight(strings.ToValidUTF8(string(words[0]), ""), "\x00")
}
