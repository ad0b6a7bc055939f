// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package multicall

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Selector returns the 4-byte function selector of a canonical
// signature, 0x-prefixed.
func Selector(signature string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return "0x" + hex.EncodeToString(h.Sum(nil)[:4])
}
