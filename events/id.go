// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package events

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// A synthetic asset id is 32 bytes: the side in the high 12 bytes (only
// the low byte of those is meaningful) and the pool address in the low
// 20 bytes.

// PackID builds a synthetic asset id from a side and a pool address.
func PackID(side int, pool string) (*big.Int, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(pool), "0x"))
	if err != nil || len(raw) != 20 {
		return nil, fmt.Errorf("%w: bad pool address %q", ErrDecode, pool)
	}
	var id [32]byte
	id[11] = byte(side)
	copy(id[12:], raw)
	return new(big.Int).SetBytes(id[:]), nil
}

// UnpackID splits a synthetic asset id into its side and pool address.
func UnpackID(id *big.Int) (side int, pool string) {
	var raw [32]byte
	id.FillBytes(raw[:])
	return int(raw[11]), "0x" + hex.EncodeToString(raw[12:])
}

// AddressTopic left-pads an address into the 32-byte topic form, for
// filtering logs by an indexed address argument.
func AddressTopic(address string) string {
	a := strings.TrimPrefix(strings.ToLower(address), "0x")
	if len(a) >= 64 {
		return "0x" + a
	}
	return "0x" + strings.Repeat("0", 64-len(a)) + a
}

// ParseIDHex parses the canonical 0x-prefixed 32-byte hex form back
// into an id.
func ParseIDHex(s string) (*big.Int, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("%w: bad asset id %q", ErrDecode, s)
	}
	return new(big.Int).SetBytes(raw), nil
}

// IDHex renders a synthetic asset id as 0x-prefixed 32-byte hex, the
// canonical map key form.
func IDHex(id *big.Int) string {
	var raw [32]byte
	id.FillBytes(raw[:])
	return "0x" + hex.EncodeToString(raw[:])
}
