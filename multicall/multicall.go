// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

// Package multicall batches many read-only contract calls into a single
// Multicall3 aggregate3 round trip and hands each caller its own slice
// of the results.
package multicall

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// ErrDuplicateReference is fatal: two groups in one batch claimed the
// same name, so result routing would be ambiguous.
var ErrDuplicateReference = errors.New("dupplicated reference")

// aggregate3((address,bool,bytes)[]) selector
const aggregate3Selector = "0x82ad56cb"

// Call is one read against one contract.
type Call struct {
	Target string
	Data   string
}

// Result is one call's outcome within a batch.
type Result struct {
	Success    bool
	ReturnData string
}

// Group names a set of calls and receives their results in call order.
type Group struct {
	Reference string
	Calls     []Call
	OnResult  func(results []Result) error
}

// Client is the transport collaborator, satisfied by chain.Client.
type Client interface {
	CallContract(ctx context.Context, to, data string) (string, error)
}

// Batcher aggregates call groups against one Multicall3 deployment.
type Batcher struct {
	client   Client
	contract string
}

// New creates a batcher for the given multicall contract address.
func New(client Client, contract string) *Batcher {
	return &Batcher{client: client, contract: contract}
}

// Execute runs every group's calls in one round trip and dispatches
// results group by group, in submission order. A failing call is
// reported to its group as an unsuccessful Result, not an error; a
// group callback error aborts the dispatch.
func (b *Batcher) Execute(ctx context.Context, groups ...Group) error {
	seen := make(map[string]bool, len(groups))
	var flat []Call
	for _, g := range groups {
		if seen[g.Reference] {
			return fmt.Errorf("%w: %s", ErrDuplicateReference, g.Reference)
		}
		seen[g.Reference] = true
		flat = append(flat, g.Calls...)
	}
	if len(flat) == 0 {
		return nil
	}

	calldata, err := encodeAggregate3(flat)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	raw, err := b.client.CallContract(ctx, b.contract, calldata)
	if err != nil {
		return fmt.Errorf("multicall: %w", err)
	}
	results, err := decodeAggregate3(raw)
	if err != nil {
		return fmt.Errorf("decode batch: %w", err)
	}
	if len(results) != len(flat) {
		return fmt.Errorf("multicall returned %d results for %d calls", len(results), len(flat))
	}

	at := 0
	for _, g := range groups {
		slice := results[at : at+len(g.Calls)]
		at += len(g.Calls)
		if g.OnResult == nil {
			continue
		}
		if err := g.OnResult(slice); err != nil {
			return fmt.Errorf("group %s: %w", g.Reference, err)
		}
	}
	log.Printf("[multicall] %d calls in %d groups", len(flat), len(groups))
	return nil
}
