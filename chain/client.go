// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

// Package chain is a thin JSON-RPC client for the EVM node the engine
// reads from. It only speaks the read-side methods the reconstruction
// needs: logs, contract calls, balances and the chain head.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/derion-io/engine/events"
)

// ErrRPC wraps every node-side failure. These are retryable: the
// request may succeed against another endpoint or a later head.
var ErrRPC = errors.New("rpc failure")

// Client talks to a single JSON-RPC endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a client for the given endpoint.
func New(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// LogFilter selects logs for eth_getLogs. Topics are positional: each
// entry is an OR-set for that topic slot, a nil entry matches any.
type LogFilter struct {
	FromBlock uint64
	ToBlock   uint64 // 0 means latest
	Addresses []string
	Topics    [][]string
}

// GetLogs fetches logs matching the filter, normalized to lowercase
// addresses and parsed block numbers.
func (c *Client) GetLogs(ctx context.Context, filter LogFilter) ([]*events.RawLog, error) {
	params := map[string]interface{}{
		"fromBlock": hexUint(filter.FromBlock),
	}
	if filter.ToBlock > 0 {
		params["toBlock"] = hexUint(filter.ToBlock)
	} else {
		params["toBlock"] = "latest"
	}
	switch len(filter.Addresses) {
	case 0:
	case 1:
		params["address"] = filter.Addresses[0]
	default:
		params["address"] = filter.Addresses
	}
	if filter.Topics != nil {
		params["topics"] = filter.Topics
	}

	result, err := c.call(ctx, "eth_getLogs", []interface{}{params})
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Address     string   `json:"address"`
		Topics      []string `json:"topics"`
		Data        string   `json:"data"`
		BlockNumber string   `json:"blockNumber"`
		LogIndex    string   `json:"logIndex"`
		TxHash      string   `json:"transactionHash"`
		Timestamp   string   `json:"timeStamp"`
	}
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode logs: %v", ErrRPC, err)
	}

	logs := make([]*events.RawLog, 0, len(raw))
	for _, r := range raw {
		logs = append(logs, &events.RawLog{
			Address:     strings.ToLower(r.Address),
			Topics:      r.Topics,
			Data:        r.Data,
			BlockNumber: hexToUint64(r.BlockNumber),
			LogIndex:    hexToUint64(r.LogIndex),
			TxHash:      strings.ToLower(r.TxHash),
			Timestamp:   hexToUint64(r.Timestamp),
		})
	}
	return logs, nil
}

// CallContract makes an eth_call against a contract at the latest block.
func (c *Client) CallContract(ctx context.Context, to, data string) (string, error) {
	result, err := c.call(ctx, "eth_call", []interface{}{
		map[string]string{"to": to, "data": data},
		"latest",
	})
	if err != nil {
		return "", err
	}
	var resultHex string
	if err := json.Unmarshal(result, &resultHex); err != nil {
		return "", fmt.Errorf("%w: decode call result: %v", ErrRPC, err)
	}
	return resultHex, nil
}

// BlockNumber fetches the current chain head.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "eth_blockNumber", []interface{}{})
	if err != nil {
		return 0, err
	}
	var headHex string
	if err := json.Unmarshal(result, &headHex); err != nil {
		return 0, fmt.Errorf("%w: decode block number: %v", ErrRPC, err)
	}
	return hexToUint64(headHex), nil
}

// Balance fetches the native coin balance of an address.
func (c *Client) Balance(ctx context.Context, address string) (*big.Int, error) {
	result, err := c.call(ctx, "eth_getBalance", []interface{}{address, "latest"})
	if err != nil {
		return nil, err
	}
	var balanceHex string
	if err := json.Unmarshal(result, &balanceHex); err != nil {
		return nil, fmt.Errorf("%w: decode balance: %v", ErrRPC, err)
	}
	return hexToBig(balanceHex), nil
}

// call makes a JSON-RPC call to the node.
func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      1,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRPC, method, err)
	}
	defer resp.Body.Close()

	var result struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrRPC, err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %s: %d %s", ErrRPC, method, result.Error.Code, result.Error.Message)
	}
	return result.Result, nil
}

func hexUint(n uint64) string {
	return fmt.Sprintf("0x%x", n)
}

func hexToUint64(s string) uint64 {
	s = strings.TrimPrefix(s, "0x")
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return 0
	}
	return n.Uint64()
}

func hexToBig(s string) *big.Int {
	s = strings.TrimPrefix(s, "0x")
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return new(big.Int)
	}
	return n
}
