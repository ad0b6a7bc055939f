// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

// Package aggregator is a client for the Paraswap-style swap
// aggregator the router composes entry swaps through. The engine
// treats rate and transaction payloads as opaque: only priceRoute,
// destAmount, to and data are consumed.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

var (
	// ErrUpstreamRate is returned when the rate endpoint reports an
	// error field.
	ErrUpstreamRate = errors.New("aggregator rate error")
	// ErrUpstreamBuild is returned when the transaction-build endpoint
	// reports an error field.
	ErrUpstreamBuild = errors.New("aggregator build error")
)

// defaults match the public Paraswap deployment
const (
	DefaultDataBaseURL    = "https://api.paraswap.io/prices"
	DefaultBuildTxBaseURL = "https://api.paraswap.io/transactions"
	DefaultVersion        = "6.2"

	// the router tolerates a wide slippage band; the pool's own open
	// rate bounds the real entry
	buildSlippageBps = 2500
)

// RateQuery describes one quote request.
type RateQuery struct {
	SrcToken     string
	SrcDecimals  int32
	DestToken    string
	DestDecimals int32
	Amount       string
	Side         string // SELL or BUY
	Partner      string
	UserAddress  string
}

// Rate is the quote response. PriceRoute passes through to BuildTx
// untouched.
type Rate struct {
	PriceRoute json.RawMessage
	DestAmount string
	GasCost    string
}

// BuiltTx is the calldata the aggregator assembled for the swap.
type BuiltTx struct {
	To    string
	Data  string
	Value string
}

// Client talks to one aggregator deployment for one chain.
type Client struct {
	chainID        uint64
	dataBaseURL    string
	buildTxBaseURL string
	version        string
	httpClient     *http.Client
}

// New creates a client with the public endpoints.
func New(chainID uint64) *Client {
	return &Client{
		chainID:        chainID,
		dataBaseURL:    DefaultDataBaseURL,
		buildTxBaseURL: DefaultBuildTxBaseURL,
		version:        DefaultVersion,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewWithEndpoints creates a client against custom endpoints, for
// tests and self-hosted deployments.
func NewWithEndpoints(chainID uint64, dataBaseURL, buildTxBaseURL, version string) *Client {
	c := New(chainID)
	c.dataBaseURL = dataBaseURL
	c.buildTxBaseURL = buildTxBaseURL
	c.version = version
	return c
}

// GetRate quotes a swap.
func (c *Client) GetRate(ctx context.Context, q RateQuery) (*Rate, error) {
	params := url.Values{}
	params.Set("version", c.version)
	params.Set("srcToken", q.SrcToken)
	params.Set("srcDecimals", strconv.Itoa(int(q.SrcDecimals)))
	params.Set("destToken", q.DestToken)
	params.Set("destDecimals", strconv.Itoa(int(q.DestDecimals)))
	params.Set("amount", q.Amount)
	params.Set("side", q.Side)
	params.Set("excludeDirectContractMethods", "false")
	params.Set("otherExchangePrices", "true")
	params.Set("partner", q.Partner)
	params.Set("network", strconv.FormatUint(c.chainID, 10))
	params.Set("userAddress", q.UserAddress)

	req, err := http.NewRequestWithContext(ctx, "GET", c.dataBaseURL+"/?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create rate request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamRate, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Error      string          `json:"error"`
		PriceRoute json.RawMessage `json:"priceRoute"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstreamRate, err)
	}
	if envelope.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrUpstreamRate, envelope.Error)
	}

	var route struct {
		DestAmount string `json:"destAmount"`
		GasCost    string `json:"gasCost"`
	}
	if len(envelope.PriceRoute) > 0 {
		if err := json.Unmarshal(envelope.PriceRoute, &route); err != nil {
			return nil, fmt.Errorf("%w: decode price route: %v", ErrUpstreamRate, err)
		}
	}
	return &Rate{
		PriceRoute: envelope.PriceRoute,
		DestAmount: route.DestAmount,
		GasCost:    route.GasCost,
	}, nil
}

// BuildTx assembles the swap calldata for a previously quoted rate.
func (c *Client) BuildTx(ctx context.Context, q RateQuery, rate *Rate) (*BuiltTx, error) {
	payload := map[string]interface{}{
		"srcToken":     q.SrcToken,
		"srcDecimals":  q.SrcDecimals,
		"destToken":    q.DestToken,
		"destDecimals": q.DestDecimals,
		"side":         q.Side,
		"partner":      q.Partner,
		"userAddress":  q.UserAddress,
		"slippage":     buildSlippageBps,
		"priceRoute":   rate.PriceRoute,
	}
	if q.Side == "BUY" {
		payload["destAmount"] = q.Amount
	} else {
		payload["srcAmount"] = q.Amount
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal build request: %w", err)
	}

	params := url.Values{}
	params.Set("ignoreGasEstimate", "true")
	params.Set("ignoreAllowance", "true")
	if rate.GasCost != "" {
		params.Set("gasPrice", rate.GasCost)
	}
	endpoint := fmt.Sprintf("%s/%d?%s", c.buildTxBaseURL, c.chainID, params.Encode())

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamBuild, err)
	}
	defer resp.Body.Close()

	var body struct {
		Error string `json:"error"`
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstreamBuild, err)
	}
	if body.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrUpstreamBuild, body.Error)
	}
	return &BuiltTx{To: body.To, Data: body.Data, Value: body.Value}, nil
}
