// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

// Package profile loads the per-chain deployment profile: where the
// protocol contracts live, which tokens are whitelisted, and how to
// route prices to USD.
package profile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// NativeAddress is the sentinel used for the chain's native coin in
// balance and token maps.
const NativeAddress = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

// Profile is the full deployment profile for one chain.
type Profile struct {
	ChainID uint64 `yaml:"chain_id"`
	Name    string `yaml:"name"`
	RPC     string `yaml:"rpc"`

	// ScanAPI optionally serves eth_getLogs with timestamps attached;
	// empty means logs come from the plain RPC.
	ScanAPI string `yaml:"scan_api,omitempty"`

	Derivable Derivable `yaml:"derivable"`

	// Tokens is the whitelist with display metadata.
	Tokens []Token `yaml:"tokens"`

	// Stablecoins are quote tokens treated as USD.
	Stablecoins []string `yaml:"stablecoins"`

	// WhitelistPools are curated pools every session loads, whether or
	// not the account has touched them.
	WhitelistPools []string `yaml:"whitelist_pools,omitempty"`

	// WrappedNative is the ERC-20 form of the native coin.
	WrappedNative string `yaml:"wrapped_native"`

	// Routes maps a token address to the single-hop pair that prices
	// it against a stablecoin.
	Routes map[string]Route `yaml:"routes,omitempty"`

	// StartBlock is where protocol history begins on this chain.
	StartBlock uint64 `yaml:"start_block"`
}

// Derivable holds the protocol contract addresses.
type Derivable struct {
	// Token is the ERC-1155 position token.
	Token string `yaml:"token"`
	// PoolDeployer emits PoolCreated logs.
	PoolDeployer string `yaml:"pool_deployer"`
	// Router (UTR) is the only spender allowances are tracked for.
	Router string `yaml:"router"`
	// Helper emits the swap logs that carry reserve prices.
	Helper string `yaml:"helper"`
	// Multicall is the Multicall3 deployment batched reads go through.
	Multicall string `yaml:"multicall"`
	// PlayToken is the testnet reserve whose pools price in play units.
	PlayToken string `yaml:"play_token,omitempty"`
}

// Token is one whitelisted token's display metadata.
type Token struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name,omitempty"`
	Decimals int32  `yaml:"decimals"`
}

// Route is a single-hop price route through one swap pair.
type Route struct {
	Pair       string `yaml:"pair"`
	QuoteToken string `yaml:"quote_token"`
}

// Load reads a profile from a YAML file, expanding environment
// variables first so endpoints can carry API keys.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	var p Profile
	if err := yaml.Unmarshal([]byte(expanded), &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	p.normalize()
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) normalize() {
	p.Derivable.Token = strings.ToLower(p.Derivable.Token)
	p.Derivable.PoolDeployer = strings.ToLower(p.Derivable.PoolDeployer)
	p.Derivable.Router = strings.ToLower(p.Derivable.Router)
	p.Derivable.Helper = strings.ToLower(p.Derivable.Helper)
	p.Derivable.Multicall = strings.ToLower(p.Derivable.Multicall)
	p.Derivable.PlayToken = strings.ToLower(p.Derivable.PlayToken)
	p.WrappedNative = strings.ToLower(p.WrappedNative)
	for i := range p.Tokens {
		p.Tokens[i].Address = strings.ToLower(p.Tokens[i].Address)
	}
	for i := range p.Stablecoins {
		p.Stablecoins[i] = strings.ToLower(p.Stablecoins[i])
	}
	for i := range p.WhitelistPools {
		p.WhitelistPools[i] = strings.ToLower(p.WhitelistPools[i])
	}
	routes := make(map[string]Route, len(p.Routes))
	for token, r := range p.Routes {
		r.Pair = strings.ToLower(r.Pair)
		r.QuoteToken = strings.ToLower(r.QuoteToken)
		routes[strings.ToLower(token)] = r
	}
	p.Routes = routes
}

func (p *Profile) validate() error {
	if p.ChainID == 0 {
		return fmt.Errorf("profile: chain_id is required")
	}
	if p.RPC == "" {
		return fmt.Errorf("profile: rpc is required")
	}
	for _, field := range []struct{ name, value string }{
		{"derivable.token", p.Derivable.Token},
		{"derivable.pool_deployer", p.Derivable.PoolDeployer},
		{"derivable.router", p.Derivable.Router},
		{"derivable.multicall", p.Derivable.Multicall},
	} {
		if field.value == "" {
			return fmt.Errorf("profile: %s is required", field.name)
		}
	}
	return nil
}

// IsStablecoin reports whether the address is a configured USD proxy.
func (p *Profile) IsStablecoin(address string) bool {
	address = strings.ToLower(address)
	for _, s := range p.Stablecoins {
		if s == address {
			return true
		}
	}
	return false
}

// TokenByAddress looks up whitelist metadata, falling back to an
// 18-decimal placeholder so unknown tokens still render.
func (p *Profile) TokenByAddress(address string) Token {
	address = strings.ToLower(address)
	if address == NativeAddress {
		return Token{Address: NativeAddress, Symbol: p.Name, Decimals: 18}
	}
	for _, t := range p.Tokens {
		if t.Address == address {
			return t
		}
	}
	return Token{Address: address, Symbol: short(address), Decimals: 18}
}

// RouteToUSD returns the single-hop route pricing a token in USD, if
// one is configured.
func (p *Profile) RouteToUSD(token string) (Route, bool) {
	r, ok := p.Routes[strings.ToLower(token)]
	return r, ok
}

func short(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + ".." + address[len(address)-4:]
}
