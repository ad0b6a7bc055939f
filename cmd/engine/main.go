// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

// Package main runs the Derion reconstruction engine: either one
// session printed to stdout, or the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/derion-io/engine/api"
	"github.com/derion-io/engine/engine"
	"github.com/derion-io/engine/logcache"
	"github.com/derion-io/engine/profile"
)

var version = "dev"

func main() {
	var (
		profilePath = flag.String("profile", "", "Path to the chain profile YAML")
		account     = flag.String("account", "", "Account to reconstruct (one-shot mode)")
		httpPort    = flag.Int("port", 0, "HTTP API port (server mode)")
		cachePath   = flag.String("cache", "", "Log cache directory (empty = in-memory)")
		withNative  = flag.Bool("native", false, "Merge the native coin balance")
		playMode    = flag.Bool("play", false, "Keep only play-token pools")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("derion-engine %s\n", version)
		os.Exit(0)
	}
	if *profilePath == "" {
		flag.Usage()
		log.Fatal("Missing required flag: -profile")
	}
	if *account == "" && *httpPort == 0 {
		flag.Usage()
		log.Fatal("Need either -account (one-shot) or -port (server)")
	}

	p, err := profile.Load(*profilePath)
	if err != nil {
		log.Fatalf("Load profile: %v", err)
	}

	store, err := logcache.NewKV(logcache.KVConfig{Path: *cachePath})
	if err != nil {
		log.Fatalf("Open log cache: %v", err)
	}
	defer store.Close()

	eng := engine.New(p, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown signal received")
		cancel()
	}()

	if *account != "" {
		runOnce(ctx, eng, *account, engine.Options{WithNative: *withNative, PlayMode: *playMode})
		return
	}

	if err := api.NewServer(eng).Serve(ctx, *httpPort); err != nil {
		log.Fatalf("API server: %v", err)
	}
}

func runOnce(ctx context.Context, eng *engine.Engine, account string, opts engine.Options) {
	sess, err := eng.Run(ctx, account, opts)
	if err != nil {
		log.Fatalf("Session for %s: %v", account, err)
	}

	out := map[string]interface{}{
		"id":          sess.ID,
		"account":     sess.Account,
		"head":        sess.Head,
		"positions":   sess.Positions,
		"transitions": sess.Transitions,
		"history":     sess.History,
		"balances":    sess.Balances,
		"allowances":  sess.Allowances,
		"maturities":  sess.Maturities,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("Encode session: %v", err)
	}
}
