// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

// Package api serves reconstructed sessions over HTTP: run a session
// for an account, then read its positions, history and balances, or
// stream its transitions over a websocket.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/derion-io/engine/engine"
)

// Server exposes one engine's sessions.
type Server struct {
	engine     *engine.Engine
	subscriber *Subscriber

	mu       sync.RWMutex
	sessions map[string]*engine.Session
}

// NewServer wraps an engine.
func NewServer(e *engine.Engine) *Server {
	return &Server{
		engine:     e,
		subscriber: NewSubscriber(),
		sessions:   make(map[string]*engine.Session),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/sessions", s.handleRunSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", s.handleSession).Methods("GET")
	api.HandleFunc("/sessions/{id}/positions", s.handlePositions).Methods("GET")
	api.HandleFunc("/sessions/{id}/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/sessions/{id}/balances", s.handleBalances).Methods("GET")
	api.HandleFunc("/sessions/{id}/pools", s.handlePools).Methods("GET")
	api.HandleFunc("/transitions/subscribe", s.subscriber.HandleWebSocket)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok", "chain_id": s.engine.Profile.ChainID,
		})
	})
	return corsMiddleware(r)
}

// Serve runs the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context, port int) error {
	go s.subscriber.Run(ctx)

	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: s.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	log.Printf("[api] listening on :%d", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleRunSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Account    string `json:"account"`
		WithNative bool   `json:"withNative"`
		PlayMode   bool   `json:"playMode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Account == "" {
		http.Error(w, "account required", http.StatusBadRequest)
		return
	}

	sess, err := s.engine.Run(r.Context(), body.Account, engine.Options{
		WithNative: body.WithNative,
		PlayMode:   body.PlayMode,
	})
	if err != nil {
		log.Printf("[api] session for %s failed: %v", body.Account, err)
		http.Error(w, "session failed", http.StatusBadGateway)
		return
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	for i := range sess.Transitions {
		s.subscriber.BroadcastTransition(sess.ID, &sess.Transitions[i])
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":          sess.ID,
		"account":     sess.Account,
		"head":        sess.Head,
		"positions":   len(sess.Positions),
		"transitions": len(sess.Transitions),
		"pools":       len(sess.Resource.Pools),
	})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) *engine.Session {
	s.mu.RLock()
	sess := s.sessions[mux.Vars(r)["id"]]
	s.mu.RUnlock()
	if sess == nil {
		http.Error(w, "not found", http.StatusNotFound)
	}
	return sess
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      sess.ID,
		"account": sess.Account,
		"head":    sess.Head,
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": sess.Positions})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": sess.History})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"balances":   sess.Balances,
		"allowances": sess.Allowances,
		"maturities": sess.Maturities,
	})
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"pools":  sess.Resource.Pools,
		"groups": sess.Resource.Groups,
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Content-Type", "application/json")
		if r.Method == "OPTIONS" {
			return
		}
		next.ServeHTTP(w, r)
	})
}
