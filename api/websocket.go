// Copyright (c) 2025 Derion Labs
// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/derion-io/engine/ledger"
)

// Subscriber fans session transitions out to websocket clients.
type Subscriber struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan interface{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	heartbeat  time.Duration
}

func NewSubscriber() *Subscriber {
	return &Subscriber{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan interface{}, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		heartbeat:  30 * time.Second,
	}
}

// Run pumps the hub until the context is cancelled.
func (s *Subscriber) Run(ctx context.Context) {
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-s.register:
			s.mu.Lock()
			s.clients[c] = true
			s.mu.Unlock()
		case c := <-s.unregister:
			s.mu.Lock()
			delete(s.clients, c)
			c.Close()
			s.mu.Unlock()
		case msg := <-s.broadcast:
			s.fanOut(msg)
		case <-heartbeat.C:
			// written to clients directly: the hub is the only
			// broadcast consumer, so feeding its own channel can
			// deadlock once the buffer fills
			s.fanOut(map[string]string{"type": "heartbeat"})
		}
	}
}

func (s *Subscriber) fanOut(msg interface{}) {
	s.mu.RLock()
	for c := range s.clients {
		if err := c.WriteJSON(msg); err != nil {
			go func(conn *websocket.Conn) { s.unregister <- conn }(c)
		}
	}
	s.mu.RUnlock()
}

// HandleWebSocket upgrades a client and keeps it registered until it
// hangs up.
func (s *Subscriber) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.register <- conn
	_ = conn.WriteJSON(map[string]interface{}{"type": "connected"})
	go func() {
		defer func() { s.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// BroadcastTransition streams one applied transition to every client.
func (s *Subscriber) BroadcastTransition(sessionID string, tr *ledger.Transition) {
	s.broadcast <- map[string]interface{}{
		"type":    "transition",
		"session": sessionID,
		"data":    tr,
	}
}
