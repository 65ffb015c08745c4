// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gateway

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/memoracare/MemoraLocal/services/companion/datatypes"
	"github.com/memoracare/MemoraLocal/services/companion/observability"
	"github.com/memoracare/MemoraLocal/services/companion/store"
)

// sendBuffer is the per-client outbound queue. A client that cannot drain
// this many changes is dropped rather than allowed to stall the hub.
const sendBuffer = 64

// Hub fans live changes out to connected realtime clients.
//
// # Thread Safety
//
// Hub is safe for concurrent use. Broadcast never blocks on a slow
// client; the client is disconnected instead.
type Hub struct {
	mu      sync.Mutex
	clients map[*hubClient]struct{}
	logger  *slog.Logger
}

type hubClient struct {
	conn        *websocket.Conn
	send        chan store.Change
	collections map[datatypes.Collection]bool // empty means all
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*hubClient]struct{}),
		logger:  logger,
	}
}

// Broadcast queues a change for every client subscribed to its collection.
func (h *Hub) Broadcast(change store.Change) {
	h.mu.Lock()
	var stalled []*hubClient
	for c := range h.clients {
		if len(c.collections) > 0 && !c.collections[change.Collection] {
			continue
		}
		select {
		case c.send <- change:
		default:
			stalled = append(stalled, c)
		}
	}
	for _, c := range stalled {
		h.removeLocked(c)
	}
	h.mu.Unlock()

	for _, c := range stalled {
		h.logger.Warn("dropping stalled realtime client", "remote", c.conn.RemoteAddr().String())
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// serve registers the connection and pumps changes to it until the client
// disconnects. Blocks until the connection ends.
func (h *Hub) serve(conn *websocket.Conn, collections []datatypes.Collection) {
	c := &hubClient{
		conn:        conn,
		send:        make(chan store.Change, sendBuffer),
		collections: make(map[datatypes.Collection]bool, len(collections)),
	}
	for _, name := range collections {
		c.collections[name] = true
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	observability.RealtimeClients.Inc()

	defer func() {
		h.mu.Lock()
		h.removeLocked(c)
		h.mu.Unlock()
	}()

	// The read pump only detects disconnects; clients never send frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case change, ok := <-c.send:
			if !ok {
				return
			}
			if err := conn.WriteJSON(change); err != nil {
				h.logger.Debug("realtime write failed", "error", err)
				return
			}
		case <-done:
			return
		}
	}
}

// removeLocked unregisters and closes a client. Caller holds h.mu.
// Safe to call twice for the same client.
func (h *Hub) removeLocked(c *hubClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	_ = c.conn.Close()
	observability.RealtimeClients.Dec()
}
