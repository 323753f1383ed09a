// Package stream provides WebSocket broadcasting of live nearby-report
// updates, keyed by quantized map location.
package stream

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sudd-bot/alert311/internal/report"
)

// ReportsEvent is one live update pushed to subscribers of a location.
type ReportsEvent struct {
	Type      string  `json:"type"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	FetchedAt string  `json:"fetched_at"`

	Reports  []report.Report  `json:"reports"`
	Clusters []report.Cluster `json:"clusters"`
}

// Broadcaster manages WebSocket connections and broadcasts report updates.
// Connections subscribe to one quantized location key at a time.
type Broadcaster struct {
	mu          sync.RWMutex
	connections map[string]map[*websocket.Conn]bool // location key -> connections
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		connections: make(map[string]map[*websocket.Conn]bool),
	}
}

// Subscribe registers a WebSocket connection for a location key.
func (b *Broadcaster) Subscribe(locationKey string, conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connections[locationKey] == nil {
		b.connections[locationKey] = make(map[*websocket.Conn]bool)
	}
	if !b.connections[locationKey][conn] {
		b.connections[locationKey][conn] = true
		feedSubscribes.Inc()
		feedConnections.Inc()
	}
}

// Unsubscribe removes a WebSocket connection from all locations.
func (b *Broadcaster) Unsubscribe(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, conns := range b.connections {
		if conns[conn] {
			delete(conns, conn)
			feedUnsubscribes.Inc()
			feedConnections.Dec()
		}
		if len(conns) == 0 {
			delete(b.connections, key)
		}
	}
}

// Broadcast sends a report event to all subscribers of a location.
func (b *Broadcaster) Broadcast(locationKey string, event *ReportsEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	conns, exists := b.connections[locationKey]
	if !exists || len(conns) == 0 {
		return
	}

	// Serialize event once
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal report event", "error", err)
		return
	}

	feedBroadcasts.Inc()
	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Warn("failed to send message to websocket client",
				"error", err,
				"location_key", locationKey,
			)
			// Connection will be cleaned up when client disconnects
		}
	}
}

// ConnectionCount returns the number of active connections for a location.
func (b *Broadcaster) ConnectionCount(locationKey string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if conns, exists := b.connections[locationKey]; exists {
		return len(conns)
	}
	return 0
}

// LocationKeys returns the location keys with at least one subscriber.
func (b *Broadcaster) LocationKeys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.connections))
	for key := range b.connections {
		keys = append(keys, key)
	}
	return keys
}
