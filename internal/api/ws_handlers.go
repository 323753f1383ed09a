// Package api provides HTTP handlers for live report WebSocket subscriptions.
package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/sudd-bot/alert311/internal/geo"
	"github.com/sudd-bot/alert311/internal/middleware"
	"github.com/sudd-bot/alert311/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper CORS checking based on configuration
		// For now, allow all origins (should be restricted in production)
		return true
	},
}

// WebSocketHandlers holds dependencies for the live report feed.
type WebSocketHandlers struct {
	feed *stream.Feed
}

// NewWebSocketHandlers creates a new WebSocketHandlers instance.
func NewWebSocketHandlers(feed *stream.Feed) *WebSocketHandlers {
	return &WebSocketHandlers{feed: feed}
}

// SubscribeToReports handles WebSocket connections for live nearby-report updates.
// GET /ws/reports?lat=...&lng=...
func (h *WebSocketHandlers) SubscribeToReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil || !geo.Valid(lat, lng) {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "lat and lng must be valid coordinates")
		return
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to upgrade websocket connection",
			"error", err,
		)
		return
	}

	key := h.feed.Subscribe(ctx, lat, lng, conn)

	requestID := middleware.GetRequestID(ctx)
	slog.InfoContext(ctx, "websocket client subscribed to report updates",
		"location_key", key,
		"request_id", requestID,
	)

	defer func() {
		h.feed.Unsubscribe(conn)
		conn.Close()
		slog.InfoContext(ctx, "websocket client unsubscribed",
			"location_key", key,
			"request_id", requestID,
		)
	}()

	// Keep connection alive - read messages to detect disconnection
	// We don't expect clients to send messages, but we need to read to detect when they disconnect
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.WarnContext(ctx, "websocket connection closed unexpectedly",
					"error", err,
					"location_key", key,
				)
			}
			break
		}
	}
}
