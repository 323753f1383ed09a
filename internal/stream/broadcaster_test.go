package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sudd-bot/alert311/internal/report"
	"github.com/sudd-bot/alert311/internal/source"
)

// wsPair spins up a WebSocket echo endpoint and returns the server-side and
// client-side connections.
func wsPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverConns := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverConns <- conn
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-serverConns:
	case <-time.After(2 * time.Second):
		t.Fatal("server connection not established in time")
	}
	t.Cleanup(func() { server.Close() })

	return server, client
}

func TestBroadcaster_SubscribeAndCount(t *testing.T) {
	b := NewBroadcaster()
	conn1, _ := wsPair(t)
	conn2, _ := wsPair(t)

	if got := b.ConnectionCount("37.774900,-122.419400"); got != 0 {
		t.Errorf("initial count = %d, want 0", got)
	}

	b.Subscribe("37.774900,-122.419400", conn1)
	b.Subscribe("37.774900,-122.419400", conn2)
	b.Subscribe("37.780000,-122.400000", conn1)

	if got := b.ConnectionCount("37.774900,-122.419400"); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
	if got := b.ConnectionCount("37.780000,-122.400000"); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}

	keys := b.LocationKeys()
	if len(keys) != 2 {
		t.Errorf("got %d location keys, want 2", len(keys))
	}
}

func TestBroadcaster_SubscribeIdempotent(t *testing.T) {
	b := NewBroadcaster()
	conn, _ := wsPair(t)

	b.Subscribe("key-1", conn)
	b.Subscribe("key-1", conn)

	if got := b.ConnectionCount("key-1"); got != 1 {
		t.Errorf("count = %d, want 1 after duplicate subscribe", got)
	}
}

func TestBroadcaster_UnsubscribePrunesLocations(t *testing.T) {
	b := NewBroadcaster()
	conn1, _ := wsPair(t)
	conn2, _ := wsPair(t)

	b.Subscribe("key-1", conn1)
	b.Subscribe("key-1", conn2)
	b.Subscribe("key-2", conn1)

	b.Unsubscribe(conn1)

	if got := b.ConnectionCount("key-1"); got != 1 {
		t.Errorf("key-1 count = %d, want 1", got)
	}
	if got := b.ConnectionCount("key-2"); got != 0 {
		t.Errorf("key-2 count = %d, want 0", got)
	}

	// key-2 has no subscribers left, so it is pruned.
	keys := b.LocationKeys()
	if len(keys) != 1 || keys[0] != "key-1" {
		t.Errorf("location keys = %v, want [key-1]", keys)
	}
}

func TestBroadcaster_BroadcastDeliversToSubscribers(t *testing.T) {
	b := NewBroadcaster()
	server, client := wsPair(t)

	b.Subscribe("key-1", server)

	event := &ReportsEvent{
		Type:      "reports",
		Latitude:  37.7749,
		Longitude: -122.4194,
		FetchedAt: "2026-08-31T10:00:00Z",
		Reports: []report.Report{
			{ID: "r1", Type: "Encampment", Status: report.StatusOpen, Address: "123 Main St"},
		},
		Clusters: []report.Cluster{},
	}
	b.Broadcast("key-1", event)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}

	var got ReportsEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("failed to parse broadcast: %v", err)
	}
	if got.Type != "reports" {
		t.Errorf("type = %q, want reports", got.Type)
	}
	if len(got.Reports) != 1 || got.Reports[0].ID != "r1" {
		t.Errorf("reports = %+v, want one report r1", got.Reports)
	}
}

func TestBroadcaster_BroadcastToOtherLocationNotDelivered(t *testing.T) {
	b := NewBroadcaster()
	server, client := wsPair(t)

	b.Subscribe("key-1", server)
	b.Broadcast("key-2", &ReportsEvent{Type: "reports"})

	client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := client.ReadMessage(); err == nil {
		t.Error("expected no message for a different location key")
	}
}

func TestBroadcaster_ConcurrentSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	conns := make([]*websocket.Conn, 8)
	for i := range conns {
		conns[i], _ = wsPair(t)
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			b.Subscribe("key-1", c)
			b.Broadcast("key-1", &ReportsEvent{Type: "reports"})
			b.Unsubscribe(c)
		}(conn)
	}
	wg.Wait()

	if got := b.ConnectionCount("key-1"); got != 0 {
		t.Errorf("count = %d, want 0 after all unsubscribed", got)
	}
}

// mockSearcher returns canned tickets for feed tests.
type mockSearcher struct {
	mu      sync.Mutex
	tickets []source.Ticket
	calls   int
}

func (m *mockSearcher) Search(ctx context.Context, p source.SearchParams) ([]source.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.tickets, nil
}

func (m *mockSearcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
