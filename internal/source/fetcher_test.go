package source

import (
	"context"
	"sync"
	"testing"
	"time"
)

// blockingSearcher parks each Search call until released, so tests can
// overlap requests deterministically.
type blockingSearcher struct {
	mu      sync.Mutex
	waiting []chan []Ticket
	started chan struct{}
}

func newBlockingSearcher() *blockingSearcher {
	return &blockingSearcher{started: make(chan struct{}, 16)}
}

func (s *blockingSearcher) Search(ctx context.Context, p SearchParams) ([]Ticket, error) {
	release := make(chan []Ticket)
	s.mu.Lock()
	s.waiting = append(s.waiting, release)
	s.mu.Unlock()
	s.started <- struct{}{}
	return <-release, nil
}

func (s *blockingSearcher) release(i int, tickets []Ticket) {
	s.mu.Lock()
	ch := s.waiting[i]
	s.mu.Unlock()
	ch <- tickets
}

func TestFetcher_LatestQueryWins(t *testing.T) {
	searcher := newBlockingSearcher()
	fetcher := NewFetcher(searcher)
	ctx := context.Background()

	type outcome struct {
		result  *Result
		current bool
		err     error
	}
	first := make(chan outcome, 1)
	second := make(chan outcome, 1)

	go func() {
		r, cur, err := fetcher.Fetch(ctx, SearchParams{Latitude: 37.77, Longitude: -122.41})
		first <- outcome{r, cur, err}
	}()
	<-searcher.started

	go func() {
		r, cur, err := fetcher.Fetch(ctx, SearchParams{Latitude: 37.78, Longitude: -122.42})
		second <- outcome{r, cur, err}
	}()
	<-searcher.started

	// The newer query completes first, then the stale one.
	searcher.release(1, []Ticket{{ID: "new"}})
	got2 := <-second
	searcher.release(0, []Ticket{{ID: "old"}})
	got1 := <-first

	if got1.err != nil || got2.err != nil {
		t.Fatalf("errors: %v, %v", got1.err, got2.err)
	}
	if got1.current {
		t.Error("superseded fetch reported current")
	}
	if got1.result != nil {
		t.Error("superseded fetch delivered a result")
	}
	if !got2.current {
		t.Fatal("newest fetch reported stale")
	}
	if len(got2.result.Tickets) != 1 || got2.result.Tickets[0].ID != "new" {
		t.Errorf("newest fetch result = %+v, want the new tickets", got2.result.Tickets)
	}
}

func TestMapTicket(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	closedAt := "2026-08-29T10:00:00Z"

	tickets := []Ticket{
		{
			ID:             "17338240",
			TicketTypeName: "Blocked driveway & illegal parking",
			Status:         "open",
			Address:        "61 Chattanooga St",
			Latitude:       37.7510,
			Longitude:      -122.4270,
			CreatedAt:      "2026-08-28T12:00:00Z",
		},
		{
			ID:        "17338241",
			Status:    "open",
			ClosedAt:  &closedAt,
			CreatedAt: "not-a-timestamp",
		},
	}

	open := MapTicket(tickets[0], 37.7512, -122.4270, now)
	if open.Status != "open" {
		t.Errorf("status = %q, want open", open.Status)
	}
	if open.Date != "2 days ago" {
		t.Errorf("date = %q, want relative label", open.Date)
	}
	if open.RawDate != "2026-08-28T12:00:00Z" {
		t.Errorf("raw date = %q, want upstream timestamp", open.RawDate)
	}
	if open.DistanceMeters == nil {
		t.Fatal("distance missing for valid coordinates")
	}
	// ~22m between the points; anything wildly off means a broken formula.
	if *open.DistanceMeters < 10 || *open.DistanceMeters > 40 {
		t.Errorf("distance = %.1fm, want roughly 22m", *open.DistanceMeters)
	}

	closed := MapTicket(tickets[1], 37.7512, -122.4270, now)
	if closed.Status != "closed" {
		t.Errorf("status = %q, want closed when closed_at is set", closed.Status)
	}
	// Unparseable timestamps fall back to the raw string.
	if closed.Date != "not-a-timestamp" {
		t.Errorf("date = %q, want raw fallback", closed.Date)
	}
}
