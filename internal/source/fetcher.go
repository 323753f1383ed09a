package source

import (
	"context"
	"sync"
	"time"
)

// Fetcher serializes nearby-report queries per location so only the newest
// query's results are ever delivered. When the user moves the map faster
// than the upstream answers, responses for abandoned coordinates are
// discarded instead of clobbering the current view.
type Fetcher struct {
	searcher Searcher

	mu  sync.Mutex
	seq uint64
}

// NewFetcher creates a Fetcher on top of a Searcher.
func NewFetcher(searcher Searcher) *Fetcher {
	return &Fetcher{searcher: searcher}
}

// Result is one delivered nearby-report response.
type Result struct {
	Tickets   []Ticket
	Latitude  float64
	Longitude float64
	FetchedAt time.Time
}

// Fetch queries the upstream for the given params. The boolean reports
// whether the result is current: false means a newer Fetch started while
// this one was in flight and its result must be dropped.
func (f *Fetcher) Fetch(ctx context.Context, p SearchParams) (*Result, bool, error) {
	f.mu.Lock()
	f.seq++
	mySeq := f.seq
	f.mu.Unlock()

	tickets, err := f.searcher.Search(ctx, p)

	f.mu.Lock()
	current := f.seq == mySeq
	f.mu.Unlock()

	if !current {
		staleResultsDiscarded.Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, true, err
	}
	return &Result{
		Tickets:   tickets,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		FetchedAt: time.Now(),
	}, true, nil
}
