package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"github.com/sudd-bot/alert311/internal/geo"
	"github.com/sudd-bot/alert311/internal/report"
	"github.com/sudd-bot/alert311/internal/source"
)

// fetchTimeout bounds one upstream refresh.
const fetchTimeout = 30 * time.Second

// location is one subscribed map position.
type location struct {
	lat, lng float64
	fetcher  *source.Fetcher
}

// Feed periodically refreshes nearby reports for every subscribed location
// and broadcasts the results. Each location gets its own fetcher so stale
// upstream responses are dropped per location, never across locations.
type Feed struct {
	searcher    source.Searcher
	broadcaster *Broadcaster
	interval    time.Duration
	clock       clock.Clock
	logger      *slog.Logger

	mu        sync.Mutex
	locations map[string]*location // location key -> position
}

// FeedConfig configures a Feed.
type FeedConfig struct {
	Searcher    source.Searcher
	Broadcaster *Broadcaster

	// Interval between refreshes of each subscribed location.
	Interval time.Duration

	// Clock is swappable for tests; nil means the real clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// NewFeed creates a Feed.
func NewFeed(config FeedConfig) *Feed {
	c := config.Clock
	if c == nil {
		c = clock.New()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		searcher:    config.Searcher,
		broadcaster: config.Broadcaster,
		interval:    config.Interval,
		clock:       c,
		logger:      logger,
		locations:   make(map[string]*location),
	}
}

// Subscribe registers a connection for the quantized location and pushes an
// immediate refresh so the client never waits a full interval for data.
func (f *Feed) Subscribe(ctx context.Context, lat, lng float64, conn *websocket.Conn) string {
	key := geo.Key(lat, lng)

	f.mu.Lock()
	if _, ok := f.locations[key]; !ok {
		f.locations[key] = &location{lat: lat, lng: lng, fetcher: source.NewFetcher(f.searcher)}
	}
	f.mu.Unlock()

	f.broadcaster.Subscribe(key, conn)

	go f.refresh(ctx, key)
	return key
}

// Unsubscribe removes a connection and prunes locations nobody watches.
func (f *Feed) Unsubscribe(conn *websocket.Conn) {
	f.broadcaster.Unsubscribe(conn)

	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.locations {
		if f.broadcaster.ConnectionCount(key) == 0 {
			delete(f.locations, key)
		}
	}
}

// Run refreshes all subscribed locations on the configured interval until
// the context is canceled.
func (f *Feed) Run(ctx context.Context) {
	ticker := f.clock.Ticker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, key := range f.broadcaster.LocationKeys() {
				f.refresh(ctx, key)
			}
		}
	}
}

// refresh fetches reports for one location and broadcasts the result.
// Stale responses, superseded by a newer fetch for the same location, are
// dropped by the fetcher.
func (f *Feed) refresh(ctx context.Context, key string) {
	f.mu.Lock()
	loc, ok := f.locations[key]
	f.mu.Unlock()
	if !ok {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	result, current, err := loc.fetcher.Fetch(fetchCtx, source.SearchParams{
		Latitude:  loc.lat,
		Longitude: loc.lng,
	})
	if err != nil {
		f.logger.WarnContext(ctx, "feed refresh failed", "location_key", key, "error", err)
		return
	}
	if !current {
		return
	}

	now := time.Now()
	reports := make([]report.Report, 0, len(result.Tickets))
	for _, t := range result.Tickets {
		reports = append(reports, source.MapTicket(t, loc.lat, loc.lng, now))
	}

	f.broadcaster.Broadcast(key, &ReportsEvent{
		Type:      "reports",
		Latitude:  loc.lat,
		Longitude: loc.lng,
		FetchedAt: result.FetchedAt.UTC().Format(time.RFC3339),
		Reports:   reports,
		Clusters:  report.Aggregate(reports),
	})
}
