// Package source is the client for the upstream civic-report service: an
// OAuth-protected GraphQL endpoint queried for reports near a coordinate.
// Responses are cached briefly per quantized coordinate so map interactions
// do not hammer the upstream.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	gocache "github.com/patrickmn/go-cache"

	"github.com/sudd-bot/alert311/internal/geo"
	"github.com/sudd-bot/alert311/internal/report"
)

// Search scopes accepted by the upstream.
const (
	ScopeRecentlyOpened = "recently_opened"
	ScopeRecentlyClosed = "recently_closed"
)

// exploreQuery is the upstream GraphQL query for reports near a point.
const exploreQuery = `
query ExploreQuery($scope: Scope!, $limit: Int, $order: OrderInput, $filters: FiltersInput) {
  explore(scope: $scope, limit: $limit, order: $order, filters: $filters) {
    id
    description
    address
    latitude
    longitude
    status
    ticket_type_id
    ticket_type_name
    created_at
    updated_at
    closed_at
  }
}
`

// Ticket is one report as the upstream returns it.
type Ticket struct {
	ID             string  `json:"id"`
	Description    string  `json:"description"`
	Address        string  `json:"address"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Status         string  `json:"status"`
	TicketTypeID   string  `json:"ticket_type_id"`
	TicketTypeName string  `json:"ticket_type_name"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
	ClosedAt       *string `json:"closed_at"`
	PhotoURL       string  `json:"photo_url,omitempty"`
}

// SearchParams narrows a nearby-report query.
type SearchParams struct {
	Latitude  float64
	Longitude float64

	// TicketTypeID filters to one report type when non-empty.
	TicketTypeID string

	// Search is a free-text filter.
	Search string

	// Limit caps the result count; zero means the upstream default.
	Limit int

	// Scope defaults to ScopeRecentlyOpened.
	Scope string
}

// Searcher queries the upstream for reports near a coordinate.
type Searcher interface {
	Search(ctx context.Context, p SearchParams) ([]Ticket, error)
}

// Client implements Searcher against the upstream GraphQL endpoint.
type Client struct {
	http       *resty.Client
	graphqlURL string
	tokens     *TokenSource
	cache      *gocache.Cache
	logger     *slog.Logger
}

// NewClient creates a Client. cacheTTL bounds how long a nearby-report
// response is reused for the same quantized coordinate and filters.
func NewClient(http *resty.Client, graphqlURL string, tokens *TokenSource, cacheTTL time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:       http,
		graphqlURL: graphqlURL,
		tokens:     tokens,
		cache:      gocache.New(cacheTTL, 2*cacheTTL),
		logger:     logger,
	}
}

type graphqlResponse struct {
	Data struct {
		Explore []Ticket `json:"explore"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Search queries the upstream for reports near a coordinate, serving
// repeated queries for the same spot from the TTL cache.
func (c *Client) Search(ctx context.Context, p SearchParams) ([]Ticket, error) {
	if p.Scope == "" {
		p.Scope = ScopeRecentlyOpened
	}
	key := cacheKey(p)
	if cached, ok := c.cache.Get(key); ok {
		upstreamRequests.WithLabelValues("cache_hit").Inc()
		return cached.([]Ticket), nil
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		upstreamRequests.WithLabelValues("auth_error").Inc()
		return nil, err
	}

	variables := map[string]any{
		"scope": p.Scope,
		"order": map[string]any{
			"latitude":  p.Latitude,
			"longitude": p.Longitude,
		},
		"filters": buildFilters(p),
	}
	if p.Limit > 0 {
		variables["limit"] = p.Limit
	}
	payload := map[string]any{
		"operationName": "ExploreQuery",
		"query":         exploreQuery,
		"variables":     variables,
	}

	var parsed graphqlResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetBody(payload).
		SetResult(&parsed).
		Post(c.graphqlURL)
	if err != nil {
		upstreamRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to query report source: %w", err)
	}
	if resp.IsError() {
		upstreamRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("report source returned status %d", resp.StatusCode())
	}
	if len(parsed.Errors) > 0 {
		upstreamRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("report source error: %s", parsed.Errors[0].Message)
	}
	upstreamRequests.WithLabelValues("ok").Inc()

	tickets := parsed.Data.Explore
	c.cache.Set(key, tickets, gocache.DefaultExpiration)
	return tickets, nil
}

func buildFilters(p SearchParams) map[string]any {
	filters := map[string]any{}
	if p.TicketTypeID != "" {
		filters["ticket_type_id"] = p.TicketTypeID
	}
	if p.Search != "" {
		filters["search"] = p.Search
	}
	return filters
}

func cacheKey(p SearchParams) string {
	return fmt.Sprintf("%s|%s|%s|%s|%d", geo.Key(p.Latitude, p.Longitude), p.Scope, p.TicketTypeID, p.Search, p.Limit)
}

// MapTicket converts an upstream ticket to the report shape served to
// clients: status folded to open/closed, recency label derived from the
// creation timestamp, distance computed from the query point.
func MapTicket(t Ticket, originLat, originLng float64, now time.Time) report.Report {
	r := report.Report{
		ID:        t.ID,
		PublicID:  t.ID,
		Type:      t.TicketTypeName,
		Status:    report.StatusOpen,
		Address:   t.Address,
		RawDate:   t.CreatedAt,
		Latitude:  t.Latitude,
		Longitude: t.Longitude,
		PhotoURL:  t.PhotoURL,
	}
	if strings.EqualFold(t.Status, report.StatusClosed) || (t.ClosedAt != nil && *t.ClosedAt != "") {
		r.Status = report.StatusClosed
	}
	if created, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
		r.Date = report.RelativeDate(created, now)
	} else {
		r.Date = t.CreatedAt
	}
	if geo.Valid(originLat, originLng) && geo.Valid(t.Latitude, t.Longitude) {
		d := geo.DistanceMeters(originLat, originLng, t.Latitude, t.Longitude)
		r.DistanceMeters = &d
	}
	return r
}
