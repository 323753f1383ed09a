// Package geocode resolves street addresses to coordinates using the free
// Nominatim API, with an in-memory TTL cache so repeated lookups for the
// same address never leave the process.
package geocode

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	gocache "github.com/patrickmn/go-cache"

	"github.com/sudd-bot/alert311/internal/geo"
)

// cacheTTL keeps resolved addresses for a day; street addresses do not move.
const cacheTTL = 24 * time.Hour

// Coordinates is one successful geocoding result.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Resolver turns a street address into coordinates. A nil result with a nil
// error means the address could not be resolved.
type Resolver interface {
	Geocode(ctx context.Context, address string) (*Coordinates, error)
}

// NominatimResolver implements Resolver against the Nominatim search API.
// Lookups are biased to San Francisco and results outside the service area
// are treated as unresolved.
type NominatimResolver struct {
	http    *resty.Client
	baseURL string
	cache   *gocache.Cache
	logger  *slog.Logger
}

// NewNominatimResolver creates a resolver. baseURL defaults to the public
// Nominatim instance when empty.
func NewNominatimResolver(http *resty.Client, baseURL string, logger *slog.Logger) *NominatimResolver {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NominatimResolver{
		http:    http,
		baseURL: baseURL,
		cache:   gocache.New(cacheTTL, 2*cacheTTL),
		logger:  logger,
	}
}

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves an address to coordinates.
func (r *NominatimResolver) Geocode(ctx context.Context, address string) (*Coordinates, error) {
	key := strings.ToLower(strings.TrimSpace(address))
	if key == "" {
		return nil, nil
	}
	if cached, ok := r.cache.Get(key); ok {
		coords := cached.(Coordinates)
		return &coords, nil
	}

	// Appending the city improves accuracy for bare street addresses.
	full := address + ", San Francisco, CA, USA"

	var results []nominatimResult
	resp, err := r.http.R().
		SetContext(ctx).
		SetHeader("User-Agent", "alert311/1.0").
		SetQueryParams(map[string]string{
			"format": "json",
			"q":      full,
			"limit":  "1",
		}).
		SetResult(&results).
		Get(r.baseURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("failed to geocode %q: %w", address, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("geocoder returned status %d for %q", resp.StatusCode(), address)
	}
	if len(results) == 0 {
		return nil, nil
	}

	lat, latErr := strconv.ParseFloat(results[0].Lat, 64)
	lng, lngErr := strconv.ParseFloat(results[0].Lon, 64)
	if latErr != nil || lngErr != nil {
		return nil, fmt.Errorf("geocoder returned unparseable coordinates for %q", address)
	}
	if !geo.SanFrancisco.Contains(lat, lng) {
		r.logger.Warn("geocoded address outside service area",
			slog.String("address", address),
			slog.Float64("lat", lat),
			slog.Float64("lng", lng))
		return nil, nil
	}

	coords := Coordinates{Latitude: lat, Longitude: lng}
	r.cache.Set(key, coords, gocache.DefaultExpiration)
	return &coords, nil
}
