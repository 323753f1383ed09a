// Package report provides the report model and coordinate-based clustering
// used by the map layer and the list panel.
package report

// Report statuses as delivered by the report source.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Report is one civic-issue report as returned by the report source.
// A result set is immutable for the lifetime of a single query and is
// superseded wholesale on refresh; reports are never patched in place.
//
// PhotoURL, RawDate, PublicID, and DistanceMeters are optional; consumers
// must degrade gracefully when they are absent.
type Report struct {
	ID       string `json:"id"`
	PublicID string `json:"public_id,omitempty"`

	Type    string `json:"type"`
	Status  string `json:"status"`
	Address string `json:"address"`

	// Date is the display string; RawDate, when present, is the
	// machine-parseable timestamp and the preferred source of truth
	// for recency formatting.
	Date    string `json:"date"`
	RawDate string `json:"raw_date,omitempty"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	PhotoURL       string   `json:"photo_url,omitempty"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
}
