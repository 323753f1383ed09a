package report

import (
	"testing"
	"time"
)

func TestRelativeDate(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{name: "seconds", at: now.Add(-30 * time.Second), want: "just now"},
		{name: "minutes", at: now.Add(-5 * time.Minute), want: "5 minutes ago"},
		{name: "one hour", at: now.Add(-90 * time.Minute), want: "1 hour ago"},
		{name: "days", at: now.Add(-49 * time.Hour), want: "2 days ago"},
		{name: "one week", at: now.Add(-8 * 24 * time.Hour), want: "1 week ago"},
		{name: "months", at: now.Add(-70 * 24 * time.Hour), want: "2 months ago"},
		{name: "years", at: now.Add(-800 * 24 * time.Hour), want: "2 years ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RelativeDate(tt.at, now); got != tt.want {
				t.Errorf("RelativeDate = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatDistance(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name   string
		meters *float64
		want   string
	}{
		{name: "nil", meters: nil, want: ""},
		{name: "close", meters: f(52.4), want: "52m away"},
		{name: "under a tenth of a mile", meters: f(140), want: "140m away"},
		{name: "miles", meters: f(500), want: "0.3mi away"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDistance(tt.meters); got != tt.want {
				t.Errorf("FormatDistance = %q, want %q", got, tt.want)
			}
		})
	}
}
