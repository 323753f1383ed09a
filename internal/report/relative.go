package report

import (
	"fmt"
	"time"
)

// RelativeDate renders a timestamp as the coarse recency label shown on a
// report card: "just now", "3 hours ago", "2 days ago", "1 week ago".
func RelativeDate(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour")
	case d < 7*24*time.Hour:
		return plural(int(d.Hours()/24), "day")
	case d < 30*24*time.Hour:
		return plural(int(d.Hours()/(24*7)), "week")
	case d < 365*24*time.Hour:
		return plural(int(d.Hours()/(24*30)), "month")
	default:
		return plural(int(d.Hours()/(24*365)), "year")
	}
}

func plural(n int, unit string) string {
	if n <= 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// FormatDistance renders a distance for a report card: meters under roughly
// a tenth of a mile, tenths of a mile above that. A nil distance renders as
// an empty string.
func FormatDistance(meters *float64) string {
	if meters == nil {
		return ""
	}
	m := *meters
	miles := m / 1609.34
	if m < 100 || miles < 0.1 {
		return fmt.Sprintf("%dm away", int(m+0.5))
	}
	return fmt.Sprintf("%.1fmi away", miles)
}
