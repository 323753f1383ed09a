package report

import (
	"github.com/sudd-bot/alert311/internal/geo"
)

// Cluster is a set of reports sharing one quantized coordinate, rendered as a
// single map marker. Membership order follows source order, so the first
// member is the most relevant one; the source's ordering (distance, then
// recency) is never re-ranked here.
type Cluster struct {
	// Key is the quantized coordinate key shared by all members, or a
	// per-report key for reports whose coordinates could not be grouped.
	Key string `json:"key"`

	// Reports holds the cluster members in source order.
	Reports []Report `json:"reports"`
}

// Primary returns the first report in source order. It is the report shown on
// the marker and the first page of the popup.
func (c *Cluster) Primary() Report {
	return c.Reports[0]
}

// Size returns the number of reports in the cluster.
func (c *Cluster) Size() int {
	return len(c.Reports)
}

// Aggregate groups a flat report list into clusters keyed by latitude and
// longitude quantized to six decimal places. The returned cluster list follows
// first-appearance order of each group's first member in the input, and the
// function is pure: the same input list always yields clusters with the same
// primary members and membership order. An empty input yields an empty list.
//
// Reports with unusable coordinates (NaN, infinite, out of range) are never
// merged with each other or with anything else; each becomes its own
// singleton cluster.
func Aggregate(reports []Report) []Cluster {
	if len(reports) == 0 {
		return []Cluster{}
	}

	clusters := make([]Cluster, 0, len(reports))
	byKey := make(map[string]int, len(reports))

	for _, r := range reports {
		if !geo.Valid(r.Latitude, r.Longitude) {
			// Unresolvable key: singleton cluster, keyed by report identity
			// so it can never collide with a coordinate key.
			clusters = append(clusters, Cluster{
				Key:     "report:" + r.ID,
				Reports: []Report{r},
			})
			continue
		}

		key := geo.Key(r.Latitude, r.Longitude)
		if idx, ok := byKey[key]; ok {
			clusters[idx].Reports = append(clusters[idx].Reports, r)
			continue
		}
		byKey[key] = len(clusters)
		clusters = append(clusters, Cluster{
			Key:     key,
			Reports: []Report{r},
		})
	}

	return clusters
}

// FindCluster locates the cluster containing the report with the given ID and
// the report's position within it. Not-found is a valid, non-exceptional
// outcome; callers fall back to treating the report as a singleton cluster.
func FindCluster(clusters []Cluster, reportID string) (Cluster, int, bool) {
	for _, c := range clusters {
		for i, r := range c.Reports {
			if r.ID == reportID {
				return c, i, true
			}
		}
	}
	return Cluster{}, 0, false
}
