// Package selection tracks which report is currently highlighted and keeps
// the map popup, popup pagination, and the scrollable list panel consistent
// with it.
package selection

import (
	"sync"

	"github.com/sudd-bot/alert311/internal/report"
)

// SelectZoom is the zoom level requested when centering the map on a report
// selected from the list panel.
const SelectZoom = 17

// Direction is a pagination direction within a cluster popup.
type Direction int

// Pagination directions.
const (
	Prev Direction = iota
	Next
)

// MapController receives viewport side effects. The coordinator only issues
// recenter requests; it never owns or reads back camera state.
type MapController interface {
	CenterOn(lat, lng float64, zoom int)
}

// ListView receives scroll side effects for the list panel. IsVisible reports
// whether the card for a report is already fully visible, letting the
// coordinator skip redundant scrolls that would cause visual jitter.
type ListView interface {
	IsVisible(reportID string) bool
	ScrollTo(reportID string)
}

// Coordinator is the single source of truth for the active report. At most
// one report is active at a time; activating a new one fully replaces the
// previous selection.
//
// Methods are safe for concurrent use, though by construction the coordinator
// has a single writer per session.
type Coordinator struct {
	mu sync.Mutex

	clusters    []report.Cluster
	active      *report.Cluster
	activeIndex int

	mapCtrl MapController
	list    ListView
}

// NewCoordinator creates a coordinator. mapCtrl and list may be nil, in which
// case the corresponding side effects are skipped.
func NewCoordinator(mapCtrl MapController, list ListView) *Coordinator {
	return &Coordinator{
		mapCtrl: mapCtrl,
		list:    list,
	}
}

// SetClusters replaces the current aggregation, typically after a fresh report
// fetch. If the active report still exists in the new aggregation the
// selection is re-resolved against it; otherwise the selection is cleared so
// it can never reference a cluster outside the current result set.
func (c *Coordinator) SetClusters(clusters []report.Cluster) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clusters = clusters

	if c.active == nil {
		return
	}
	activeID := c.active.Reports[c.activeIndex].ID
	if cluster, idx, found := report.FindCluster(clusters, activeID); found {
		c.active = &cluster
		c.activeIndex = idx
		return
	}
	c.active = nil
	c.activeIndex = 0
}

// SelectFromMarker activates a cluster from a marker click. The popup opens on
// the cluster's primary report.
func (c *Coordinator) SelectFromMarker(cluster report.Cluster) {
	c.mu.Lock()
	c.active = &cluster
	c.activeIndex = 0
	id := cluster.Primary().ID
	c.mu.Unlock()

	c.scrollIntoView(id)
}

// SelectFromListItem activates a report from a list panel tap. The containing
// cluster is resolved from the current aggregation; if the report is not part
// of it, the report is treated as a singleton cluster of one. The map is asked
// to center on the report's coordinate as a side effect.
func (c *Coordinator) SelectFromListItem(r report.Report) {
	c.mu.Lock()
	if cluster, idx, found := report.FindCluster(c.clusters, r.ID); found {
		c.active = &cluster
		c.activeIndex = idx
	} else {
		c.active = &report.Cluster{
			Key:     "report:" + r.ID,
			Reports: []report.Report{r},
		}
		c.activeIndex = 0
	}
	c.mu.Unlock()

	if c.mapCtrl != nil {
		c.mapCtrl.CenterOn(r.Latitude, r.Longitude, SelectZoom)
	}
	c.scrollIntoView(r.ID)
}

// Paginate moves the popup within the active cluster. It is meaningful only
// when the active cluster has more than one member; stepping past either end
// is a no-op, not an error.
func (c *Coordinator) Paginate(dir Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || c.active.Size() <= 1 {
		return
	}

	switch dir {
	case Prev:
		if c.activeIndex > 0 {
			c.activeIndex--
		}
	case Next:
		if c.activeIndex < c.active.Size()-1 {
			c.activeIndex++
		}
	}
}

// Clear resets the selection. Called when the user leaves the current location
// context or closes the popup.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = nil
	c.activeIndex = 0
}

// ActiveReportID returns the ID of the active report, or false when nothing
// is selected. The list panel uses this to highlight and auto-scroll.
func (c *Coordinator) ActiveReportID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return "", false
	}
	return c.active.Reports[c.activeIndex].ID, true
}

// Active returns the active cluster and the index of the active report within
// it. The popup renders from these.
func (c *Coordinator) Active() (report.Cluster, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return report.Cluster{}, 0, false
	}
	return *c.active, c.activeIndex, true
}

// scrollIntoView asks the list panel to bring the active card on screen,
// skipping the request when the card is already fully visible.
func (c *Coordinator) scrollIntoView(reportID string) {
	if c.list == nil {
		return
	}
	if c.list.IsVisible(reportID) {
		return
	}
	c.list.ScrollTo(reportID)
}
