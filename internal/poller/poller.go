// Package poller matches new upstream reports against active alerts and
// sends SMS notifications. The delivery ledger makes each report at-most-once
// per phone, across runs and across overlapping alerts.
package poller

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sudd-bot/alert311/internal/address"
	"github.com/sudd-bot/alert311/internal/alert"
	"github.com/sudd-bot/alert311/internal/notify"
	"github.com/sudd-bot/alert311/internal/source"
	"github.com/sudd-bot/alert311/internal/user"
)

// defaultSearchLimit caps how many reports one alert's poll pulls per run.
const defaultSearchLimit = 50

// Stats summarizes one poll run.
type Stats struct {
	AlertsChecked  int `json:"alerts_checked"`
	ReportsMatched int `json:"reports_matched"`
	Deliveries     int `json:"deliveries"`
	SMSSent        int `json:"sms_sent"`
	Errors         int `json:"errors"`
}

// Runner executes poll runs.
type Runner struct {
	alerts     alert.Repository
	deliveries alert.DeliveryRepository
	users      user.Repository
	searcher   source.Searcher
	sender     notify.Sender

	searchLimit int
	logger      *slog.Logger
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Alerts     alert.Repository
	Deliveries alert.DeliveryRepository
	Users      user.Repository
	Searcher   source.Searcher
	Sender     notify.Sender

	// SearchLimit caps reports fetched per alert per run; zero means the default.
	SearchLimit int

	Logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(config RunnerConfig) *Runner {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := config.SearchLimit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return &Runner{
		alerts:      config.Alerts,
		deliveries:  config.Deliveries,
		users:       config.Users,
		searcher:    config.Searcher,
		sender:      config.Sender,
		searchLimit: limit,
		logger:      logger,
	}
}

// RunOnce polls the upstream once for every active alert. Errors on
// individual alerts or reports are logged and counted, never fatal: one
// broken alert must not starve the rest.
func (p *Runner) RunOnce(ctx context.Context) (Stats, error) {
	start := time.Now()
	var stats Stats

	alerts, err := p.alerts.ListActive(ctx)
	if err != nil {
		pollErrors.Inc()
		return stats, err
	}

	for _, a := range alerts {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.AlertsChecked++
		p.pollAlert(ctx, a, &stats)
	}

	pollRuns.Inc()
	p.logger.InfoContext(ctx, "poll run completed",
		"alerts_checked", stats.AlertsChecked,
		"reports_matched", stats.ReportsMatched,
		"deliveries", stats.Deliveries,
		"sms_sent", stats.SMSSent,
		"errors", stats.Errors,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return stats, nil
}

// pollAlert fetches reports near one alert and delivers the new matches.
func (p *Runner) pollAlert(ctx context.Context, a *alert.Alert, stats *Stats) {
	tickets, err := p.searcher.Search(ctx, source.SearchParams{
		Latitude:     a.Latitude,
		Longitude:    a.Longitude,
		TicketTypeID: a.ReportTypeID,
		Limit:        p.searchLimit,
		Scope:        source.ScopeRecentlyOpened,
	})
	if err != nil {
		stats.Errors++
		pollErrors.Inc()
		p.logger.ErrorContext(ctx, "poll search failed", "alert_id", a.ID, "error", err)
		return
	}

	for _, t := range tickets {
		if !address.Match(a.Address, t.Address) {
			continue
		}
		stats.ReportsMatched++
		pollMatches.Inc()
		p.deliver(ctx, a, t, stats)
	}
}

// deliver records the report in the ledger and sends the SMS when the
// report has not been delivered before.
func (p *Runner) deliver(ctx context.Context, a *alert.Alert, t source.Ticket, stats *Stats) {
	raw, err := json.Marshal(t)
	if err != nil {
		stats.Errors++
		p.logger.ErrorContext(ctx, "failed to marshal report", "report_id", t.ID, "error", err)
		return
	}

	inserted, err := p.deliveries.Record(ctx, &alert.Delivery{
		AlertID:    a.ID,
		ReportID:   t.ID,
		ReportData: raw,
	})
	if err != nil {
		stats.Errors++
		pollErrors.Inc()
		p.logger.ErrorContext(ctx, "failed to record delivery", "report_id", t.ID, "error", err)
		return
	}
	if !inserted {
		// Already delivered, possibly via another alert.
		return
	}
	stats.Deliveries++

	u, err := p.users.GetByID(ctx, a.UserID)
	if err != nil {
		stats.Errors++
		pollErrors.Inc()
		p.logger.ErrorContext(ctx, "failed to resolve alert owner", "alert_id", a.ID, "error", err)
		return
	}

	body := notify.FormatAlertMessage(notify.ReportSummary{
		TypeName:    t.TicketTypeName,
		Address:     t.Address,
		Description: t.Description,
		ReportID:    t.ID,
		CreatedAt:   formatCreatedAt(t.CreatedAt),
	})

	if _, err := p.sender.Send(ctx, u.Phone, body); err != nil {
		stats.Errors++
		pollErrors.Inc()
		p.logger.ErrorContext(ctx, "failed to send sms", "report_id", t.ID, "error", err)
		return
	}
	stats.SMSSent++
	pollSMSSent.Inc()

	if err := p.deliveries.MarkSMSSent(ctx, t.ID); err != nil {
		p.logger.WarnContext(ctx, "failed to mark sms sent", "report_id", t.ID, "error", err)
	}
}

// formatCreatedAt renders the upstream timestamp for the SMS body, falling
// back to the raw string when it does not parse.
func formatCreatedAt(raw string) string {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.Format("Jan 2, 2006 3:04 PM")
}
