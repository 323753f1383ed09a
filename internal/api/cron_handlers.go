package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sudd-bot/alert311/internal/poller"
)

// PollRunner executes one poll run. Implemented by poller.Runner.
type PollRunner interface {
	RunOnce(ctx context.Context) (poller.Stats, error)
}

// CronHandlers provides the external poll trigger endpoint, for deployments
// where the schedule lives outside the process (a platform cron hitting the
// API instead of the in-process scheduler).
type CronHandlers struct {
	secret string
	runner PollRunner
	logger *slog.Logger
}

// NewCronHandlers creates a new CronHandlers.
func NewCronHandlers(secret string, runner PollRunner, logger *slog.Logger) *CronHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &CronHandlers{secret: secret, runner: runner, logger: logger}
}

// Poll handles POST /cron/poll. The caller authenticates with
// "Authorization: Bearer <secret>".
func (h *CronHandlers) Poll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
		WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid cron secret")
		return
	}

	stats, err := h.runner.RunOnce(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "poll run failed", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Poll run failed")
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}
