package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sudd-bot/alert311/internal/phone"
	"github.com/sudd-bot/alert311/internal/user"
)

// requireVerifiedUser resolves a raw phone number to a verified user.
// It writes the error response and returns nil when the caller may not
// proceed. Alert and report endpoints identify callers the same way, so
// they share this check.
func requireVerifiedUser(w http.ResponseWriter, r *http.Request, users user.Repository, logger *slog.Logger, rawPhone string) *user.User {
	normalized := phone.Normalize(rawPhone)
	if normalized == "" {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeInvalidPhone, "Phone must be a valid US number")
		return nil
	}

	u, err := users.GetByPhone(r.Context(), normalized)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			WriteError(w, r.Context(), http.StatusForbidden, ErrCodePhoneNotVerified, "Phone number is not verified")
			return nil
		}
		logger.ErrorContext(r.Context(), "failed to look up user", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to look up user")
		return nil
	}
	if !u.Verified {
		WriteError(w, r.Context(), http.StatusForbidden, ErrCodePhoneNotVerified, "Phone number is not verified")
		return nil
	}
	return u
}
