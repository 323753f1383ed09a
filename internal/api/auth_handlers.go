package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sudd-bot/alert311/internal/middleware"
	"github.com/sudd-bot/alert311/internal/phone"
	"github.com/sudd-bot/alert311/internal/phonecache"
	"github.com/sudd-bot/alert311/internal/user"
	"github.com/sudd-bot/alert311/internal/verify"
)

// AuthHandlers provides phone registration and verification endpoints.
type AuthHandlers struct {
	users    user.Repository
	verifier verify.Verifier
	phones   phonecache.Store
	logger   *slog.Logger
}

// NewAuthHandlers creates a new AuthHandlers.
func NewAuthHandlers(users user.Repository, verifier verify.Verifier, phones phonecache.Store, logger *slog.Logger) *AuthHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandlers{
		users:    users,
		verifier: verifier,
		phones:   phones,
		logger:   logger,
	}
}

// registerRequest is the request body for POST /auth/register.
type registerRequest struct {
	Phone string `json:"phone"`
}

// registerResponse is the response body for POST /auth/register.
type registerResponse struct {
	Phone           string `json:"phone"`
	AlreadyVerified bool   `json:"already_verified"`
	Status          string `json:"status,omitempty"`
}

// Register handles POST /auth/register.
// It upserts the user record for the phone number and starts an SMS
// verification, unless the number is already verified.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}

	normalized := phone.Normalize(req.Phone)
	if normalized == "" {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeInvalidPhone, "Phone must be a valid US number")
		return
	}

	u, err := h.users.Upsert(r.Context(), normalized)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to upsert user", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to register phone")
		return
	}

	if u.Verified {
		WriteJSON(w, http.StatusOK, registerResponse{Phone: normalized, AlreadyVerified: true})
		return
	}

	sid, err := h.verifier.Start(r.Context(), normalized)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to start verification", "error", err)
		WriteError(w, r.Context(), http.StatusBadGateway, ErrCodeVerificationUnavailable, "Failed to send verification code")
		return
	}

	if err := h.users.SetVerificationSID(r.Context(), normalized, sid); err != nil {
		h.logger.WarnContext(r.Context(), "failed to store verification sid", "error", err)
	}

	WriteJSON(w, http.StatusOK, registerResponse{Phone: normalized, AlreadyVerified: false, Status: "pending"})
}

// verifyRequest is the request body for POST /auth/verify.
type verifyRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// verifyResponse is the response body for POST /auth/verify.
type verifyResponse struct {
	Phone    string `json:"phone"`
	Verified bool   `json:"verified"`
}

// validateCode returns an error message for an invalid verification code,
// or empty string if valid.
func validateCode(code string) string {
	if len(code) != 6 {
		return "Code must be 6 digits"
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return "Code must be 6 digits"
		}
	}
	return ""
}

// Verify handles POST /auth/verify.
// It checks the verification code and marks the user verified. When the
// client sent a device ID, the verified phone is cached against it so later
// sessions skip verification.
func (h *AuthHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}

	normalized := phone.Normalize(req.Phone)
	if normalized == "" {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeInvalidPhone, "Phone must be a valid US number")
		return
	}
	if msg := validateCode(req.Code); msg != "" {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, msg)
		return
	}

	if err := h.verifier.Check(r.Context(), normalized, req.Code); err != nil {
		if errors.Is(err, verify.ErrNotApproved) {
			WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeVerificationFailed, "Incorrect verification code")
			return
		}
		h.logger.ErrorContext(r.Context(), "verification check failed", "error", err)
		WriteError(w, r.Context(), http.StatusBadGateway, ErrCodeVerificationUnavailable, "Failed to check verification code")
		return
	}

	if err := h.users.MarkVerified(r.Context(), normalized); err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Phone not registered")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to mark user verified", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to record verification")
		return
	}

	// Cache the verified phone against the device so later sessions skip
	// verification. Best effort: a cache failure never fails the request.
	if deviceID := middleware.GetDeviceID(r.Context()); deviceID != "" && h.phones != nil {
		if err := h.phones.Save(r.Context(), deviceID, normalized); err != nil {
			h.logger.WarnContext(r.Context(), "failed to cache verified phone", "error", err)
		}
	}

	WriteJSON(w, http.StatusOK, verifyResponse{Phone: normalized, Verified: true})
}

// meResponse is the response body for GET /auth/me.
type meResponse struct {
	Phone    string `json:"phone"`
	Verified bool   `json:"verified"`
}

// Me handles GET /auth/me.
// The phone comes from the device's cached verification when available,
// falling back to the phone query parameter.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	raw := r.URL.Query().Get("phone")
	if deviceID := middleware.GetDeviceID(r.Context()); deviceID != "" && h.phones != nil {
		if cached, err := h.phones.Load(r.Context(), deviceID); err == nil && cached != "" {
			raw = cached
		}
	}

	normalized := phone.Normalize(raw)
	if normalized == "" {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeInvalidPhone, "Phone must be a valid US number")
		return
	}

	u, err := h.users.GetByPhone(r.Context(), normalized)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Phone not registered")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to look up user", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to look up user")
		return
	}

	WriteJSON(w, http.StatusOK, meResponse{Phone: u.Phone, Verified: u.Verified})
}
