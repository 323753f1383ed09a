// Package api provides HTTP API utilities including standardized error handling.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sudd-bot/alert311/internal/middleware"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeAuthFailed indicates authentication failure.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeForbidden indicates the request is forbidden.
	ErrCodeForbidden = "forbidden"

	// ErrCodeConflict indicates a conflict with the current state.
	ErrCodeConflict = "conflict"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeInvalidPhone indicates the phone number could not be normalized
	// to a US E.164 number.
	ErrCodeInvalidPhone = "invalid_phone"

	// ErrCodePhoneNotVerified indicates the phone number has not completed
	// SMS verification.
	ErrCodePhoneNotVerified = "phone_not_verified"

	// ErrCodeVerificationFailed indicates the submitted code was not approved.
	ErrCodeVerificationFailed = "verification_failed"

	// ErrCodeVerificationUnavailable indicates the verification provider
	// rejected or failed the request.
	ErrCodeVerificationUnavailable = "verification_unavailable"

	// ErrCodeGeocodingFailed indicates the address could not be resolved to
	// coordinates.
	ErrCodeGeocodingFailed = "geocoding_failed"

	// ErrCodeOutsideServiceArea indicates coordinates fall outside the
	// San Francisco service boundary.
	ErrCodeOutsideServiceArea = "outside_service_area"

	// ErrCodeAlertNotFound indicates the alert was not found for this user.
	ErrCodeAlertNotFound = "alert_not_found"

	// ErrCodeUpstreamUnavailable indicates the report source could not be reached.
	ErrCodeUpstreamUnavailable = "upstream_unavailable"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
// It writes the appropriate HTTP status code and returns a JSON error body.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The error code is recorded on the request context so the logging middleware
// attaches it to the request log line for 4xx and 5xx responses.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	// Record the code for the logging middleware.
	middleware.SetErrorCode(ctx, code)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// StatusCodeMapping returns the recommended HTTP status code for common error codes.
// This is a convenience function to map error codes to HTTP status codes.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest, ErrCodeInvalidPhone:
		return http.StatusBadRequest
	case ErrCodeAuthFailed, ErrCodeVerificationFailed:
		return http.StatusUnauthorized
	case ErrCodeNotFound, ErrCodeAlertNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeForbidden, ErrCodePhoneNotVerified:
		return http.StatusForbidden
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeGeocodingFailed, ErrCodeOutsideServiceArea:
		return http.StatusUnprocessableEntity
	case ErrCodeUpstreamUnavailable, ErrCodeVerificationUnavailable:
		return http.StatusBadGateway
	case ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
