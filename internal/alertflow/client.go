package alertflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// RestBackend implements Backend against the Alert311 HTTP API. The device ID
// travels on every request so the server can key the verified-phone cache.
type RestBackend struct {
	http *resty.Client
}

// NewRestBackend creates a RestBackend. baseURL is the API root without a
// trailing slash; deviceID may be empty when the caller has none.
func NewRestBackend(http *resty.Client, baseURL, deviceID string) *RestBackend {
	http.SetBaseURL(baseURL)
	if deviceID != "" {
		http.SetHeader("X-Device-ID", deviceID)
	}
	return &RestBackend{http: http}
}

// apiError mirrors the server's error envelope.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeError turns a non-2xx response into an error carrying the server's
// message when one is present.
func decodeError(resp *resty.Response) error {
	var e apiError
	if err := json.Unmarshal(resp.Body(), &e); err == nil && e.Error.Message != "" {
		return fmt.Errorf("%s: %s", e.Error.Code, e.Error.Message)
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode())
}

// RegisterPhone submits a phone for verification.
func (b *RestBackend) RegisterPhone(ctx context.Context, phone string) (bool, error) {
	var out struct {
		AlreadyVerified bool `json:"already_verified"`
	}
	resp, err := b.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"phone": phone}).
		SetResult(&out).
		Post("/auth/register")
	if err != nil {
		return false, fmt.Errorf("register phone: %w", err)
	}
	if resp.IsError() {
		return false, decodeError(resp)
	}
	return out.AlreadyVerified, nil
}

// VerifyCode checks a verification code.
func (b *RestBackend) VerifyCode(ctx context.Context, phone, code string) error {
	resp, err := b.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"phone": phone, "code": code}).
		Post("/auth/verify")
	if err != nil {
		return fmt.Errorf("verify code: %w", err)
	}
	if resp.IsError() {
		return decodeError(resp)
	}
	return nil
}

// CreateAlert creates the subscription.
func (b *RestBackend) CreateAlert(ctx context.Context, req CreateAlertRequest) (*CreatedAlert, error) {
	body := map[string]any{
		"phone":          req.Phone,
		"address":        req.Address,
		"latitude":       req.Latitude,
		"longitude":      req.Longitude,
		"report_type_id": req.ReportTypeID,
	}
	var out CreatedAlert
	resp, err := b.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/alerts")
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	if resp.IsError() {
		return nil, decodeError(resp)
	}
	return &out, nil
}

// ListAlerts returns the caller's existing alerts for duplicate detection.
func (b *RestBackend) ListAlerts(ctx context.Context, phone string) ([]ExistingAlert, error) {
	var out struct {
		Alerts []ExistingAlert `json:"alerts"`
	}
	resp, err := b.http.R().
		SetContext(ctx).
		SetQueryParam("phone", phone).
		SetResult(&out).
		Get("/alerts")
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	if resp.IsError() {
		return nil, decodeError(resp)
	}
	return out.Alerts, nil
}
