// Package alert provides the alert subscription model, its repository, and
// the delivery ledger that guarantees each matched report is texted at most
// once.
package alert

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors for alert operations.
var (
	ErrAlertNotFound = errors.New("alert not found")
)

// Alert is a subscription: notify one phone number about new reports of one
// type at one address.
type Alert struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	ReportTypeID   string `json:"report_type_id"`
	ReportTypeName string `json:"report_type_name"`

	Active bool `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Delivery is one ledger row: a report seen for an alert, with the raw
// upstream payload and whether the SMS went out. ReportID is unique across
// the ledger so a report can never be delivered twice.
type Delivery struct {
	ID       string `json:"id"`
	AlertID  string `json:"alert_id"`
	ReportID string `json:"report_id"`

	ReportData json.RawMessage `json:"report_data"`
	SMSSent    bool            `json:"sms_sent"`

	CreatedAt time.Time `json:"created_at"`
}
