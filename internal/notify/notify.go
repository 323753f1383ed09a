// Package notify sends alert SMS messages via Twilio.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ReportSummary carries the report fields that appear in an alert message.
type ReportSummary struct {
	TypeName    string
	Address     string
	Description string
	ReportID    string
	CreatedAt   string
}

// Sender delivers one SMS and returns the provider's message SID.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// TwilioSender implements Sender using the Twilio Messaging API.
type TwilioSender struct {
	client     *twilio.RestClient
	fromNumber string
	logger     *slog.Logger
}

// NewTwilioSender creates a TwilioSender sending from the given number.
func NewTwilioSender(accountSID, authToken, fromNumber string, logger *slog.Logger) *TwilioSender {
	if logger == nil {
		logger = slog.Default()
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{
		client:     client,
		fromNumber: fromNumber,
		logger:     logger,
	}
}

// Send delivers one SMS.
func (s *TwilioSender) Send(ctx context.Context, to, body string) (string, error) {
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.fromNumber)
	params.SetBody(body)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		s.logger.Error("failed to send sms",
			slog.String("error", err.Error()))
		return "", fmt.Errorf("failed to send sms: %w", err)
	}
	if resp.Sid == nil {
		return "", errors.New("sms response missing sid")
	}
	return *resp.Sid, nil
}

// FormatAlertMessage renders a matched report as the alert SMS body. Missing
// timestamp and report ID lines are omitted rather than left blank.
func FormatAlertMessage(r ReportSummary) string {
	typeName := r.TypeName
	if typeName == "" {
		typeName = "Unknown"
	}
	addr := r.Address
	if addr == "" {
		addr = "Unknown location"
	}
	desc := r.Description
	if desc == "" {
		desc = "No description"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🚨 Alert311: New %s report\n\n", typeName)
	fmt.Fprintf(&b, "📍 %s\n", addr)
	fmt.Fprintf(&b, "📝 %s\n", desc)
	if r.CreatedAt != "" {
		fmt.Fprintf(&b, "🕐 %s\n", r.CreatedAt)
	}
	if r.ReportID != "" {
		fmt.Fprintf(&b, "\nReport ID: %s", r.ReportID)
	}
	return b.String()
}
