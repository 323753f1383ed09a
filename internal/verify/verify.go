// Package verify wraps the Twilio Verify API for phone-number verification:
// sending a code over SMS and checking the code the user enters.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	verifyv2 "github.com/twilio/twilio-go/rest/verify/v2"
)

// ErrNotApproved is returned when a verification check comes back with any
// status other than approved.
var ErrNotApproved = errors.New("verification code not approved")

// Verifier starts and checks phone verifications.
type Verifier interface {
	// Start sends a verification code to the phone over SMS and returns the
	// verification SID.
	Start(ctx context.Context, phone string) (string, error)

	// Check submits the user's code. A nil error means the code was approved.
	Check(ctx context.Context, phone, code string) error
}

// TwilioVerifier implements Verifier against the Twilio Verify v2 API.
type TwilioVerifier struct {
	client     *twilio.RestClient
	serviceSID string
	logger     *slog.Logger
}

// NewTwilioVerifier creates a TwilioVerifier for the given Verify service.
func NewTwilioVerifier(accountSID, authToken, serviceSID string, logger *slog.Logger) *TwilioVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioVerifier{
		client:     client,
		serviceSID: serviceSID,
		logger:     logger,
	}
}

// Start sends a verification code to the phone over SMS.
func (v *TwilioVerifier) Start(ctx context.Context, phone string) (string, error) {
	params := &verifyv2.CreateVerificationParams{}
	params.SetTo(phone)
	params.SetChannel("sms")

	resp, err := v.client.VerifyV2.CreateVerification(v.serviceSID, params)
	if err != nil {
		v.logger.Error("failed to start verification",
			slog.String("error", err.Error()))
		return "", fmt.Errorf("failed to start verification: %w", err)
	}
	if resp.Status == nil || *resp.Status != "pending" {
		return "", fmt.Errorf("unexpected verification status %q", statusOf(resp.Status))
	}
	if resp.Sid == nil {
		return "", errors.New("verification response missing sid")
	}
	return *resp.Sid, nil
}

// Check submits the user's code against the pending verification.
func (v *TwilioVerifier) Check(ctx context.Context, phone, code string) error {
	params := &verifyv2.CreateVerificationCheckParams{}
	params.SetTo(phone)
	params.SetCode(code)

	resp, err := v.client.VerifyV2.CreateVerificationCheck(v.serviceSID, params)
	if err != nil {
		v.logger.Error("failed to check verification",
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to check verification: %w", err)
	}
	if resp.Status == nil || *resp.Status != "approved" {
		return ErrNotApproved
	}
	return nil
}

func statusOf(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
