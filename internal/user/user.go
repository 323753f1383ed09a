// Package user provides the subscriber model and repository. A user is a
// phone number that has gone, or is going, through verification.
package user

import (
	"errors"
	"time"
)

// ErrUserNotFound is returned when no user exists for the given lookup.
var ErrUserNotFound = errors.New("user not found")

// AccountType distinguishes free from paid subscribers.
type AccountType string

// Account types.
const (
	AccountFree AccountType = "free"
	AccountPaid AccountType = "paid"
)

// User is one phone-number identity. Verified flips to true after a
// successful verification check and never flips back.
type User struct {
	ID          string      `json:"id"`
	Phone       string      `json:"phone"`
	Verified    bool        `json:"verified"`
	AccountType AccountType `json:"account_type"`

	// VerificationSID tracks the in-flight Twilio verification, when any.
	VerificationSID *string `json:"verification_sid,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
