// Package alertflow implements the phone-verification and subscription state
// machine behind the alert-creation panel: step transitions, resend-cooldown
// timing, duplicate-alert detection, and success confirmation.
package alertflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sudd-bot/alert311/internal/address"
	"github.com/sudd-bot/alert311/internal/phone"
)

// Step identifies where the flow currently is.
type Step string

// Flow steps, in forward order. StepSuccess is terminal; the flow closes
// shortly after reaching it.
const (
	StepCollectPhone Step = "collect-phone"
	StepVerifyCode   Step = "verify-code"
	StepChooseType   Step = "choose-type"
	StepSuccess      Step = "success"
)

// Timing and input constraints.
const (
	// ResendCooldownSeconds is the countdown started on entering the
	// verify-code step and restarted by every resend request.
	ResendCooldownSeconds = 30

	// CodeLength is the verification code length; reaching it triggers an
	// automatic verification attempt.
	CodeLength = 6

	// SuccessDismissDelay is how long the success confirmation stays up
	// before the flow closes itself.
	SuccessDismissDelay = 2500 * time.Millisecond
)

// NoticeLevel classifies a user-visible message.
type NoticeLevel string

// Notice levels.
const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// CreateAlertRequest is the subscription payload. Phone is supplied as the
// identifying credential.
type CreateAlertRequest struct {
	Phone        string  `json:"-"`
	Address      string  `json:"address"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	ReportTypeID string  `json:"report_type_id"`
}

// CreatedAlert is the alert record returned on successful subscription. The
// flow forwards it to its caller unmodified.
type CreatedAlert struct {
	ID           string  `json:"id"`
	Address      string  `json:"address"`
	ReportTypeID string  `json:"report_type_id"`
	Active       bool    `json:"active"`
	Latitude     float64 `json:"latitude,omitempty"`
	Longitude    float64 `json:"longitude,omitempty"`
}

// ExistingAlert is one row of the duplicate-check listing.
type ExistingAlert struct {
	Address      string `json:"address"`
	ReportTypeID string `json:"report_type_id"`
	Active       bool   `json:"active"`
}

// Backend is the flow's view of the alerting service.
type Backend interface {
	// RegisterPhone submits a phone for verification. It reports whether the
	// number is already verified, in which case no code is sent.
	RegisterPhone(ctx context.Context, phone string) (alreadyVerified bool, err error)

	// VerifyCode checks a verification code. A nil error means the code was
	// accepted.
	VerifyCode(ctx context.Context, phone, code string) error

	// CreateAlert creates the subscription.
	CreateAlert(ctx context.Context, req CreateAlertRequest) (*CreatedAlert, error)

	// ListAlerts returns the caller's existing alerts for duplicate detection.
	ListAlerts(ctx context.Context, phone string) ([]ExistingAlert, error)
}

// PhoneCache persists a verified phone number across sessions. Load returns
// an empty string when nothing is cached; errors on either side are treated
// as a cold start and never surfaced.
type PhoneCache interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, phone string) error
}

// Hooks are callbacks into the surrounding application. Any hook may be nil.
type Hooks struct {
	// OnCreated fires the moment a subscription is accepted, before the
	// success screen's auto-dismiss timer, so dependent UI can update
	// immediately.
	OnCreated func(CreatedAlert)

	// OnClose fires exactly once when the flow tears down, whether by
	// success auto-dismiss, manual confirmation, or explicit close.
	OnClose func()

	// OnNotice surfaces a transient user-visible message.
	OnNotice func(level NoticeLevel, message string)
}

// Config configures a flow for one alert-creation session at a location.
type Config struct {
	Backend Backend
	Cache   PhoneCache
	Hooks   Hooks

	// Clock defaults to the real clock; tests inject a mock.
	Clock clock.Clock

	Address   string
	Latitude  float64
	Longitude float64

	// DefaultReportTypeID preselects a report type when the flow opens.
	DefaultReportTypeID string
}

// Flow is one alert-creation session. It is created when the user opens the
// alert panel and torn down when the panel closes; reopening means a fresh
// Flow. Methods are safe for concurrent use, though the flow is effectively
// single-writer.
type Flow struct {
	mu sync.Mutex

	backend Backend
	cache   PhoneCache
	hooks   Hooks
	clock   clock.Clock

	locAddress string
	latitude   float64
	longitude  float64

	step         Step
	phone        string
	code         string
	reportTypeID string
	cooldown     int
	isDuplicate  bool
	inFlight     bool
	closed       bool

	cooldownTimer *clock.Timer
	dismissTimer  *clock.Timer
}

// New creates a flow at the collect-phone step. A previously verified phone
// number, if cached, pre-fills the phone field; a cache miss or error is a
// normal cold start.
func New(cfg Config) *Flow {
	c := cfg.Clock
	if c == nil {
		c = clock.New()
	}
	f := &Flow{
		backend:      cfg.Backend,
		cache:        cfg.Cache,
		hooks:        cfg.Hooks,
		clock:        c,
		locAddress:   cfg.Address,
		latitude:     cfg.Latitude,
		longitude:    cfg.Longitude,
		step:         StepCollectPhone,
		reportTypeID: cfg.DefaultReportTypeID,
	}
	if f.cache != nil {
		if cached, err := f.cache.Load(context.Background()); err == nil && cached != "" {
			f.phone = cached
		}
	}
	return f
}

// Step returns the current step.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Phone returns the current phone field value.
func (f *Flow) Phone() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phone
}

// Code returns the current verification code field value.
func (f *Flow) Code() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code
}

// ReportTypeID returns the selected report type.
func (f *Flow) ReportTypeID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reportTypeID
}

// ResendCooldown returns the seconds remaining before resend is allowed.
func (f *Flow) ResendCooldown() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cooldown
}

// IsDuplicate reports the advisory duplicate flag for the current selection.
// A true value never blocks submission; it only changes the warning shown.
func (f *Flow) IsDuplicate() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isDuplicate
}

// SetPhone updates the phone field as the user types.
func (f *Flow) SetPhone(value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step == StepCollectPhone && !f.closed {
		f.phone = value
	}
}

// SubmitPhone normalizes and submits the phone number. On success the flow
// advances to verify-code, or straight to choose-type when the backend
// reports the number already verified. On failure the flow stays put and the
// error is surfaced as a notice; the user may retry.
func (f *Flow) SubmitPhone(ctx context.Context) error {
	f.mu.Lock()
	if f.closed || f.step != StepCollectPhone || f.inFlight || f.phone == "" {
		f.mu.Unlock()
		return nil
	}
	normalized := phone.Normalize(f.phone)
	f.phone = normalized
	f.inFlight = true
	f.mu.Unlock()

	return f.register(ctx, normalized, false)
}

// RequestResend re-submits the phone to trigger a fresh code. Valid only in
// verify-code with the cooldown at zero. The 30-second countdown is restarted
// explicitly as part of the resend, regardless of prior countdown state.
func (f *Flow) RequestResend(ctx context.Context) error {
	f.mu.Lock()
	if f.closed || f.step != StepVerifyCode || f.cooldown > 0 || f.inFlight {
		f.mu.Unlock()
		return nil
	}
	p := f.phone
	f.inFlight = true
	f.mu.Unlock()

	return f.register(ctx, p, true)
}

// register performs the registration request shared by SubmitPhone and
// RequestResend and applies the resulting transition.
func (f *Flow) register(ctx context.Context, p string, isResend bool) error {
	alreadyVerified, err := f.backend.RegisterPhone(ctx, p)

	f.mu.Lock()
	f.inFlight = false
	if f.closed {
		f.mu.Unlock()
		return err
	}
	if err != nil {
		// Stay in the current step; countdown still restarts on resend so
		// the user cannot hammer the backend.
		if isResend && f.step == StepVerifyCode {
			f.startCooldownLocked(ResendCooldownSeconds)
		}
		f.mu.Unlock()
		f.notify(NoticeError, "Failed to send verification code. Please try again.")
		return err
	}

	if alreadyVerified {
		f.stopCooldownLocked()
		f.step = StepChooseType
		f.mu.Unlock()
		f.savePhone(ctx, p)
		f.refreshDuplicate(ctx)
		f.notify(NoticeSuccess, "Welcome back!")
		return nil
	}

	f.step = StepVerifyCode
	if !isResend {
		f.code = ""
	}
	f.startCooldownLocked(ResendCooldownSeconds)
	f.mu.Unlock()
	f.notify(NoticeSuccess, "Verification code sent!")
	return nil
}

// InputCode updates the verification code field. Non-digits are dropped and
// the value is capped at six digits; reaching exactly six triggers an
// automatic verification attempt.
func (f *Flow) InputCode(ctx context.Context, raw string) error {
	f.mu.Lock()
	if f.closed || f.step != StepVerifyCode {
		f.mu.Unlock()
		return nil
	}
	f.code = phone.DigitsOnly(raw, CodeLength)
	autoSubmit := len(f.code) == CodeLength && !f.inFlight
	f.mu.Unlock()

	if autoSubmit {
		return f.SubmitCode(ctx)
	}
	return nil
}

// SubmitCode verifies the entered code. The manual submit action and the
// automatic submit on the sixth digit share this path and behave identically.
func (f *Flow) SubmitCode(ctx context.Context) error {
	f.mu.Lock()
	if f.closed || f.step != StepVerifyCode || f.inFlight || len(f.code) != CodeLength {
		f.mu.Unlock()
		return nil
	}
	p, code := f.phone, f.code
	f.inFlight = true
	f.mu.Unlock()

	err := f.backend.VerifyCode(ctx, p, code)

	f.mu.Lock()
	f.inFlight = false
	if f.closed {
		f.mu.Unlock()
		return err
	}
	if err != nil {
		f.mu.Unlock()
		f.notify(NoticeError, "Invalid verification code")
		return err
	}
	f.stopCooldownLocked()
	f.step = StepChooseType
	f.mu.Unlock()

	f.savePhone(ctx, p)
	f.refreshDuplicate(ctx)
	f.notify(NoticeSuccess, "Phone verified!")
	return nil
}

// UseDifferentNumber returns to the collect-phone step, discarding the
// entered code and stopping the countdown.
func (f *Flow) UseDifferentNumber() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.step != StepVerifyCode {
		return
	}
	f.stopCooldownLocked()
	f.step = StepCollectPhone
	f.code = ""
	f.cooldown = 0
}

// SelectReportType changes the selected type and refreshes the advisory
// duplicate flag for it.
func (f *Flow) SelectReportType(ctx context.Context, typeID string) {
	f.mu.Lock()
	if f.closed || f.step != StepChooseType {
		f.mu.Unlock()
		return
	}
	f.reportTypeID = typeID
	f.mu.Unlock()

	f.refreshDuplicate(ctx)
}

// Submit creates the subscription. On success the surrounding application is
// notified immediately via OnCreated, the success screen is shown, and the
// flow auto-dismisses after SuccessDismissDelay. On failure the flow stays in
// choose-type with an error notice.
func (f *Flow) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.closed || f.step != StepChooseType || f.inFlight {
		f.mu.Unlock()
		return nil
	}
	req := CreateAlertRequest{
		Phone:        f.phone,
		Address:      f.locAddress,
		Latitude:     f.latitude,
		Longitude:    f.longitude,
		ReportTypeID: f.reportTypeID,
	}
	f.inFlight = true
	f.mu.Unlock()

	created, err := f.backend.CreateAlert(ctx, req)

	f.mu.Lock()
	f.inFlight = false
	if f.closed {
		f.mu.Unlock()
		return err
	}
	if err != nil {
		f.mu.Unlock()
		f.notify(NoticeError, "Failed to create alert. Please try again.")
		return err
	}

	f.step = StepSuccess
	f.dismissTimer = f.clock.AfterFunc(SuccessDismissDelay, f.Close)
	f.mu.Unlock()

	// Notify before the dismiss timer fires so dependent UI updates without
	// waiting out the success screen.
	if f.hooks.OnCreated != nil && created != nil {
		f.hooks.OnCreated(*created)
	}
	return nil
}

// ConfirmSuccess closes the flow from the success screen without waiting for
// the auto-dismiss timer.
func (f *Flow) ConfirmSuccess() {
	f.mu.Lock()
	isSuccess := f.step == StepSuccess && !f.closed
	f.mu.Unlock()
	if isSuccess {
		f.Close()
	}
}

// Close tears the flow down: all timers are canceled, in-progress state is
// discarded, and OnClose fires exactly once. A verified phone number survives
// in the external cache for the next session; nothing else does. Closing an
// already closed flow is a no-op.
func (f *Flow) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.stopCooldownLocked()
	if f.dismissTimer != nil {
		f.dismissTimer.Stop()
		f.dismissTimer = nil
	}
	f.step = StepCollectPhone
	f.phone = ""
	f.code = ""
	f.cooldown = 0
	f.isDuplicate = false
	f.mu.Unlock()

	if f.hooks.OnClose != nil {
		f.hooks.OnClose()
	}
}

// Closed reports whether the flow has been torn down.
func (f *Flow) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// startCooldownLocked (re)starts the resend countdown. Any previous countdown
// is canceled first; re-entering a state never restarts a timer implicitly,
// so every restart goes through here explicitly.
func (f *Flow) startCooldownLocked(seconds int) {
	f.stopCooldownLocked()
	f.cooldown = seconds
	if seconds > 0 {
		f.cooldownTimer = f.clock.AfterFunc(time.Second, f.cooldownTick)
	}
}

// stopCooldownLocked cancels the countdown timer so no tick can fire on a
// defunct flow.
func (f *Flow) stopCooldownLocked() {
	if f.cooldownTimer != nil {
		f.cooldownTimer.Stop()
		f.cooldownTimer = nil
	}
}

// cooldownTick decrements the countdown once per second until it reaches zero
// or the flow is torn down.
func (f *Flow) cooldownTick() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.cooldown == 0 {
		return
	}
	f.cooldown--
	if f.cooldown > 0 {
		f.cooldownTimer = f.clock.AfterFunc(time.Second, f.cooldownTick)
	} else {
		f.cooldownTimer = nil
	}
}

// refreshDuplicate queries existing subscriptions and recomputes the advisory
// duplicate flag: an active alert for the same report type whose address
// contains the street-level segment of the current address. Failures are
// ignored; the check is informational only and never blocks submission.
func (f *Flow) refreshDuplicate(ctx context.Context) {
	f.mu.Lock()
	if f.closed || f.step != StepChooseType || f.phone == "" {
		f.mu.Unlock()
		return
	}
	p, typeID := f.phone, f.reportTypeID
	street := strings.ToLower(address.StreetSegment(f.locAddress))
	f.mu.Unlock()

	existing, err := f.backend.ListAlerts(ctx, p)
	if err != nil {
		return
	}

	dup := false
	for _, a := range existing {
		if a.Active && a.ReportTypeID == typeID && strings.Contains(strings.ToLower(a.Address), street) {
			dup = true
			break
		}
	}

	f.mu.Lock()
	if !f.closed && f.step == StepChooseType {
		f.isDuplicate = dup
	}
	f.mu.Unlock()
}

// savePhone records a verified phone for future sessions. Cache write errors
// are swallowed; the cache is best-effort.
func (f *Flow) savePhone(ctx context.Context, p string) {
	if f.cache != nil {
		_ = f.cache.Save(ctx, p)
	}
}

func (f *Flow) notify(level NoticeLevel, message string) {
	if f.hooks.OnNotice != nil {
		f.hooks.OnNotice(level, message)
	}
}
