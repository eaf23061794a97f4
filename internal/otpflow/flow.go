// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package otpflow implements the phone verification state machine:
// send code, enter code, verify and receive the assigned survey link.
package otpflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
	"github.com/jonboulle/clockwork"
)

// Step is a state of the flow.
type Step string

const (
	StepSendCode  Step = "send_code"
	StepEnterCode Step = "enter_code"
	StepDone      Step = "done"
)

// DefaultResendSeconds is the wait before a code may be resent.
const DefaultResendSeconds = 60

var (
	// ErrBusy is returned when an action is issued while a request is in flight.
	ErrBusy = errors.New("otpflow: request already in progress")
	// ErrClosed is returned for actions on a closed flow.
	ErrClosed = errors.New("otpflow: flow closed")
	// ErrNoPhone is returned when a flow is opened without a phone number.
	ErrNoPhone = errors.New("otpflow: no phone number")
	// ErrInvalidPhone is returned when the phone is not 10 digits.
	ErrInvalidPhone = errors.New("otpflow: phone must be 10 digits")
	// ErrIncompleteCode is returned when fewer than 6 digits were entered.
	ErrIncompleteCode = errors.New("otpflow: code incomplete")
	// ErrResendNotReady is returned when resend is requested before the countdown ends.
	ErrResendNotReady = errors.New("otpflow: resend not yet allowed")
	// ErrWrongStep is returned when an action does not apply to the current step.
	ErrWrongStep = errors.New("otpflow: action not allowed in current step")
	// errStale marks a response that arrived for a discarded attempt.
	errStale = errors.New("otpflow: stale response")
)

// Backend is the subset of the API client the flow depends on.
type Backend interface {
	StartOtp(ctx context.Context, phone string) (*apiclient.StartOtpResult, error)
	CheckOtp(ctx context.Context, phone, code, email, name string) (*apiclient.CheckOtpResult, error)
	SendSurveyInvitation(ctx context.Context, phone string) (*apiclient.InvitationResult, error)
}

// EventType identifies a flow event pushed to observers.
type EventType string

const (
	EventTick        EventType = "tick"
	EventResendReady EventType = "resend_ready"
)

// Event is emitted by the countdown.
type Event struct {
	Type      EventType
	Remaining int
}

// Snapshot is a consistent copy of the flow state for rendering.
type Snapshot struct {
	Step             Step
	Phone            string
	Digits           CodeBuffer
	Focus            int
	SecondsRemaining int
	CanResend        bool
	Busy             bool
	Verified         bool
	Message          Message
	Link             string
}

// HasLink reports whether a survey link was assigned.
func (s Snapshot) HasLink() bool {
	return s.Link != ""
}

// InvitationPending reports the partial state where the code was accepted but
// no link could be issued yet, so the enter code step only retries the link.
func (s Snapshot) InvitationPending() bool {
	return s.Verified && s.Step == StepEnterCode
}

// Flow is one participant's verification attempt. It is safe for concurrent use.
type Flow struct {
	mu sync.Mutex

	backend Backend
	clock   clockwork.Clock
	seconds int
	notify  func(Event)

	phone string
	email string

	step      Step
	code      CodeBuffer
	focus     int
	countdown *Countdown
	verified  bool
	link      string
	message   Message
	notice    Message

	busy       bool
	epoch      uint64
	closed     bool
	lastActive time.Time
}

// NewFlow creates a flow for phone in the send code step.
func NewFlow(backend Backend, phone, email string, opts ...Option) *Flow {
	f := &Flow{
		backend: backend,
		clock:   clockwork.NewRealClock(),
		seconds: DefaultResendSeconds,
		phone:   phone,
		email:   email,
		step:    StepSendCode,
	}
	for _, o := range opts {
		o(f)
	}
	f.lastActive = f.clock.Now()
	return f
}

// Option configures a flow.
type Option func(*Flow)

// WithClock sets the time source.
func WithClock(c clockwork.Clock) Option {
	return func(f *Flow) { f.clock = c }
}

// WithResendSeconds sets the countdown length.
func WithResendSeconds(n int) Option {
	return func(f *Flow) {
		if n > 0 {
			f.seconds = n
		}
	}
}

// WithObserver registers fn to receive countdown events.
func WithObserver(fn func(Event)) Option {
	return func(f *Flow) { f.notify = fn }
}

// begin checks that an action may start and claims the busy flag.
// The caller holds f.mu.
func (f *Flow) begin() (uint64, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if f.busy {
		return 0, ErrBusy
	}
	f.lastActive = f.clock.Now()
	f.busy = true
	return f.epoch, nil
}

// settle reacquires f.mu after a request and reports whether its result is
// still current. The caller must unlock f.mu.
func (f *Flow) settle(epoch uint64) error {
	f.mu.Lock()
	if f.epoch != epoch || f.closed {
		return errStale
	}
	f.busy = false
	f.lastActive = f.clock.Now()
	return nil
}

// Send requests a verification code. Allowed in the send code step.
func (f *Flow) Send(ctx context.Context) error {
	f.mu.Lock()
	if f.step != StepSendCode {
		f.mu.Unlock()
		return ErrWrongStep
	}
	if len(f.phone) != 10 {
		f.message = idMessage(KindError, MsgInvalidPhone)
		f.mu.Unlock()
		return ErrInvalidPhone
	}
	epoch, err := f.begin()
	if err != nil {
		f.mu.Unlock()
		return err
	}
	f.message = Message{}
	phone := f.phone
	f.mu.Unlock()

	res, reqErr := f.backend.StartOtp(ctx, phone)

	if err := f.settle(epoch); err != nil {
		f.mu.Unlock()
		return nil
	}
	defer f.mu.Unlock()

	switch {
	case reqErr != nil:
		slog.WarnContext(ctx, "otp start failed", "error", reqErr)
		f.message = idMessage(KindError, MsgNetworkError)
		f.notice = serverOr(KindError, apiErrorText(reqErr), MsgNetworkError)
	case !res.OK:
		f.message = serverOr(KindError, res.Error, MsgSendFailed)
		f.notice = idMessage(KindError, MsgSendFailed)
	default:
		f.step = StepEnterCode
		f.restartLocked()
		f.notice = idMessage(KindSuccess, MsgCodeSent)
	}
	return nil
}

// Resend requests a new code once the countdown has expired.
func (f *Flow) Resend(ctx context.Context) error {
	f.mu.Lock()
	if f.step != StepEnterCode {
		f.mu.Unlock()
		return ErrWrongStep
	}
	if _, canResend := f.countdownStateLocked(); !canResend {
		f.mu.Unlock()
		return ErrResendNotReady
	}
	epoch, err := f.begin()
	if err != nil {
		f.mu.Unlock()
		return err
	}
	f.message = Message{}
	phone := f.phone
	f.mu.Unlock()

	res, reqErr := f.backend.StartOtp(ctx, phone)

	if err := f.settle(epoch); err != nil {
		f.mu.Unlock()
		return nil
	}
	defer f.mu.Unlock()

	switch {
	case reqErr != nil:
		slog.WarnContext(ctx, "otp resend failed", "error", reqErr)
		f.message = serverOr(KindError, apiErrorText(reqErr), MsgNetworkError)
	case !res.OK:
		f.message = serverOr(KindError, res.Error, MsgResendFailed)
	default:
		f.restartLocked()
		f.message = idMessage(KindInfo, MsgCodeResent)
	}
	return nil
}

// SetDigit stores input for cell i and returns the cell to focus next.
func (f *Flow) SetDigit(i int, s string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focus = f.code.Set(i, s)
	return f.focus
}

// Backspace handles a backspace in cell i and returns the cell to focus.
func (f *Flow) Backspace(i int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focus = f.code.Backspace(i)
	return f.focus
}

// SetCode replaces all cells with the digits of code.
func (f *Flow) SetCode(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.code.Fill(code)
	f.focus = f.code.FirstEmpty()
}

// Verify submits the entered code and, once accepted, requests the survey
// link. After the code was accepted, further calls only retry the link.
func (f *Flow) Verify(ctx context.Context) error {
	f.mu.Lock()
	if f.step != StepEnterCode {
		f.mu.Unlock()
		return ErrWrongStep
	}
	if !f.verified && !f.code.Complete() {
		f.message = idMessage(KindError, MsgEnterAllDigits)
		f.notice = idMessage(KindError, MsgEnterAllDigits)
		f.mu.Unlock()
		return ErrIncompleteCode
	}
	epoch, err := f.begin()
	if err != nil {
		f.mu.Unlock()
		return err
	}
	f.message = Message{}
	phone, email, code, verified := f.phone, f.email, f.code.Code(), f.verified
	f.mu.Unlock()

	if !verified {
		res, reqErr := f.backend.CheckOtp(ctx, phone, code, email, "")
		if err := f.settle(epoch); err != nil {
			f.mu.Unlock()
			return nil
		}
		switch {
		case reqErr != nil:
			slog.WarnContext(ctx, "otp check failed", "error", reqErr)
			f.message = failureMessage(reqErr)
			f.mu.Unlock()
			return nil
		case !res.Verified:
			f.code.Clear()
			f.focus = 0
			f.message = idMessage(KindError, MsgCodeInvalid)
			f.mu.Unlock()
			return nil
		}
		f.verified = true
		f.busy = true
		f.mu.Unlock()
	}

	res, reqErr := f.backend.SendSurveyInvitation(ctx, phone)

	if err := f.settle(epoch); err != nil {
		f.mu.Unlock()
		return nil
	}
	defer f.mu.Unlock()

	switch {
	case reqErr != nil:
		slog.WarnContext(ctx, "survey invitation failed", "error", reqErr)
		f.message = failureMessage(reqErr)
	case !res.OK:
		f.message = serverOr(KindError, res.Error, MsgNoSurveyLink)
	default:
		f.link = res.LinkURL
		f.step = StepDone
		f.stopLocked()
		f.message = Message{}
		f.notice = idMessage(KindSuccess, MsgVerified)
	}
	return nil
}

// Cancel returns to the send code step, discarding any attempt in flight.
// An accepted code stays accepted: the next Verify after a new send only
// retries the survey link.
func (f *Flow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.step == StepDone {
		return
	}
	f.epoch++
	f.busy = false
	f.stopLocked()
	f.step = StepSendCode
	f.code.Clear()
	f.focus = 0
	f.message = Message{}
	f.lastActive = f.clock.Now()
}

// Close stops the countdown and rejects further actions.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.epoch++
	f.busy = false
	f.stopLocked()
}

// UpdateContact replaces the email sent along with the code check.
func (f *Flow) UpdateContact(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.email = email
}

// Phone returns the raw phone digits of the flow.
func (f *Flow) Phone() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phone
}

// Snapshot returns a copy of the current state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	remaining, canResend := f.countdownStateLocked()
	return Snapshot{
		Step:             f.step,
		Phone:            f.phone,
		Digits:           f.code,
		Focus:            f.focus,
		SecondsRemaining: remaining,
		CanResend:        canResend,
		Busy:             f.busy,
		Verified:         f.verified,
		Message:          f.message,
		Link:             f.link,
	}
}

// PopNotice returns and clears the pending toast notice.
func (f *Flow) PopNotice() Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.notice
	f.notice = Message{}
	return n
}

// Closed reports whether the flow was closed.
func (f *Flow) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// IdleSince returns the time of the last action.
func (f *Flow) IdleSince() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastActive
}

// restartLocked clears the code and starts a fresh countdown.
func (f *Flow) restartLocked() {
	f.stopLocked()
	f.code.Clear()
	f.focus = 0
	f.countdown = StartCountdown(f.clock, f.seconds, f.tickObserver())
}

func (f *Flow) stopLocked() {
	if f.countdown != nil {
		f.countdown.Stop()
		f.countdown = nil
	}
}

func (f *Flow) countdownStateLocked() (int, bool) {
	if f.step != StepEnterCode {
		return f.seconds, false
	}
	if f.countdown == nil {
		return 0, true
	}
	return f.countdown.State()
}

func (f *Flow) tickObserver() TickFunc {
	notify := f.notify
	if notify == nil {
		return nil
	}
	return func(remaining int, canResend bool) {
		if canResend {
			notify(Event{Type: EventResendReady})
			return
		}
		notify(Event{Type: EventTick, Remaining: remaining})
	}
}

// failureMessage renders a thrown request error as "Error: <message>".
func failureMessage(err error) Message {
	if text := apiErrorText(err); text != "" {
		return textMessage(KindError, "Error: "+text)
	}
	return idMessage(KindError, MsgNetworkError)
}
