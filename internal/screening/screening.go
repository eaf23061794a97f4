// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package screening implements the eligibility and contact wizard that
// precedes phone verification.
package screening

import (
	"context"
	"log/slog"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
	"codeberg.org/smsresearch/studyportal/internal/otpflow"
	"codeberg.org/smsresearch/studyportal/internal/verification"
	"github.com/go-playground/validator/v10"
)

// Step is a page of the wizard.
type Step string

const (
	StepScreening  Step = "screening"
	StepContact    Step = "contact"
	StepConfirm    Step = "confirm"
	StepIneligible Step = "ineligible"
)

// Translation message IDs.
const (
	MsgAnswerAll         = "screening_answer_all"
	MsgPhoneRequired     = "screening_phone_required"
	MsgPhoneIncomplete   = "screening_phone_incomplete"
	MsgEmailInvalid      = "screening_email_invalid"
	MsgPhoneLookupFailed = "screening_phone_lookup_failed"
)

// State is the wizard state of one browser session. Values are immutable.
type State struct {
	Step     Step           `json:"step"`
	Answers  Answers        `json:"answers"`
	Dialog   otpflow.Dialog `json:"dialog"`
	ErrorID  string         `json:"error_id"`
	Recovery *Recovery      `json:"recovery,omitempty"`
}

// Recovery is the result of resending an existing link from the already
// used dialog.
type Recovery struct {
	MessageID   string       `json:"message_id"`
	MessageText string       `json:"message_text"`
	Kind        otpflow.Kind `json:"kind"`
	HadLink     bool         `json:"had_link"`
}

// Message returns the recovery outcome as a flow message.
func (r Recovery) Message() otpflow.Message {
	return otpflow.Message{ID: r.MessageID, Text: r.MessageText, Kind: r.Kind}
}

// New returns the initial wizard state.
func New() State {
	return State{Step: StepScreening}
}

// Backend is the subset of the API client the wizard depends on.
type Backend interface {
	otpflow.Inviter
	ValidatePhone(ctx context.Context, phone string) (*apiclient.PhoneValidation, error)
	CheckVerification(ctx context.Context, phone string) (*apiclient.VerificationStatus, error)
	EnrollmentStatus(ctx context.Context) (*apiclient.EnrollmentStatus, error)
}

// Service runs the wizard steps that need the backend.
type Service struct {
	backend  Backend
	validate *validator.Validate
}

// NewService creates a wizard service.
func NewService(backend Backend) *Service {
	return &Service{backend: backend, validate: newValidator()}
}

// EnrollmentOpen reports whether new participants are accepted.
// Lookup failures fail open.
func (s *Service) EnrollmentOpen(ctx context.Context) bool {
	status, err := s.backend.EnrollmentStatus(ctx)
	if err != nil {
		slog.WarnContext(ctx, "enrollment status lookup failed", "error", err)
		return true
	}
	return status.Open()
}

// SubmitAnswers validates the eligibility answers. Any "no" ends the wizard
// at the ineligible notice.
func (s *Service) SubmitAnswers(st State, a Answers) State {
	st.Answers = a
	st.ErrorID = answersError(s.validate.Struct(a))
	if st.ErrorID != "" {
		return st
	}
	if !a.Eligible() {
		st.Step = StepIneligible
		return st
	}
	st.Step = StepContact
	return st
}

// SubmitContact validates the contact details, runs the carrier lookup and
// the prior verification check, and advances to the confirmation step.
func (s *Service) SubmitContact(ctx context.Context, st State, sess verification.Session, phone, email string) (State, verification.Session) {
	if st.Step != StepContact {
		return st, sess
	}
	sess = sess.WithPhone(phone).WithEmail(email)
	st.ErrorID = ""
	st.Dialog = otpflow.DialogNone
	st.Recovery = nil

	if id := contactError(s.validate.Struct(Contact{Phone: sess.Phone, Email: email})); id != "" {
		st.ErrorID = id
		return st, sess
	}

	validation, err := s.backend.ValidatePhone(ctx, sess.Phone)
	if err != nil {
		slog.WarnContext(ctx, "phone validation failed", "error", err)
		st.ErrorID = MsgPhoneLookupFailed
		return st, sess
	}
	if !validation.Valid {
		st.Dialog = otpflow.DialogCarrierRejected
		return st, sess
	}

	status, err := s.backend.CheckVerification(ctx, sess.Phone)
	switch {
	case err != nil:
		slog.InfoContext(ctx, "verification lookup failed, continuing", "error", err)
	case status.Verified:
		st.Dialog = otpflow.DialogAlreadyUsed
		return st, sess
	}

	st.Step = StepConfirm
	return st, sess
}

// DismissCarrierRejected closes the carrier dialog and clears the contact details.
func DismissCarrierRejected(st State, sess verification.Session) (State, verification.Session) {
	st.Dialog = otpflow.DialogNone
	return st, sess.WithPhone("").WithEmail("")
}

// ResendExistingLink resends the link of an already verified number from the
// already used dialog.
func (s *Service) ResendExistingLink(ctx context.Context, st State, sess verification.Session) State {
	if st.Dialog != otpflow.DialogAlreadyUsed {
		return st
	}
	res := otpflow.RecoverLink(ctx, s.backend, sess.Phone)
	st.Recovery = &Recovery{
		MessageID:   res.Message.ID,
		MessageText: res.Message.Text,
		Kind:        res.Message.Kind,
		HadLink:     res.HadLink,
	}
	return st
}

// Restart clears the answers and contact details and returns to the first step.
func Restart(sess verification.Session) (State, verification.Session) {
	return New(), sess.WithPhone("").WithEmail("")
}

// Confirm accepts the contact details. The caller continues to verification.
func Confirm(st State, sess verification.Session) (State, verification.Session, bool) {
	if st.Step != StepConfirm {
		return st, sess, false
	}
	return st, sess.WithVerified(false), true
}

// Edit returns from the confirmation step to the contact step.
func Edit(st State) State {
	if st.Step == StepConfirm {
		st.Step = StepContact
	}
	return st
}

// Back moves one step back. It reports false when already at the first step.
func Back(st State) (State, bool) {
	switch st.Step {
	case StepContact:
		st.Step = StepScreening
		st.ErrorID = ""
		return st, true
	case StepConfirm:
		st.Step = StepContact
		return st, true
	default:
		return st, false
	}
}

// ToContact jumps to the contact step, used when returning from verification.
func ToContact(st State) State {
	if st.Answers.Eligible() {
		st.Step = StepContact
		st.Dialog = otpflow.DialogNone
	}
	return st
}
