// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package screening_test

import (
	"context"
	"errors"
	"testing"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
	"codeberg.org/smsresearch/studyportal/internal/otpflow"
	"codeberg.org/smsresearch/studyportal/internal/screening"
	"codeberg.org/smsresearch/studyportal/internal/verification"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	validation    *apiclient.PhoneValidation
	validationErr error
	status        *apiclient.VerificationStatus
	statusErr     error
	enrollment    *apiclient.EnrollmentStatus
	enrollmentErr error
	invite        *apiclient.InvitationResult

	validateCalls int
	validated     []string
	checkCalls    int
	inviteCalls   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		validation: &apiclient.PhoneValidation{Valid: true},
		status:     &apiclient.VerificationStatus{},
		enrollment: &apiclient.EnrollmentStatus{EnrollmentActive: true},
		invite:     &apiclient.InvitationResult{OK: true, LinkURL: "https://x"},
	}
}

func (b *fakeBackend) ValidatePhone(_ context.Context, phone string) (*apiclient.PhoneValidation, error) {
	b.validateCalls++
	b.validated = append(b.validated, phone)
	return b.validation, b.validationErr
}

func (b *fakeBackend) CheckVerification(context.Context, string) (*apiclient.VerificationStatus, error) {
	b.checkCalls++
	return b.status, b.statusErr
}

func (b *fakeBackend) EnrollmentStatus(context.Context) (*apiclient.EnrollmentStatus, error) {
	return b.enrollment, b.enrollmentErr
}

func (b *fakeBackend) SendSurveyInvitation(context.Context, string) (*apiclient.InvitationResult, error) {
	b.inviteCalls++
	return b.invite, nil
}

var yes = screening.Answers{UsedAI: "yes", LivesInUS: "yes", IsAdult: "yes"}

func contactState(t *testing.T, svc *screening.Service) screening.State {
	t.Helper()
	st := svc.SubmitAnswers(screening.New(), yes)
	require.Equal(t, screening.StepContact, st.Step)
	return st
}

func TestSubmitAnswers_Missing(t *testing.T) {
	svc := screening.NewService(newFakeBackend())

	st := svc.SubmitAnswers(screening.New(), screening.Answers{UsedAI: "yes", IsAdult: "yes"})

	assert.Equal(t, screening.StepScreening, st.Step)
	assert.Equal(t, screening.MsgAnswerAll, st.ErrorID)
}

func TestSubmitAnswers_GateProperty(t *testing.T) {
	svc := screening.NewService(newFakeBackend())
	answer := gen.OneConstOf("yes", "no")

	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("any no reaches the ineligible notice, never the contact step", prop.ForAll(
		func(a, b, c string) bool {
			st := svc.SubmitAnswers(screening.New(), screening.Answers{UsedAI: a, LivesInUS: b, IsAdult: c})
			anyNo := a == "no" || b == "no" || c == "no"
			if anyNo {
				return st.Step == screening.StepIneligible
			}
			return st.Step == screening.StepContact
		},
		answer, answer, answer,
	))

	properties.TestingRun(t)
}

func TestSubmitContact_LocalValidation(t *testing.T) {
	tests := []struct {
		name   string
		phone  string
		email  string
		wantID string
	}{
		{"missing phone", "", "", screening.MsgPhoneRequired},
		{"short phone", "555-123", "", screening.MsgPhoneIncomplete},
		{"too many digits", "555-123-45678", "", screening.MsgPhoneIncomplete},
		{"eleven digits without country code", "2 555 123 4567", "", screening.MsgPhoneIncomplete},
		{"bad email", "(555) 123-4567", "not-an-email", screening.MsgEmailInvalid},
		{"email without tld", "5551234567", "a@b", screening.MsgEmailInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			svc := screening.NewService(b)

			st, _ := svc.SubmitContact(context.Background(), contactState(t, svc), verification.Session{}, tt.phone, tt.email)

			assert.Equal(t, tt.wantID, st.ErrorID)
			assert.Equal(t, screening.StepContact, st.Step)
			assert.Zero(t, b.validateCalls, "no network call on local validation errors")
		})
	}
}

func TestSubmitContact_Advances(t *testing.T) {
	b := newFakeBackend()
	svc := screening.NewService(b)

	st, sess := svc.SubmitContact(context.Background(), contactState(t, svc), verification.Session{}, "(555) 123-4567", "a@b.co")

	assert.Equal(t, screening.StepConfirm, st.Step)
	assert.Empty(t, st.ErrorID)
	assert.Equal(t, "5551234567", sess.Phone)
	assert.Equal(t, "a@b.co", sess.Email)

	st, sess, ok := screening.Confirm(st, sess.WithVerified(true))
	assert.True(t, ok)
	assert.False(t, sess.IsVerified)
	assert.Equal(t, screening.StepConfirm, st.Step)
}

func TestSubmitContact_CountryCode(t *testing.T) {
	for _, phone := range []string{"+1 555 123 4567", "1 (555) 123-4567", "15551234567"} {
		t.Run(phone, func(t *testing.T) {
			b := newFakeBackend()
			svc := screening.NewService(b)

			st, sess := svc.SubmitContact(context.Background(), contactState(t, svc), verification.Session{}, phone, "")

			assert.Equal(t, screening.StepConfirm, st.Step)
			assert.Equal(t, "5551234567", sess.Phone)
			assert.Equal(t, []string{"5551234567"}, b.validated)
			assert.Equal(t, "+15551234567", apiclient.NormalizePhone(sess.Phone))
		})
	}
}

func TestSubmitContact_CarrierRejected(t *testing.T) {
	b := newFakeBackend()
	b.validation = &apiclient.PhoneValidation{Valid: false, Error: "VOIP"}
	svc := screening.NewService(b)

	st, sess := svc.SubmitContact(context.Background(), contactState(t, svc), verification.Session{}, "5551234567", "a@b.co")

	assert.Equal(t, otpflow.DialogCarrierRejected, st.Dialog)
	assert.Zero(t, b.checkCalls)

	st, sess = screening.DismissCarrierRejected(st, sess)
	assert.Equal(t, otpflow.DialogNone, st.Dialog)
	assert.Empty(t, sess.Phone)
	assert.Empty(t, sess.Email)
}

func TestSubmitContact_LookupError(t *testing.T) {
	b := newFakeBackend()
	b.validationErr = errors.New("timeout")
	svc := screening.NewService(b)

	st, _ := svc.SubmitContact(context.Background(), contactState(t, svc), verification.Session{}, "5551234567", "")

	assert.Equal(t, screening.MsgPhoneLookupFailed, st.ErrorID)
	assert.Equal(t, screening.StepContact, st.Step)
}

func TestSubmitContact_VerificationCheckErrorIsSwallowed(t *testing.T) {
	b := newFakeBackend()
	b.statusErr = &apiclient.APIError{Status: 500, Message: "boom"}
	svc := screening.NewService(b)

	st, _ := svc.SubmitContact(context.Background(), contactState(t, svc), verification.Session{}, "5551234567", "")

	assert.Equal(t, screening.StepConfirm, st.Step)
	assert.Empty(t, st.ErrorID)
	assert.Equal(t, 1, b.checkCalls)
}

func TestSubmitContact_AlreadyUsed(t *testing.T) {
	b := newFakeBackend()
	b.status = &apiclient.VerificationStatus{Verified: true}
	svc := screening.NewService(b)
	ctx := context.Background()

	st, sess := svc.SubmitContact(ctx, contactState(t, svc), verification.Session{}, "5551234567", "")
	require.Equal(t, otpflow.DialogAlreadyUsed, st.Dialog)
	assert.Equal(t, screening.StepContact, st.Step)

	st = svc.ResendExistingLink(ctx, st, sess)
	require.NotNil(t, st.Recovery)
	assert.True(t, st.Recovery.HadLink)
	assert.Equal(t, otpflow.MsgLinkSent, st.Recovery.Message().ID)
	assert.Equal(t, 1, b.inviteCalls)

	st, sess = screening.Restart(sess)
	assert.Equal(t, screening.New(), st)
	assert.Empty(t, sess.Phone)
}

func TestResendExistingLink_RequiresDialog(t *testing.T) {
	b := newFakeBackend()
	svc := screening.NewService(b)

	st := svc.ResendExistingLink(context.Background(), screening.New(), verification.Session{Phone: "5551234567"})

	assert.Nil(t, st.Recovery)
	assert.Zero(t, b.inviteCalls)
}

func TestEnrollmentOpen(t *testing.T) {
	b := newFakeBackend()
	svc := screening.NewService(b)
	ctx := context.Background()

	assert.True(t, svc.EnrollmentOpen(ctx))

	b.enrollment = &apiclient.EnrollmentStatus{Full: true, EnrollmentActive: true}
	assert.False(t, svc.EnrollmentOpen(ctx))

	b.enrollment = &apiclient.EnrollmentStatus{}
	assert.False(t, svc.EnrollmentOpen(ctx))

	b.enrollmentErr = errors.New("down")
	assert.True(t, svc.EnrollmentOpen(ctx), "lookup failures fail open")
}

func TestBackAndEdit(t *testing.T) {
	st := screening.State{Step: screening.StepConfirm}

	st = screening.Edit(st)
	assert.Equal(t, screening.StepContact, st.Step)

	st, ok := screening.Back(st)
	assert.True(t, ok)
	assert.Equal(t, screening.StepScreening, st.Step)

	_, ok = screening.Back(st)
	assert.False(t, ok)

	st = screening.ToContact(screening.State{Step: screening.StepScreening, Answers: yes})
	assert.Equal(t, screening.StepContact, st.Step)
}
