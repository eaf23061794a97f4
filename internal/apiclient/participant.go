// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package apiclient

import (
	"context"
	"time"
)

// StartOtpResult is the response of the OTP start endpoint.
type StartOtpResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// CheckOtpResult is the response of the OTP check endpoint.
type CheckOtpResult struct {
	Verified bool   `json:"verified"`
	Error    string `json:"error,omitempty"`
}

// InvitationResult is the response of the survey link (re)issue endpoint.
// An empty LinkURL with OK set is the no-link-available outcome.
type InvitationResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	LinkURL string `json:"linkUrl,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Participant is the participant record attached to several responses.
type Participant struct {
	ID         int64      `json:"id,omitempty"`
	Phone      string     `json:"phone"`
	Email      string     `json:"email,omitempty"`
	Name       string     `json:"name,omitempty"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
}

// VerificationStatus is the response of the prior verification lookup.
type VerificationStatus struct {
	Verified    bool         `json:"verified"`
	Message     string       `json:"message,omitempty"`
	Participant *Participant `json:"participant,omitempty"`
}

// PhoneValidation is the response of the carrier lookup.
type PhoneValidation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// EnrollmentStatus reports whether new participants are accepted.
type EnrollmentStatus struct {
	Full             bool `json:"full"`
	EnrollmentActive bool `json:"enrollmentActive"`
}

// Open reports whether enrollment accepts new participants.
func (s EnrollmentStatus) Open() bool {
	return s.EnrollmentActive && !s.Full
}

type startOtpRequest struct {
	Phone   string `json:"phone"`
	Channel string `json:"channel"`
}

type checkOtpRequest struct {
	Phone string  `json:"phone"`
	Code  string  `json:"code"`
	Email *string `json:"email"`
	Name  *string `json:"name"`
}

type invitationRequest struct {
	Phone string `json:"phone"`
	Body  string `json:"body"`
}

type phoneRequest struct {
	Phone string `json:"phone"`
}

// StartOtp asks the backend to text a verification code to phone.
// A well-formed response with OK unset is a soft failure, not an error.
func (c *Client) StartOtp(ctx context.Context, phone string) (*StartOtpResult, error) {
	var res StartOtpResult
	req := startOtpRequest{Phone: NormalizePhone(phone), Channel: "sms"}
	if err := c.Post(ctx, "/api/otp/start", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CheckOtp submits the 6-digit code. Empty email and name are sent as null.
func (c *Client) CheckOtp(ctx context.Context, phone, code, email, name string) (*CheckOtpResult, error) {
	var res CheckOtpResult
	req := checkOtpRequest{
		Phone: NormalizePhone(phone),
		Code:  code,
		Email: optional(email),
		Name:  optional(name),
	}
	if err := c.Post(ctx, "/api/otp/check", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SendSurveyInvitation issues, or re-issues, the survey link for a verified number.
func (c *Client) SendSurveyInvitation(ctx context.Context, phone string) (*InvitationResult, error) {
	var res InvitationResult
	req := invitationRequest{Phone: NormalizePhone(phone), Body: "resend"}
	if err := c.Post(ctx, "/api/participants/resend-survey-link", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CheckVerification looks up whether phone was verified in an earlier session.
func (c *Client) CheckVerification(ctx context.Context, phone string) (*VerificationStatus, error) {
	var res VerificationStatus
	endpoint := "/api/participants/check-verification/" + escapeSegment(NormalizePhone(phone))
	if err := c.Get(ctx, endpoint, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ValidatePhone runs the backend carrier lookup for phone.
func (c *Client) ValidatePhone(ctx context.Context, phone string) (*PhoneValidation, error) {
	var res PhoneValidation
	if err := c.Post(ctx, "/api/participants/validate-phone", phoneRequest{Phone: NormalizePhone(phone)}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// EnrollmentStatus fetches the public enrollment status.
func (c *Client) EnrollmentStatus(ctx context.Context) (*EnrollmentStatus, error) {
	var res EnrollmentStatus
	if err := c.Get(ctx, "/api/enrollment/status", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
