// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package verification holds the participant's in-progress verification state.
package verification

import "codeberg.org/smsresearch/studyportal/internal/apiclient"

// PhoneDigits is the length of a complete US phone number without country code.
const PhoneDigits = 10

// Session is the participant's verification state for one browser session.
// Values are immutable: every update returns a new Session.
type Session struct {
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	IsVerified bool   `json:"is_verified"`
	Consented  bool   `json:"consented"`
}

// WithPhone stores phone as raw digits. A leading US country code is dropped
// from an 11 digit number; other lengths are kept so validation can reject
// them.
func (s Session) WithPhone(phone string) Session {
	digits := apiclient.Digits(phone)
	if len(digits) == PhoneDigits+1 && digits[0] == '1' {
		digits = digits[1:]
	}
	s.Phone = digits
	return s
}

// WithEmail stores email as entered.
func (s Session) WithEmail(email string) Session {
	s.Email = email
	return s
}

// WithVerified sets the verified flag.
func (s Session) WithVerified(verified bool) Session {
	s.IsVerified = verified
	return s
}

// WithConsent sets the landing page consent flag.
func (s Session) WithConsent(consented bool) Session {
	s.Consented = consented
	return s
}

// Reset returns an empty session.
func (s Session) Reset() Session {
	return Session{}
}

// HasPhone reports whether a phone number has been entered.
func (s Session) HasPhone() bool {
	return s.Phone != ""
}

// PhoneComplete reports whether the phone holds exactly PhoneDigits digits.
func (s Session) PhoneComplete() bool {
	return len(s.Phone) == PhoneDigits
}

// FormattedPhone renders the phone as (555) 123-4567 when complete.
func (s Session) FormattedPhone() string {
	if !s.PhoneComplete() {
		return s.Phone
	}
	return "(" + s.Phone[:3] + ") " + s.Phone[3:6] + "-" + s.Phone[6:]
}
