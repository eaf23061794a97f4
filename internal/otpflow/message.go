// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package otpflow

import (
	"errors"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
)

// Kind classifies a message for display.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Message is shown to the participant. Text is verbatim server text and takes
// precedence over ID, which is a translation message ID.
type Message struct {
	ID   string
	Text string
	Kind Kind
}

// IsZero reports whether the message is empty.
func (m Message) IsZero() bool {
	return m.ID == "" && m.Text == ""
}

// Translation message IDs.
const (
	MsgInvalidPhone      = "otp_invalid_phone"
	MsgSendFailed        = "otp_send_failed"
	MsgNetworkError      = "otp_network_error"
	MsgCodeSent          = "otp_code_sent"
	MsgCodeResent        = "otp_code_resent"
	MsgResendFailed      = "otp_resend_failed"
	MsgResendNotReady    = "otp_resend_not_ready"
	MsgEnterAllDigits    = "otp_enter_all_digits"
	MsgCodeInvalid       = "otp_code_invalid"
	MsgNoSurveyLink      = "otp_no_survey_link"
	MsgVerified          = "otp_verified"
	MsgLinkSent          = "link_sent"
	MsgLinkPending       = "link_pending"
	MsgLinkResendFailed  = "link_resend_failed"
	MsgLinkInvalidPhone  = "link_invalid_phone"
	MsgLinkServerFailure = "link_server_failure"
)

func idMessage(kind Kind, id string) Message {
	return Message{ID: id, Kind: kind}
}

func textMessage(kind Kind, text string) Message {
	return Message{Text: text, Kind: kind}
}

// serverOr returns text verbatim when present, otherwise the fallback ID.
func serverOr(kind Kind, text, fallbackID string) Message {
	if text != "" {
		return textMessage(kind, text)
	}
	return idMessage(kind, fallbackID)
}

// apiErrorText returns the message of an *apiclient.APIError, or "" for
// transport failures.
func apiErrorText(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
