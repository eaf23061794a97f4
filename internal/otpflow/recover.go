// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package otpflow

import (
	"context"
	"log/slog"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
)

// Dialog is a recoverable sub-dialog shown on top of the flow.
type Dialog string

const (
	DialogNone            Dialog = ""
	DialogAlreadyUsed     Dialog = "already_used"
	DialogCarrierRejected Dialog = "carrier_rejected"
)

// Inviter issues survey links for verified numbers.
type Inviter interface {
	SendSurveyInvitation(ctx context.Context, phone string) (*apiclient.InvitationResult, error)
}

// LinkRecovery is the outcome of resending the link of an already verified number.
type LinkRecovery struct {
	Message Message
	HadLink bool
}

// RecoverLink resends the survey link of an already verified number without
// running the code check again.
func RecoverLink(ctx context.Context, inviter Inviter, phone string) LinkRecovery {
	if len(apiclient.Digits(phone)) != 10 {
		return LinkRecovery{Message: idMessage(KindError, MsgLinkInvalidPhone)}
	}

	res, err := inviter.SendSurveyInvitation(ctx, phone)
	if err != nil {
		slog.WarnContext(ctx, "resend survey link failed", "error", err)
		text := apiErrorText(err)
		if text == "" {
			return LinkRecovery{Message: idMessage(KindError, MsgLinkServerFailure)}
		}
		return LinkRecovery{Message: textMessage(KindError, "Server error: "+text)}
	}

	switch {
	case res.OK && res.LinkURL != "":
		return LinkRecovery{Message: serverOr(KindSuccess, res.Message, MsgLinkSent), HadLink: true}
	case res.OK:
		return LinkRecovery{Message: serverOr(KindInfo, res.Message, MsgLinkPending)}
	case res.Message != "":
		return LinkRecovery{Message: textMessage(KindError, res.Message)}
	default:
		return LinkRecovery{Message: serverOr(KindError, res.Error, MsgLinkResendFailed)}
	}
}
