// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"codeberg.org/smsresearch/studyportal/internal/htmx"
	"codeberg.org/smsresearch/studyportal/internal/otpflow"
	"codeberg.org/smsresearch/studyportal/internal/screening"
	"codeberg.org/smsresearch/studyportal/internal/services/session"
	"codeberg.org/smsresearch/studyportal/internal/templates"
	"github.com/labstack/echo/v4"
)

// panelTarget is the element id the verify panel is swapped into.
const panelTarget = "verify-panel"

// verifyView is the data of the verify page and its panel.
type verifyView struct {
	Flow          otpflow.Snapshot
	Notice        otpflow.Message
	HelpAvailable bool
}

// Verify opens the verification flow for the phone stored in the session.
// Without a phone the participant is sent back to the start.
func (h *Handlers) Verify(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	v := s.Data().Verification
	f, err := h.flows.Open(s.ID, v.Phone, v.Email)
	if errors.Is(err, otpflow.ErrNoPhone) {
		return seeOther(c, "/")
	}
	if err != nil {
		return err
	}

	return page(c, http.StatusOK, "verify", h.verifyView(f, f.PopNotice()))
}

// VerifySend requests the first code.
func (h *Handlers) VerifySend(c echo.Context) error {
	return h.flowAction(c, func(ctx context.Context, f *otpflow.Flow) error {
		return f.Send(ctx)
	})
}

// VerifyResend requests a new code after the countdown.
func (h *Handlers) VerifyResend(c echo.Context) error {
	return h.flowAction(c, func(ctx context.Context, f *otpflow.Flow) error {
		return f.Resend(ctx)
	})
}

// VerifyCode stores the submitted digits and checks the code. A single code
// field takes precedence over the six cells.
func (h *Handlers) VerifyCode(c echo.Context) error {
	code := c.FormValue("code")
	var cells [otpflow.CodeLength]string
	for i := range cells {
		cells[i] = c.FormValue("d" + strconv.Itoa(i))
	}

	return h.flowAction(c, func(ctx context.Context, f *otpflow.Flow) error {
		if code != "" {
			f.SetCode(code)
		} else if snap := f.Snapshot(); snap.Step == otpflow.StepEnterCode && !snap.Verified {
			for i, d := range cells {
				f.SetDigit(i, d)
			}
		}
		return f.Verify(ctx)
	})
}

// VerifyCancel returns to the send code step.
func (h *Handlers) VerifyCancel(c echo.Context) error {
	return h.flowAction(c, func(_ context.Context, f *otpflow.Flow) error {
		f.Cancel()
		return nil
	})
}

// VerifyChangeNumber leaves verification for the contact step.
func (h *Handlers) VerifyChangeNumber(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	h.flows.Close(s.ID)
	h.hub.CloseSession(s.ID)
	s.Update(func(d *session.Data) {
		d.Screening = screening.ToContact(d.Screening)
		d.Verification = d.Verification.WithVerified(false)
	})
	return htmx.Redirect(c, "/survey")
}

// VerifyHelp notifies the study team about a verified participant who did
// not receive a survey link.
func (h *Handlers) VerifyHelp(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	f, ok := h.flows.Get(s.ID)
	if !ok || h.mailer == nil {
		return seeOther(c, "/verify")
	}
	snap := f.Snapshot()
	if !snap.Verified || snap.HasLink() {
		return seeOther(c, "/verify")
	}

	ctx := c.Request().Context()
	if err := h.mailer.SendSupportNotice(ctx, snap.Phone, s.Data().Verification.Email); err != nil {
		slog.ErrorContext(ctx, "support notice failed", "error", err)
		flash(s, flashError, "verify_help_failed")
	} else {
		flash(s, flashSuccess, "verify_help_sent")
	}
	return seeOther(c, "/verify")
}

// flowAction runs fn on the flow of the session and answers with the
// refreshed panel, or a redirect for plain form posts.
func (h *Handlers) flowAction(c echo.Context, fn func(context.Context, *otpflow.Flow) error) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	f, ok := h.flows.Get(s.ID)
	if !ok || f.Closed() {
		return htmx.Redirect(c, "/verify")
	}

	status := http.StatusOK
	var notice otpflow.Message

	err = fn(c.Request().Context(), f)
	switch {
	case err == nil,
		errors.Is(err, otpflow.ErrIncompleteCode),
		errors.Is(err, otpflow.ErrInvalidPhone),
		errors.Is(err, otpflow.ErrWrongStep):
	case errors.Is(err, otpflow.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, otpflow.ErrResendNotReady):
		notice = otpflow.Message{ID: otpflow.MsgResendNotReady, Kind: otpflow.KindError}
	case errors.Is(err, otpflow.ErrClosed):
		return htmx.Redirect(c, "/verify")
	default:
		return err
	}

	if f.Snapshot().Verified {
		s.Update(func(d *session.Data) { d.Verification = d.Verification.WithVerified(true) })
	}

	if !htmx.Partial(c, panelTarget) {
		if !notice.IsZero() {
			flash(s, string(notice.Kind), notice.ID)
		}
		return seeOther(c, "/verify")
	}

	if notice.IsZero() {
		notice = f.PopNotice()
	}
	return Render(c, status, templates.Fragment("verify", "panel", h.verifyView(f, notice)))
}

func (h *Handlers) verifyView(f *otpflow.Flow, notice otpflow.Message) verifyView {
	snap := f.Snapshot()
	return verifyView{
		Flow:   snap,
		Notice: notice,
		HelpAvailable: h.mailer != nil && snap.Step == otpflow.StepDone &&
			snap.Verified && !snap.HasLink(),
	}
}
