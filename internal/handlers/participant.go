// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/smsresearch/studyportal/internal/screening"
	"codeberg.org/smsresearch/studyportal/internal/services/session"
	"github.com/labstack/echo/v4"
)

// Landing shows the study introduction and resets the participant state.
func (h *Handlers) Landing(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	h.flows.Close(s.ID)
	h.hub.CloseSession(s.ID)
	s.Update(func(d *session.Data) {
		d.Verification = d.Verification.Reset()
		d.Screening = screening.New()
	})

	return page(c, http.StatusOK, "landing", map[string]any{"Error": ""})
}

// Start records the consent and opens the screening wizard.
func (h *Handlers) Start(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	if c.FormValue("consent") != "yes" {
		return page(c, http.StatusUnprocessableEntity, "landing", map[string]any{
			"Error": "landing_consent_required",
		})
	}

	s.Update(func(d *session.Data) {
		d.Verification = d.Verification.WithConsent(true)
		d.Screening = screening.New()
	})
	return seeOther(c, "/survey")
}

// Survey renders the current wizard step.
func (h *Handlers) Survey(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	data := s.Data()
	if !data.Verification.Consented {
		return seeOther(c, "/")
	}

	return page(c, http.StatusOK, "survey", map[string]any{
		"EnrollmentFull": !h.screening.EnrollmentOpen(c.Request().Context()),
		"State":          data.Screening,
		"Session":        data.Verification,
	})
}

// SurveyAnswers handles the eligibility questions.
func (h *Handlers) SurveyAnswers(c echo.Context) error {
	return h.surveyStep(c, func(d *session.Data) string {
		var a screening.Answers
		if err := c.Bind(&a); err != nil {
			a = screening.Answers{}
		}
		d.Screening = h.screening.SubmitAnswers(d.Screening, a)
		return ""
	})
}

// SurveyContact handles the phone and email step.
func (h *Handlers) SurveyContact(c echo.Context) error {
	return h.surveyStep(c, func(d *session.Data) string {
		d.Screening, d.Verification = h.screening.SubmitContact(
			c.Request().Context(), d.Screening, d.Verification,
			c.FormValue("phone"), c.FormValue("email"))
		return ""
	})
}

// SurveyBack moves one step back, leaving the wizard from the first step.
func (h *Handlers) SurveyBack(c echo.Context) error {
	return h.surveyStep(c, func(d *session.Data) string {
		st, ok := screening.Back(d.Screening)
		if !ok {
			return "/"
		}
		d.Screening = st
		return ""
	})
}

// SurveyEdit returns from the confirmation to the contact step.
func (h *Handlers) SurveyEdit(c echo.Context) error {
	return h.surveyStep(c, func(d *session.Data) string {
		d.Screening = screening.Edit(d.Screening)
		return ""
	})
}

// SurveyConfirm accepts the contact details and continues to verification.
func (h *Handlers) SurveyConfirm(c echo.Context) error {
	return h.surveyStep(c, func(d *session.Data) string {
		st, v, ok := screening.Confirm(d.Screening, d.Verification)
		d.Screening, d.Verification = st, v
		if ok {
			return "/verify"
		}
		return ""
	})
}

// SurveyResendLink resends the existing link from the already used dialog.
func (h *Handlers) SurveyResendLink(c echo.Context) error {
	return h.surveyStep(c, func(d *session.Data) string {
		d.Screening = h.screening.ResendExistingLink(c.Request().Context(), d.Screening, d.Verification)
		return ""
	})
}

// SurveyRestart closes a dialog and starts the wizard over.
func (h *Handlers) SurveyRestart(c echo.Context) error {
	return h.surveyStep(c, func(d *session.Data) string {
		d.Screening, d.Verification = screening.Restart(d.Verification)
		return ""
	})
}

// SurveyDismiss closes the carrier rejected dialog.
func (h *Handlers) SurveyDismiss(c echo.Context) error {
	return h.surveyStep(c, func(d *session.Data) string {
		d.Screening, d.Verification = screening.DismissCarrierRejected(d.Screening, d.Verification)
		return ""
	})
}

// surveyStep applies fn to the session and redirects to the URL it returns,
// or back to the wizard.
func (h *Handlers) surveyStep(c echo.Context, fn func(*session.Data) string) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}
	if !s.Data().Verification.Consented {
		return seeOther(c, "/")
	}

	target := ""
	s.Update(func(d *session.Data) { target = fn(d) })
	if target == "" {
		target = "/survey"
	}
	return seeOther(c, target)
}
