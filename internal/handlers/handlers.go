// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers implements the participant pages, the verify panel and
// the admin console.
package handlers

import (
	"context"
	"net/http"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
	"codeberg.org/smsresearch/studyportal/internal/config"
	"codeberg.org/smsresearch/studyportal/internal/otpflow"
	"codeberg.org/smsresearch/studyportal/internal/screening"
	"codeberg.org/smsresearch/studyportal/internal/services/session"
	"codeberg.org/smsresearch/studyportal/internal/sse"
	"github.com/labstack/echo/v4"
)

// SupportMailer notifies the study team about a participant without a link.
type SupportMailer interface {
	SendSupportNotice(ctx context.Context, phone, email string) error
}

// Deps are the services the handlers work with. Mailer may be nil.
type Deps struct {
	API       *apiclient.Client
	Screening *screening.Service
	Flows     *otpflow.Registry
	Hub       *sse.Hub
	Sessions  *session.Manager
	Mailer    SupportMailer
	Study     config.StudyConfig
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	api       *apiclient.Client
	screening *screening.Service
	flows     *otpflow.Registry
	hub       *sse.Hub
	sessions  *session.Manager
	mailer    SupportMailer
	study     config.StudyConfig
}

// New creates a new Handlers instance.
func New(d Deps) *Handlers {
	return &Handlers{
		api:       d.API,
		screening: d.Screening,
		flows:     d.Flows,
		hub:       d.Hub,
		sessions:  d.Sessions,
		mailer:    d.Mailer,
		study:     d.Study,
	}
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"flows":          h.flows.Len(),
		"events":         h.hub.ClientCount(),
		"event_sessions": h.hub.SessionCount(),
		"events_dropped": h.hub.Dropped(),
	})
}
