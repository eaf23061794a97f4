// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
	"codeberg.org/smsresearch/studyportal/internal/i18n"
	"codeberg.org/smsresearch/studyportal/internal/services/session"
	"codeberg.org/smsresearch/studyportal/internal/templates"
	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// Flash kinds.
const (
	flashSuccess = "success"
	flashError   = "error"
	flashInfo    = "info"
)

var errNoSession = errors.New("handlers: no session on request")

// Render renders a templ component with the given status code.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	buf := templ.GetBuffer()
	defer templ.ReleaseBuffer(buf)

	if err := component.Render(c.Request().Context(), buf); err != nil {
		return err
	}

	return c.HTML(statusCode, buf.String())
}

// page renders a full page and consumes the queued flash messages.
func page(c echo.Context, statusCode int, name string, data any) error {
	if s := session.FromContext(c); s != nil {
		if flashes := s.PopFlashes(); len(flashes) > 0 {
			ctx := templates.WithFlashes(c.Request().Context(), flashes)
			c.SetRequest(c.Request().WithContext(ctx))
		}
	}
	return Render(c, statusCode, templates.Page(name, data))
}

// currentSession returns the session loaded by the session middleware.
func currentSession(c echo.Context) (*session.Session, error) {
	s := session.FromContext(c)
	if s == nil {
		return nil, errNoSession
	}
	return s, nil
}

// seeOther redirects after a form post.
func seeOther(c echo.Context, url string) error {
	return c.Redirect(http.StatusSeeOther, url)
}

func flash(s *session.Session, kind, id string) {
	s.AddFlash(session.Flash{Kind: kind, ID: id})
}

func flashText(s *session.Session, kind, text string) {
	s.AddFlash(session.Flash{Kind: kind, Text: text})
}

// flashData queues a translated notice with template data. The text is
// rendered in the locale of the current request.
func flashData(c echo.Context, s *session.Session, kind, id string, data map[string]any) {
	flashText(s, kind, i18n.TData(c.Request().Context(), id, data))
}

// flashErr queues err as an error notice. Backend messages are shown
// verbatim, anything else as the generic failure text.
func flashErr(s *session.Session, err error) {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		flashText(s, flashError, apiErr.Message)
		return
	}
	flash(s, flashError, "admin_action_failed")
}

// intParam parses a positive integer query or form value, falling back to def.
func intParam(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}
