// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
	"codeberg.org/smsresearch/studyportal/internal/auth"
	"codeberg.org/smsresearch/studyportal/internal/pagination"
	"codeberg.org/smsresearch/studyportal/internal/services/session"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const dashboardPath = "/admin-dashboard"

// unassignedLimit caps the verified participants without invitation shown on
// the dashboard.
const unassignedLimit = 100

// Invitation filters on the dashboard.
const (
	statusAll       = "all"
	statusCompleted = "completed"
	statusPending   = "pending"
)

var invitationStatuses = []string{statusAll, statusCompleted, statusPending}

// AdminLogin shows the login form. A valid session skips straight to the
// dashboard.
func (h *Handlers) AdminLogin(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}
	if auth.TokenValid(s.Data().AdminToken, time.Now()) {
		return seeOther(c, dashboardPath)
	}

	var notice *session.Flash
	if c.QueryParam("expired") == "true" {
		notice = &session.Flash{Kind: flashInfo, ID: "admin_session_expired"}
	}
	return page(c, http.StatusOK, "admin/login", map[string]any{
		"Error":    notice,
		"Username": "",
	})
}

// AdminLoginSubmit exchanges the credentials for a token and renews the
// session ID.
func (h *Handlers) AdminLoginSubmit(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	username := strings.TrimSpace(c.FormValue("username"))
	res, err := h.api.AdminLogin(ctx, username, c.FormValue("password"))

	var failure *session.Flash
	switch {
	case err != nil:
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			failure = &session.Flash{Kind: flashError, Text: apiErr.Message}
		} else {
			slog.WarnContext(ctx, "admin login failed", "error", err)
			failure = &session.Flash{Kind: flashError, ID: "admin_invalid_credentials"}
		}
	case !res.Success || res.Token == "":
		failure = &session.Flash{Kind: flashError, Text: res.Error, ID: "admin_invalid_credentials"}
	}
	if failure != nil {
		return page(c, http.StatusUnauthorized, "admin/login", map[string]any{
			"Error":    failure,
			"Username": username,
		})
	}

	s.Update(func(d *session.Data) { d.AdminToken = res.Token })
	cookie, err := h.sessions.Renew(ctx, s)
	if err != nil {
		return err
	}
	c.SetCookie(cookie)
	slog.InfoContext(ctx, "admin logged in", "username", username)
	return seeOther(c, dashboardPath)
}

// AdminLogout destroys the session.
func (h *Handlers) AdminLogout(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	cookie, err := h.sessions.Destroy(c.Request().Context(), s)
	if err != nil {
		return err
	}
	c.SetCookie(cookie)
	return seeOther(c, auth.LoginPath)
}

// Dashboard shows the stats, the invitation list and the verified
// participants still waiting for a link.
func (h *Handlers) Dashboard(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	var (
		stats       *apiclient.Stats
		invitations []apiclient.Invitation
		unassigned  *apiclient.Page[apiclient.Participant]
		available   []apiclient.Link
	)
	g, ctx := errgroup.WithContext(c.Request().Context())
	g.Go(func() (err error) { stats, err = h.api.Stats(ctx); return })
	g.Go(func() (err error) { invitations, err = h.api.AllInvitations(ctx); return })
	g.Go(func() (err error) {
		unassigned, err = h.api.VerifiedWithoutInvitations(ctx, 0, unassignedLimit)
		return
	})
	g.Go(func() (err error) { available, err = h.api.AllLinks(ctx, apiclient.LinkAvailable); return })
	if err := g.Wait(); err != nil {
		if auth.Unauthorized(err) {
			return auth.Expire(c)
		}
		slog.WarnContext(c.Request().Context(), "dashboard load failed", "error", err)
		flashErr(s, err)
	}

	status := c.QueryParam("status")
	if !lo.Contains(invitationStatuses, status) {
		status = statusAll
	}
	search := strings.TrimSpace(c.QueryParam("q"))

	rows := pagination.Filter(invitations, func(i apiclient.Invitation) bool {
		switch status {
		case statusCompleted:
			return i.Completed()
		case statusPending:
			return !i.Completed()
		}
		return true
	})
	rows = pagination.Search(rows, search, func(i apiclient.Invitation) []string {
		return []string{i.Participant.Phone, i.Participant.Email, i.Participant.Name}
	})

	var edit *apiclient.Invitation
	if id := c.QueryParam("edit"); id != "" {
		if i, ok := lo.Find(invitations, func(i apiclient.Invitation) bool { return i.ID == id }); ok {
			edit = &i
		}
	}

	var waiting []apiclient.Participant
	if unassigned != nil {
		waiting = unassigned.Content
	}

	return page(c, http.StatusOK, "admin/dashboard", map[string]any{
		"Stats":          stats,
		"Statuses":       invitationStatuses,
		"Status":         status,
		"Search":         search,
		"Invitations":    pagination.Paginate(rows, intParam(c.QueryParam("page"), 1), pagination.DefaultSize),
		"Query":          url.Values{"status": {status}, "q": {search}}.Encode(),
		"Edit":           edit,
		"Unassigned":     waiting,
		"AvailableLinks": available,
	})
}

// RemindInvitation sends the survey invitation again.
func (h *Handlers) RemindInvitation(c echo.Context) error {
	res, err := h.api.SendSurveyInvitation(c.Request().Context(), c.FormValue("phone"))
	if err == nil && !res.OK {
		return h.adminDone(c, dashboardPath, &apiclient.MutationResult{Error: res.Error}, nil, "")
	}
	return h.adminDone(c, dashboardPath, nil, err, "admin_reminder_sent")
}

// CompleteInvitation marks the survey of an invitation as completed.
func (h *Handlers) CompleteInvitation(c echo.Context) error {
	err := h.api.MarkSurveyCompleted(c.Request().Context(), c.Param("id"))
	return h.adminDone(c, dashboardPath, nil, err, "admin_marked_completed")
}

// UncompleteInvitation clears the completed mark of an invitation.
func (h *Handlers) UncompleteInvitation(c echo.Context) error {
	err := h.api.MarkSurveyUncompleted(c.Request().Context(), c.Param("id"))
	return h.adminDone(c, dashboardPath, nil, err, "admin_marked_uncompleted")
}

// BulkInvitations marks the selected invitations completed or uncompleted.
func (h *Handlers) BulkInvitations(c echo.Context) error {
	ids, err := formValues(c, "ids")
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return h.adminFlash(c, dashboardPath, flashInfo, "admin_nothing_selected")
	}

	ctx := c.Request().Context()
	switch c.FormValue("action") {
	case "complete":
		err = h.api.BulkMarkSurveysCompleted(ctx, ids)
		return h.adminDone(c, dashboardPath, nil, err, "admin_marked_completed")
	case "uncomplete":
		err = h.api.BulkMarkSurveysUncompleted(ctx, ids)
		return h.adminDone(c, dashboardPath, nil, err, "admin_marked_uncompleted")
	}
	return BadRequest(c, "unknown bulk action")
}

// UpdateParticipant saves the edited participant of an invitation.
func (h *Handlers) UpdateParticipant(c echo.Context) error {
	res, err := h.api.UpdateUser(c.Request().Context(), c.Param("id"), apiclient.UserUpdate{
		PhoneNumber: apiclient.NormalizePhone(c.FormValue("phone")),
		Email:       strings.TrimSpace(c.FormValue("email")),
		Name:        strings.TrimSpace(c.FormValue("name")),
	})
	return h.adminDone(c, dashboardPath, res, err, "admin_participant_updated")
}

// DeleteParticipant removes the participant of an invitation.
func (h *Handlers) DeleteParticipant(c echo.Context) error {
	res, err := h.api.DeleteUser(c.Request().Context(), c.Param("id"))
	return h.adminDone(c, dashboardPath, res, err, "admin_participant_deleted")
}

// SendWithLink assigns a chosen link to a verified participant.
func (h *Handlers) SendWithLink(c echo.Context) error {
	linkID := c.FormValue("link_id")
	if linkID == "" {
		return h.adminFlash(c, dashboardPath, flashInfo, "admin_nothing_selected")
	}
	res, err := h.api.SendInvitationWithLink(c.Request().Context(), c.FormValue("phone"), linkID)
	return h.adminDone(c, dashboardPath, res, err, "admin_invitation_sent")
}

// adminDone records the outcome of a mutation as a flash and redirects back
// to the page the form was posted from. A backend 401 ends the admin session.
func (h *Handlers) adminDone(c echo.Context, fallback string, res *apiclient.MutationResult, err error, okID string) error {
	if auth.Unauthorized(err) {
		return auth.Expire(c)
	}
	s, serr := currentSession(c)
	if serr != nil {
		return serr
	}

	switch {
	case err != nil:
		slog.WarnContext(c.Request().Context(), "admin action failed", "error", err, "path", c.Path())
		flashErr(s, err)
	case res != nil && !res.Succeeded():
		if text := lo.CoalesceOrEmpty(res.Error, res.Message); text != "" {
			flashText(s, flashError, text)
		} else {
			flash(s, flashError, "admin_action_failed")
		}
	case okID != "":
		flash(s, flashSuccess, okID)
	}
	return seeOther(c, backTo(c, fallback))
}

// adminFlash queues a flash and redirects back.
func (h *Handlers) adminFlash(c echo.Context, fallback, kind, id string) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}
	flash(s, kind, id)
	return seeOther(c, backTo(c, fallback))
}

// backTo returns the page the form was posted from, keeping its filters but
// dropping the edit and log selections. Other origins yield fallback.
func backTo(c echo.Context, fallback string) string {
	ref, err := url.Parse(c.Request().Referer())
	if err != nil || ref.Path != fallback || (ref.Host != "" && ref.Host != c.Request().Host) {
		return fallback
	}
	q := ref.Query()
	q.Del("edit")
	q.Del("logs")
	if len(q) == 0 {
		return fallback
	}
	return fallback + "?" + q.Encode()
}

// formValues returns all values of a repeated form field.
func formValues(c echo.Context, name string) ([]string, error) {
	form, err := c.FormParams()
	if err != nil {
		return nil, err
	}
	return lo.Compact(form[name]), nil
}
