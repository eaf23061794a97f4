// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
	"codeberg.org/smsresearch/studyportal/internal/auth"
	"github.com/labstack/echo/v4"
)

const enrollmentPath = "/admin-enrollment"

// Enrollment shows the enrollment limit and switch.
func (h *Handlers) Enrollment(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	cfg, err := h.api.EnrollmentConfig(c.Request().Context())
	if err != nil {
		if auth.Unauthorized(err) {
			return auth.Expire(c)
		}
		slog.WarnContext(c.Request().Context(), "enrollment config load failed", "error", err)
		flashErr(s, err)
	}

	return page(c, http.StatusOK, "admin/enrollment", map[string]any{"Config": cfg})
}

// UpdateEnrollment stores the enrollment limit and switch. An empty limit
// means unlimited.
func (h *Handlers) UpdateEnrollment(c echo.Context) error {
	update := apiclient.EnrollmentUpdate{IsEnrollmentActive: c.FormValue("active") == "yes"}
	if raw := strings.TrimSpace(c.FormValue("max_participants")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return h.adminFlash(c, enrollmentPath, flashError, "admin_enrollment_invalid_max")
		}
		update.MaxParticipants = &n
	}

	_, err := h.api.UpdateEnrollmentConfig(c.Request().Context(), update)
	return h.adminDone(c, enrollmentPath, nil, err, "admin_enrollment_saved")
}
