// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth guards the admin console with the backend-issued token kept in
// the server-side session.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
	"codeberg.org/smsresearch/studyportal/internal/ctxkeys"
	"codeberg.org/smsresearch/studyportal/internal/htmx"
	"codeberg.org/smsresearch/studyportal/internal/services/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	// LoginPath is the admin login page.
	LoginPath = "/admin-login"
	// ExpiredPath is the login page with the expired notice.
	ExpiredPath = LoginPath + "?expired=true"
)

// TokenValid reports whether token looks like a JWT whose exp claim, when
// present, lies after now. The signature is not checked here; the backend
// verifies it on every call.
func TokenValid(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return false
	}
	if exp == nil {
		return true
	}
	return now.Before(exp.Time)
}

// RequireAdmin only lets requests through whose session holds a valid admin
// token. The token is handed to the API client via the request context.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s := session.FromContext(c)
			if s == nil || s.Data().AdminToken == "" {
				return htmx.Redirect(c, LoginPath)
			}

			token := s.Data().AdminToken
			if !TokenValid(token, time.Now()) {
				return Expire(c)
			}

			ctx := apiclient.WithToken(c.Request().Context(), token)
			ctx = context.WithValue(ctx, ctxkeys.Admin{}, true)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// Expire drops the admin token and sends the browser to the login page with
// the expired notice.
func Expire(c echo.Context) error {
	ClearToken(c)
	slog.InfoContext(c.Request().Context(), "admin session expired")
	return htmx.Redirect(c, ExpiredPath)
}

// ClearToken removes the admin token from the session.
func ClearToken(c echo.Context) {
	if s := session.FromContext(c); s != nil {
		s.Update(func(d *session.Data) { d.AdminToken = "" })
	}
}

// Unauthorized reports whether err is a backend 401.
func Unauthorized(err error) bool {
	return apiclient.StatusOf(err) == http.StatusUnauthorized
}
