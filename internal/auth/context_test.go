// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
	"codeberg.org/smsresearch/studyportal/internal/auth"
	"codeberg.org/smsresearch/studyportal/internal/ctxkeys"
	"codeberg.org/smsresearch/studyportal/internal/services/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestTokenValid(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"empty", "", false},
		{"not a jwt", "abc.def", false},
		{"garbage parts", "a.b.c", false},
		{"future exp", signedToken(t, jwt.MapClaims{"sub": "admin", "exp": now.Add(time.Hour).Unix()}), true},
		{"past exp", signedToken(t, jwt.MapClaims{"sub": "admin", "exp": now.Add(-time.Minute).Unix()}), false},
		{"no exp", signedToken(t, jwt.MapClaims{"sub": "admin"}), true},
		{"exp not a number", signedToken(t, jwt.MapClaims{"exp": "tomorrow"}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.TokenValid(tt.token, now))
		})
	}
}

func runGuard(t *testing.T, token string) (*httptest.ResponseRecorder, *session.Session, echo.Context, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/admin-dashboard", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	s := session.New("sid", session.Data{AdminToken: token})
	session.WithSession(c, s)

	called := false
	var seen echo.Context
	h := auth.RequireAdmin()(func(c echo.Context) error {
		called = true
		seen = c
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))
	return rec, s, seen, called
}

func TestRequireAdmin_NoToken(t *testing.T) {
	rec, _, _, called := runGuard(t, "")

	assert.False(t, called)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, auth.LoginPath, rec.Header().Get("Location"))
}

func TestRequireAdmin_ExpiredToken(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})

	rec, s, _, called := runGuard(t, token)

	assert.False(t, called)
	assert.Equal(t, auth.ExpiredPath, rec.Header().Get("Location"))
	assert.Empty(t, s.Data().AdminToken)
	assert.True(t, s.Dirty())
}

func TestRequireAdmin_ValidToken(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})

	rec, s, c, called := runGuard(t, token)

	require.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, token, s.Data().AdminToken)
	ctx := c.Request().Context()
	assert.Equal(t, token, apiclient.TokenFromContext(ctx))
	assert.Equal(t, true, ctx.Value(ctxkeys.Admin{}))
}

func TestUnauthorized(t *testing.T) {
	assert.True(t, auth.Unauthorized(&apiclient.APIError{Status: http.StatusUnauthorized}))
	assert.False(t, auth.Unauthorized(&apiclient.APIError{Status: http.StatusForbidden}))
	assert.False(t, auth.Unauthorized(errors.New("boom")))
}
