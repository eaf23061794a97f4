// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/assets"
	"codeberg.org/smsresearch/studyportal/internal/config"
	"codeberg.org/smsresearch/studyportal/internal/ctxkeys"
	"codeberg.org/smsresearch/studyportal/internal/i18n"
	"codeberg.org/smsresearch/studyportal/internal/services/session"
	"codeberg.org/smsresearch/studyportal/internal/templates"
	"codeberg.org/smsresearch/studyportal/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHashKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newTestSessions(t *testing.T) *session.Manager {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	sessions, err := session.NewManager(&config.SessionConfig{
		CookieName: "_session",
		MaxAge:     3600,
		HashKey:    testHashKey,
	}, repo, false)
	require.NoError(t, err)
	return sessions
}

func TestStaticCacheHeaders(t *testing.T) {
	e := echo.New()
	e.Use(staticCacheHeaders())
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/static/*", ok)
	e.GET("/verify", ok)

	const immutable = "public, max-age=31536000, immutable"
	tests := map[string]string{
		"/static/js/app.abc12345.js":      immutable,
		"/static/css/styles.d073ff63.css": immutable,
		"/static/js/app.dev.js":           "no-cache, no-store, must-revalidate",
		"/static/js/app.js":               "",
		"/static/js/app.ABCDEF12.js":      "",
		"/static/js/app.abcd123.js":       "",
		"/static/js/app.abcd12345.js":     "",
		"/static/img/logo.abc12345.png":   "",
		"/verify":                         "",
	}

	for path, want := range tests {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, want, rec.Header().Get("Cache-Control"))
		})
	}
}

func TestRequestLogger_OmitsQuery(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	e := echo.New()
	e.Use(requestLogger())
	e.GET("/admin/dashboard", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin/dashboard?search=5551234567", nil))

	assert.Contains(t, buf.String(), `"route":"/admin/dashboard"`)
	assert.NotContains(t, buf.String(), "5551234567")
}

func TestI18nMiddleware(t *testing.T) {
	require.NoError(t, i18n.Init())

	e := echo.New()
	e.Use(i18nMiddleware())

	var locale string
	e.GET("/", func(c echo.Context) error {
		locale = i18n.GetLocale(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	t.Run("English header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Language", "en-US")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.True(t, strings.HasPrefix(locale, "en"), "expected locale to start with 'en', got %s", locale)
	})

	t.Run("Spanish header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Language", "es-MX")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.True(t, strings.HasPrefix(locale, "es"), "expected locale to start with 'es', got %s", locale)
	})

	t.Run("query overrides header and is remembered", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?lang=es", nil)
		req.Header.Set("Accept-Language", "en-US")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, "es", locale)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "lang", cookies[0].Name)
		assert.Equal(t, "es", cookies[0].Value)
	})

	t.Run("cookie overrides header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Language", "en-US")
		req.AddCookie(&http.Cookie{Name: "lang", Value: "es"})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, "es", locale)
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("unsupported query is ignored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?lang=de", nil)
		req.Header.Set("Accept-Language", "en-US")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, "en", locale)
		assert.Empty(t, rec.Result().Cookies())
	})
}

func TestCsrfMiddleware(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			BaseURL: "http://localhost:8080",
		},
	}

	e := echo.New()
	e.Use(csrfMiddleware(cfg))
	e.POST("/start", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/start", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCsrfToContext_WithToken(t *testing.T) {
	e := echo.New()

	// Middleware that sets a fake CSRF token
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("csrf", "test-token")
			return next(c)
		}
	})
	e.Use(csrfToContext())

	var csrfToken string
	e.GET("/", func(c echo.Context) error {
		csrfToken, _ = c.Request().Context().Value(ctxkeys.CSRFToken{}).(string)
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test-token", csrfToken)
}

func TestRequestContext(t *testing.T) {
	e := echo.New()
	study := config.StudyConfig{Name: "AI Use Study", SupportEmail: "team@example.org"}
	e.Use(requestContext(pageLayout(study)))

	var got config.StudyConfig
	var css string
	e.GET("/", func(c echo.Context) error {
		ctx := c.Request().Context()
		got = templates.Study(ctx)
		css = templates.CSSPath(ctx)
		return c.NoContent(http.StatusOK)
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, study, got)
	assert.Equal(t, assets.CSSPath(), css)
}

func TestSessionMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(sessionMiddleware(newTestSessions(t)))

	var loaded bool
	handler := func(c echo.Context) error {
		loaded = session.FromContext(c) != nil
		return c.NoContent(http.StatusOK)
	}
	e.GET("/", handler)
	e.GET("/health", handler)
	e.GET("/static/*", handler)

	tests := []struct {
		path       string
		wantLoaded bool
	}{
		{"/", true},
		{"/health", false},
		{"/static/css/styles.css", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantLoaded, loaded)
			assert.Equal(t, tt.wantLoaded, rec.Header().Get("Set-Cookie") != "")
		})
	}
}

func TestCodeRateLimiter(t *testing.T) {
	e := echo.New()
	e.POST("/verify/send", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, codeRateLimiter(config.RateLimitConfig{Rate: 0.001, Burst: 2, ExpiresIn: time.Minute}))

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/verify/send", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2"), "limits are per client")
}

func TestSetupMiddleware_EventsNotCompressed(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{BaseURL: "http://localhost:8080", MaxBodySize: 1}}
	e := echo.New()
	setupMiddleware(e, cfg, newTestSessions(t))

	body := strings.Repeat("data: x\n", 512)
	ok := func(c echo.Context) error { return c.String(http.StatusOK, body) }
	e.GET(eventsPath, ok)
	e.GET("/", ok)

	for path, wantGzip := range map[string]bool{eventsPath: false, "/": true} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, wantGzip, rec.Header().Get("Content-Encoding") == "gzip", path)
	}
}

func TestSetupMiddleware_TrailingSlash(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{BaseURL: "http://localhost:8080", MaxBodySize: 1}}
	e := echo.New()
	setupMiddleware(e, cfg, newTestSessions(t))
	e.GET("/survey", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/survey/?lang=es", nil))

	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/survey?lang=es", rec.Header().Get("Location"))
}
