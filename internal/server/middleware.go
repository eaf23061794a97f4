// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"codeberg.org/smsresearch/studyportal/internal/config"
	"codeberg.org/smsresearch/studyportal/internal/ctxkeys"
	"codeberg.org/smsresearch/studyportal/internal/i18n"
	"codeberg.org/smsresearch/studyportal/internal/services/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// eventsPath is the server-sent events endpoint. It is never compressed.
const eventsPath = "/verify/events"

func setupMiddleware(e *echo.Echo, cfg *config.Config, sessions *session.Manager) {
	e.Pre(middleware.RemoveTrailingSlashWithConfig(middleware.TrailingSlashConfig{
		RedirectCode: http.StatusMovedPermanently,
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(middleware.Secure())
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool { return c.Request().URL.Path == eventsPath },
	}))
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.Server.MaxBodySize)))
	e.Use(staticCacheHeaders())
	e.Use(requestContext(pageLayout(cfg.Study)))
	e.Use(i18nMiddleware())
	e.Use(csrfMiddleware(cfg))
	e.Use(csrfToContext())
	e.Use(sessionMiddleware(sessions))
}

// sessionMiddleware loads the server-side session for page requests. Static
// files and the health check run without a session.
func sessionMiddleware(sessions *session.Manager) echo.MiddlewareFunc {
	load := sessions.Middleware()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withSession := load(next)
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if strings.HasPrefix(path, "/static/") || path == "/health" {
				return next(c)
			}
			return withSession(c)
		}
	}
}

// codeRateLimiter limits verification code requests per client IP.
func codeRateLimiter(cfg config.RateLimitConfig) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.Rate),
		Burst:     cfg.Burst,
		ExpiresIn: cfg.ExpiresIn,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "client not identified")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			slog.WarnContext(c.Request().Context(), "code request rate limited", "client", identifier)
			return echo.NewHTTPError(http.StatusTooManyRequests)
		},
	})
}

// csrfMiddleware configures CSRF protection.
func csrfMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	secure := strings.HasPrefix(cfg.Server.BaseURL, "https://")

	return middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "form:csrf_token,header:X-CSRF-Token",
		CookieName:     "_csrf",
		CookiePath:     "/",
		CookieSecure:   secure,
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteLaxMode,
	})
}

// csrfToContext copies the CSRF token to the request context.
func csrfToContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token, ok := c.Get("csrf").(string); ok {
				ctx := context.WithValue(c.Request().Context(), ctxkeys.CSRFToken{}, token)
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
}

// requestLogger logs one line per request. It records the route pattern
// rather than the raw URI so phone numbers and emails in admin search
// queries stay out of the logs. Server errors log at error, rejected
// requests at warn, the rest at debug.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogRoutePath: true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("route", v.RoutePath),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			level := slog.LevelDebug
			switch {
			case v.Error != nil && v.Status >= http.StatusInternalServerError:
				level = slog.LevelError
			case v.Status == http.StatusTooManyRequests || v.Status == http.StatusForbidden:
				level = slog.LevelWarn
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			slog.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}

// langCookie remembers a language picked with ?lang= across pages.
const langCookie = "lang"

// i18nMiddleware localizes the request from ?lang=, then the lang cookie,
// then Accept-Language. A valid ?lang= choice is stored in the cookie.
func i18nMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			explicit := c.QueryParam("lang")
			fromQuery := explicit != ""
			if !fromQuery {
				if ck, err := c.Cookie(langCookie); err == nil {
					explicit = ck.Value
				}
			}

			tag, ok := i18n.Choose(explicit, c.Request().Header.Get("Accept-Language"))
			if ok && fromQuery {
				base, _ := tag.Base()
				c.SetCookie(&http.Cookie{
					Name:     langCookie,
					Value:    base.String(),
					Path:     "/",
					MaxAge:   365 * 24 * 60 * 60,
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}

			c.SetRequest(c.Request().WithContext(i18n.WithLocale(c.Request().Context(), tag)))
			return next(c)
		}
	}
}

// hashedAsset matches bundle names such as app.3f9a1c2e.js.
var hashedAsset = regexp.MustCompile(`\.[0-9a-f]{8}\.(css|js)$`)

// staticCacheHeaders makes hashed bundles immutable and keeps dev builds
// uncached. Plain embedded files get no header.
func staticCacheHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if path := c.Request().URL.Path; strings.HasPrefix(path, "/static/") {
				switch {
				case hashedAsset.MatchString(path):
					c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=31536000, immutable")
				case strings.Contains(path, ".dev."):
					c.Response().Header().Set(echo.HeaderCacheControl, "no-cache, no-store, must-revalidate")
				}
			}
			return next(c)
		}
	}
}
