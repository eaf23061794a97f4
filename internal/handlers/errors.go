// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// errorTitles maps status codes to translated page titles.
var errorTitles = map[int]string{
	http.StatusBadRequest:          "error_400_title",
	http.StatusForbidden:           "error_403_title",
	http.StatusNotFound:            "error_404_title",
	http.StatusMethodNotAllowed:    "error_405_title",
	http.StatusConflict:            "error_409_title",
	http.StatusTooManyRequests:     "error_429_title",
	http.StatusInternalServerError: "error_500_title",
}

// RenderError renders the error page with the given status code and message.
func RenderError(c echo.Context, code int, message string) error {
	title, ok := errorTitles[code]
	if !ok {
		title = "error_generic_title"
	}
	return page(c, code, "error", map[string]any{
		"Code":    code,
		"Title":   title,
		"Message": message,
	})
}

// ErrorHandler is the echo HTTPErrorHandler. Messages of client errors are
// shown unless they only repeat the status text.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := ""
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if msg := fmt.Sprint(he.Message); code < http.StatusInternalServerError && msg != http.StatusText(code) {
			message = msg
		}
	}
	if code >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request().Context(), "request failed", "error", err, "uri", c.Request().RequestURI)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = RenderError(c, code, message)
	}
	if err != nil {
		slog.ErrorContext(c.Request().Context(), "failed to render error page", "error", err)
	}
}

// BadRequest renders a 400 error page.
func BadRequest(c echo.Context, message string) error {
	return RenderError(c, http.StatusBadRequest, message)
}
