// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"codeberg.org/smsresearch/studyportal/internal/templates"
	"github.com/labstack/echo/v4"
)

// requestContext makes the page layout available to every render.
func requestContext(l templates.Layout) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(templates.WithLayout(c.Request().Context(), l)))
			return next(c)
		}
	}
}
