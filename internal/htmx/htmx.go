// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package htmx speaks the small subset of the htmx header protocol used by
// the verify panel script: it posts with HX-Request and HX-Target set and
// follows HX-Redirect responses with a full navigation.
package htmx

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	HeaderRequest  = "HX-Request"
	HeaderTarget   = "HX-Target"
	HeaderRedirect = "HX-Redirect"
)

// IsRequest reports whether r was sent by the panel script.
func IsRequest(r *http.Request) bool {
	return r.Header.Get(HeaderRequest) == "true"
}

// Partial reports whether the request asks for the fragment with the given
// element ID rather than a whole page. The response is marked as varying on
// the headers either way.
func Partial(c echo.Context, target string) bool {
	c.Response().Header().Add(echo.HeaderVary, HeaderRequest)
	c.Response().Header().Add(echo.HeaderVary, HeaderTarget)
	r := c.Request()
	return IsRequest(r) && r.Header.Get(HeaderTarget) == target
}

// Redirect sends the client to url: script requests get HX-Redirect with a
// 200, anything else a 303.
func Redirect(c echo.Context, url string) error {
	if IsRequest(c.Request()) {
		c.Response().Header().Set(HeaderRedirect, url)
		return c.NoContent(http.StatusOK)
	}
	return c.Redirect(http.StatusSeeOther, url)
}
