// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

//go:build dev

// Package assets serves the portal stylesheet and the verify panel script.
// Dev builds read them from the working tree so edits show up on reload.
package assets

import "net/http"

// staticDir is relative to the repository root, where `go run -tags dev`
// is expected to start.
const staticDir = "internal/assets/static"

// CSSPath returns the unhashed stylesheet URL.
func CSSPath() string { return "/static/css/styles.css" }

// JSPath returns the unhashed script URL.
func JSPath() string { return "/static/js/app.js" }

// FileServer serves staticDir from disk.
func FileServer() http.Handler { return http.FileServer(http.Dir(staticDir)) }
