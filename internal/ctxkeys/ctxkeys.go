// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ctxkeys holds the request context keys shared by the server
// middleware and the page templates. Values are set in one place and read
// in the other, so the key types live apart from both.
package ctxkeys

// CSRFToken keys the token echoed into every participant and admin form.
type CSRFToken struct{}

// Layout keys the asset paths and study contact details of the page chrome.
type Layout struct{}

// Flashes keys the notices shown above the page being rendered.
type Flashes struct{}

// Admin marks a request that carries an admin token.
type Admin struct{}
