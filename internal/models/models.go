// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package models defines the rows stored in the portal database.
package models

import (
	"time"
)

// Session is a stored browser session. Data holds the JSON encoded session
// state.
type Session struct { //nolint:govet // fieldalignment not critical for models
	ID        string    `db:"id"`
	Data      string    `db:"data"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
