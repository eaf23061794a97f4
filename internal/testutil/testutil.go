// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil holds fixtures shared by the portal's package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/database"
	"codeberg.org/smsresearch/studyportal/internal/models"
	"codeberg.org/smsresearch/studyportal/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
)

// NewTestDB opens a migrated in-memory session store that is closed when
// the test ends.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, repository.New(db)
}

// NewTestSession stores a browser session with the given JSON payload that
// expires ttl from now. A negative ttl yields an already expired row.
func NewTestSession(t *testing.T, repo *repository.Repository, data string, ttl time.Duration) *models.Session {
	t.Helper()
	s := &models.Session{
		ID:        uuid.NewString(),
		Data:      data,
		ExpiresAt: time.Now().Add(ttl),
	}
	require.NoError(t, repo.CreateSession(context.Background(), s))
	return s
}
