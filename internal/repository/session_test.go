// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/models"
	"codeberg.org/smsresearch/studyportal/internal/repository"
	"codeberg.org/smsresearch/studyportal/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	db, repo := testutil.NewTestDB(t)

	assert.NotNil(t, repo)
	assert.Same(t, db, repo.DB())
}

func TestCreateAndGetSession(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	s := &models.Session{ID: "abc", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, repo.CreateSession(ctx, s))

	got, err := repo.GetSession(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.ID)
	assert.Equal(t, "{}", got.Data)
	assert.False(t, got.Expired(time.Now()))
	assert.WithinDuration(t, s.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestGetSession_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	_, err := repo.GetSession(context.Background(), "missing")

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdateSession(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	s := testutil.NewTestSession(t, repo, `{"a":1}`, time.Minute)

	later := time.Now().Add(2 * time.Hour)
	require.NoError(t, repo.UpdateSession(ctx, s.ID, `{"a":2}`, later))

	got, err := repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, got.Data)
	assert.WithinDuration(t, later, got.ExpiresAt, time.Second)
}

func TestUpdateSession_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	err := repo.UpdateSession(context.Background(), "missing", "{}", time.Now())

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteSession(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	s := testutil.NewTestSession(t, repo, "{}", time.Hour)

	require.NoError(t, repo.DeleteSession(ctx, s.ID))
	require.NoError(t, repo.DeleteSession(ctx, s.ID), "deleting twice is fine")

	_, err := repo.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteExpiredSessions(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	testutil.NewTestSession(t, repo, "{}", -time.Hour)
	testutil.NewTestSession(t, repo, "{}", -time.Minute)
	live := testutil.NewTestSession(t, repo, "{}", time.Hour)

	n, err := repo.DeleteExpiredSessions(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := repo.CountSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = repo.GetSession(ctx, live.ID)
	assert.NoError(t, err)
}
