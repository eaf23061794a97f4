// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/smsresearch/studyportal/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
)

func open(t *testing.T, dsn string) *sqlx.DB {
	t.Helper()
	db, err := database.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableCount(t *testing.T, db *sqlx.DB, name string) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, "SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?", name))
	return n
}

func TestOpen_InMemory(t *testing.T) {
	db := open(t, ":memory:")

	assert.Equal(t, 1, tableCount(t, db, "sessions"))
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)

	_, err := db.Exec("INSERT INTO sessions (id, data, created_at, updated_at, expires_at) VALUES ('a', '{}', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)")
	require.NoError(t, err)
	var n int
	require.NoError(t, db.Get(&n, "SELECT count(*) FROM sessions"))
	assert.Equal(t, 1, n, "rows stay visible on the pinned connection")
}

func TestOpen_DSNVariants(t *testing.T) {
	for _, dsn := range []string{":memory:?cache=shared", "file::memory:?mode=memory"} {
		t.Run(dsn, func(t *testing.T) {
			db := open(t, dsn)
			assert.Equal(t, 1, tableCount(t, db, "sessions"))
		})
	}
}

func TestOpen_FileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "portal.db")

	db := open(t, path)

	assert.FileExists(t, path)
	assert.Equal(t, 1, tableCount(t, db, "sessions"))

	var mode string
	require.NoError(t, db.Get(&mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)
}

func TestOpen_DefaultDSN(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	open(t, "")

	assert.FileExists(t, database.DefaultDSN)
}

func TestOpen_Pragmas(t *testing.T) {
	db := open(t, ":memory:")

	var busy, fk, sync int
	require.NoError(t, db.Get(&busy, "PRAGMA busy_timeout"))
	require.NoError(t, db.Get(&fk, "PRAGMA foreign_keys"))
	require.NoError(t, db.Get(&sync, "PRAGMA synchronous"))
	assert.Equal(t, 5000, busy)
	assert.Equal(t, 1, fk)
	assert.Equal(t, 1, sync, "NORMAL")
}

func TestOpen_KeepsExplicitPragma(t *testing.T) {
	db := open(t, ":memory:?_pragma=busy_timeout(100)")

	var busy int
	require.NoError(t, db.Get(&busy, "PRAGMA busy_timeout"))
	assert.Equal(t, 100, busy)
}

func TestRollbackAndMigrate(t *testing.T) {
	ctx := context.Background()
	db := open(t, ":memory:")

	v, err := database.Version(ctx, db.DB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	require.NoError(t, database.Rollback(ctx, db.DB))
	assert.Zero(t, tableCount(t, db, "sessions"))

	require.NoError(t, database.Migrate(ctx, db.DB))
	assert.Equal(t, 1, tableCount(t, db, "sessions"))
}
