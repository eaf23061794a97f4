// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/vinovest/sqlx"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

// Repository wraps sqlx for database operations.
type Repository struct {
	db *sqlx.DB
}

// New creates a new Repository instance.
func New(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// DB returns the underlying connection for direct access.
func (r *Repository) DB() *sqlx.DB {
	return r.db
}

// wrapError converts driver errors to repository errors.
func wrapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// dbTime stores timestamps in UTC with second precision so that stored
// values compare correctly as text.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
