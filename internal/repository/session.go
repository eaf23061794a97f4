// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/models"
)

// CreateSession inserts a new session.
func (r *Repository) CreateSession(ctx context.Context, s *models.Session) error {
	now := dbTime(time.Now())
	s.CreatedAt = now
	s.UpdatedAt = now
	s.ExpiresAt = dbTime(s.ExpiresAt)
	if s.Data == "" {
		s.Data = "{}"
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO sessions (id, data, created_at, updated_at, expires_at)
		VALUES (:id, :data, :created_at, :updated_at, :expires_at)`, s)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetSession returns the session with the given ID, expired or not.
func (r *Repository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	err := r.db.GetContext(ctx, &s, `
		SELECT id, data, created_at, updated_at, expires_at
		FROM sessions WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &s, nil
}

// UpdateSession replaces the session data and extends its expiry.
func (r *Repository) UpdateSession(ctx context.Context, id, data string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET data = ?, updated_at = ?, expires_at = ?
		WHERE id = ?`, data, dbTime(time.Now()), dbTime(expiresAt), id)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes all sessions that expired before now and
// returns how many were removed.
func (r *Repository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, dbTime(now))
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// CountSessions returns the number of stored sessions.
func (r *Repository) CountSessions(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM sessions`); err != nil {
		return 0, err
	}
	return n, nil
}
