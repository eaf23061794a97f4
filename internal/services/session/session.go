// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session keeps per-browser state in the database behind a signed
// session-ID cookie.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/config"
	"codeberg.org/smsresearch/studyportal/internal/models"
	"codeberg.org/smsresearch/studyportal/internal/repository"
	"codeberg.org/smsresearch/studyportal/internal/screening"
	"codeberg.org/smsresearch/studyportal/internal/verification"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"
)

const contextKey = "session"

// Flash is a one-shot notice shown after a redirect. Text is verbatim and
// takes precedence over the translation ID.
type Flash struct {
	Kind string `json:"kind"`
	ID   string `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
}

// Data is everything stored for one browser session.
type Data struct {
	Verification verification.Session `json:"verification"`
	Screening    screening.State      `json:"screening"`
	AdminToken   string               `json:"admin_token,omitempty"`
	Flashes      []Flash              `json:"flashes,omitempty"`
}

// Session is a loaded session. Changes made through Update are written back
// when the request finishes.
type Session struct {
	ID        string
	ExpiresAt time.Time
	data      Data
	dirty     bool
}

// Data returns a copy of the session data.
func (s *Session) Data() Data {
	return s.data
}

// Update applies fn to the session data and marks the session for saving.
func (s *Session) Update(fn func(*Data)) {
	fn(&s.data)
	s.dirty = true
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(f Flash) {
	s.Update(func(d *Data) { d.Flashes = append(d.Flashes, f) })
}

// PopFlashes returns and clears the queued flash messages.
func (s *Session) PopFlashes() []Flash {
	flashes := s.data.Flashes
	if len(flashes) > 0 {
		s.Update(func(d *Data) { d.Flashes = nil })
	}
	return flashes
}

// cookieValue is the signed cookie payload.
type cookieValue struct {
	ID string
}

// Manager loads and stores sessions.
type Manager struct {
	repo       *repository.Repository
	codec      *securecookie.SecureCookie
	cookieName string
	maxAge     time.Duration
	persist    bool
	secure     bool
}

// NewManager creates a session manager. Keys are hex encoded 32-byte values;
// an empty hash key is replaced by a random one, which invalidates sessions
// on restart.
func NewManager(cfg *config.SessionConfig, repo *repository.Repository, secure bool) (*Manager, error) {
	hashKey, err := decodeKey(cfg.HashKey, "hash")
	if err != nil {
		return nil, err
	}
	if hashKey == nil {
		slog.Warn("no session hash key configured, generating a random one")
		hashKey = securecookie.GenerateRandomKey(32)
		if hashKey == nil {
			return nil, errors.New("generating session hash key")
		}
	}

	blockKey, err := decodeKey(cfg.BlockKey, "block")
	if err != nil {
		return nil, err
	}

	maxAge := time.Duration(cfg.MaxAge) * time.Second
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(maxAge.Seconds()))

	return &Manager{
		repo:       repo,
		codec:      codec,
		cookieName: cfg.CookieName,
		maxAge:     maxAge,
		persist:    cfg.Persist,
		secure:     secure,
	}, nil
}

func decodeKey(s, name string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid session %s key: %w", name, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid session %s key: must be 32 bytes, got %d", name, len(key))
	}
	return key, nil
}

// GenerateKey returns a random hex encoded 32-byte key.
func GenerateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Create stores a new empty session and returns it with its cookie.
func (m *Manager) Create(ctx context.Context) (*Session, *http.Cookie, error) {
	s := &Session{
		ID:        uuid.NewString(),
		ExpiresAt: time.Now().Add(m.maxAge),
	}
	row := &models.Session{ID: s.ID, ExpiresAt: s.ExpiresAt}
	if err := m.repo.CreateSession(ctx, row); err != nil {
		return nil, nil, err
	}
	cookie, err := m.cookie(s.ID)
	if err != nil {
		return nil, nil, err
	}
	return s, cookie, nil
}

// Load returns the session referenced by the request cookie. A missing,
// tampered or expired session yields nil without error.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(m.cookieName)
	if err != nil {
		return nil, nil
	}

	var value cookieValue
	if err := m.codec.Decode(m.cookieName, c.Value, &value); err != nil {
		return nil, nil
	}

	row, err := m.repo.GetSession(r.Context(), value.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if row.Expired(time.Now()) {
		return nil, nil
	}

	s := &Session{ID: row.ID, ExpiresAt: row.ExpiresAt}
	if err := json.Unmarshal([]byte(row.Data), &s.data); err != nil {
		slog.Warn("discarding unreadable session data", "error", err)
		s.data = Data{}
	}
	return s, nil
}

// Save writes the session data back and extends its lifetime.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	s.ExpiresAt = time.Now().Add(m.maxAge)
	if err := m.repo.UpdateSession(ctx, s.ID, string(data), s.ExpiresAt); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Renew moves the session data to a fresh ID and returns the new cookie.
// Used on privilege changes such as admin login.
func (m *Manager) Renew(ctx context.Context, s *Session) (*http.Cookie, error) {
	oldID := s.ID
	s.ID = uuid.NewString()
	s.ExpiresAt = time.Now().Add(m.maxAge)

	data, err := json.Marshal(s.data)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	row := &models.Session{ID: s.ID, Data: string(data), ExpiresAt: s.ExpiresAt}
	if err := m.repo.CreateSession(ctx, row); err != nil {
		return nil, err
	}
	if err := m.repo.DeleteSession(ctx, oldID); err != nil {
		slog.Warn("failed to delete renewed session", "error", err)
	}
	s.dirty = false
	return m.cookie(s.ID)
}

// Destroy deletes the session and returns a cookie that clears it.
func (m *Manager) Destroy(ctx context.Context, s *Session) (*http.Cookie, error) {
	if err := m.repo.DeleteSession(ctx, s.ID); err != nil {
		return nil, err
	}
	s.dirty = false
	return m.Clear(), nil
}

// DeleteExpired purges expired sessions.
func (m *Manager) DeleteExpired(ctx context.Context) (int64, error) {
	return m.repo.DeleteExpiredSessions(ctx, time.Now())
}

func (m *Manager) cookie(id string) (*http.Cookie, error) {
	encoded, err := m.codec.Encode(m.cookieName, cookieValue{ID: id})
	if err != nil {
		return nil, fmt.Errorf("encoding session cookie: %w", err)
	}
	c := &http.Cookie{
		Name:     m.cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if m.persist {
		c.MaxAge = int(m.maxAge.Seconds())
	}
	return c, nil
}

// Clear returns a cookie that deletes the session cookie.
func (m *Manager) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Middleware loads the session of every request, creating one when needed,
// and saves it after the handler when it changed.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			s, err := m.Load(c.Request())
			if err != nil {
				return fmt.Errorf("loading session: %w", err)
			}
			if s == nil {
				var cookie *http.Cookie
				s, cookie, err = m.Create(ctx)
				if err != nil {
					return fmt.Errorf("creating session: %w", err)
				}
				c.SetCookie(cookie)
			}

			c.Set(contextKey, s)
			// Saved before the response is committed.
			c.Response().Before(func() { m.saveIfDirty(ctx, s) })
			err = next(c)
			m.saveIfDirty(ctx, s)
			return err
		}
	}
}

func (m *Manager) saveIfDirty(ctx context.Context, s *Session) {
	if !s.dirty {
		return
	}
	if err := m.Save(ctx, s); err != nil {
		slog.ErrorContext(ctx, "failed to save session", "error", err)
	}
}

// FromContext returns the session loaded by Middleware, or nil.
func FromContext(c echo.Context) *Session {
	s, _ := c.Get(contextKey).(*Session)
	return s
}

// WithSession stores s on the echo context. Used by tests.
func WithSession(c echo.Context, s *Session) {
	c.Set(contextKey, s)
}

// New returns an unsaved session holding data.
func New(id string, data Data) *Session {
	return &Session{ID: id, data: data}
}

// Dirty reports whether the session has unsaved changes.
func (s *Session) Dirty() bool {
	return s.dirty
}
