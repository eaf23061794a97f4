// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package otpflow

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Registry holds the active flow of each browser session.
type Registry struct {
	mu    sync.Mutex
	flows map[string]*Flow

	backend Backend
	clock   clockwork.Clock
	seconds int
	notify  func(sessionID string, ev Event)
}

// RegistryOption configures a registry.
type RegistryOption func(*Registry)

// WithRegistryClock sets the clock handed to every flow.
func WithRegistryClock(c clockwork.Clock) RegistryOption {
	return func(r *Registry) { r.clock = c }
}

// WithRegistryResendSeconds sets the countdown length of every flow.
func WithRegistryResendSeconds(n int) RegistryOption {
	return func(r *Registry) { r.seconds = n }
}

// WithNotifier routes countdown events of every flow to fn. fn must not call
// back into the registry.
func WithNotifier(fn func(sessionID string, ev Event)) RegistryOption {
	return func(r *Registry) { r.notify = fn }
}

// NewRegistry creates an empty registry whose flows talk to backend.
func NewRegistry(backend Backend, opts ...RegistryOption) *Registry {
	r := &Registry{
		flows:   make(map[string]*Flow),
		backend: backend,
		clock:   clockwork.NewRealClock(),
		seconds: DefaultResendSeconds,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Open returns the flow of sessionID, creating it if needed. An existing flow
// for a different phone is closed and replaced.
func (r *Registry) Open(sessionID, phone, email string) (*Flow, error) {
	if phone == "" {
		return nil, ErrNoPhone
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.flows[sessionID]; ok {
		if f.Phone() == phone && !f.Closed() {
			f.UpdateContact(email)
			return f, nil
		}
		f.Close()
	}

	opts := []Option{WithClock(r.clock), WithResendSeconds(r.seconds)}
	if r.notify != nil {
		notify := r.notify
		opts = append(opts, WithObserver(func(ev Event) { notify(sessionID, ev) }))
	}
	f := NewFlow(r.backend, phone, email, opts...)
	r.flows[sessionID] = f
	return f, nil
}

// Get returns the flow of sessionID.
func (r *Registry) Get(sessionID string) (*Flow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[sessionID]
	return f, ok
}

// Close tears down the flow of sessionID.
func (r *Registry) Close(sessionID string) {
	r.mu.Lock()
	f, ok := r.flows[sessionID]
	delete(r.flows, sessionID)
	r.mu.Unlock()

	if ok {
		f.Close()
	}
}

// Sweep closes flows idle for longer than maxIdle and returns how many.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.clock.Now().Add(-maxIdle)

	r.mu.Lock()
	var idle []*Flow
	for id, f := range r.flows {
		if f.IdleSince().Before(cutoff) {
			idle = append(idle, f)
			delete(r.flows, id)
		}
	}
	r.mu.Unlock()

	for _, f := range idle {
		f.Close()
	}
	return len(idle)
}

// CloseAll tears down every flow.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	flows := r.flows
	r.flows = make(map[string]*Flow)
	r.mu.Unlock()

	for _, f := range flows {
		f.Close()
	}
}

// Len returns the number of active flows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}
