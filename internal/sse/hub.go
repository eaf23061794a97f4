// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package sse fans the countdown events of a verification flow out to the
// event streams a browser session has open. Tabs of one browser share the
// session ID, so each tab gets its own subscription.
package sse

import (
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
)

// subscriberBuffer is how many events a slow tab may lag behind before
// further events to it are dropped. A countdown tick is superseded a second
// later, so dropping is harmless.
const subscriberBuffer = 10

// Hub routes events to subscribers keyed by browser session ID.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string][]chan Event
	dropped atomic.Int64
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string][]chan Event)}
}

// Subscribe opens a stream for sessionID. The returned leave func ends the
// subscription; it is safe to call after CloseSession already ended it.
func (h *Hub) Subscribe(sessionID string) (events <-chan Event, leave func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[sessionID] = append(h.subs[sessionID], ch)
	h.mu.Unlock()

	var once sync.Once
	return ch, func() { once.Do(func() { h.remove(sessionID, ch) }) }
}

func (h *Hub) remove(sessionID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[sessionID]
	if !lo.Contains(subs, ch) {
		return
	}
	if rest := lo.Without(subs, ch); len(rest) > 0 {
		h.subs[sessionID] = rest
	} else {
		delete(h.subs, sessionID)
	}
	close(ch)
}

// Publish delivers ev to every stream of sessionID without blocking.
func (h *Hub) Publish(sessionID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs[sessionID] {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// CloseSession ends every stream of sessionID, as when its flow is reset.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[sessionID] {
		close(ch)
	}
	delete(h.subs, sessionID)
}

// ClientCount returns the number of open streams.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return lo.SumBy(lo.Values(h.subs), func(s []chan Event) int { return len(s) })
}

// SessionCount returns the number of sessions with at least one stream.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

// Dropped returns how many events were discarded for full buffers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }
