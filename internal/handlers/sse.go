// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/otpflow"
	"codeberg.org/smsresearch/studyportal/internal/sse"
	"github.com/labstack/echo/v4"
)

// heartbeatInterval keeps idle connections open through proxies.
const heartbeatInterval = 30 * time.Second

// reconnectDelay is how soon a dropped stream reconnects so a running
// countdown resumes quickly.
const reconnectDelay = 2 * time.Second

// tickPayload is the data of a countdown tick event.
type tickPayload struct {
	Remaining int `json:"remaining"`
}

// FlowNotifier forwards countdown events of the verify flows to the SSE
// clients of the owning browser session.
func FlowNotifier(hub *sse.Hub) func(sessionID string, ev otpflow.Event) {
	return func(sessionID string, ev otpflow.Event) {
		var payload any = struct{}{}
		if ev.Type == otpflow.EventTick {
			payload = tickPayload{Remaining: ev.Remaining}
		}
		msg, err := sse.JSON(string(ev.Type), payload)
		if err != nil {
			slog.Warn("dropping countdown event", "error", err)
			return
		}
		hub.Publish(sessionID, msg)
	}
}

// Events streams the countdown of the verify flow to the browser.
func (h *Handlers) Events(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	events, leave := h.hub.Subscribe(s.ID)
	defer leave()

	if _, err := w.Write([]byte(sse.Event{Name: "connected", Data: "ok", Retry: reconnectDelay}.String())); err != nil {
		return nil
	}
	w.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Write([]byte(sse.Heartbeat)); err != nil {
				return nil
			}
			w.Flush()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := w.Write([]byte(ev.String())); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
