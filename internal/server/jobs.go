// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/otpflow"
	"codeberg.org/smsresearch/studyportal/internal/services/session"
	"github.com/robfig/cron/v3"
)

// Job schedules.
const (
	sessionPurgeSpec = "@every 1h"
	flowSweepSpec    = "@every 1m"
)

// startJobs schedules the periodic cleanups. The caller stops the returned
// scheduler on shutdown.
func startJobs(sessions *session.Manager, flows *otpflow.Registry, idle time.Duration) (*cron.Cron, error) {
	c := cron.New()

	if _, err := c.AddFunc(sessionPurgeSpec, func() { purgeSessions(sessions) }); err != nil {
		return nil, fmt.Errorf("scheduling session purge: %w", err)
	}
	if _, err := c.AddFunc(flowSweepSpec, func() { sweepFlows(flows, idle) }); err != nil {
		return nil, fmt.Errorf("scheduling flow sweep: %w", err)
	}

	c.Start()
	return c, nil
}

func purgeSessions(sessions *session.Manager) {
	n, err := sessions.DeleteExpired(context.Background())
	if err != nil {
		slog.Error("session purge failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("purged expired sessions", "count", n)
	}
}

func sweepFlows(flows *otpflow.Registry, idle time.Duration) {
	if n := flows.Sweep(idle); n > 0 {
		slog.Info("closed idle verification flows", "count", n)
	}
}
