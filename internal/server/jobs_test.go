// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"testing"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
	"codeberg.org/smsresearch/studyportal/internal/config"
	"codeberg.org/smsresearch/studyportal/internal/otpflow"
	"codeberg.org/smsresearch/studyportal/internal/services/session"
	"codeberg.org/smsresearch/studyportal/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopBackend struct{}

func (nopBackend) StartOtp(context.Context, string) (*apiclient.StartOtpResult, error) {
	return &apiclient.StartOtpResult{OK: true}, nil
}

func (nopBackend) CheckOtp(context.Context, string, string, string, string) (*apiclient.CheckOtpResult, error) {
	return &apiclient.CheckOtpResult{}, nil
}

func (nopBackend) SendSurveyInvitation(context.Context, string) (*apiclient.InvitationResult, error) {
	return &apiclient.InvitationResult{}, nil
}

func TestStartJobs(t *testing.T) {
	flows := otpflow.NewRegistry(nopBackend{})

	jobs, err := startJobs(newTestSessions(t), flows, time.Minute)
	require.NoError(t, err)
	defer jobs.Stop()

	assert.Len(t, jobs.Entries(), 2)
}

func TestPurgeSessions(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	sessions, err := session.NewManager(&config.SessionConfig{
		CookieName: "_session",
		MaxAge:     3600,
		HashKey:    testHashKey,
	}, repo, false)
	require.NoError(t, err)

	expired := testutil.NewTestSession(t, repo, "{}", -time.Minute)
	live := testutil.NewTestSession(t, repo, "{}", time.Hour)

	purgeSessions(sessions)

	ctx := context.Background()
	_, err = repo.GetSession(ctx, expired.ID)
	require.Error(t, err)
	_, err = repo.GetSession(ctx, live.ID)
	require.NoError(t, err)
}

func TestSweepFlows(t *testing.T) {
	clock := testutil.NewFakeClock()
	flows := otpflow.NewRegistry(nopBackend{}, otpflow.WithRegistryClock(clock))

	_, err := flows.Open("s1", "5551234567", "")
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = flows.Open("s2", "5551234567", "")
	require.NoError(t, err)

	sweepFlows(flows, 30*time.Minute)

	assert.Equal(t, 1, flows.Len())
	_, ok := flows.Get("s2")
	assert.True(t, ok)
}
