// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// NewFakeClock returns a manually advanced clock frozen at a fixed instant.
func NewFakeClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
}

// WaitTickers fails the test unless clock has exactly n live tickers within
// a second.
func WaitTickers(t testing.TB, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, n), "waiting for %d live tickers", n)
}
