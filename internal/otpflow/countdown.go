// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package otpflow

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TickFunc observes countdown progress. It runs on the countdown goroutine
// and must not call back into the countdown or its owner.
type TickFunc func(remaining int, canResend bool)

// Countdown counts whole seconds down to zero, then allows a resend.
//
// canResend is false exactly while remaining > 0, and flips to true once.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	canResend bool
	stopped   bool

	ticker   clockwork.Ticker
	onTick   TickFunc
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// StartCountdown starts a countdown of seconds on clock. onTick may be nil.
func StartCountdown(clock clockwork.Clock, seconds int, onTick TickFunc) *Countdown {
	c := &Countdown{
		remaining: seconds,
		onTick:    onTick,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if seconds <= 0 {
		c.remaining = 0
		c.canResend = true
		c.stopped = true
		close(c.done)
		return c
	}

	c.ticker = clock.NewTicker(time.Second)
	go c.run()
	return c
}

func (c *Countdown) run() {
	defer close(c.done)
	defer c.ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-c.ticker.Chan():
			remaining, canResend, ok := c.tick()
			if !ok {
				return
			}
			if c.onTick != nil {
				c.onTick(remaining, canResend)
			}
			if canResend {
				return
			}
		}
	}
}

func (c *Countdown) tick() (int, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return 0, false, false
	}
	c.remaining--
	if c.remaining <= 0 {
		c.remaining = 0
		c.canResend = true
		c.stopped = true
	}
	return c.remaining, c.canResend, true
}

// State returns the seconds remaining and whether a resend is allowed.
func (c *Countdown) State() (remaining int, canResend bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining, c.canResend
}

// Stop cancels the countdown and waits for its goroutine to exit.
// The state is frozen at its current value. Stop is idempotent.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		c.mu.Unlock()
		close(c.stop)
	})
	<-c.done
}

// Done is closed once the countdown goroutine has exited.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}
