package session

import (
	"context"
	"sync"
	"time"
)

// Tick is one emission of a running countdown. The terminal tick carries
// Expired=true and is emitted exactly once; no ticks follow it.
type Tick struct {
	Remaining int
	Expired   bool
}

// Countdown produces a decreasing per-second time budget for one session.
// The remaining time is always derived from a fixed wall-clock deadline,
// never from accumulated ticks, so a suspended timer loses display
// precision but cannot drift the deadline. The countdown is a UX aid; the
// authoritative cutoff for grading is server time at submission receipt.
type Countdown struct {
	deadline time.Time
	ticks    chan Tick
	cancel   chan struct{}
	once     sync.Once
}

// NewCountdown creates a countdown that will expire after d. A
// non-positive d expires on the first tick.
func NewCountdown(d time.Duration) *Countdown {
	return &Countdown{
		deadline: time.Now().Add(d),
		ticks:    make(chan Tick, 1),
		cancel:   make(chan struct{}),
	}
}

// Start launches the ticker goroutine and returns the tick stream. The
// channel is closed after the terminal tick, after Cancel, or when ctx is
// done.
func (c *Countdown) Start(ctx context.Context) <-chan Tick {
	go c.run(ctx)
	return c.ticks
}

func (c *Countdown) run(ctx context.Context) {
	defer close(c.ticks)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		remaining := time.Until(c.deadline)
		if remaining <= 0 {
			c.emit(ctx, Tick{Remaining: 0, Expired: true})
			return
		}

		c.emit(ctx, Tick{Remaining: int(remaining.Round(time.Second) / time.Second)})

		select {
		case <-ctx.Done():
			return
		case <-c.cancel:
			return
		case <-ticker.C:
		}
	}
}

func (c *Countdown) emit(ctx context.Context, t Tick) {
	select {
	case c.ticks <- t:
	case <-ctx.Done():
	case <-c.cancel:
	}
}

// Cancel stops emission. Safe to call multiple times and after expiry.
func (c *Countdown) Cancel() {
	c.once.Do(func() { close(c.cancel) })
}

// Remaining returns the time left until the deadline, floored at zero.
func (c *Countdown) Remaining() time.Duration {
	r := time.Until(c.deadline)
	if r < 0 {
		return 0
	}
	return r
}

// Deadline returns the fixed expiry instant.
func (c *Countdown) Deadline() time.Time {
	return c.deadline
}
