package session

import (
	"context"
	"testing"
	"time"
)

func TestCountdownExpiresImmediatelyOnZeroBudget(t *testing.T) {
	c := NewCountdown(0)
	ticks := c.Start(context.Background())

	select {
	case tick := <-ticks:
		if !tick.Expired {
			t.Fatalf("expected terminal tick, got %+v", tick)
		}
		if tick.Remaining != 0 {
			t.Fatalf("terminal tick must carry zero remaining, got %d", tick.Remaining)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal tick")
	}

	if _, ok := <-ticks; ok {
		t.Fatal("no ticks may follow the terminal tick")
	}
}

func TestCountdownEmitsDecreasingRemaining(t *testing.T) {
	c := NewCountdown(time.Hour)
	ticks := c.Start(context.Background())
	defer c.Cancel()

	select {
	case tick := <-ticks:
		if tick.Expired {
			t.Fatal("an hour-long countdown must not expire on the first tick")
		}
		if tick.Remaining <= 0 || tick.Remaining > 3600 {
			t.Fatalf("unexpected remaining %d", tick.Remaining)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the first tick")
	}
}

func TestCountdownCancelClosesStream(t *testing.T) {
	c := NewCountdown(time.Hour)
	ticks := c.Start(context.Background())

	<-ticks
	c.Cancel()
	c.Cancel() // idempotent

	select {
	case _, ok := <-ticks:
		if ok {
			// One buffered tick may still be in flight; the stream must
			// close right after.
			if _, ok := <-ticks; ok {
				t.Fatal("tick stream must close after cancel")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the stream to close")
	}
}

func TestCountdownContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCountdown(time.Hour)
	ticks := c.Start(ctx)

	<-ticks
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ticks:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for the stream to close after ctx cancel")
		}
	}
}

func TestCountdownRemainingFlooredAtZero(t *testing.T) {
	c := NewCountdown(-time.Minute)
	if got := c.Remaining(); got != 0 {
		t.Fatalf("expected zero remaining, got %v", got)
	}
}
