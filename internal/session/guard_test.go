package session

import (
	"sync"
	"testing"
)

func TestSubmissionGuardSingleAcquisition(t *testing.T) {
	g := NewSubmissionGuard()

	if g.Acquired() {
		t.Fatal("new guard must start unacquired")
	}
	if !g.TryAcquire() {
		t.Fatal("first TryAcquire must succeed")
	}
	if g.TryAcquire() {
		t.Fatal("second TryAcquire must fail")
	}
	if !g.Acquired() {
		t.Fatal("guard must report acquired after first win")
	}
}

func TestSubmissionGuardConcurrentWinners(t *testing.T) {
	const racers = 64

	g := NewSubmissionGuard()
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire() {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", count)
	}
}

func TestSubmissionGuardReset(t *testing.T) {
	g := NewSubmissionGuard()
	g.TryAcquire()
	g.Reset()

	if g.Acquired() {
		t.Fatal("reset guard must be unacquired")
	}
	if !g.TryAcquire() {
		t.Fatal("TryAcquire must succeed after reset")
	}
}
