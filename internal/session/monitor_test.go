package session

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestViolationMonitorCounts(t *testing.T) {
	m := NewViolationMonitor(0, nil, zerolog.Nop())

	v, total := m.Report(ReasonTabHidden)
	if v.Reason != ReasonTabHidden {
		t.Fatalf("expected reason %q, got %q", ReasonTabHidden, v.Reason)
	}
	if total != 1 {
		t.Fatalf("expected total 1, got %d", total)
	}

	if _, total = m.Report(ReasonWindowBlur); total != 2 {
		t.Fatalf("expected total 2, got %d", total)
	}
	if m.Count() != 2 {
		t.Fatalf("expected count 2, got %d", m.Count())
	}
}

func TestViolationMonitorSeededFromExistingAttempt(t *testing.T) {
	m := NewViolationMonitor(3, nil, zerolog.Nop())

	if _, total := m.Report(ReasonNavigation); total != 4 {
		t.Fatalf("expected total 4 after seeding with 3, got %d", total)
	}
}

func TestViolationMonitorPersistFailureIsAdvisory(t *testing.T) {
	persisted := 0
	m := NewViolationMonitor(0, func(Violation) error {
		persisted++
		return errors.New("store unavailable")
	}, zerolog.Nop())

	_, total := m.Report(ReasonFocusLost)
	if total != 1 {
		t.Fatalf("persist failure must not affect the count, got %d", total)
	}
	if persisted != 1 {
		t.Fatalf("persist sink must still be invoked, got %d calls", persisted)
	}
}
