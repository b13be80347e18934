package session

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Violation reasons reported by the client runtime.
const (
	ReasonTabHidden      = "tab hidden"
	ReasonWindowBlur     = "window blur"
	ReasonPageHide       = "page hide"
	ReasonPageUnload     = "page unload"
	ReasonNavigation     = "navigation attempt"
	ReasonFocusLost      = "focus lost"
	ReasonFullscreenExit = "fullscreen exit"
)

// Violation is one detected anti-cheat signal during an in-progress
// attempt.
type Violation struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// ViolationMonitor counts integrity breaches for one session. The
// persistence sink is advisory: a failed write is logged and swallowed,
// it never blocks the exam flow or the eventual submission.
type ViolationMonitor struct {
	count   atomic.Int32
	persist func(Violation) error
	log     zerolog.Logger
}

// NewViolationMonitor creates a monitor seeded with any violations
// already recorded for the attempt (reconnect case). persist may be nil.
func NewViolationMonitor(initial int, persist func(Violation) error, log zerolog.Logger) *ViolationMonitor {
	m := &ViolationMonitor{
		persist: persist,
		log:     log.With().Str("component", "violation_monitor").Logger(),
	}
	m.count.Store(int32(initial))
	return m
}

// Report records one violation and returns it along with the new total.
// Persistence failures are swallowed.
func (m *ViolationMonitor) Report(reason string) (Violation, int) {
	v := Violation{Reason: reason, At: time.Now()}
	total := int(m.count.Add(1))

	if m.persist != nil {
		if err := m.persist(v); err != nil {
			m.log.Warn().Err(err).Str("reason", reason).Msg("Violation persist failed, continuing")
		}
	}

	return v, total
}

// Count returns the running violation total.
func (m *ViolationMonitor) Count() int {
	return int(m.count.Load())
}
