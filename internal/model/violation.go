package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptViolation is one persisted anti-cheat event for an attempt.
// Writes are best-effort: the row is an audit trail, not a gate.
type AttemptViolation struct {
	ID         int64     `json:"id"`
	AttemptID  uuid.UUID `json:"attempt_id"`
	Reason     string    `json:"reason"`
	RecordedAt time.Time `json:"recorded_at"`
}

// BufferedAnswer is one autosaved (attempt, question) selection. It backs
// reconnect recovery only; graded Answer rows are written separately at
// submission time.
type BufferedAnswer struct {
	AttemptID     uuid.UUID `json:"attempt_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	SelectedLabel string    `json:"selected_label"`
	UpdatedAt     time.Time `json:"updated_at"`
}
