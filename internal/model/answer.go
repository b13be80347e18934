package model

import (
	"github.com/google/uuid"
)

// Answer is one graded (attempt, question) row. Rows are created in bulk
// exactly once, at submission time, for answered questions only; they are
// never updated. Unanswered questions produce no row.
type Answer struct {
	ID            uuid.UUID `json:"id"`
	AttemptID     uuid.UUID `json:"attempt_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	SelectedLabel string    `json:"selected_label"`
	IsCorrect     bool      `json:"is_correct"`
}
