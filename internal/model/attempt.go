package model

import (
	"time"

	"github.com/google/uuid"
)

// Attempt represents one student's instance of taking one assessment.
// It is created when the student starts and mutated only by the scoring
// engine at submission time, plus best-effort violation-count bumps.
// Once SubmittedAt is set the row is write-once.
type Attempt struct {
	ID             uuid.UUID  `json:"id"`
	StudentID      int        `json:"student_id"`
	AssessmentID   uuid.UUID  `json:"assessment_id"`
	MockSessionID  *uuid.UUID `json:"mock_session_id,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	Score          *int       `json:"score,omitempty"`
	TotalPossible  *int       `json:"total_possible,omitempty"`
	Passed         *bool      `json:"passed,omitempty"`
	ViolationCount int        `json:"violation_count"`
	AutoSubmitted  bool       `json:"auto_submitted"`
}

// Submitted reports whether the attempt has been graded.
func (a *Attempt) Submitted() bool {
	return a.SubmittedAt != nil
}

// AnswerSubmission is one (question, selected label) pair in a submission
// request. An empty SelectedLabel means the question was left unanswered.
type AnswerSubmission struct {
	QuestionID    uuid.UUID `json:"question_id" binding:"required"`
	SelectedLabel string    `json:"selected_label" binding:"omitempty,oneof=A B C D"`
}

// SubmitAttemptRequest is the payload for submitting an attempt for grading.
type SubmitAttemptRequest struct {
	Answers       []AnswerSubmission `json:"answers" binding:"dive"`
	AutoSubmitted bool               `json:"auto_submitted"`
}

// AttemptState is returned to a reconnecting client so it can restore
// the countdown and buffered answers.
type AttemptState struct {
	AttemptID        uuid.UUID         `json:"attempt_id"`
	AssessmentID     uuid.UUID         `json:"assessment_id"`
	StudentID        int               `json:"student_id"`
	BufferedAnswers  map[string]string `json:"buffered_answers"`
	RemainingSeconds float64           `json:"remaining_seconds"`
	ViolationCount   int               `json:"violation_count"`
}
