package model

import (
	"time"

	"github.com/google/uuid"
)

// TimingMode selects how a mock exam's countdown is budgeted.
type TimingMode string

const (
	// TimingModeShared runs one overall countdown across all subjects.
	// Expiry force-submits the active subject; later subjects are
	// auto-submitted empty.
	TimingModeShared TimingMode = "SHARED"
	// TimingModePerSubject gives each subject its own countdown.
	TimingModePerSubject TimingMode = "PER_SUBJECT"
)

// MaxMockSubjects caps the number of subjects per mock exam at
// authoring time.
const MaxMockSubjects = 4

// MockExam is a composite exam spanning multiple subjects, each taken as
// an independent sub-attempt and then aggregated.
type MockExam struct {
	ID                 uuid.UUID         `json:"id"`
	Title              string            `json:"title"`
	TimingMode         TimingMode        `json:"timing_mode"`
	TotalDurationMin   int               `json:"total_duration_minutes,omitempty"`
	PerSubjectDuration int               `json:"duration_per_subject_minutes,omitempty"`
	IsActive           bool              `json:"is_active"`
	Subjects           []MockExamSubject `json:"subjects,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

// MockExamSubject is one ordered entry of a mock exam: which assessment
// covers which subject, and in what position.
type MockExamSubject struct {
	MockExamID   uuid.UUID `json:"mock_exam_id"`
	SubjectID    int       `json:"subject_id"`
	AssessmentID uuid.UUID `json:"assessment_id"`
	Position     int       `json:"position"`
}

// MockExamSession is the aggregate attempt for a multi-subject mock exam.
// Aggregate totals are the sums of its SubjectResult rows and are only
// finalized once every subject has a result.
type MockExamSession struct {
	ID              uuid.UUID  `json:"id"`
	MockExamID      uuid.UUID  `json:"mock_exam_id"`
	StudentID       int        `json:"student_id"`
	CurrentPosition int        `json:"current_position"`
	StartedAt       time.Time  `json:"started_at"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	IsCompleted     bool       `json:"is_completed"`
	TotalScore      *int       `json:"total_score,omitempty"`
	TotalPossible   *int       `json:"total_possible,omitempty"`
}

// SubjectResult is the per (session, subject) score row, written once
// when that subject's submission fires.
type SubjectResult struct {
	ID            uuid.UUID `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	SubjectID     int       `json:"subject_id"`
	AttemptID     uuid.UUID `json:"attempt_id"`
	Score         int       `json:"score"`
	TotalPossible int       `json:"total_possible"`
	CompletedAt   time.Time `json:"completed_at"`
}

// CreateMockExamRequest is the payload for authoring a mock exam.
type CreateMockExamRequest struct {
	Title              string                     `json:"title" binding:"required,min=3,max=255"`
	TimingMode         string                     `json:"timing_mode" binding:"required,oneof=SHARED PER_SUBJECT"`
	TotalDurationMin   int                        `json:"total_duration_minutes" binding:"omitempty,min=1,max=600"`
	PerSubjectDuration int                        `json:"duration_per_subject_minutes" binding:"omitempty,min=1,max=240"`
	Subjects           []CreateMockSubjectRequest `json:"subjects" binding:"required,min=1,max=4,dive"`
}

// CreateMockSubjectRequest is one subject entry of a mock exam.
type CreateMockSubjectRequest struct {
	SubjectID    int       `json:"subject_id" binding:"required,min=1"`
	AssessmentID uuid.UUID `json:"assessment_id" binding:"required"`
}

// SubmitMockSubjectRequest is the payload for submitting one subject of a
// mock-exam session.
type SubmitMockSubjectRequest struct {
	AttemptID     uuid.UUID          `json:"attempt_id" binding:"required"`
	Answers       []AnswerSubmission `json:"answers" binding:"dive"`
	AutoSubmitted bool               `json:"auto_submitted"`
}
