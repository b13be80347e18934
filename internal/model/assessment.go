package model

import (
	"time"

	"github.com/google/uuid"
)

// Assessment represents a timed multiple-choice assessment.
// Once questions exist it is only mutable by its owning staff member.
type Assessment struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	SubjectID        int        `json:"subject_id"`
	AuthorID         int        `json:"author_id"`
	DurationMinutes  int        `json:"duration_minutes"`
	MarksPerQuestion int        `json:"marks_per_question"`
	// PassingPercent is the inclusive pass threshold as a percentage of
	// total possible marks.
	PassingPercent float64    `json:"passing_percent"`
	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time `json:"scheduled_end,omitempty"`
	IsActive       bool       `json:"is_active"`
	IsMockSubject  bool       `json:"is_mock_subject"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// CreateAssessmentRequest is the payload for creating a new assessment.
type CreateAssessmentRequest struct {
	Title            string     `json:"title" binding:"required,min=3,max=255"`
	SubjectID        int        `json:"subject_id" binding:"required,min=1"`
	DurationMinutes  int        `json:"duration_minutes" binding:"required,min=1,max=480"`
	MarksPerQuestion int        `json:"marks_per_question" binding:"omitempty,min=1,max=100"`
	PassingPercent   float64    `json:"passing_percent" binding:"omitempty,min=0,max=100"`
	ScheduledStart   *time.Time `json:"scheduled_start" binding:"omitempty"`
	ScheduledEnd     *time.Time `json:"scheduled_end" binding:"omitempty,gtfield=ScheduledStart"`
	IsMockSubject    bool       `json:"is_mock_subject"`
}

// UpdateAssessmentRequest is the payload for updating an existing assessment.
type UpdateAssessmentRequest struct {
	Title            string     `json:"title" binding:"omitempty,min=3,max=255"`
	DurationMinutes  int        `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	MarksPerQuestion int        `json:"marks_per_question" binding:"omitempty,min=1,max=100"`
	PassingPercent   *float64   `json:"passing_percent" binding:"omitempty,min=0,max=100"`
	ScheduledStart   *time.Time `json:"scheduled_start" binding:"omitempty"`
	ScheduledEnd     *time.Time `json:"scheduled_end" binding:"omitempty,gtfield=ScheduledStart"`
}

// AssessmentPaper is the Redis-cached payload sent to students (no correct answers).
type AssessmentPaper struct {
	AssessmentID     uuid.UUID            `json:"assessment_id"`
	Title            string               `json:"title"`
	SubjectID        int                  `json:"subject_id"`
	DurationMinutes  int                  `json:"duration_minutes"`
	MarksPerQuestion int                  `json:"marks_per_question"`
	Questions        []QuestionForStudent `json:"questions"`
}
