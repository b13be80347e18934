package service

import "errors"

// Domain errors surfaced by the exam-taking services. Handlers map these
// onto response error codes.
var (
	ErrAssessmentNotFound   = errors.New("assessment not found")
	ErrAssessmentInactive   = errors.New("assessment is not active")
	ErrAssessmentNotOpen    = errors.New("assessment has not opened yet")
	ErrAssessmentClosed     = errors.New("assessment scheduling window has closed")
	ErrAssessmentNoQuestion = errors.New("assessment has no questions")
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrNotAttemptOwner      = errors.New("attempt belongs to another student")
	ErrAlreadySubmitted     = errors.New("attempt already submitted")
	ErrRetakeNotAllowed     = errors.New("retake limit reached for this assessment")
	ErrMockExamNotFound     = errors.New("mock exam not found")
	ErrMockExamInactive     = errors.New("mock exam is not active")
	ErrMockSessionNotFound  = errors.New("mock exam session not found")
	ErrAttemptNotInSession  = errors.New("attempt is not bound to this session")
	ErrSubjectOutOfOrder    = errors.New("subject is ahead of the session's current position")
)
