package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
	"github.com/rs/zerolog"
)

// ScoreSummary is the graded outcome of one submission. The Exam* fields
// are populated only when a mock-exam subject submission finalizes the
// whole exam.
type ScoreSummary struct {
	AttemptID      uuid.UUID `json:"attempt_id"`
	Score          int       `json:"score"`
	TotalPossible  int       `json:"total_possible"`
	CorrectCount   int       `json:"correct_count"`
	TotalQuestions int       `json:"total_questions"`
	Percentage     float64   `json:"percentage"`
	Passed         bool      `json:"passed"`
	AutoSubmitted  bool      `json:"auto_submitted"`

	ExamCompleted     bool `json:"exam_completed,omitempty"`
	ExamScore         int  `json:"exam_score,omitempty"`
	ExamTotalPossible int  `json:"exam_total_possible,omitempty"`
}

// AttemptStore is the scoring engine's view of attempt persistence.
type AttemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	Finalize(ctx context.Context, attemptID uuid.UUID, p repository.FinalizeParams, answers []model.Answer) (bool, error)
}

// AnswerStore reads back graded answer rows for the conflict path.
type AnswerStore interface {
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error)
}

// AssessmentSource resolves assessments and their hidden answer keys.
type AssessmentSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error)
	AnswerKey(ctx context.Context, id uuid.UUID) (map[uuid.UUID]string, int, error)
}

// MockExamStore is the scoring engine's view of mock-exam persistence.
type MockExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.MockExam, error)
	GetSessionByID(ctx context.Context, id uuid.UUID) (*model.MockExamSession, error)
	InsertSubjectResult(ctx context.Context, res *model.SubjectResult) (bool, error)
	ListSubjectResults(ctx context.Context, sessionID uuid.UUID) ([]model.SubjectResult, error)
	AdvancePosition(ctx context.Context, sessionID uuid.UUID, position int) error
	CompleteSession(ctx context.Context, sessionID uuid.UUID, totalScore, totalPossible int) (bool, error)
}

// AttemptCache clears an attempt's live Redis footprint after grading and
// feeds the staff monitor. Both are fire-and-forget.
type AttemptCache interface {
	ClearAttemptCache(ctx context.Context, attemptID uuid.UUID, studentID int)
	PublishMonitorEvent(ctx context.Context, assessmentID uuid.UUID, ev MonitorEvent)
}

// ResultNotifier queues result delivery to the student. May be nil.
type ResultNotifier interface {
	EnqueueResult(ctx context.Context, n ResultNotification) error
}

// ScoringService is the single server-side authority that knows the
// answer key, computes grades and persists them exactly once. Clients
// only ever send selections; a correctness value arriving from outside
// this package is a bug.
type ScoringService struct {
	attempts    AttemptStore
	answers     AnswerStore
	assessments AssessmentSource
	mockExams   MockExamStore
	cache       AttemptCache
	notifier    ResultNotifier
	log         zerolog.Logger
}

// NewScoringService creates a new ScoringService. cache and notifier may
// be nil (tests, CLI tools).
func NewScoringService(
	attempts AttemptStore,
	answers AnswerStore,
	assessments AssessmentSource,
	mockExams MockExamStore,
	cache AttemptCache,
	notifier ResultNotifier,
	log zerolog.Logger,
) *ScoringService {
	return &ScoringService{
		attempts:    attempts,
		answers:     answers,
		assessments: assessments,
		mockExams:   mockExams,
		cache:       cache,
		notifier:    notifier,
		log:         log.With().Str("component", "scoring_service").Logger(),
	}
}

// SubmitAssessment grades one attempt exactly once. A repeat call (any
// payload) returns the stored result together with ErrAlreadySubmitted;
// nothing is re-graded and no row changes. Unanswered questions stay in
// the denominator and score zero.
func (s *ScoringService) SubmitAssessment(ctx context.Context, studentID int, attemptID uuid.UUID, answers []model.AnswerSubmission, autoSubmitted bool) (*ScoreSummary, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrNotAttemptOwner
	}
	if attempt.Submitted() {
		summary, err := s.storedSummary(ctx, attempt)
		if err != nil {
			return nil, err
		}
		return summary, ErrAlreadySubmitted
	}

	assessment, err := s.assessments.GetByID(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}

	key, totalQuestions, err := s.assessments.AnswerKey(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}

	marks := assessment.MarksPerQuestion
	if marks == 0 {
		marks = 1
	}

	correctCount := 0
	rows := make([]model.Answer, 0, len(answers))
	seen := make(map[uuid.UUID]bool, len(answers))

	for _, sub := range answers {
		if sub.SelectedLabel == "" {
			continue
		}
		correct, known := key[sub.QuestionID]
		if !known || seen[sub.QuestionID] {
			// Foreign or duplicate question ids never count.
			continue
		}
		seen[sub.QuestionID] = true

		isCorrect := sub.SelectedLabel == correct
		if isCorrect {
			correctCount++
		}
		rows = append(rows, model.Answer{
			AttemptID:     attemptID,
			QuestionID:    sub.QuestionID,
			SelectedLabel: sub.SelectedLabel,
			IsCorrect:     isCorrect,
		})
	}

	score := correctCount * marks
	totalPossible := totalQuestions * marks

	percentage := 0.0
	if totalPossible > 0 {
		percentage = float64(score) / float64(totalPossible) * 100
	}
	passed := percentage >= assessment.PassingPercent

	finalized, err := s.attempts.Finalize(ctx, attemptID, repository.FinalizeParams{
		Score:         score,
		TotalPossible: totalPossible,
		Passed:        passed,
		AutoSubmitted: autoSubmitted,
	}, rows)
	if err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	if !finalized {
		// Lost the race: another submission landed between our read and the
		// conditional update. The stored result wins.
		stored, err := s.attempts.GetByID(ctx, attemptID)
		if err != nil {
			return nil, fmt.Errorf("refetch attempt after conflict: %w", err)
		}
		summary, err := s.storedSummary(ctx, stored)
		if err != nil {
			return nil, err
		}
		return summary, ErrAlreadySubmitted
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("score", score).
		Int("total", totalPossible).
		Bool("passed", passed).
		Bool("auto", autoSubmitted).
		Msg("Attempt graded")

	summary := &ScoreSummary{
		AttemptID:      attemptID,
		Score:          score,
		TotalPossible:  totalPossible,
		CorrectCount:   correctCount,
		TotalQuestions: totalQuestions,
		Percentage:     percentage,
		Passed:         passed,
		AutoSubmitted:  autoSubmitted,
	}

	s.afterGrade(ctx, attempt, assessment, summary)
	return summary, nil
}

// SubmitMockExamSubject grades one subject of a mock-exam session and
// advances the aggregate. The attempt must be bound to this very
// session and its subject must not lie ahead of the session's current
// position. The per-subject result row and the session completion are
// each write-once, so retries converge on the stored state. The
// aggregate is only finalized when every subject has a result.
func (s *ScoringService) SubmitMockExamSubject(ctx context.Context, studentID int, sessionID, attemptID uuid.UUID, answers []model.AnswerSubmission, autoSubmitted bool) (*ScoreSummary, error) {
	session, err := s.mockExams.GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMockSessionNotFound
		}
		return nil, fmt.Errorf("get mock session: %w", err)
	}
	if session.StudentID != studentID {
		return nil, ErrNotAttemptOwner
	}

	exam, err := s.mockExams.GetByID(ctx, session.MockExamID)
	if err != nil {
		return nil, fmt.Errorf("get mock exam: %w", err)
	}

	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrNotAttemptOwner
	}
	// A standalone attempt, or one opened under another session, must
	// never credit this session's aggregate.
	if attempt.MockSessionID == nil || *attempt.MockSessionID != sessionID {
		return nil, ErrAttemptNotInSession
	}

	var subject *model.MockExamSubject
	for i := range exam.Subjects {
		if exam.Subjects[i].AssessmentID == attempt.AssessmentID {
			subject = &exam.Subjects[i]
			break
		}
	}
	if subject == nil {
		return nil, fmt.Errorf("attempt %s does not belong to mock exam %s", attemptID, exam.ID)
	}
	// Subjects run in order. Resubmitting an earlier subject is allowed
	// (it converges on the stored result); skipping ahead is not.
	if subject.Position > session.CurrentPosition {
		return nil, ErrSubjectOutOfOrder
	}

	summary, submitErr := s.SubmitAssessment(ctx, studentID, attemptID, answers, autoSubmitted)
	if submitErr != nil && !errors.Is(submitErr, ErrAlreadySubmitted) {
		return nil, submitErr
	}

	inserted, err := s.mockExams.InsertSubjectResult(ctx, &model.SubjectResult{
		SessionID:     sessionID,
		SubjectID:     subject.SubjectID,
		AttemptID:     attemptID,
		Score:         summary.Score,
		TotalPossible: summary.TotalPossible,
	})
	if err != nil {
		return nil, fmt.Errorf("insert subject result: %w", err)
	}
	if inserted {
		if err := s.mockExams.AdvancePosition(ctx, sessionID, subject.Position+1); err != nil {
			s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Advance position failed")
		}
	}

	results, err := s.mockExams.ListSubjectResults(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list subject results: %w", err)
	}

	if len(results) == len(exam.Subjects) {
		totalScore, totalPossible := 0, 0
		for _, r := range results {
			totalScore += r.Score
			totalPossible += r.TotalPossible
		}

		completed, err := s.mockExams.CompleteSession(ctx, sessionID, totalScore, totalPossible)
		if err != nil {
			return nil, fmt.Errorf("complete session: %w", err)
		}
		if completed {
			s.log.Info().
				Str("session_id", sessionID.String()).
				Int("total_score", totalScore).
				Int("total_possible", totalPossible).
				Msg("Mock exam session completed")
			s.notifyExam(ctx, session, exam, totalScore, totalPossible)
		}

		summary.ExamCompleted = true
		summary.ExamScore = totalScore
		summary.ExamTotalPossible = totalPossible
	}

	return summary, submitErr
}

// storedSummary rebuilds a summary from the graded attempt row for the
// conflict path. The stored rows are authoritative; the rejected payload
// contributes nothing.
func (s *ScoringService) storedSummary(ctx context.Context, attempt *model.Attempt) (*ScoreSummary, error) {
	_, totalQuestions, err := s.assessments.AnswerKey(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}

	graded, err := s.answers.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list graded answers: %w", err)
	}
	correctCount := 0
	for _, a := range graded {
		if a.IsCorrect {
			correctCount++
		}
	}

	summary := &ScoreSummary{
		AttemptID:      attempt.ID,
		CorrectCount:   correctCount,
		TotalQuestions: totalQuestions,
		AutoSubmitted:  attempt.AutoSubmitted,
	}
	if attempt.Score != nil {
		summary.Score = *attempt.Score
	}
	if attempt.TotalPossible != nil {
		summary.TotalPossible = *attempt.TotalPossible
	}
	if attempt.Passed != nil {
		summary.Passed = *attempt.Passed
	}
	if summary.TotalPossible > 0 {
		summary.Percentage = float64(summary.Score) / float64(summary.TotalPossible) * 100
	}
	return summary, nil
}

func (s *ScoringService) afterGrade(ctx context.Context, attempt *model.Attempt, assessment *model.Assessment, summary *ScoreSummary) {
	if s.cache != nil {
		s.cache.ClearAttemptCache(ctx, attempt.ID, attempt.StudentID)
		s.cache.PublishMonitorEvent(ctx, attempt.AssessmentID, MonitorEvent{
			Type:      MonitorEventSubmitted,
			AttemptID: attempt.ID,
			StudentID: attempt.StudentID,
			At:        time.Now(),
		})
	}

	// Mock subjects notify once at exam completion instead.
	if s.notifier != nil && attempt.MockSessionID == nil {
		n := ResultNotification{
			StudentID:     attempt.StudentID,
			AttemptID:     attempt.ID,
			Title:         assessment.Title,
			Score:         summary.Score,
			TotalPossible: summary.TotalPossible,
			Percentage:    summary.Percentage,
			Passed:        summary.Passed,
		}
		if err := s.notifier.EnqueueResult(ctx, n); err != nil {
			s.log.Warn().Err(err).Msg("Result notification enqueue failed")
		}
	}
}

func (s *ScoringService) notifyExam(ctx context.Context, session *model.MockExamSession, exam *model.MockExam, totalScore, totalPossible int) {
	if s.notifier == nil {
		return
	}
	percentage := 0.0
	if totalPossible > 0 {
		percentage = float64(totalScore) / float64(totalPossible) * 100
	}
	n := ResultNotification{
		StudentID:     session.StudentID,
		Title:         exam.Title,
		Score:         totalScore,
		TotalPossible: totalPossible,
		Percentage:    percentage,
	}
	if err := s.notifier.EnqueueResult(ctx, n); err != nil {
		s.log.Warn().Err(err).Msg("Exam notification enqueue failed")
	}
}
