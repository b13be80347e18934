package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SubjectPlanEntry is one subject of a prepared mock-exam run, with the
// attempt that backs it.
type SubjectPlanEntry struct {
	Position     int       `json:"position"`
	SubjectID    int       `json:"subject_id"`
	AssessmentID uuid.UUID `json:"assessment_id"`
	AttemptID    uuid.UUID `json:"attempt_id"`
	Completed    bool      `json:"completed"`
}

// SessionRun is everything a transport needs to drive (or resume) a
// mock-exam session: the exam definition, the per-subject attempts, the
// resume position and, in shared-timing mode, the fixed overall deadline.
type SessionRun struct {
	Session        *model.MockExamSession
	Exam           *model.MockExam
	Plans          []SubjectPlanEntry
	StartIndex     int
	SharedDeadline *time.Time
}

// MockExamService handles mock-exam authoring and session lifecycle.
type MockExamService struct {
	mockRepo       *repository.MockExamRepository
	assessmentRepo *repository.AssessmentRepository
	attempts       *AttemptService
	rdb            *redis.Client
	log            zerolog.Logger
}

// NewMockExamService creates a new MockExamService.
func NewMockExamService(
	mockRepo *repository.MockExamRepository,
	assessmentRepo *repository.AssessmentRepository,
	attempts *AttemptService,
	rdb *redis.Client,
	log zerolog.Logger,
) *MockExamService {
	return &MockExamService{
		mockRepo:       mockRepo,
		assessmentRepo: assessmentRepo,
		attempts:       attempts,
		rdb:            rdb,
		log:            log.With().Str("component", "mock_exam_service").Logger(),
	}
}

// Create authors a mock exam from ordered subject entries. Every entry
// must reference an existing mock-subject assessment, and the timing
// mode must carry its matching duration.
func (s *MockExamService) Create(ctx context.Context, req *model.CreateMockExamRequest) (*model.MockExam, error) {
	mode := model.TimingMode(req.TimingMode)
	switch mode {
	case model.TimingModeShared:
		if req.TotalDurationMin <= 0 {
			return nil, errors.New("shared timing requires total_duration_minutes")
		}
	case model.TimingModePerSubject:
		if req.PerSubjectDuration <= 0 {
			return nil, errors.New("per-subject timing requires duration_per_subject_minutes")
		}
	}

	if len(req.Subjects) > model.MaxMockSubjects {
		return nil, fmt.Errorf("a mock exam carries at most %d subjects", model.MaxMockSubjects)
	}

	subjects := make([]model.MockExamSubject, 0, len(req.Subjects))
	seen := make(map[int]bool, len(req.Subjects))
	for _, entry := range req.Subjects {
		if seen[entry.SubjectID] {
			return nil, fmt.Errorf("subject %d listed twice", entry.SubjectID)
		}
		seen[entry.SubjectID] = true

		assessment, err := s.assessmentRepo.GetByID(ctx, entry.AssessmentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrAssessmentNotFound
			}
			return nil, fmt.Errorf("get assessment: %w", err)
		}
		if !assessment.IsMockSubject {
			return nil, fmt.Errorf("assessment %s is not a mock subject", assessment.ID)
		}

		subjects = append(subjects, model.MockExamSubject{
			SubjectID:    entry.SubjectID,
			AssessmentID: entry.AssessmentID,
		})
	}

	exam := &model.MockExam{
		Title:              req.Title,
		TimingMode:         mode,
		TotalDurationMin:   req.TotalDurationMin,
		PerSubjectDuration: req.PerSubjectDuration,
		Subjects:           subjects,
	}
	if err := s.mockRepo.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create mock exam: %w", err)
	}
	return exam, nil
}

// List retrieves all mock exams.
func (s *MockExamService) List(ctx context.Context) ([]model.MockExam, error) {
	return s.mockRepo.List(ctx)
}

// GetByID retrieves a mock exam with its subjects.
func (s *MockExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.MockExam, error) {
	exam, err := s.mockRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMockExamNotFound
		}
		return nil, fmt.Errorf("get mock exam: %w", err)
	}
	return exam, nil
}

// SetActive flips a mock exam's availability.
func (s *MockExamService) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.mockRepo.SetActive(ctx, id, active)
}

// StartSession opens (or resumes) the student's aggregate session for a
// mock exam. Safe to repeat: the unique (exam, student) constraint makes
// the join idempotent.
func (s *MockExamService) StartSession(ctx context.Context, studentID int, mockExamID uuid.UUID) (*model.MockExamSession, error) {
	exam, err := s.GetByID(ctx, mockExamID)
	if err != nil {
		return nil, err
	}
	if !exam.IsActive {
		return nil, ErrMockExamInactive
	}
	if len(exam.Subjects) == 0 {
		return nil, ErrAssessmentNoQuestion
	}

	session := &model.MockExamSession{
		MockExamID: mockExamID,
		StudentID:  studentID,
	}
	if err := s.mockRepo.CreateSession(ctx, session); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			existing, fetchErr := s.mockRepo.GetSessionByExamAndStudent(ctx, mockExamID, studentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent session start, fetch failed: %w", fetchErr)
			}
			if existing.IsCompleted {
				return nil, ErrAlreadySubmitted
			}
			return existing, nil
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	if exam.TimingMode == model.TimingModeShared {
		s.cacheSharedDeadline(ctx, session, exam)
	}
	return session, nil
}

// PrepareRun resolves everything a transport needs to drive the session:
// it opens the attempt behind each unfinished subject, figures out the
// resume position and, in shared mode, the fixed overall deadline.
func (s *MockExamService) PrepareRun(ctx context.Context, studentID int, sessionID uuid.UUID) (*SessionRun, error) {
	session, err := s.GetSession(ctx, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsCompleted {
		return nil, ErrAlreadySubmitted
	}

	exam, err := s.GetByID(ctx, session.MockExamID)
	if err != nil {
		return nil, err
	}

	results, err := s.mockRepo.ListSubjectResults(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list subject results: %w", err)
	}
	resultBySubject := make(map[int]*model.SubjectResult, len(results))
	for i := range results {
		resultBySubject[results[i].SubjectID] = &results[i]
	}

	run := &SessionRun{Session: session, Exam: exam, StartIndex: -1}

	for _, subject := range exam.Subjects {
		entry := SubjectPlanEntry{
			Position:     subject.Position,
			SubjectID:    subject.SubjectID,
			AssessmentID: subject.AssessmentID,
		}

		if res, done := resultBySubject[subject.SubjectID]; done {
			entry.AttemptID = res.AttemptID
			entry.Completed = true
		} else {
			attempt, err := s.attempts.StartSubjectAttempt(ctx, studentID, subject.AssessmentID, sessionID)
			if err != nil {
				if !errors.Is(err, ErrRetakeNotAllowed) {
					return nil, fmt.Errorf("start subject attempt: %w", err)
				}
				// The attempt was graded but its subject result is missing
				// (crash between finalize and the result insert). Resubmitting
				// the graded attempt converges the aggregate.
				attempt, err = s.attempts.GetLatestForAssessment(ctx, studentID, subject.AssessmentID)
				if err != nil {
					return nil, fmt.Errorf("recover subject attempt: %w", err)
				}
			}
			entry.AttemptID = attempt.ID
			if run.StartIndex < 0 {
				run.StartIndex = subject.Position
			}
		}

		run.Plans = append(run.Plans, entry)
	}

	if run.StartIndex < 0 {
		// Every subject has a result but the session never completed; the
		// next subject submission (conflict path) will finalize it.
		run.StartIndex = len(run.Plans) - 1
	}

	if exam.TimingMode == model.TimingModeShared {
		deadline, err := s.SharedDeadline(ctx, session, exam)
		if err != nil {
			return nil, err
		}
		run.SharedDeadline = &deadline
	}

	return run, nil
}

// GetSession retrieves a session and checks ownership.
func (s *MockExamService) GetSession(ctx context.Context, studentID int, sessionID uuid.UUID) (*model.MockExamSession, error) {
	session, err := s.mockRepo.GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMockSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.StudentID != studentID {
		return nil, ErrNotAttemptOwner
	}
	return session, nil
}

// GetSessionResults returns the session with its per-subject results.
func (s *MockExamService) GetSessionResults(ctx context.Context, studentID int, sessionID uuid.UUID) (*model.MockExamSession, []model.SubjectResult, error) {
	session, err := s.GetSession(ctx, studentID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	results, err := s.mockRepo.ListSubjectResults(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("list subject results: %w", err)
	}
	return session, results, nil
}

// SharedDeadline resolves the fixed overall deadline of a shared-timing
// session, preferring Redis with database failover and self-heal.
func (s *MockExamService) SharedDeadline(ctx context.Context, session *model.MockExamSession, exam *model.MockExam) (time.Time, error) {
	key := config.CacheKey.MockSessionDeadlineKey(session.ID.String())

	val, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		unix, parseErr := strconv.ParseInt(val, 10, 64)
		if parseErr == nil {
			return time.Unix(unix, 0), nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Shared deadline cache read failed, falling back to database")
	}

	deadline := session.StartedAt.Add(time.Duration(exam.TotalDurationMin) * time.Minute)
	_ = s.rdb.Set(ctx, key, deadline.Unix(), 0).Err()
	return deadline, nil
}

func (s *MockExamService) cacheSharedDeadline(ctx context.Context, session *model.MockExamSession, exam *model.MockExam) {
	deadline := session.StartedAt.Add(time.Duration(exam.TotalDurationMin) * time.Minute)
	key := config.CacheKey.MockSessionDeadlineKey(session.ID.String())
	if err := s.rdb.Set(ctx, key, deadline.Unix(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("Failed to cache shared deadline")
	}
}
