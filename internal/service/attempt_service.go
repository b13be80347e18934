package service

import (
	"context"
	"encoding/json"
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

// LobbyStatus represents the concrete state of an assessment in the
// student lobby.
type LobbyStatus string

const (
	LobbyStatusUpcoming   LobbyStatus = "UPCOMING"
	LobbyStatusAvailable  LobbyStatus = "AVAILABLE"
	LobbyStatusInProgress LobbyStatus = "IN_PROGRESS"
	LobbyStatusCompleted  LobbyStatus = "COMPLETED"
)

// LobbyAssessment represents an assessment as displayed in the student
// lobby.
type LobbyAssessment struct {
	model.Assessment
	LobbyStatus LobbyStatus `json:"lobby_status"`
	Score       *int        `json:"score,omitempty"`
	Passed      *bool       `json:"passed,omitempty"`
}

// MonitorEvent is published on the assessment's Redis channel so staff
// watching the live monitor see violations and submissions as they land.
type MonitorEvent struct {
	Type           string    `json:"type"`
	AttemptID      uuid.UUID `json:"attempt_id"`
	StudentID      int       `json:"student_id"`
	Reason         string    `json:"reason,omitempty"`
	ViolationCount int       `json:"violation_count,omitempty"`
	At             time.Time `json:"at"`
}

// Monitor event types.
const (
	MonitorEventViolation = "violation"
	MonitorEventSubmitted = "submitted"
)

type violationPayload struct {
	AttemptID string `json:"attempt_id"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

type bufferPayload struct {
	AttemptID  string `json:"attempt_id"`
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// AttemptService handles attempt lifecycle: the lobby, starting an
// attempt under the retake guard, live answer buffering, violation
// intake, and reconnect state recovery.
type AttemptService struct {
	attemptRepo    *repository.AttemptRepository
	assessmentRepo *repository.AssessmentRepository
	questionRepo   *repository.QuestionRepository
	rdb            *redis.Client
	cfg            *config.Config
	log            zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	assessmentRepo *repository.AssessmentRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attemptRepo:    attemptRepo,
		assessmentRepo: assessmentRepo,
		questionRepo:   questionRepo,
		rdb:            rdb,
		cfg:            cfg,
		log:            log.With().Str("component", "attempt_service").Logger(),
	}
}

// GetLobby returns the active standalone assessments overlaid with the
// student's attempt status. Mock-exam subjects never appear here; they
// are only reachable through a mock-exam session.
func (s *AttemptService) GetLobby(ctx context.Context, studentID int) ([]LobbyAssessment, error) {
	active, err := s.assessmentRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active assessments: %w", err)
	}

	attempts, err := s.attemptRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	attemptMap := make(map[uuid.UUID]*model.Attempt, len(attempts))
	for i := range attempts {
		// Keep the most relevant attempt per assessment: a graded one wins
		// over an open one.
		existing, ok := attemptMap[attempts[i].AssessmentID]
		if !ok || (!existing.Submitted() && attempts[i].Submitted()) {
			attemptMap[attempts[i].AssessmentID] = &attempts[i]
		}
	}

	var lobby []LobbyAssessment
	now := time.Now()

	for _, a := range active {
		if a.IsMockSubject {
			continue
		}

		entry := LobbyAssessment{Assessment: a}

		if att, ok := attemptMap[a.ID]; ok {
			if att.Submitted() {
				entry.LobbyStatus = LobbyStatusCompleted
				entry.Score = att.Score
				entry.Passed = att.Passed
			} else {
				entry.LobbyStatus = LobbyStatusInProgress
			}
		} else if a.ScheduledStart != nil && a.ScheduledStart.After(now) {
			entry.LobbyStatus = LobbyStatusUpcoming
		} else if a.ScheduledEnd != nil && a.ScheduledEnd.Before(now) {
			continue
		} else {
			entry.LobbyStatus = LobbyStatusAvailable
		}

		lobby = append(lobby, entry)
	}

	return lobby, nil
}

// StartAttempt opens (or resumes) the student's attempt for an
// assessment. The partial unique index at the storage layer is the
// actual retake guard; this call is safe to repeat and safe under
// concurrent starts from multiple tabs.
func (s *AttemptService) StartAttempt(ctx context.Context, studentID int, assessmentID uuid.UUID) (*model.Attempt, error) {
	return s.startAttempt(ctx, studentID, assessmentID, nil, true)
}

// StartSubjectAttempt opens the attempt backing one subject of a
// mock-exam session. Schedule gating does not apply: the session itself
// is the gate.
func (s *AttemptService) StartSubjectAttempt(ctx context.Context, studentID int, assessmentID uuid.UUID, sessionID uuid.UUID) (*model.Attempt, error) {
	return s.startAttempt(ctx, studentID, assessmentID, &sessionID, false)
}

func (s *AttemptService) startAttempt(ctx context.Context, studentID int, assessmentID uuid.UUID, sessionID *uuid.UUID, gateSchedule bool) (*model.Attempt, error) {
	assessment, err := s.assessmentRepo.GetByID(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("get assessment: %w", err)
	}

	// Mock subjects are only reachable through their session; a direct
	// start would escape the exam's timing. Hide them entirely.
	if gateSchedule && assessment.IsMockSubject {
		return nil, ErrAssessmentNotFound
	}

	if !assessment.IsActive {
		return nil, ErrAssessmentInactive
	}

	if gateSchedule {
		now := time.Now()
		if assessment.ScheduledStart != nil && assessment.ScheduledStart.After(now) {
			return nil, ErrAssessmentNotOpen
		}
		if assessment.ScheduledEnd != nil && assessment.ScheduledEnd.Before(now) {
			return nil, ErrAssessmentClosed
		}
	}

	count, err := s.questionRepo.CountByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	if count == 0 {
		return nil, ErrAssessmentNoQuestion
	}

	submitted, err := s.attemptRepo.CountSubmitted(ctx, studentID, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("count submitted attempts: %w", err)
	}
	if submitted >= s.cfg.MaxAttempts {
		return nil, ErrRetakeNotAllowed
	}

	attempt := &model.Attempt{
		StudentID:     studentID,
		AssessmentID:  assessmentID,
		MockSessionID: sessionID,
	}

	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The partial unique index rejected the insert: an open attempt
			// already exists (possibly created by a concurrent start).
			existing, fetchErr := s.attemptRepo.GetOpenByStudentAndAssessment(ctx, studentID, assessmentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start detected, fetch failed: %w", fetchErr)
			}
			s.cacheDeadline(ctx, existing, assessment)
			return existing, nil
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.cacheDeadline(ctx, attempt, assessment)
	_ = s.rdb.Set(ctx, config.CacheKey.StudentActiveAttemptKey(studentID), attempt.ID.String(), 0).Err()

	return attempt, nil
}

// cacheDeadline stores the attempt's wall-clock submission deadline in
// Redis. Loss of the key is recoverable: Deadline falls back to the
// database start time and self-heals.
func (s *AttemptService) cacheDeadline(ctx context.Context, attempt *model.Attempt, assessment *model.Assessment) {
	deadline := attempt.StartedAt.Add(time.Duration(assessment.DurationMinutes) * time.Minute)
	key := config.CacheKey.AttemptDeadlineKey(attempt.ID.String())
	if err := s.rdb.Set(ctx, key, deadline.Unix(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Failed to cache deadline")
	}
}

// Deadline resolves the attempt's submission deadline, preferring Redis
// and falling back to the database start time with self-heal on a miss.
func (s *AttemptService) Deadline(ctx context.Context, attempt *model.Attempt) (time.Time, error) {
	key := config.CacheKey.AttemptDeadlineKey(attempt.ID.String())

	val, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		unix, parseErr := strconv.ParseInt(val, 10, 64)
		if parseErr == nil {
			return time.Unix(unix, 0), nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Deadline cache read failed, falling back to database")
	}

	assessment, err := s.assessmentRepo.GetByID(ctx, attempt.AssessmentID)
	if err != nil {
		return time.Time{}, fmt.Errorf("get assessment for deadline: %w", err)
	}

	deadline := attempt.StartedAt.Add(time.Duration(assessment.DurationMinutes) * time.Minute)
	_ = s.rdb.Set(ctx, key, deadline.Unix(), 0).Err()
	return deadline, nil
}

// VerifyActiveAttempt checks ownership and that the attempt is still
// open, returning it for further use.
func (s *AttemptService) VerifyActiveAttempt(ctx context.Context, studentID int, attemptID uuid.UUID) (*model.Attempt, error) {
	attempt, err := s.attemptRepo.GetByID(ctx, attemptID)
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
		return nil, ErrAlreadySubmitted
	}
	return attempt, nil
}

// GetState restores a reconnecting client: buffered answers (Redis with
// PostgreSQL failover), remaining time and the violation count.
func (s *AttemptService) GetState(ctx context.Context, studentID int, attemptID uuid.UUID) (*model.AttemptState, error) {
	attempt, err := s.VerifyActiveAttempt(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}

	answersKey := config.CacheKey.AttemptAnswersKey(attemptID.String())
	buffered, err := s.rdb.HGetAll(ctx, answersKey).Result()
	if err != nil || len(buffered) == 0 {
		if err != nil {
			s.log.Warn().Err(err).Msg("Answer buffer cache read failed, falling back to database")
		}
		fromDB, dbErr := s.attemptRepo.GetBuffer(ctx, attemptID)
		if dbErr != nil {
			return nil, fmt.Errorf("get answer buffer: %w", dbErr)
		}
		buffered = fromDB

		// Self-heal the hash for subsequent reads.
		if len(fromDB) > 0 {
			fields := make(map[string]interface{}, len(fromDB))
			for k, v := range fromDB {
				fields[k] = v
			}
			_ = s.rdb.HSet(ctx, answersKey, fields).Err()
		}
	}

	deadline, err := s.Deadline(ctx, attempt)
	if err != nil {
		return nil, err
	}
	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}

	return &model.AttemptState{
		AttemptID:        attempt.ID,
		AssessmentID:     attempt.AssessmentID,
		StudentID:        attempt.StudentID,
		BufferedAnswers:  buffered,
		RemainingSeconds: remaining.Seconds(),
		ViolationCount:   attempt.ViolationCount,
	}, nil
}

// BufferAnswer autosaves one selection: the Redis hash serves reconnect
// reads immediately, and the queued payload lets the buffer worker
// persist a PostgreSQL copy without blocking the hot path.
func (s *AttemptService) BufferAnswer(ctx context.Context, attemptID, questionID uuid.UUID, label string) error {
	answersKey := config.CacheKey.AttemptAnswersKey(attemptID.String())
	if err := s.rdb.HSet(ctx, answersKey, questionID.String(), label).Err(); err != nil {
		return fmt.Errorf("buffer answer: %w", err)
	}

	data, _ := json.Marshal(bufferPayload{
		AttemptID:  attemptID.String(),
		QuestionID: questionID.String(),
		Answer:     label,
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistBufferQueue, data).Err(); err != nil {
		// The Redis hash already has the value; the queue copy is an extra
		// durability layer.
		s.log.Warn().Err(err).Msg("Failed to enqueue buffer persistence")
	}
	return nil
}

// RecordViolation persists one violation best-effort: bump the counter,
// queue the audit row for the violation worker, and publish the event to
// the staff monitor channel. None of these block the exam flow.
func (s *AttemptService) RecordViolation(ctx context.Context, attempt *model.Attempt, reason string, count int) error {
	if err := s.attemptRepo.IncrementViolations(ctx, attempt.ID, 1); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Violation counter bump failed")
	}

	data, _ := json.Marshal(violationPayload{
		AttemptID: attempt.ID.String(),
		Reason:    reason,
		Timestamp: time.Now().Unix(),
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to enqueue violation")
	}

	s.PublishMonitorEvent(ctx, attempt.AssessmentID, MonitorEvent{
		Type:           MonitorEventViolation,
		AttemptID:      attempt.ID,
		StudentID:      attempt.StudentID,
		Reason:         reason,
		ViolationCount: count,
		At:             time.Now(),
	})
	return nil
}

// PublishMonitorEvent pushes a live event to staff watching the
// assessment. Fire-and-forget.
func (s *AttemptService) PublishMonitorEvent(ctx context.Context, assessmentID uuid.UUID, ev MonitorEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	channel := config.CacheKey.AssessmentMonitorChannel(assessmentID.String())
	if err := s.rdb.Publish(ctx, channel, data).Err(); err != nil {
		s.log.Warn().Err(err).Str("channel", channel).Msg("Monitor publish failed")
	}
}

// GetLatestForAssessment returns the student's most recent attempt for an
// assessment, graded or open.
func (s *AttemptService) GetLatestForAssessment(ctx context.Context, studentID int, assessmentID uuid.UUID) (*model.Attempt, error) {
	attempt, err := s.attemptRepo.GetLatestByStudentAndAssessment(ctx, studentID, assessmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get latest attempt: %w", err)
	}
	return attempt, nil
}

// ClearAttemptCache drops the attempt's live Redis keys once grading has
// landed. Best-effort: stale keys only cost memory.
func (s *AttemptService) ClearAttemptCache(ctx context.Context, attemptID uuid.UUID, studentID int) {
	if err := s.rdb.Del(ctx,
		config.CacheKey.AttemptDeadlineKey(attemptID.String()),
		config.CacheKey.AttemptAnswersKey(attemptID.String()),
		config.CacheKey.StudentActiveAttemptKey(studentID),
	).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Attempt cache cleanup failed")
	}
}

// ListByStudent returns the student's attempt history.
func (s *AttemptService) ListByStudent(ctx context.Context, studentID int) ([]model.Attempt, error) {
	return s.attemptRepo.ListByStudent(ctx, studentID)
}

// ListByAssessment returns every student's attempt status for the staff
// monitoring screen.
func (s *AttemptService) ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]repository.MonitorEntry, error) {
	return s.attemptRepo.ListByAssessment(ctx, assessmentID)
}
