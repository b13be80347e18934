package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AssessmentService handles assessment authoring and the Redis-backed
// paper/answer-key caches the exam-taking path reads from.
type AssessmentService struct {
	assessmentRepo *repository.AssessmentRepository
	questionRepo   *repository.QuestionRepository
	rdb            *redis.Client
	log            zerolog.Logger
}

// NewAssessmentService creates a new AssessmentService.
func NewAssessmentService(
	assessmentRepo *repository.AssessmentRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *AssessmentService {
	return &AssessmentService{
		assessmentRepo: assessmentRepo,
		questionRepo:   questionRepo,
		rdb:            rdb,
		log:            log.With().Str("component", "assessment_service").Logger(),
	}
}

// GetByID retrieves a single assessment.
func (s *AssessmentService) GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error) {
	a, err := s.assessmentRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	return a, nil
}

// List retrieves assessments for the staff listing screen.
func (s *AssessmentService) List(ctx context.Context, authorID, page, perPage int) ([]model.Assessment, int, error) {
	offset := (page - 1) * perPage
	return s.assessmentRepo.ListByAuthorPaginated(ctx, authorID, perPage, offset)
}

// Create inserts a new assessment authored by the given staff member.
func (s *AssessmentService) Create(ctx context.Context, authorID int, req *model.CreateAssessmentRequest) (*model.Assessment, error) {
	marks := req.MarksPerQuestion
	if marks == 0 {
		marks = 1
	}

	a := &model.Assessment{
		Title:            req.Title,
		SubjectID:        req.SubjectID,
		AuthorID:         authorID,
		DurationMinutes:  req.DurationMinutes,
		MarksPerQuestion: marks,
		PassingPercent:   req.PassingPercent,
		ScheduledStart:   req.ScheduledStart,
		ScheduledEnd:     req.ScheduledEnd,
		IsMockSubject:    req.IsMockSubject,
	}
	if err := s.assessmentRepo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create assessment: %w", err)
	}
	return a, nil
}

// Update modifies an assessment. Only the owning author or an admin may
// call this; the handler enforces that.
func (s *AssessmentService) Update(ctx context.Context, id uuid.UUID, req *model.UpdateAssessmentRequest) (*model.Assessment, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != "" {
		a.Title = req.Title
	}
	if req.DurationMinutes > 0 {
		a.DurationMinutes = req.DurationMinutes
	}
	if req.MarksPerQuestion > 0 {
		a.MarksPerQuestion = req.MarksPerQuestion
	}
	if req.PassingPercent != nil {
		a.PassingPercent = *req.PassingPercent
	}
	if req.ScheduledStart != nil {
		a.ScheduledStart = req.ScheduledStart
	}
	if req.ScheduledEnd != nil {
		a.ScheduledEnd = req.ScheduledEnd
	}

	if err := s.assessmentRepo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update assessment: %w", err)
	}

	// Edits invalidate the cached paper and key; Activate rebuilds them.
	s.invalidateCache(ctx, id)
	return a, nil
}

// Delete removes an assessment and drops its caches.
func (s *AssessmentService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.assessmentRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete assessment: %w", err)
	}
	s.invalidateCache(ctx, id)
	return nil
}

// Activate switches an assessment live and warms the Redis caches the
// exam-taking path depends on: the student-facing paper and the hidden
// answer key.
func (s *AssessmentService) Activate(ctx context.Context, id uuid.UUID) error {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	count, err := s.questionRepo.CountByAssessment(ctx, id)
	if err != nil {
		return fmt.Errorf("count questions: %w", err)
	}
	if count == 0 {
		return ErrAssessmentNoQuestion
	}

	if err := s.assessmentRepo.SetActive(ctx, id, true); err != nil {
		return fmt.Errorf("activate assessment: %w", err)
	}

	if err := s.warmCache(ctx, a); err != nil {
		// Cache warming failures are recoverable: reads fall back to
		// PostgreSQL and self-heal.
		s.log.Warn().Err(err).Str("assessment_id", id.String()).Msg("Cache warm failed")
	}
	return nil
}

// Deactivate takes an assessment offline and drops its caches.
func (s *AssessmentService) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.assessmentRepo.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("deactivate assessment: %w", err)
	}
	s.invalidateCache(ctx, id)
	return nil
}

// PrewarmActive rebuilds the caches of every active assessment. Called on
// application startup.
func (s *AssessmentService) PrewarmActive(ctx context.Context) error {
	active, err := s.assessmentRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active assessments: %w", err)
	}

	for i := range active {
		if err := s.warmCache(ctx, &active[i]); err != nil {
			s.log.Warn().Err(err).Str("assessment_id", active[i].ID.String()).Msg("Prewarm failed")
			continue
		}
	}

	s.log.Info().Int("count", len(active)).Msg("Prewarmed active assessments")
	return nil
}

// GetPaper returns the student-facing paper, preferring the Redis cache
// and falling back to PostgreSQL with self-heal on a miss.
func (s *AssessmentService) GetPaper(ctx context.Context, id uuid.UUID) (*model.AssessmentPaper, error) {
	cacheKey := config.CacheKey.AssessmentPaperKey(id.String())

	val, err := s.rdb.Get(ctx, cacheKey).Result()
	if err == nil {
		paper := &model.AssessmentPaper{}
		if err := json.Unmarshal([]byte(val), paper); err == nil {
			return paper, nil
		}
		// Corrupt cache entry; rebuild below.
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Paper cache read failed, falling back to database")
	}

	a, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	paper, err := s.buildPaper(ctx, a)
	if err != nil {
		return nil, err
	}

	// Self-heal so the next request is fast.
	if data, err := json.Marshal(paper); err == nil {
		_ = s.rdb.Set(ctx, cacheKey, data, 0).Err()
	}
	return paper, nil
}

// AnswerKey returns the assessment's hidden answer key and total question
// count, preferring the Redis cache with PostgreSQL failover. The key
// never travels further than the scoring path.
func (s *AssessmentService) AnswerKey(ctx context.Context, id uuid.UUID) (map[uuid.UUID]string, int, error) {
	cacheKey := config.CacheKey.AssessmentAnswerKeyKey(id.String())

	val, err := s.rdb.Get(ctx, cacheKey).Result()
	if err == nil {
		var key map[uuid.UUID]string
		if err := json.Unmarshal([]byte(val), &key); err == nil && len(key) > 0 {
			return key, len(key), nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Answer key cache read failed, falling back to database")
	}

	questions, err := s.questionRepo.ListByAssessment(ctx, id)
	if err != nil {
		return nil, 0, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, 0, ErrAssessmentNoQuestion
	}

	key := make(map[uuid.UUID]string, len(questions))
	for _, q := range questions {
		key[q.ID] = q.CorrectOption
	}

	if data, err := json.Marshal(key); err == nil {
		_ = s.rdb.Set(ctx, cacheKey, data, 0).Err()
	}
	return key, len(key), nil
}

func (s *AssessmentService) buildPaper(ctx context.Context, a *model.Assessment) (*model.AssessmentPaper, error) {
	questions, err := s.questionRepo.ListByAssessment(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrAssessmentNoQuestion
	}

	forStudents := make([]model.QuestionForStudent, 0, len(questions))
	for _, q := range questions {
		forStudents = append(forStudents, q.ForStudent())
	}

	return &model.AssessmentPaper{
		AssessmentID:     a.ID,
		Title:            a.Title,
		SubjectID:        a.SubjectID,
		DurationMinutes:  a.DurationMinutes,
		MarksPerQuestion: a.MarksPerQuestion,
		Questions:        forStudents,
	}, nil
}

func (s *AssessmentService) warmCache(ctx context.Context, a *model.Assessment) error {
	paper, err := s.buildPaper(ctx, a)
	if err != nil {
		return err
	}

	paperData, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.AssessmentPaperKey(a.ID.String()), paperData, 0).Err(); err != nil {
		return fmt.Errorf("cache paper: %w", err)
	}

	questions, err := s.questionRepo.ListByAssessment(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	key := make(map[uuid.UUID]string, len(questions))
	for _, q := range questions {
		key[q.ID] = q.CorrectOption
	}
	keyData, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("marshal answer key: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.AssessmentAnswerKeyKey(a.ID.String()), keyData, 0).Err(); err != nil {
		return fmt.Errorf("cache answer key: %w", err)
	}
	return nil
}

func (s *AssessmentService) invalidateCache(ctx context.Context, id uuid.UUID) {
	_ = s.rdb.Del(ctx,
		config.CacheKey.AssessmentPaperKey(id.String()),
		config.CacheKey.AssessmentAnswerKeyKey(id.String()),
	).Err()
}
