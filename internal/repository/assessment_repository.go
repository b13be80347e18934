package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// AssessmentRepository handles assessment data access.
type AssessmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssessmentRepository creates a new AssessmentRepository.
func NewAssessmentRepository(pool *pgxpool.Pool) *AssessmentRepository {
	return &AssessmentRepository{pool: pool}
}

const assessmentColumns = `id, title, subject_id, author_id, duration_minutes,
	marks_per_question, passing_percent, scheduled_start, scheduled_end,
	is_active, is_mock_subject, created_at, updated_at`

func scanAssessment(row interface{ Scan(...any) error }, a *model.Assessment) error {
	return row.Scan(&a.ID, &a.Title, &a.SubjectID, &a.AuthorID, &a.DurationMinutes,
		&a.MarksPerQuestion, &a.PassingPercent, &a.ScheduledStart, &a.ScheduledEnd,
		&a.IsActive, &a.IsMockSubject, &a.CreatedAt, &a.UpdatedAt)
}

// GetByID retrieves an assessment by its UUID.
func (r *AssessmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error) {
	a := &model.Assessment{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE id = $1`, id)
	if err := scanAssessment(row, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListByAuthorPaginated retrieves assessments filtered by author with
// pagination. Pass authorID=0 to list all assessments (admin).
func (r *AssessmentRepository) ListByAuthorPaginated(ctx context.Context, authorID, limit, offset int) ([]model.Assessment, int, error) {
	countQuery := `SELECT COUNT(*) FROM assessments`
	var countArgs []any
	if authorID > 0 {
		countQuery += ` WHERE author_id = $1`
		countArgs = append(countArgs, authorID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + assessmentColumns + ` FROM assessments`
	var args []any
	argIdx := 1
	if authorID > 0 {
		query += ` WHERE author_id = $1`
		args = append(args, authorID)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var assessments []model.Assessment
	for rows.Next() {
		var a model.Assessment
		if err := scanAssessment(rows, &a); err != nil {
			return nil, 0, err
		}
		assessments = append(assessments, a)
	}
	return assessments, total, rows.Err()
}

// ListActive returns all active assessments. Used for cache prewarming on
// application startup and for the student lobby.
func (r *AssessmentRepository) ListActive(ctx context.Context) ([]model.Assessment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE is_active = TRUE ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assessments []model.Assessment
	for rows.Next() {
		var a model.Assessment
		if err := scanAssessment(rows, &a); err != nil {
			return nil, err
		}
		assessments = append(assessments, a)
	}
	return assessments, rows.Err()
}

// Create inserts a new assessment.
func (r *AssessmentRepository) Create(ctx context.Context, a *model.Assessment) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO assessments (title, subject_id, author_id, duration_minutes,
		        marks_per_question, passing_percent, scheduled_start, scheduled_end, is_mock_subject)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, is_active, created_at, updated_at`,
		a.Title, a.SubjectID, a.AuthorID, a.DurationMinutes,
		a.MarksPerQuestion, a.PassingPercent, a.ScheduledStart, a.ScheduledEnd, a.IsMockSubject,
	).Scan(&a.ID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
}

// Update modifies an assessment's editable fields.
func (r *AssessmentRepository) Update(ctx context.Context, a *model.Assessment) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE assessments
		 SET title = $1, duration_minutes = $2, marks_per_question = $3,
		     passing_percent = $4, scheduled_start = $5, scheduled_end = $6,
		     updated_at = NOW()
		 WHERE id = $7`,
		a.Title, a.DurationMinutes, a.MarksPerQuestion,
		a.PassingPercent, a.ScheduledStart, a.ScheduledEnd, a.ID)
	return err
}

// SetActive flips an assessment's active flag.
func (r *AssessmentRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE assessments SET is_active = $1, updated_at = NOW() WHERE id = $2`,
		active, id)
	return err
}

// Delete removes an assessment and cascades to its questions.
func (r *AssessmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM assessments WHERE id = $1`, id)
	return err
}
