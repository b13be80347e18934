package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// MonitorEntry combines student data with their attempt status for the
// staff monitoring screen.
type MonitorEntry struct {
	StudentID      int        `json:"student_id"`
	Name           string     `json:"name"`
	RegNumber      string     `json:"reg_number"`
	AttemptID      uuid.UUID  `json:"attempt_id"`
	StartedAt      time.Time  `json:"started_at"`
	SubmittedAt    *time.Time `json:"submitted_at"`
	Score          *int       `json:"score"`
	ViolationCount int        `json:"violation_count"`
	AutoSubmitted  bool       `json:"auto_submitted"`
}

// FinalizeParams carries the graded outcome written by Finalize.
type FinalizeParams struct {
	Score         int
	TotalPossible int
	Passed        bool
	AutoSubmitted bool
}

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, student_id, assessment_id, mock_session_id, started_at,
	submitted_at, score, total_possible, passed, violation_count, auto_submitted`

func scanAttempt(row interface{ Scan(...any) error }, a *model.Attempt) error {
	return row.Scan(&a.ID, &a.StudentID, &a.AssessmentID, &a.MockSessionID, &a.StartedAt,
		&a.SubmittedAt, &a.Score, &a.TotalPossible, &a.Passed, &a.ViolationCount, &a.AutoSubmitted)
}

// Create inserts a new open attempt. The partial unique index on
// (student_id, assessment_id) WHERE submitted_at IS NULL is the actual
// retake guard; on conflict no row is inserted and the RETURNING scan
// yields pgx.ErrNoRows, signalling a concurrent or pre-existing open
// attempt that the caller should fetch instead.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (student_id, assessment_id, mock_session_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (student_id, assessment_id) WHERE submitted_at IS NULL DO NOTHING
		 RETURNING id, started_at`,
		a.StudentID, a.AssessmentID, a.MockSessionID,
	).Scan(&a.ID, &a.StartedAt)
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id)
	if err := scanAttempt(row, a); err != nil {
		return nil, err
	}
	return a, nil
}

// GetOpenByStudentAndAssessment retrieves the student's not-yet-submitted
// attempt for an assessment, if any.
func (r *AttemptRepository) GetOpenByStudentAndAssessment(ctx context.Context, studentID int, assessmentID uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE student_id = $1 AND assessment_id = $2 AND submitted_at IS NULL`,
		studentID, assessmentID)
	if err := scanAttempt(row, a); err != nil {
		return nil, err
	}
	return a, nil
}

// GetLatestByStudentAndAssessment retrieves the student's most recent
// attempt for an assessment, open or graded.
func (r *AttemptRepository) GetLatestByStudentAndAssessment(ctx context.Context, studentID int, assessmentID uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE student_id = $1 AND assessment_id = $2
		 ORDER BY started_at DESC
		 LIMIT 1`,
		studentID, assessmentID)
	if err := scanAttempt(row, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CountSubmitted returns how many graded attempts the student already has
// for an assessment. Backs the retake policy check.
func (r *AttemptRepository) CountSubmitted(ctx context.Context, studentID int, assessmentID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts
		 WHERE student_id = $1 AND assessment_id = $2 AND submitted_at IS NOT NULL`,
		studentID, assessmentID,
	).Scan(&count)
	return count, err
}

// Finalize writes the graded outcome and the answer rows in one
// transaction. The conditional UPDATE is the write-once primitive: it
// only matches an open attempt, so a second call reports finalized=false
// without touching anything. Answer rows cover answered questions only.
func (r *AttemptRepository) Finalize(ctx context.Context, attemptID uuid.UUID, p FinalizeParams, answers []model.Answer) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE attempts
		 SET submitted_at = NOW(), score = $1, total_possible = $2, passed = $3, auto_submitted = $4
		 WHERE id = $5 AND submitted_at IS NULL`,
		p.Score, p.TotalPossible, p.Passed, p.AutoSubmitted, attemptID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if len(answers) > 0 {
		rows := make([][]any, 0, len(answers))
		for _, a := range answers {
			rows = append(rows, []any{attemptID, a.QuestionID, a.SelectedLabel, a.IsCorrect})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"answers"},
			[]string{"attempt_id", "question_id", "selected_label", "is_correct"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// IncrementViolations bumps the attempt's violation counter.
func (r *AttemptRepository) IncrementViolations(ctx context.Context, attemptID uuid.UUID, delta int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts SET violation_count = violation_count + $1 WHERE id = $2`,
		delta, attemptID)
	return err
}

// InsertViolations bulk inserts violation audit rows.
func (r *AttemptRepository) InsertViolations(ctx context.Context, violations []model.AttemptViolation) error {
	rows := make([][]any, 0, len(violations))
	for _, v := range violations {
		rows = append(rows, []any{v.AttemptID, v.Reason, v.RecordedAt})
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"attempt_violations"},
		[]string{"attempt_id", "reason", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// ListByStudent retrieves all attempts for a given student, newest first.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE student_id = $1
		 ORDER BY started_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := scanAttempt(rows, &a); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListByAssessment retrieves every student's attempt status for a
// specific assessment, for the staff monitoring screen.
func (r *AttemptRepository) ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]MonitorEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.name, s.reg_number,
		        a.id, a.started_at, a.submitted_at, a.score, a.violation_count, a.auto_submitted
		 FROM attempts a
		 JOIN students s ON a.student_id = s.id
		 WHERE a.assessment_id = $1
		 ORDER BY s.name`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []MonitorEntry
	for rows.Next() {
		var e MonitorEntry
		if err := rows.Scan(
			&e.StudentID, &e.Name, &e.RegNumber,
			&e.AttemptID, &e.StartedAt, &e.SubmittedAt, &e.Score, &e.ViolationCount, &e.AutoSubmitted,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertBuffer writes autosaved answer selections, last write wins.
func (r *AttemptRepository) UpsertBuffer(ctx context.Context, answers []model.BufferedAnswer) error {
	batch := &pgx.Batch{}
	for _, a := range answers {
		batch.Queue(
			`INSERT INTO attempt_answer_buffer (attempt_id, question_id, selected_label)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (attempt_id, question_id) DO UPDATE
			 SET selected_label = EXCLUDED.selected_label, updated_at = NOW()`,
			a.AttemptID, a.QuestionID, a.SelectedLabel)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

// GetBuffer retrieves the autosaved selections for an attempt, keyed by
// question id.
func (r *AttemptRepository) GetBuffer(ctx context.Context, attemptID uuid.UUID) (map[string]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, selected_label
		 FROM attempt_answer_buffer WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buffer := make(map[string]string)
	for rows.Next() {
		var questionID uuid.UUID
		var label string
		if err := rows.Scan(&questionID, &label); err != nil {
			return nil, err
		}
		buffer[questionID.String()] = label
	}
	return buffer, rows.Err()
}
