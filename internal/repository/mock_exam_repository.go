package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// MockExamRepository handles mock exam, session and subject-result data
// access.
type MockExamRepository struct {
	pool *pgxpool.Pool
}

// NewMockExamRepository creates a new MockExamRepository.
func NewMockExamRepository(pool *pgxpool.Pool) *MockExamRepository {
	return &MockExamRepository{pool: pool}
}

// Create inserts a mock exam together with its ordered subject entries.
func (r *MockExamRepository) Create(ctx context.Context, m *model.MockExam) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO mock_exams (title, timing_mode, total_duration_minutes, duration_per_subject_minutes)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, is_active, created_at`,
		m.Title, m.TimingMode, m.TotalDurationMin, m.PerSubjectDuration,
	).Scan(&m.ID, &m.IsActive, &m.CreatedAt)
	if err != nil {
		return err
	}

	for i := range m.Subjects {
		m.Subjects[i].MockExamID = m.ID
		m.Subjects[i].Position = i
		if _, err := tx.Exec(ctx,
			`INSERT INTO mock_exam_subjects (mock_exam_id, subject_id, assessment_id, position)
			 VALUES ($1, $2, $3, $4)`,
			m.ID, m.Subjects[i].SubjectID, m.Subjects[i].AssessmentID, i,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetByID retrieves a mock exam with its subjects in run order.
func (r *MockExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.MockExam, error) {
	m := &model.MockExam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, timing_mode, total_duration_minutes, duration_per_subject_minutes, is_active, created_at
		 FROM mock_exams WHERE id = $1`, id,
	).Scan(&m.ID, &m.Title, &m.TimingMode, &m.TotalDurationMin, &m.PerSubjectDuration, &m.IsActive, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT mock_exam_id, subject_id, assessment_id, position
		 FROM mock_exam_subjects
		 WHERE mock_exam_id = $1
		 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s model.MockExamSubject
		if err := rows.Scan(&s.MockExamID, &s.SubjectID, &s.AssessmentID, &s.Position); err != nil {
			return nil, err
		}
		m.Subjects = append(m.Subjects, s)
	}
	return m, rows.Err()
}

// List retrieves all mock exams, newest first, without subject entries.
func (r *MockExamRepository) List(ctx context.Context) ([]model.MockExam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, timing_mode, total_duration_minutes, duration_per_subject_minutes, is_active, created_at
		 FROM mock_exams ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.MockExam
	for rows.Next() {
		var m model.MockExam
		if err := rows.Scan(&m.ID, &m.Title, &m.TimingMode, &m.TotalDurationMin, &m.PerSubjectDuration, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, m)
	}
	return exams, rows.Err()
}

// SetActive flips a mock exam's active flag.
func (r *MockExamRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE mock_exams SET is_active = $1 WHERE id = $2`, active, id)
	return err
}

// CreateSession inserts the aggregate session for (mock exam, student).
// The unique constraint on (mock_exam_id, student_id) makes the join
// idempotent: on conflict the RETURNING scan yields pgx.ErrNoRows and the
// caller fetches the existing session instead.
func (r *MockExamRepository) CreateSession(ctx context.Context, s *model.MockExamSession) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO mock_exam_sessions (mock_exam_id, student_id)
		 VALUES ($1, $2)
		 ON CONFLICT (mock_exam_id, student_id) DO NOTHING
		 RETURNING id, started_at`,
		s.MockExamID, s.StudentID,
	).Scan(&s.ID, &s.StartedAt)
}

// GetSessionByID retrieves a session by its UUID.
func (r *MockExamRepository) GetSessionByID(ctx context.Context, id uuid.UUID) (*model.MockExamSession, error) {
	s := &model.MockExamSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, mock_exam_id, student_id, current_position, started_at, submitted_at, is_completed, total_score, total_possible
		 FROM mock_exam_sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.MockExamID, &s.StudentID, &s.CurrentPosition, &s.StartedAt, &s.SubmittedAt, &s.IsCompleted, &s.TotalScore, &s.TotalPossible)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetSessionByExamAndStudent retrieves a session for a specific
// exam-student combination.
func (r *MockExamRepository) GetSessionByExamAndStudent(ctx context.Context, mockExamID uuid.UUID, studentID int) (*model.MockExamSession, error) {
	s := &model.MockExamSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, mock_exam_id, student_id, current_position, started_at, submitted_at, is_completed, total_score, total_possible
		 FROM mock_exam_sessions WHERE mock_exam_id = $1 AND student_id = $2`,
		mockExamID, studentID,
	).Scan(&s.ID, &s.MockExamID, &s.StudentID, &s.CurrentPosition, &s.StartedAt, &s.SubmittedAt, &s.IsCompleted, &s.TotalScore, &s.TotalPossible)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// AdvancePosition moves the session's cursor to the next subject. The
// position only moves forward.
func (r *MockExamRepository) AdvancePosition(ctx context.Context, sessionID uuid.UUID, position int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE mock_exam_sessions
		 SET current_position = $1
		 WHERE id = $2 AND current_position < $1`,
		position, sessionID)
	return err
}

// InsertSubjectResult writes the per-subject score row exactly once. The
// unique constraint on (session_id, subject_id) makes a duplicate write a
// no-op; inserted=false tells the caller a result already exists.
func (r *MockExamRepository) InsertSubjectResult(ctx context.Context, res *model.SubjectResult) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO subject_results (session_id, subject_id, attempt_id, score, total_possible)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id, subject_id) DO NOTHING`,
		res.SessionID, res.SubjectID, res.AttemptID, res.Score, res.TotalPossible)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListSubjectResults retrieves all subject results of a session.
func (r *MockExamRepository) ListSubjectResults(ctx context.Context, sessionID uuid.UUID) ([]model.SubjectResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, subject_id, attempt_id, score, total_possible, completed_at
		 FROM subject_results WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.SubjectResult
	for rows.Next() {
		var res model.SubjectResult
		if err := rows.Scan(&res.ID, &res.SessionID, &res.SubjectID, &res.AttemptID, &res.Score, &res.TotalPossible, &res.CompletedAt); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// CompleteSession finalizes the aggregate score exactly once. A second
// call matches no row and reports completed=false.
func (r *MockExamRepository) CompleteSession(ctx context.Context, sessionID uuid.UUID, totalScore, totalPossible int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE mock_exam_sessions
		 SET is_completed = TRUE, submitted_at = NOW(), total_score = $1, total_possible = $2
		 WHERE id = $3 AND is_completed = FALSE`,
		totalScore, totalPossible, sessionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
