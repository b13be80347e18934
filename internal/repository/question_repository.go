package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// QuestionRepository handles question data access. Rows loaded here carry
// the correct option label and must never leave the server unfiltered.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByAssessment retrieves all questions for an assessment, ordered by
// order_num.
func (r *QuestionRepository) ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, assessment_id, prompt, option_a, option_b, option_c, option_d, correct_option, order_num
		 FROM questions WHERE assessment_id = $1
		 ORDER BY order_num`, assessmentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.AssessmentID, &q.Prompt, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &q.CorrectOption, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CountByAssessment returns the number of questions in an assessment.
func (r *QuestionRepository) CountByAssessment(ctx context.Context, assessmentID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE assessment_id = $1`, assessmentID,
	).Scan(&count)
	return count, err
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (assessment_id, prompt, option_a, option_b, option_c, option_d, correct_option, order_num)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		q.AssessmentID, q.Prompt, q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.CorrectOption, q.OrderNum,
	).Scan(&q.ID)
}

// ReplaceAll atomically swaps the full question set of an assessment.
func (r *QuestionRepository) ReplaceAll(ctx context.Context, assessmentID uuid.UUID, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE assessment_id = $1`, assessmentID); err != nil {
		return err
	}

	if len(questions) > 0 {
		rows := make([][]any, 0, len(questions))
		for _, q := range questions {
			rows = append(rows, []any{
				assessmentID, q.Prompt, q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.CorrectOption, q.OrderNum,
			})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"questions"},
			[]string{"assessment_id", "prompt", "option_a", "option_b", "option_c", "option_d", "correct_option", "order_num"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Delete removes a single question.
func (r *QuestionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	return err
}
