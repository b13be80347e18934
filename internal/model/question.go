package model

import (
	"github.com/google/uuid"
)

// OptionLabels enumerates the four valid option labels.
var OptionLabels = []string{"A", "B", "C", "D"}

// Question represents a single multiple-choice question. The correct
// option label is never serialized; only the grading path may read it.
type Question struct {
	ID            uuid.UUID `json:"id"`
	AssessmentID  uuid.UUID `json:"assessment_id"`
	Prompt        string    `json:"prompt"`
	OptionA       string    `json:"option_a"`
	OptionB       string    `json:"option_b"`
	OptionC       string    `json:"option_c"`
	OptionD       string    `json:"option_d"`
	CorrectOption string    `json:"-"`
	OrderNum      int       `json:"order_num"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID       uuid.UUID `json:"id"`
	Prompt   string    `json:"prompt"`
	OptionA  string    `json:"option_a"`
	OptionB  string    `json:"option_b"`
	OptionC  string    `json:"option_c"`
	OptionD  string    `json:"option_d"`
	OrderNum int       `json:"order_num"`
}

// ForStudent strips the correct option from a question.
func (q Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:       q.ID,
		Prompt:   q.Prompt,
		OptionA:  q.OptionA,
		OptionB:  q.OptionB,
		OptionC:  q.OptionC,
		OptionD:  q.OptionD,
		OrderNum: q.OrderNum,
	}
}

// AddQuestionRequest is the payload for adding a question to an assessment.
type AddQuestionRequest struct {
	Prompt        string `json:"prompt" binding:"required,min=1,max=2000"`
	OptionA       string `json:"option_a" binding:"required,max=500"`
	OptionB       string `json:"option_b" binding:"required,max=500"`
	OptionC       string `json:"option_c" binding:"required,max=500"`
	OptionD       string `json:"option_d" binding:"required,max=500"`
	CorrectOption string `json:"correct_option" binding:"required,oneof=A B C D"`
	OrderNum      int    `json:"order_num" binding:"min=0"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"dive"`
}
