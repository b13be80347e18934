package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quizdesk/quizdesk-backend/internal/middleware"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
	"github.com/quizdesk/quizdesk-backend/internal/response"
	"github.com/quizdesk/quizdesk-backend/internal/service"
	"github.com/quizdesk/quizdesk-backend/internal/validator"
)

// QuestionHandler handles staff-side question authoring.
type QuestionHandler struct {
	questionRepo      *repository.QuestionRepository
	assessmentService *service.AssessmentService
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questionRepo *repository.QuestionRepository, assessmentService *service.AssessmentService) *QuestionHandler {
	return &QuestionHandler{
		questionRepo:      questionRepo,
		assessmentService: assessmentService,
	}
}

// ownedAssessmentID parses the :id param and enforces that the caller
// authored the assessment. Admins bypass the ownership check.
func (h *QuestionHandler) ownedAssessmentID(c *gin.Context) (uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return uuid.Nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}

	assessment, err := h.assessmentService.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return uuid.Nil, false
	}

	if claims.Role != model.StaffRoleAdmin && assessment.AuthorID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return uuid.Nil, false
	}

	return id, true
}

// List godoc
// GET /api/v1/staff/assessments/:id/questions
// Staff view includes the correct option.
func (h *QuestionHandler) List(c *gin.Context) {
	assessmentID, ok := h.ownedAssessmentID(c)
	if !ok {
		return
	}

	questions, err := h.questionRepo.ListByAssessment(c.Request.Context(), assessmentID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	// The JSON tag hides CorrectOption; the staff editor needs it.
	out := make([]gin.H, 0, len(questions))
	for _, q := range questions {
		out = append(out, gin.H{
			"id":             q.ID,
			"prompt":         q.Prompt,
			"option_a":       q.OptionA,
			"option_b":       q.OptionB,
			"option_c":       q.OptionC,
			"option_d":       q.OptionD,
			"correct_option": q.CorrectOption,
			"order_num":      q.OrderNum,
		})
	}

	response.Success(c, http.StatusOK, gin.H{"questions": out})
}

// Add godoc
// POST /api/v1/staff/assessments/:id/questions
func (h *QuestionHandler) Add(c *gin.Context) {
	assessmentID, ok := h.ownedAssessmentID(c)
	if !ok {
		return
	}

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q := &model.Question{
		AssessmentID:  assessmentID,
		Prompt:        req.Prompt,
		OptionA:       req.OptionA,
		OptionB:       req.OptionB,
		OptionC:       req.OptionC,
		OptionD:       req.OptionD,
		CorrectOption: req.CorrectOption,
		OrderNum:      req.OrderNum,
	}
	if err := h.questionRepo.Create(c.Request.Context(), q); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"question_id": q.ID})
}

// ReplaceAll godoc
// PUT /api/v1/staff/assessments/:id/questions
// Replaces the full question set in one transaction (bulk import).
func (h *QuestionHandler) ReplaceAll(c *gin.Context) {
	assessmentID, ok := h.ownedAssessmentID(c)
	if !ok {
		return
	}

	var req model.ReplaceQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions := make([]model.Question, 0, len(req.Questions))
	for i, q := range req.Questions {
		orderNum := q.OrderNum
		if orderNum == 0 {
			orderNum = i + 1
		}
		questions = append(questions, model.Question{
			AssessmentID:  assessmentID,
			Prompt:        q.Prompt,
			OptionA:       q.OptionA,
			OptionB:       q.OptionB,
			OptionC:       q.OptionC,
			OptionD:       q.OptionD,
			CorrectOption: q.CorrectOption,
			OrderNum:      orderNum,
		})
	}

	if err := h.questionRepo.ReplaceAll(c.Request.Context(), assessmentID, questions); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"count": len(questions)})
}

// Delete godoc
// DELETE /api/v1/staff/questions/:question_id
func (h *QuestionHandler) Delete(c *gin.Context) {
	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.questionRepo.Delete(c.Request.Context(), questionID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}
