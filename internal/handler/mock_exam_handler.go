package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/response"
	"github.com/quizdesk/quizdesk-backend/internal/service"
	"github.com/quizdesk/quizdesk-backend/internal/validator"
)

// MockExamHandler handles staff-side mock-exam authoring.
type MockExamHandler struct {
	mockExamService *service.MockExamService
}

// NewMockExamHandler creates a new MockExamHandler.
func NewMockExamHandler(mockExamService *service.MockExamService) *MockExamHandler {
	return &MockExamHandler{mockExamService: mockExamService}
}

// List godoc
// GET /api/v1/staff/mock-exams
func (h *MockExamHandler) List(c *gin.Context) {
	exams, err := h.mockExamService.List(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if exams == nil {
		exams = []model.MockExam{}
	}
	response.Success(c, http.StatusOK, gin.H{"mock_exams": exams})
}

// Get godoc
// GET /api/v1/staff/mock-exams/:id
func (h *MockExamHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.mockExamService.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"mock_exam": exam})
}

// Create godoc
// POST /api/v1/staff/mock-exams
// Subjects must reference existing mock-subject assessments; order follows
// the request order.
func (h *MockExamHandler) Create(c *gin.Context) {
	var req model.CreateMockExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.mockExamService.Create(c.Request.Context(), &req)
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
			"mock_exam": err.Error(),
		})
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"mock_exam": exam})
}

// Activate godoc
// POST /api/v1/staff/mock-exams/:id/activate
func (h *MockExamHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

// Deactivate godoc
// POST /api/v1/staff/mock-exams/:id/deactivate
func (h *MockExamHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *MockExamHandler) setActive(c *gin.Context, active bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.mockExamService.SetActive(c.Request.Context(), id, active); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}
