package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quizdesk/quizdesk-backend/internal/middleware"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/response"
	"github.com/quizdesk/quizdesk-backend/internal/service"
	"github.com/quizdesk/quizdesk-backend/internal/validator"
)

// AssessmentHandler handles staff-side assessment authoring endpoints.
type AssessmentHandler struct {
	assessmentService *service.AssessmentService
	attemptService    *service.AttemptService
}

// NewAssessmentHandler creates a new AssessmentHandler.
func NewAssessmentHandler(assessmentService *service.AssessmentService, attemptService *service.AttemptService) *AssessmentHandler {
	return &AssessmentHandler{
		assessmentService: assessmentService,
		attemptService:    attemptService,
	}
}

// loadOwned fetches the assessment and enforces that the caller authored
// it. Admins bypass the ownership check.
func (h *AssessmentHandler) loadOwned(c *gin.Context) (*model.Assessment, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	assessment, err := h.assessmentService.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return nil, false
	}

	if claims.Role != model.StaffRoleAdmin && assessment.AuthorID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return nil, false
	}

	return assessment, true
}

// List godoc
// GET /api/v1/staff/assessments?page=1&per_page=20
// Teachers see their own assessments; admins see everything.
func (h *AssessmentHandler) List(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	authorID := claims.UserID
	if claims.Role == model.StaffRoleAdmin {
		authorID = 0
	}

	assessments, total, err := h.assessmentService.List(c.Request.Context(), authorID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if assessments == nil {
		assessments = []model.Assessment{}
	}

	totalPages := (total + perPage - 1) / perPage
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"assessments": assessments}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	})
}

// Get godoc
// GET /api/v1/staff/assessments/:id
func (h *AssessmentHandler) Get(c *gin.Context) {
	assessment, ok := h.loadOwned(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"assessment": assessment})
}

// Create godoc
// POST /api/v1/staff/assessments
func (h *AssessmentHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateAssessmentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	assessment, err := h.assessmentService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"assessment": assessment})
}

// Update godoc
// PUT /api/v1/staff/assessments/:id
func (h *AssessmentHandler) Update(c *gin.Context) {
	assessment, ok := h.loadOwned(c)
	if !ok {
		return
	}

	var req model.UpdateAssessmentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	updated, err := h.assessmentService.Update(c.Request.Context(), assessment.ID, &req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"assessment": updated})
}

// Delete godoc
// DELETE /api/v1/staff/assessments/:id
func (h *AssessmentHandler) Delete(c *gin.Context) {
	assessment, ok := h.loadOwned(c)
	if !ok {
		return
	}

	if err := h.assessmentService.Delete(c.Request.Context(), assessment.ID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// Activate godoc
// POST /api/v1/staff/assessments/:id/activate
// Opens the assessment to students and warms the paper/answer-key caches.
func (h *AssessmentHandler) Activate(c *gin.Context) {
	assessment, ok := h.loadOwned(c)
	if !ok {
		return
	}

	if err := h.assessmentService.Activate(c.Request.Context(), assessment.ID); err != nil {
		if errors.Is(err, service.ErrAssessmentNoQuestion) {
			response.Fail(c, http.StatusConflict, response.ErrAssessmentNoQuestion)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// Deactivate godoc
// POST /api/v1/staff/assessments/:id/deactivate
func (h *AssessmentHandler) Deactivate(c *gin.Context) {
	assessment, ok := h.loadOwned(c)
	if !ok {
		return
	}

	if err := h.assessmentService.Deactivate(c.Request.Context(), assessment.ID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// Results godoc
// GET /api/v1/staff/assessments/:id/results
// Snapshot of every attempt on the assessment for the results screen.
func (h *AssessmentHandler) Results(c *gin.Context) {
	assessment, ok := h.loadOwned(c)
	if !ok {
		return
	}

	entries, err := h.attemptService.ListByAssessment(c.Request.Context(), assessment.ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": entries})
}
