package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quizdesk/quizdesk-backend/internal/middleware"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/response"
	"github.com/quizdesk/quizdesk-backend/internal/service"
	"github.com/quizdesk/quizdesk-backend/internal/validator"
)

// StudentPortalHandler handles the student-facing exam endpoints.
type StudentPortalHandler struct {
	attemptService    *service.AttemptService
	assessmentService *service.AssessmentService
	scoringService    *service.ScoringService
	mockExamService   *service.MockExamService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	attemptService *service.AttemptService,
	assessmentService *service.AssessmentService,
	scoringService *service.ScoringService,
	mockExamService *service.MockExamService,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		attemptService:    attemptService,
		assessmentService: assessmentService,
		scoringService:    scoringService,
		mockExamService:   mockExamService,
	}
}

// failServiceError maps domain sentinels to HTTP error responses.
func failServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAssessmentNotFound),
		errors.Is(err, service.ErrAttemptNotFound),
		errors.Is(err, service.ErrMockExamNotFound),
		errors.Is(err, service.ErrMockSessionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotAttemptOwner):
		response.Fail(c, http.StatusForbidden, response.ErrNotAttemptOwner)
	case errors.Is(err, service.ErrAttemptNotInSession):
		response.Fail(c, http.StatusForbidden, response.ErrAttemptNotInSession)
	case errors.Is(err, service.ErrAssessmentInactive),
		errors.Is(err, service.ErrMockExamInactive):
		response.Fail(c, http.StatusConflict, response.ErrAssessmentInactive)
	case errors.Is(err, service.ErrAssessmentNotOpen),
		errors.Is(err, service.ErrAssessmentClosed):
		response.Fail(c, http.StatusConflict, response.ErrAssessmentNotOpen)
	case errors.Is(err, service.ErrAssessmentNoQuestion):
		response.Fail(c, http.StatusConflict, response.ErrAssessmentNoQuestion)
	case errors.Is(err, service.ErrRetakeNotAllowed):
		response.Fail(c, http.StatusConflict, response.ErrRetakeNotAllowed)
	case errors.Is(err, service.ErrSubjectOutOfOrder):
		response.Fail(c, http.StatusConflict, response.ErrSubjectOutOfOrder)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// GetLobby godoc
// GET /api/v1/student/lobby
// Lists active assessments overlaid with the student's attempt status.
func (h *StudentPortalHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	lobby, err := h.attemptService.GetLobby(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if lobby == nil {
		lobby = []service.LobbyAssessment{}
	}
	response.Success(c, http.StatusOK, gin.H{"assessments": lobby})
}

// StartAttempt godoc
// POST /api/v1/student/assessments/:id/attempts
// Creates (or returns the existing open) attempt for the assessment.
func (h *StudentPortalHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attemptService.StartAttempt(c.Request.Context(), claims.UserID, assessmentID)
	if err != nil {
		failServiceError(c, err)
		return
	}

	deadline, err := h.attemptService.Deadline(c.Request.Context(), attempt)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"attempt":  attempt,
		"deadline": deadline,
	})
}

// GetPaper godoc
// GET /api/v1/student/attempts/:attempt_id/paper
// Returns the cached question paper (no correct answers) for an open attempt.
func (h *StudentPortalHandler) GetPaper(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attemptService.VerifyActiveAttempt(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		failServiceError(c, err)
		return
	}

	paper, err := h.assessmentService.GetPaper(c.Request.Context(), attempt.AssessmentID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"paper": paper})
}

// GetAttemptState godoc
// GET /api/v1/student/attempts/:attempt_id/state
// Restores a reconnecting client: buffered answers, remaining time, violations.
func (h *StudentPortalHandler) GetAttemptState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.attemptService.GetState(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		if errors.Is(err, service.ErrAlreadySubmitted) {
			response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
			return
		}
		failServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": state})
}

// SubmitAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// Grades the attempt. A repeat submission returns 409 with the stored result.
func (h *StudentPortalHandler) SubmitAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	summary, err := h.scoringService.SubmitAssessment(c.Request.Context(), claims.UserID, attemptID, req.Answers, req.AutoSubmitted)
	if err != nil {
		if errors.Is(err, service.ErrAlreadySubmitted) {
			response.FailWithData(c, http.StatusConflict, response.ErrAlreadySubmitted, gin.H{"result": summary})
			return
		}
		failServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": summary})
}

// ListMyAttempts godoc
// GET /api/v1/student/attempts
func (h *StudentPortalHandler) ListMyAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attempts, err := h.attemptService.ListByStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if attempts == nil {
		attempts = []model.Attempt{}
	}
	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// ListMockExams godoc
// GET /api/v1/student/mock-exams
// Lists mock exams open for enrollment.
func (h *StudentPortalHandler) ListMockExams(c *gin.Context) {
	exams, err := h.mockExamService.List(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	active := make([]model.MockExam, 0, len(exams))
	for _, e := range exams {
		if e.IsActive {
			active = append(active, e)
		}
	}
	response.Success(c, http.StatusOK, gin.H{"mock_exams": active})
}

// StartMockSession godoc
// POST /api/v1/student/mock-exams/:id/sessions
// Creates (or returns the existing) session for the mock exam.
func (h *StudentPortalHandler) StartMockSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	mockExamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	session, err := h.mockExamService.StartSession(c.Request.Context(), claims.UserID, mockExamID)
	if err != nil {
		if errors.Is(err, service.ErrAlreadySubmitted) {
			response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
			return
		}
		failServiceError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": session})
}

// GetMockSession godoc
// GET /api/v1/student/mock-sessions/:session_id
func (h *StudentPortalHandler) GetMockSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	session, err := h.mockExamService.GetSession(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		failServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// GetMockSessionResults godoc
// GET /api/v1/student/mock-sessions/:session_id/results
// Aggregate and per-subject results; partial until every subject is graded.
func (h *StudentPortalHandler) GetMockSessionResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	session, results, err := h.mockExamService.GetSessionResults(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		failServiceError(c, err)
		return
	}

	if results == nil {
		results = []model.SubjectResult{}
	}
	response.Success(c, http.StatusOK, gin.H{
		"session": session,
		"results": results,
	})
}

// SubmitMockSubject godoc
// POST /api/v1/student/mock-sessions/:session_id/submit-subject
// Grades one subject attempt of the session and advances the position.
func (h *StudentPortalHandler) SubmitMockSubject(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitMockSubjectRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	summary, err := h.scoringService.SubmitMockExamSubject(c.Request.Context(), claims.UserID, sessionID, req.AttemptID, req.Answers, req.AutoSubmitted)
	if err != nil {
		if errors.Is(err, service.ErrAlreadySubmitted) {
			response.FailWithData(c, http.StatusConflict, response.ErrAlreadySubmitted, gin.H{"result": summary})
			return
		}
		failServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": summary})
}
