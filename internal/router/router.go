package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/handler"
	"github.com/quizdesk/quizdesk-backend/internal/middleware"
	"github.com/quizdesk/quizdesk-backend/internal/response"
	"github.com/quizdesk/quizdesk-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	StudentPortal *handler.StudentPortalHandler
	StudentMgmt   *handler.StudentManagementHandler
	Subject       *handler.SubjectHandler
	Assessment    *handler.AssessmentHandler
	Question      *handler.QuestionHandler
	MockExam      *handler.MockExamHandler
	Monitor       *handler.MonitorHandler
	WS            *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestID())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/student/login", handlers.Auth.StudentLogin)
		auth.POST("/staff/login", handlers.Auth.StaffLogin)

		// Authenticated profile routes
		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
		auth.GET("/student/me", middleware.RequireStudentJWT(authService), handlers.Auth.GetStudentProfile)
		auth.GET("/staff/me", middleware.RequireStaffJWT(authService), handlers.Auth.GetStaffProfile)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.GET("/lobby", handlers.StudentPortal.GetLobby)
		studentAPI.GET("/attempts", handlers.StudentPortal.ListMyAttempts)
		studentAPI.POST("/assessments/:id/attempts", handlers.StudentPortal.StartAttempt)
		studentAPI.GET("/attempts/:attempt_id/paper", handlers.StudentPortal.GetPaper)
		studentAPI.GET("/attempts/:attempt_id/state", handlers.StudentPortal.GetAttemptState)
		studentAPI.POST("/attempts/:attempt_id/submit", handlers.StudentPortal.SubmitAttempt)

		// Mock exams
		studentAPI.GET("/mock-exams", handlers.StudentPortal.ListMockExams)
		studentAPI.POST("/mock-exams/:id/sessions", handlers.StudentPortal.StartMockSession)
		studentAPI.GET("/mock-sessions/:session_id", handlers.StudentPortal.GetMockSession)
		studentAPI.GET("/mock-sessions/:session_id/results", handlers.StudentPortal.GetMockSessionResults)
		studentAPI.POST("/mock-sessions/:session_id/submit-subject", handlers.StudentPortal.SubmitMockSubject)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
		ws.GET("/student/mock-sessions/:session_id/stream", handlers.WS.MockSessionStream)
	}

	// ─── 4. Staff Group (JWT) ──────────────────────────────────────────
	staffAPI := router.Group("/api/v1/staff")
	staffAPI.Use(middleware.RequireStaffJWT(authService))
	{
		// Student management
		staffAPI.GET("/students", handlers.StudentMgmt.List)
		staffAPI.POST("/students", handlers.StudentMgmt.Create)
		staffAPI.POST("/students/:id/reset-session", handlers.Auth.ResetStudentSession)

		// Subjects
		subjectsGroup := staffAPI.Group("/subjects")
		{
			subjectsGroup.GET("", handlers.Subject.GetAll)
			subjectsGroup.POST("", handlers.Subject.Create)
			subjectsGroup.PUT("/:id", handlers.Subject.Update)
			subjectsGroup.DELETE("/:id", handlers.Subject.Delete)
		}

		// Assessments
		staffAPI.GET("/assessments", handlers.Assessment.List)
		staffAPI.POST("/assessments", handlers.Assessment.Create)
		staffAPI.GET("/assessments/:id", handlers.Assessment.Get)
		staffAPI.PUT("/assessments/:id", handlers.Assessment.Update)
		staffAPI.DELETE("/assessments/:id", handlers.Assessment.Delete)
		staffAPI.POST("/assessments/:id/activate", handlers.Assessment.Activate)
		staffAPI.POST("/assessments/:id/deactivate", handlers.Assessment.Deactivate)
		staffAPI.GET("/assessments/:id/results", handlers.Assessment.Results)
		staffAPI.GET("/assessments/:id/monitor", handlers.Monitor.MonitorAssessmentSSE)

		// Questions
		staffAPI.GET("/assessments/:id/questions", handlers.Question.List)
		staffAPI.POST("/assessments/:id/questions", handlers.Question.Add)
		staffAPI.PUT("/assessments/:id/questions", handlers.Question.ReplaceAll)
		staffAPI.DELETE("/questions/:question_id", handlers.Question.Delete)

		// Mock exams
		staffAPI.GET("/mock-exams", handlers.MockExam.List)
		staffAPI.POST("/mock-exams", handlers.MockExam.Create)
		staffAPI.GET("/mock-exams/:id", handlers.MockExam.Get)
		staffAPI.POST("/mock-exams/:id/activate", handlers.MockExam.Activate)
		staffAPI.POST("/mock-exams/:id/deactivate", handlers.MockExam.Deactivate)
	}

	return router
}
