package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quizdesk/quizdesk-backend/internal/middleware"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/service"
	"github.com/quizdesk/quizdesk-backend/internal/session"
	ws "github.com/quizdesk/quizdesk-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler drives live exam sessions over WebSocket. Each connection
// owns one session controller (or one mock-exam orchestrator); the
// client only sends intents, all timing and submission authority stays
// server-side.
type WSHandler struct {
	attemptService  *service.AttemptService
	scoringService  *service.ScoringService
	mockExamService *service.MockExamService
	log             zerolog.Logger
	upgrader        websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	attemptService *service.AttemptService,
	scoringService *service.ScoringService,
	mockExamService *service.MockExamService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		attemptService:  attemptService,
		scoringService:  scoringService,
		mockExamService: mockExamService,
		log:             log.With().Str("component", "ws_handler").Logger(),
		upgrader:        buildUpgrader(allowedOrigins),
	}
}

// wsWriter serializes all writes on one connection. The controller's Run
// goroutine and the read loop both emit events.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) write(v interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = ws.WriteTyped(w.conn, v)
}

func (w *wsWriter) writeError(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = ws.WriteError(w.conn, msg)
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:attempt_id/stream
// Runs a standalone assessment attempt: server-side countdown, violation
// monitoring, auto-submit and grading over one connection.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	studentID := claims.UserID

	state, err := h.attemptService.GetState(c.Request.Context(), studentID, attemptID)
	if err != nil {
		if errors.Is(err, service.ErrAlreadySubmitted) {
			c.JSON(http.StatusConflict, gin.H{"error": "attempt already graded"})
			return
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "no active attempt"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("attempt_id", attemptID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	writer := &wsWriter{conn: conn}
	writer.write(ws.StateResponse{
		Event:      ws.EventState,
		Remaining:  int(state.RemainingSeconds),
		Answers:    state.BufferedAnswers,
		Violations: state.ViolationCount,
	})

	initialAnswers, dropped := parseBuffer(state.BufferedAnswers)
	if dropped > 0 {
		wsLog.Warn().Int("dropped", dropped).Msg("Discarded malformed buffered answer keys")
	}

	// Minimal attempt handle for the violation pipeline.
	attemptRef := &model.Attempt{
		ID:           state.AttemptID,
		StudentID:    state.StudentID,
		AssessmentID: state.AssessmentID,
	}
	var violations atomic.Int64
	violations.Store(int64(state.ViolationCount))

	ctrl := session.NewController(session.Config{
		AttemptID:         attemptID,
		Duration:          time.Duration(state.RemainingSeconds * float64(time.Second)),
		InitialAnswers:    initialAnswers,
		InitialViolations: state.ViolationCount,
		Submitter: &attemptSubmitter{
			scoring:   h.scoringService,
			studentID: studentID,
			attemptID: attemptID,
		},
		Sink: &wsSink{writer: writer},
		PersistViolation: func(v session.Violation) error {
			count := int(violations.Add(1))
			return h.attemptService.RecordViolation(context.Background(), attemptRef, v.Reason, count)
		},
		Logger: h.log,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(runCtx)

	h.readLoop(conn, writer, wsLog, func() *session.Controller { return ctrl })
}

// MockSessionStream godoc
// WS /ws/v1/student/mock-sessions/:session_id/stream
// Runs (or resumes) a multi-subject mock-exam session sequentially.
func (h *WSHandler) MockSessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	studentID := claims.UserID

	run, err := h.mockExamService.PrepareRun(c.Request.Context(), studentID, sessionID)
	if err != nil {
		if errors.Is(err, service.ErrAlreadySubmitted) {
			c.JSON(http.StatusConflict, gin.H{"error": "mock exam session already completed"})
			return
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "mock exam session unavailable"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("session_id", sessionID.String()).
		Logger()
	wsLog.Info().Msg("Student connected to mock exam session")

	writer := &wsWriter{conn: conn}

	plans := make([]session.SubjectPlan, 0, len(run.Plans))
	for _, p := range run.Plans {
		plans = append(plans, session.SubjectPlan{
			SubjectID:    p.SubjectID,
			AssessmentID: p.AssessmentID,
			AttemptID:    p.AttemptID,
		})
	}

	cfg := session.OrchestratorConfig{
		SessionID:          sessionID,
		TimingMode:         string(run.Exam.TimingMode),
		PerSubjectDuration: time.Duration(run.Exam.PerSubjectDuration) * time.Minute,
		Subjects:           plans,
		StartIndex:         run.StartIndex,
		Submitters: func(plan session.SubjectPlan) session.Submitter {
			return &mockSubjectSubmitter{
				scoring:   h.scoringService,
				studentID: studentID,
				sessionID: sessionID,
				attemptID: plan.AttemptID,
			}
		},
		Sink: &orchWSSink{writer: writer},
		PersistViolation: func(attemptID uuid.UUID, v session.Violation) error {
			return h.persistMockViolation(studentID, run, attemptID, v)
		},
		Logger: h.log,
	}

	if run.Exam.TimingMode == model.TimingModeShared {
		// The shared deadline was fixed when the session started; what is
		// left of it becomes this run's total budget.
		remaining := time.Until(*run.SharedDeadline)
		if remaining < time.Millisecond {
			remaining = time.Millisecond
		}
		cfg.TotalDuration = remaining
	}

	orch, err := session.NewOrchestrator(cfg)
	if err != nil {
		wsLog.Error().Err(err).Msg("Orchestrator setup failed")
		writer.writeError("mock exam session cannot be started")
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orch.Run(runCtx)

	h.readLoop(conn, writer, wsLog, orch.Active)
}

// persistMockViolation routes a subject controller's violation into the
// shared attempt pipeline.
func (h *WSHandler) persistMockViolation(studentID int, run *service.SessionRun, attemptID uuid.UUID, v session.Violation) error {
	var assessmentID uuid.UUID
	for _, p := range run.Plans {
		if p.AttemptID == attemptID {
			assessmentID = p.AssessmentID
			break
		}
	}
	attemptRef := &model.Attempt{ID: attemptID, StudentID: studentID, AssessmentID: assessmentID}
	return h.attemptService.RecordViolation(context.Background(), attemptRef, v.Reason, 1)
}

// readLoop dispatches client actions to whichever controller is active.
// It returns when the client disconnects or the read deadline passes.
func (h *WSHandler) readLoop(conn *websocket.Conn, writer *wsWriter, wsLog zerolog.Logger, active func() *session.Controller) {
	for {
		conn.SetReadDeadline(time.Now().Add(ws.ReadWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			writer.writeError("malformed message")
			continue
		}

		ctrl := active()

		switch envelope.Action {
		case ws.ActionAnswer:
			var req ws.AnswerRequest
			if err := json.Unmarshal(data, &req); err != nil || req.QID == "" {
				writer.writeError("q_id and ans are required")
				continue
			}
			questionID, err := uuid.Parse(req.QID)
			if err != nil {
				writer.writeError("invalid q_id format")
				continue
			}
			if !validLabel(req.Answer) {
				writer.writeError("invalid answer label")
				continue
			}
			if ctrl == nil {
				writer.writeError("no active subject")
				continue
			}
			ctrl.SetAnswer(questionID, req.Answer)
			// Autosave path: Redis hash now, durable UPSERT via worker.
			if err := h.attemptService.BufferAnswer(context.Background(), attemptOf(ctrl), questionID, req.Answer); err != nil {
				wsLog.Warn().Err(err).Msg("Answer autosave failed")
			}

		case ws.ActionViolation:
			var req ws.ViolationRequest
			if err := json.Unmarshal(data, &req); err != nil || req.Reason == "" {
				writer.writeError("reason is required")
				continue
			}
			if ctrl == nil {
				continue
			}
			ctrl.ReportViolation(req.Reason)

		case ws.ActionSubmit:
			if ctrl == nil {
				writer.writeError("no active subject")
				continue
			}
			ctrl.Submit()

		case ws.ActionRetry:
			if ctrl == nil {
				writer.writeError("no active subject")
				continue
			}
			ctrl.RetrySubmit()

		case ws.ActionPing:
			writer.write(ws.PongResponse{Event: ws.EventPong})

		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			writer.writeError("unknown action: " + string(envelope.Action))
		}
	}
}

func validLabel(label string) bool {
	for _, l := range model.OptionLabels {
		if l == label {
			return true
		}
	}
	return false
}

// attemptOf exposes the attempt driven by a controller for autosave.
func attemptOf(ctrl *session.Controller) uuid.UUID {
	return ctrl.AttemptID()
}

// parseBuffer converts the Redis answer hash into the controller buffer,
// dropping keys that are not question UUIDs.
func parseBuffer(raw map[string]string) (map[uuid.UUID]string, int) {
	out := make(map[uuid.UUID]string, len(raw))
	dropped := 0
	for k, v := range raw {
		id, err := uuid.Parse(k)
		if err != nil {
			dropped++
			continue
		}
		out[id] = v
	}
	return out, dropped
}

// ─── Controller adapters ────────────────────────────────────────────

// wsSink forwards controller events for a standalone attempt.
type wsSink struct {
	writer *wsWriter
}

func (s *wsSink) Tick(remaining int) {
	s.writer.write(ws.TickResponse{Event: ws.EventTick, Remaining: remaining})
}

func (s *wsSink) Breach(reason string, count int) {
	s.writer.write(ws.BreachResponse{Event: ws.EventBreach, Reason: reason, Count: count})
}

func (s *wsSink) Graded(res session.Result, autoSubmitted bool) {
	s.writer.write(gradedResponse(res, autoSubmitted))
}

func (s *wsSink) SubmitFailed(err error) {
	s.writer.write(ws.SubmitFailedResponse{Event: ws.EventSubmitFailed, Error: err.Error()})
}

// orchWSSink forwards orchestrator events for a mock-exam session.
type orchWSSink struct {
	writer *wsWriter
}

func (s *orchWSSink) SubjectStarted(index int, plan session.SubjectPlan) {
	s.writer.write(ws.SubjectStartedResponse{
		Event:        ws.EventSubjectStarted,
		Index:        index,
		SubjectID:    plan.SubjectID,
		AssessmentID: plan.AssessmentID.String(),
		AttemptID:    plan.AttemptID.String(),
		Remaining:    int(plan.Duration.Seconds()),
	})
}

func (s *orchWSSink) Tick(index int, remaining int) {
	s.writer.write(ws.TickResponse{Event: ws.EventTick, Remaining: remaining})
}

func (s *orchWSSink) Breach(index int, reason string, count int) {
	s.writer.write(ws.BreachResponse{Event: ws.EventBreach, Reason: reason, Count: count})
}

func (s *orchWSSink) SubjectGraded(index int, res session.Result, autoSubmitted bool) {
	s.writer.write(gradedResponse(res, autoSubmitted))
}

func (s *orchWSSink) SubmitFailed(index int, err error) {
	s.writer.write(ws.SubmitFailedResponse{Event: ws.EventSubmitFailed, Error: err.Error()})
}

func (s *orchWSSink) ExamCompleted(res session.Result) {
	s.writer.write(ws.ExamCompletedResponse{
		Event:         ws.EventExamCompleted,
		Score:         res.ExamScore,
		TotalPossible: res.ExamTotalPossible,
	})
}

func gradedResponse(res session.Result, autoSubmitted bool) ws.GradedResponse {
	return ws.GradedResponse{
		Event:             ws.EventGraded,
		AutoSubmitted:     autoSubmitted,
		Score:             res.Score,
		TotalPossible:     res.TotalPossible,
		CorrectCount:      res.CorrectCount,
		TotalQuestions:    res.TotalQuestions,
		Percentage:        res.Percentage,
		Passed:            res.Passed,
		ExamCompleted:     res.ExamCompleted,
		ExamScore:         res.ExamScore,
		ExamTotalPossible: res.ExamTotalPossible,
	}
}

// attemptSubmitter adapts the scoring engine to the controller's
// Submitter contract for standalone attempts.
type attemptSubmitter struct {
	scoring   *service.ScoringService
	studentID int
	attemptID uuid.UUID
}

func (s *attemptSubmitter) Submit(ctx context.Context, answers map[uuid.UUID]string, autoSubmitted bool) (*session.Result, error) {
	summary, err := s.scoring.SubmitAssessment(ctx, s.studentID, s.attemptID, toSubmissions(answers), autoSubmitted)
	return translateSubmitOutcome(summary, err)
}

// mockSubjectSubmitter adapts the scoring engine for one subject of a
// mock-exam session.
type mockSubjectSubmitter struct {
	scoring   *service.ScoringService
	studentID int
	sessionID uuid.UUID
	attemptID uuid.UUID
}

func (s *mockSubjectSubmitter) Submit(ctx context.Context, answers map[uuid.UUID]string, autoSubmitted bool) (*session.Result, error) {
	summary, err := s.scoring.SubmitMockExamSubject(ctx, s.studentID, s.sessionID, s.attemptID, toSubmissions(answers), autoSubmitted)
	return translateSubmitOutcome(summary, err)
}

func toSubmissions(answers map[uuid.UUID]string) []model.AnswerSubmission {
	out := make([]model.AnswerSubmission, 0, len(answers))
	for qid, label := range answers {
		out = append(out, model.AnswerSubmission{QuestionID: qid, SelectedLabel: label})
	}
	return out
}

// translateSubmitOutcome maps the scoring engine's conflict sentinel to
// the controller's, carrying the stored result through.
func translateSubmitOutcome(summary *service.ScoreSummary, err error) (*session.Result, error) {
	res := resultFromSummary(summary)
	if err != nil {
		if errors.Is(err, service.ErrAlreadySubmitted) {
			return res, session.ErrAlreadyGraded
		}
		return nil, err
	}
	return res, nil
}

func resultFromSummary(summary *service.ScoreSummary) *session.Result {
	if summary == nil {
		return nil
	}
	return &session.Result{
		Score:             summary.Score,
		TotalPossible:     summary.TotalPossible,
		CorrectCount:      summary.CorrectCount,
		TotalQuestions:    summary.TotalQuestions,
		Percentage:        summary.Percentage,
		Passed:            summary.Passed,
		ExamCompleted:     summary.ExamCompleted,
		ExamScore:         summary.ExamScore,
		ExamTotalPossible: summary.ExamTotalPossible,
	}
}
