package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/response"
	"github.com/quizdesk/quizdesk-backend/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
)

// MonitorHandler streams live attempt activity to staff over SSE.
type MonitorHandler struct {
	rdb               *redis.Client
	assessmentService *service.AssessmentService
	attemptService    *service.AttemptService
	log               zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	rdb *redis.Client,
	assessmentService *service.AssessmentService,
	attemptService *service.AttemptService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:               rdb,
		assessmentService: assessmentService,
		attemptService:    attemptService,
		log:               log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorAssessmentSSE godoc
// GET /api/v1/staff/assessments/:id/monitor
// Sends a snapshot of every attempt, then relays violation and submission
// events published by the exam transport in real time.
func (h *MonitorHandler) MonitorAssessmentSSE(c *gin.Context) {
	assessmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	assessment, err := h.assessmentService.GetByID(c.Request.Context(), assessmentID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, assessmentID, assessment.Title)

	channelName := config.CacheKey.AssessmentMonitorChannel(assessmentID.String())
	pubsub := h.rdb.Subscribe(reqCtx, channelName)
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("assessment_id", assessmentID.String()).Msg("Staff attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("assessment_id", assessmentID.String()).Msg("Staff disconnected from live monitor SSE")
			return

		case msg := <-ch:
			// Relay the published JSON as-is.
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-refreshTicker.C:
			h.sendSnapshot(c, assessmentID, assessment.Title)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendSnapshot writes the full attempt table as one SSE event.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, assessmentID uuid.UUID, title string) {
	entries, err := h.attemptService.ListByAssessment(c.Request.Context(), assessmentID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Monitor snapshot query failed")
		return
	}

	inProgress := 0
	completed := 0
	totalViolations := 0
	for _, e := range entries {
		if e.SubmittedAt != nil {
			completed++
		} else {
			inProgress++
		}
		totalViolations += e.ViolationCount
	}

	c.SSEvent("message", gin.H{
		"type": "snapshot",
		"data": gin.H{
			"assessment": gin.H{
				"id":    assessmentID.String(),
				"title": title,
			},
			"stats": gin.H{
				"total_joined":      len(entries),
				"total_in_progress": inProgress,
				"total_completed":   completed,
				"total_violations":  totalViolations,
			},
			"attempts": entries,
		},
	})
	c.Writer.Flush()
}
