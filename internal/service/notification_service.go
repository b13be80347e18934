package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ResultNotification is the payload queued for the notify worker after a
// grading lands.
type ResultNotification struct {
	StudentID     int       `json:"student_id"`
	AttemptID     uuid.UUID `json:"attempt_id"`
	Title         string    `json:"title"`
	Score         int       `json:"score"`
	TotalPossible int       `json:"total_possible"`
	Percentage    float64   `json:"percentage"`
	Passed        bool      `json:"passed"`
}

// NotificationService queues result notifications for asynchronous
// delivery. The queue decouples grading latency from the mail provider.
type NotificationService struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(rdb *redis.Client, log zerolog.Logger) *NotificationService {
	return &NotificationService{
		rdb: rdb,
		log: log.With().Str("component", "notification_service").Logger(),
	}
}

// EnqueueResult pushes a result notification onto the delivery queue.
func (s *NotificationService) EnqueueResult(ctx context.Context, n ResultNotification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.NotifyResultsQueue, data).Err(); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}
