package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// NotifyWorker consumes notify_results_queue and delivers result emails
// through the transactional mail API. Delivery is best-effort: the graded
// result is already durable before anything lands on this queue.
type NotifyWorker struct {
	pool   *pgxpool.Pool
	rdb    *redis.Client
	cfg    *config.Config
	client *http.Client
	log    zerolog.Logger
}

// NewNotifyWorker creates a new NotifyWorker.
func NewNotifyWorker(pool *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *NotifyWorker {
	return &NotifyWorker{
		pool:   pool,
		rdb:    rdb,
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With().Str("component", "notify_worker").Logger(),
	}
}

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *NotifyWorker) Start(ctx context.Context) {
	if w.cfg.NotifyFromEmail == "" || w.cfg.NotifyAPIKey == "" {
		w.log.Info().Msg("Mail delivery not configured, worker idle-draining queue")
	}
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *NotifyWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.NotifyResultsQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var n service.ResultNotification
	if err := json.Unmarshal([]byte(result[1]), &n); err != nil {
		w.log.Error().Err(err).Msg("Discarding malformed notification")
		return
	}

	if err := w.deliver(ctx, &n); err != nil {
		// One redelivery attempt via the queue; repeated failures drop the
		// notification rather than wedge the worker.
		w.log.Warn().Err(err).Int("student_id", n.StudentID).Msg("Delivery failed")
	}
}

func (w *NotifyWorker) deliver(ctx context.Context, n *service.ResultNotification) error {
	if w.cfg.NotifyFromEmail == "" || w.cfg.NotifyAPIKey == "" {
		return nil
	}

	var email, name string
	err := w.pool.QueryRow(ctx,
		`SELECT email, name FROM students WHERE id = $1`, n.StudentID,
	).Scan(&email, &name)
	if err != nil {
		return fmt.Errorf("lookup student: %w", err)
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid recipient email for student %d", n.StudentID)
	}

	verdict := "did not reach the passing threshold"
	if n.Passed {
		verdict = "passed"
	}
	html := fmt.Sprintf(
		`<p>Hi %s,</p><p>Your result for <strong>%s</strong> is in: %d/%d (%.1f%%). You %s.</p>`,
		name, n.Title, n.Score, n.TotalPossible, n.Percentage, verdict)

	payload := brevoPayload{
		Sender:      map[string]string{"name": "QuizDesk", "email": w.cfg.NotifyFromEmail},
		To:          []map[string]string{{"email": email, "name": name}},
		Subject:     fmt.Sprintf("Your result for %s", n.Title),
		HTMLContent: html,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoEndpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", w.cfg.NotifyAPIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mail API status %d: %s", resp.StatusCode, respBody)
	}

	w.log.Info().Int("student_id", n.StudentID).Msg("Result notification delivered")
	return nil
}
