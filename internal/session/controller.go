package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State enumerates the session controller's states.
type State string

const (
	StateLoading    State = "LOADING"
	StateInProgress State = "IN_PROGRESS"
	StateSubmitting State = "SUBMITTING"
	StateCompleted  State = "COMPLETED"
	StateBlocked    State = "BLOCKED"
)

// ErrAlreadyGraded marks a submission conflict: the attempt was graded
// before this call. Submitter adapters translate their storage-layer
// conflict into this sentinel, attaching the stored result so the
// controller can complete with it.
var ErrAlreadyGraded = errors.New("attempt already graded")

// Result is the grading outcome returned by the scoring authority. The
// Exam* fields are only set on the final subject of a mock exam.
type Result struct {
	Score          int     `json:"score"`
	TotalPossible  int     `json:"total_possible"`
	CorrectCount   int     `json:"correct_count"`
	TotalQuestions int     `json:"total_questions"`
	Percentage     float64 `json:"percentage"`
	Passed         bool    `json:"passed"`

	ExamCompleted     bool `json:"exam_completed,omitempty"`
	ExamScore         int  `json:"exam_score,omitempty"`
	ExamTotalPossible int  `json:"exam_total_possible,omitempty"`
}

// Submitter is the controller's handle on the server-side scoring
// authority. On conflict it must return (stored result, ErrAlreadyGraded).
// Any other error is treated as transient and retryable.
type Submitter interface {
	Submit(ctx context.Context, answers map[uuid.UUID]string, autoSubmitted bool) (*Result, error)
}

// Sink receives the controller's outbound events (transport-agnostic;
// the WebSocket handler is the usual implementation).
type Sink interface {
	Tick(remaining int)
	Breach(reason string, count int)
	Graded(res Result, autoSubmitted bool)
	SubmitFailed(err error)
}

type trigger int

const (
	triggerUser trigger = iota
	triggerExpiry
	triggerViolation
)

type event interface{}

type answerEvent struct {
	qid   uuid.UUID
	label string
}

type violationEvent struct{ reason string }

type submitEvent struct{}

type retryEvent struct{}

// Config assembles one session controller.
type Config struct {
	AttemptID uuid.UUID
	Duration  time.Duration
	// InitialAnswers restores the answer buffer after a reconnect.
	InitialAnswers map[uuid.UUID]string
	// InitialViolations seeds the violation counter after a reconnect.
	InitialViolations int
	Submitter         Submitter
	Sink              Sink
	// PersistViolation is the advisory persistence sink (may be nil).
	PersistViolation func(Violation) error
	Logger           zerolog.Logger
}

// Controller is the per-subject state machine governing one live attempt.
// The submission guard collapses timer expiry, violation breach and
// explicit submit into exactly one terminal submission. All transitions
// run on the single Run goroutine; external calls only enqueue events.
type Controller struct {
	attemptID uuid.UUID
	submitter Submitter
	sink      Sink
	log       zerolog.Logger

	guard     *SubmissionGuard
	monitor   *ViolationMonitor
	countdown *Countdown

	events chan event
	done   chan struct{}
	stop   sync.Once

	mu     sync.RWMutex
	state  State
	auto   bool
	buffer map[uuid.UUID]string
	result *Result
}

// NewController builds a controller in the Loading state. Run starts it.
func NewController(cfg Config) *Controller {
	buffer := make(map[uuid.UUID]string, len(cfg.InitialAnswers))
	for k, v := range cfg.InitialAnswers {
		buffer[k] = v
	}

	return &Controller{
		attemptID: cfg.AttemptID,
		submitter: cfg.Submitter,
		sink:      cfg.Sink,
		log: cfg.Logger.With().
			Str("component", "session_controller").
			Str("attempt_id", cfg.AttemptID.String()).
			Logger(),
		guard:     NewSubmissionGuard(),
		monitor:   NewViolationMonitor(cfg.InitialViolations, cfg.PersistViolation, cfg.Logger),
		countdown: NewCountdown(cfg.Duration),
		events:    make(chan event, 16),
		done:      make(chan struct{}),
		state:     StateLoading,
		buffer:    buffer,
	}
}

// Run drives the state machine until the session completes or ctx is
// done. It is the only goroutine that mutates controller state.
func (c *Controller) Run(ctx context.Context) {
	c.setState(StateInProgress)
	ticks := c.countdown.Start(ctx)

	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			c.countdown.Cancel()
			return

		case <-c.done:
			return

		case t, ok := <-ticks:
			if !ok {
				ticks = nil
				continue
			}
			if t.Expired {
				c.tryFinish(ctx, triggerExpiry)
				continue
			}
			c.sink.Tick(t.Remaining)

		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev event) {
	switch e := ev.(type) {
	case answerEvent:
		// Buffer mutations are pure local state, last-write-wins per
		// question; they never change the controller state.
		if c.State() == StateInProgress {
			c.mu.Lock()
			c.buffer[e.qid] = e.label
			c.mu.Unlock()
		}

	case violationEvent:
		if c.State() != StateInProgress {
			return
		}
		v, total := c.monitor.Report(e.reason)
		c.sink.Breach(v.Reason, total)
		c.tryFinish(ctx, triggerViolation)

	case submitEvent:
		c.tryFinish(ctx, triggerUser)

	case retryEvent:
		// One operator-visible retry path: the guard stays acquired, the
		// state stays Submitting until the scoring engine answers.
		if c.State() == StateSubmitting {
			c.submit(ctx)
		}
	}
}

// tryFinish is the single terminal transition. Of all racing triggers,
// only the first to take the guard moves the session to Submitting.
func (c *Controller) tryFinish(ctx context.Context, trig trigger) {
	if c.State() != StateInProgress {
		return
	}
	if !c.guard.TryAcquire() {
		return
	}

	c.countdown.Cancel()
	c.mu.Lock()
	c.auto = trig != triggerUser
	c.state = StateSubmitting
	c.mu.Unlock()

	c.submit(ctx)
}

func (c *Controller) submit(ctx context.Context) {
	res, err := c.submitter.Submit(ctx, c.Answers(), c.autoSubmitted())
	if err != nil {
		if errors.Is(err, ErrAlreadyGraded) {
			// Already graded elsewhere: not a failure, show the stored result.
			if res != nil {
				c.complete(*res)
			} else {
				c.setState(StateCompleted)
				c.stop.Do(func() { close(c.done) })
			}
			return
		}

		c.log.Warn().Err(err).Msg("Submission failed, awaiting retry")
		c.sink.SubmitFailed(err)
		return
	}

	c.complete(*res)
}

func (c *Controller) complete(res Result) {
	c.mu.Lock()
	c.result = &res
	c.state = StateCompleted
	auto := c.auto
	c.mu.Unlock()

	c.sink.Graded(res, auto)
	c.stop.Do(func() { close(c.done) })
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) shutdown() {
	c.countdown.Cancel()
	c.stop.Do(func() { close(c.done) })
}

// SetAnswer buffers one answer selection.
func (c *Controller) SetAnswer(questionID uuid.UUID, label string) {
	c.send(answerEvent{qid: questionID, label: label})
}

// ReportViolation feeds one anti-cheat signal into the monitor.
func (c *Controller) ReportViolation(reason string) {
	c.send(violationEvent{reason: reason})
}

// Submit requests the explicit user-initiated terminal submission.
func (c *Controller) Submit() {
	c.send(submitEvent{})
}

// RetrySubmit re-issues the submission after a transient failure.
func (c *Controller) RetrySubmit() {
	c.send(retryEvent{})
}

func (c *Controller) send(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// AttemptID returns the attempt this controller drives.
func (c *Controller) AttemptID() uuid.UUID {
	return c.attemptID
}

// Done is closed once the session reaches a terminal state.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Result returns the grading outcome, or nil before completion.
func (c *Controller) Result() *Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result
}

// Answers returns a snapshot of the buffered answers.
func (c *Controller) Answers() map[uuid.UUID]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[uuid.UUID]string, len(c.buffer))
	for k, v := range c.buffer {
		out[k] = v
	}
	return out
}

// Violations returns the running violation count.
func (c *Controller) Violations() int {
	return c.monitor.Count()
}

// Remaining returns the countdown's remaining budget.
func (c *Controller) Remaining() time.Duration {
	return c.countdown.Remaining()
}

func (c *Controller) autoSubmitted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auto
}
