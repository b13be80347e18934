package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SubjectPlan is one scheduled subject of a mock-exam run: the attempt
// to drive and the time budget it gets. Duration is resolved by the
// orchestrator from the exam's timing mode.
type SubjectPlan struct {
	SubjectID    int
	AssessmentID uuid.UUID
	AttemptID    uuid.UUID
	Duration     time.Duration
}

// OrchestratorSink receives the orchestrator's outbound events. Index is
// the zero-based position of the subject in the run order.
type OrchestratorSink interface {
	SubjectStarted(index int, plan SubjectPlan)
	Tick(index int, remaining int)
	Breach(index int, reason string, count int)
	SubjectGraded(index int, res Result, autoSubmitted bool)
	SubmitFailed(index int, err error)
	ExamCompleted(res Result)
}

// SubmitterFactory builds the scoring adapter for one subject plan.
type SubmitterFactory func(plan SubjectPlan) Submitter

// OrchestratorConfig assembles a mock-exam run.
type OrchestratorConfig struct {
	SessionID uuid.UUID
	// TimingMode selects the budget strategy.
	TimingMode string
	// TotalDuration is the overall budget for SHARED mode.
	TotalDuration time.Duration
	// PerSubjectDuration is the per-subject budget for PER_SUBJECT mode.
	PerSubjectDuration time.Duration
	// Subjects lists the run order. Duration fields are filled in by the
	// orchestrator and may be left zero.
	Subjects []SubjectPlan
	// StartIndex resumes a partially completed run (reconnect case).
	StartIndex int
	Submitters SubmitterFactory
	Sink       OrchestratorSink
	// PersistViolation is passed through to each subject controller.
	PersistViolation func(attemptID uuid.UUID, v Violation) error
	Logger           zerolog.Logger
}

const (
	timingShared     = "SHARED"
	timingPerSubject = "PER_SUBJECT"
)

// Orchestrator runs the subjects of one mock-exam session in order, each
// as its own Controller, and reports the exam-level completion once the
// final subject is graded. In SHARED mode the overall deadline is fixed
// at Run start; subjects entered after expiry get a non-positive budget
// and are auto-submitted immediately with whatever is buffered (usually
// nothing).
type Orchestrator struct {
	cfg OrchestratorConfig
	log zerolog.Logger

	mu      sync.RWMutex
	index   int
	active  *Controller
	results []*Result

	done chan struct{}
	once sync.Once
}

// NewOrchestrator validates and builds a run over cfg.Subjects.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if len(cfg.Subjects) == 0 {
		return nil, fmt.Errorf("mock exam session %s has no subjects", cfg.SessionID)
	}
	if cfg.StartIndex < 0 || cfg.StartIndex >= len(cfg.Subjects) {
		return nil, fmt.Errorf("start index %d out of range for %d subjects", cfg.StartIndex, len(cfg.Subjects))
	}
	switch cfg.TimingMode {
	case timingShared:
		if cfg.TotalDuration <= 0 {
			return nil, fmt.Errorf("shared timing requires a positive total duration")
		}
	case timingPerSubject:
		if cfg.PerSubjectDuration <= 0 {
			return nil, fmt.Errorf("per-subject timing requires a positive subject duration")
		}
	default:
		return nil, fmt.Errorf("unknown timing mode %q", cfg.TimingMode)
	}

	return &Orchestrator{
		cfg: cfg,
		log: cfg.Logger.With().
			Str("component", "mock_orchestrator").
			Str("session_id", cfg.SessionID.String()).
			Logger(),
		index:   cfg.StartIndex,
		results: make([]*Result, len(cfg.Subjects)),
		done:    make(chan struct{}),
	}, nil
}

// Run executes the remaining subjects sequentially and blocks until the
// exam completes or ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	defer o.once.Do(func() { close(o.done) })

	var sharedDeadline time.Time
	if o.cfg.TimingMode == timingShared {
		sharedDeadline = time.Now().Add(o.cfg.TotalDuration)
	}

	for i := o.cfg.StartIndex; i < len(o.cfg.Subjects); i++ {
		if ctx.Err() != nil {
			return
		}

		plan := o.cfg.Subjects[i]
		plan.Duration = o.budgetFor(i, sharedDeadline)

		ctrl := NewController(Config{
			AttemptID: plan.AttemptID,
			Duration:  plan.Duration,
			Submitter: o.cfg.Submitters(plan),
			Sink:      &subjectSink{o: o, index: i},
			PersistViolation: func(v Violation) error {
				if o.cfg.PersistViolation == nil {
					return nil
				}
				return o.cfg.PersistViolation(plan.AttemptID, v)
			},
			Logger: o.log,
		})

		o.mu.Lock()
		o.index = i
		o.active = ctrl
		o.mu.Unlock()

		o.cfg.Sink.SubjectStarted(i, plan)
		o.log.Info().
			Int("position", i).
			Str("attempt_id", plan.AttemptID.String()).
			Dur("budget", plan.Duration).
			Msg("Mock exam subject started")

		ctrl.Run(ctx)

		res := ctrl.Result()
		if res == nil {
			// Context cancelled mid-subject; the run resumes later from
			// this position.
			return
		}

		o.mu.Lock()
		o.results[i] = res
		o.mu.Unlock()

		if res.ExamCompleted {
			o.cfg.Sink.ExamCompleted(*res)
			o.log.Info().
				Int("exam_score", res.ExamScore).
				Int("exam_total", res.ExamTotalPossible).
				Msg("Mock exam completed")
			return
		}
	}
}

// budgetFor resolves the countdown budget of the subject at index i. In
// SHARED mode an exhausted overall budget yields zero, which expires the
// subject's countdown on its first tick.
func (o *Orchestrator) budgetFor(i int, sharedDeadline time.Time) time.Duration {
	if o.cfg.TimingMode == timingPerSubject {
		return o.cfg.PerSubjectDuration
	}
	remaining := time.Until(sharedDeadline)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Active returns the controller currently driving a subject, or nil
// between subjects.
func (o *Orchestrator) Active() *Controller {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active
}

// CurrentIndex returns the position of the subject in progress.
func (o *Orchestrator) CurrentIndex() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.index
}

// Results returns the per-subject grading outcomes recorded so far, in
// run order. Entries for unfinished subjects are nil.
func (o *Orchestrator) Results() []*Result {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*Result, len(o.results))
	copy(out, o.results)
	return out
}

// Done is closed when the run finishes or is cancelled.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// subjectSink forwards one controller's events to the orchestrator sink
// with the subject index attached.
type subjectSink struct {
	o     *Orchestrator
	index int
}

func (s *subjectSink) Tick(remaining int) {
	s.o.cfg.Sink.Tick(s.index, remaining)
}

func (s *subjectSink) Breach(reason string, count int) {
	s.o.cfg.Sink.Breach(s.index, reason, count)
}

func (s *subjectSink) Graded(res Result, autoSubmitted bool) {
	s.o.cfg.Sink.SubjectGraded(s.index, res, autoSubmitted)
}

func (s *subjectSink) SubmitFailed(err error) {
	s.o.cfg.Sink.SubmitFailed(s.index, err)
}
