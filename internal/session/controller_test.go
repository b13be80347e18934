package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type stubSubmitter struct {
	mu    sync.Mutex
	calls []submitCall
	fn    func(call int, answers map[uuid.UUID]string, auto bool) (*Result, error)
}

type submitCall struct {
	answers map[uuid.UUID]string
	auto    bool
}

func (s *stubSubmitter) Submit(_ context.Context, answers map[uuid.UUID]string, auto bool) (*Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, submitCall{answers: answers, auto: auto})
	n := len(s.calls)
	s.mu.Unlock()
	return s.fn(n, answers, auto)
}

func (s *stubSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type recordingSink struct {
	ticks    chan int
	breaches chan string
	graded   chan gradedEvent
	failures chan error
}

type gradedEvent struct {
	res  Result
	auto bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		ticks:    make(chan int, 64),
		breaches: make(chan string, 8),
		graded:   make(chan gradedEvent, 2),
		failures: make(chan error, 2),
	}
}

func (s *recordingSink) Tick(remaining int)          { s.ticks <- remaining }
func (s *recordingSink) Breach(reason string, _ int) { s.breaches <- reason }
func (s *recordingSink) Graded(res Result, auto bool) {
	s.graded <- gradedEvent{res: res, auto: auto}
}
func (s *recordingSink) SubmitFailed(err error) { s.failures <- err }

func waitGraded(t *testing.T, sink *recordingSink) gradedEvent {
	t.Helper()
	select {
	case ev := <-sink.graded:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for graded event")
		return gradedEvent{}
	}
}

func startController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	ctrl := NewController(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go ctrl.Run(ctx)
	return ctrl
}

func TestControllerUserSubmitGradesBufferedAnswers(t *testing.T) {
	q1, q2 := uuid.New(), uuid.New()
	want := Result{Score: 4, TotalPossible: 10, CorrectCount: 2, TotalQuestions: 5, Percentage: 40, Passed: false}

	sub := &stubSubmitter{fn: func(_ int, _ map[uuid.UUID]string, _ bool) (*Result, error) {
		r := want
		return &r, nil
	}}
	sink := newRecordingSink()

	ctrl := startController(t, Config{
		AttemptID: uuid.New(),
		Duration:  time.Hour,
		Submitter: sub,
		Sink:      sink,
		Logger:    zerolog.Nop(),
	})

	ctrl.SetAnswer(q1, "A")
	ctrl.SetAnswer(q2, "C")
	ctrl.SetAnswer(q1, "B") // last write wins
	ctrl.Submit()

	ev := waitGraded(t, sink)
	if ev.auto {
		t.Fatal("explicit submit must not be flagged auto-submitted")
	}
	if ev.res != want {
		t.Fatalf("unexpected result %+v", ev.res)
	}

	sub.mu.Lock()
	got := sub.calls[0]
	sub.mu.Unlock()
	if got.answers[q1] != "B" || got.answers[q2] != "C" {
		t.Fatalf("unexpected submitted answers %v", got.answers)
	}
	if got.auto {
		t.Fatal("submitter must receive auto=false for explicit submit")
	}

	<-ctrl.Done()
	if ctrl.State() != StateCompleted {
		t.Fatalf("expected Completed, got %s", ctrl.State())
	}
	if ctrl.Result() == nil || *ctrl.Result() != want {
		t.Fatalf("stored result mismatch: %+v", ctrl.Result())
	}
}

func TestControllerExpiryAutoSubmits(t *testing.T) {
	sub := &stubSubmitter{fn: func(_ int, _ map[uuid.UUID]string, _ bool) (*Result, error) {
		return &Result{TotalQuestions: 5}, nil
	}}
	sink := newRecordingSink()

	startController(t, Config{
		AttemptID: uuid.New(),
		Duration:  0,
		Submitter: sub,
		Sink:      sink,
		Logger:    zerolog.Nop(),
	})

	ev := waitGraded(t, sink)
	if !ev.auto {
		t.Fatal("timer expiry must be flagged auto-submitted")
	}
}

func TestControllerViolationTriggersAutoSubmitOnce(t *testing.T) {
	sub := &stubSubmitter{fn: func(_ int, _ map[uuid.UUID]string, _ bool) (*Result, error) {
		return &Result{}, nil
	}}
	sink := newRecordingSink()

	ctrl := startController(t, Config{
		AttemptID: uuid.New(),
		Duration:  time.Hour,
		Submitter: sub,
		Sink:      sink,
		Logger:    zerolog.Nop(),
	})

	ctrl.ReportViolation(ReasonTabHidden)
	ctrl.ReportViolation(ReasonWindowBlur)

	select {
	case reason := <-sink.breaches:
		if reason != ReasonTabHidden {
			t.Fatalf("expected breach reason %q, got %q", ReasonTabHidden, reason)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for breach event")
	}

	ev := waitGraded(t, sink)
	if !ev.auto {
		t.Fatal("violation breach must be flagged auto-submitted")
	}

	<-ctrl.Done()
	if n := sub.callCount(); n != 1 {
		t.Fatalf("expected exactly one submission, got %d", n)
	}
}

func TestControllerDuplicateTriggersCollapse(t *testing.T) {
	sub := &stubSubmitter{fn: func(_ int, _ map[uuid.UUID]string, _ bool) (*Result, error) {
		return &Result{}, nil
	}}
	sink := newRecordingSink()

	ctrl := startController(t, Config{
		AttemptID: uuid.New(),
		Duration:  time.Hour,
		Submitter: sub,
		Sink:      sink,
		Logger:    zerolog.Nop(),
	})

	ctrl.Submit()
	ctrl.Submit()
	ctrl.ReportViolation(ReasonPageHide)

	waitGraded(t, sink)
	<-ctrl.Done()

	if n := sub.callCount(); n != 1 {
		t.Fatalf("expected exactly one submission, got %d", n)
	}
}

func TestControllerTransientFailureAllowsRetry(t *testing.T) {
	transient := errors.New("scoring temporarily unavailable")
	sub := &stubSubmitter{fn: func(call int, _ map[uuid.UUID]string, _ bool) (*Result, error) {
		if call == 1 {
			return nil, transient
		}
		return &Result{Score: 6, TotalPossible: 10}, nil
	}}
	sink := newRecordingSink()

	ctrl := startController(t, Config{
		AttemptID: uuid.New(),
		Duration:  time.Hour,
		Submitter: sub,
		Sink:      sink,
		Logger:    zerolog.Nop(),
	})

	ctrl.Submit()

	select {
	case err := <-sink.failures:
		if !errors.Is(err, transient) {
			t.Fatalf("unexpected failure %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for failure event")
	}

	if ctrl.State() != StateSubmitting {
		t.Fatalf("transient failure must keep the session in Submitting, got %s", ctrl.State())
	}

	ctrl.RetrySubmit()
	ev := waitGraded(t, sink)
	if ev.res.Score != 6 {
		t.Fatalf("unexpected retried result %+v", ev.res)
	}
	if n := sub.callCount(); n != 2 {
		t.Fatalf("expected 2 submission calls, got %d", n)
	}
}

func TestControllerConflictCompletesWithStoredResult(t *testing.T) {
	stored := Result{Score: 8, TotalPossible: 10, Passed: true}
	sub := &stubSubmitter{fn: func(_ int, _ map[uuid.UUID]string, _ bool) (*Result, error) {
		r := stored
		return &r, ErrAlreadyGraded
	}}
	sink := newRecordingSink()

	ctrl := startController(t, Config{
		AttemptID: uuid.New(),
		Duration:  time.Hour,
		Submitter: sub,
		Sink:      sink,
		Logger:    zerolog.Nop(),
	})

	ctrl.Submit()

	ev := waitGraded(t, sink)
	if ev.res != stored {
		t.Fatalf("conflict must surface the stored result, got %+v", ev.res)
	}

	<-ctrl.Done()
	if ctrl.State() != StateCompleted {
		t.Fatalf("expected Completed, got %s", ctrl.State())
	}
}

func TestControllerReconnectSeedsBufferAndViolations(t *testing.T) {
	q := uuid.New()
	sub := &stubSubmitter{fn: func(_ int, _ map[uuid.UUID]string, _ bool) (*Result, error) {
		return &Result{}, nil
	}}
	sink := newRecordingSink()

	ctrl := startController(t, Config{
		AttemptID:         uuid.New(),
		Duration:          time.Hour,
		InitialAnswers:    map[uuid.UUID]string{q: "D"},
		InitialViolations: 2,
		Submitter:         sub,
		Sink:              sink,
		Logger:            zerolog.Nop(),
	})

	if got := ctrl.Answers(); got[q] != "D" {
		t.Fatalf("expected restored buffer, got %v", got)
	}
	if ctrl.Violations() != 2 {
		t.Fatalf("expected seeded violation count 2, got %d", ctrl.Violations())
	}

	ctrl.Submit()
	waitGraded(t, sink)

	sub.mu.Lock()
	got := sub.calls[0]
	sub.mu.Unlock()
	if got.answers[q] != "D" {
		t.Fatalf("restored answer must reach the submitter, got %v", got.answers)
	}
}
