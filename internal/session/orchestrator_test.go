package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type orchGraded struct {
	index int
	res   Result
	auto  bool
}

type orchSink struct {
	started   chan int
	graded    chan orchGraded
	completed chan Result
	failures  chan error
}

func newOrchSink() *orchSink {
	return &orchSink{
		started:   make(chan int, 8),
		graded:    make(chan orchGraded, 8),
		completed: make(chan Result, 1),
		failures:  make(chan error, 4),
	}
}

func (s *orchSink) SubjectStarted(index int, _ SubjectPlan) { s.started <- index }
func (s *orchSink) Tick(int, int)                           {}
func (s *orchSink) Breach(int, string, int)                 {}
func (s *orchSink) SubjectGraded(index int, res Result, auto bool) {
	s.graded <- orchGraded{index: index, res: res, auto: auto}
}
func (s *orchSink) SubmitFailed(_ int, err error) { s.failures <- err }
func (s *orchSink) ExamCompleted(res Result)      { s.completed <- res }

func twoSubjectPlans() []SubjectPlan {
	return []SubjectPlan{
		{SubjectID: 1, AssessmentID: uuid.New(), AttemptID: uuid.New()},
		{SubjectID: 2, AssessmentID: uuid.New(), AttemptID: uuid.New()},
	}
}

// planSubmitter grades each subject with a fixed score and marks the
// exam completed on the final plan.
func planSubmitter(plans []SubjectPlan) SubmitterFactory {
	final := plans[len(plans)-1].AttemptID
	return func(plan SubjectPlan) Submitter {
		return submitterFunc(func(_ context.Context, answers map[uuid.UUID]string, _ bool) (*Result, error) {
			res := &Result{
				Score:          3,
				TotalPossible:  5,
				CorrectCount:   3,
				TotalQuestions: 5,
				Percentage:     60,
				Passed:         true,
			}
			if plan.AttemptID == final {
				res.ExamCompleted = true
				res.ExamScore = 6
				res.ExamTotalPossible = 10
			}
			return res, nil
		})
	}
}

type submitterFunc func(ctx context.Context, answers map[uuid.UUID]string, auto bool) (*Result, error)

func (f submitterFunc) Submit(ctx context.Context, answers map[uuid.UUID]string, auto bool) (*Result, error) {
	return f(ctx, answers, auto)
}

func TestOrchestratorValidation(t *testing.T) {
	plans := twoSubjectPlans()

	cases := []struct {
		name string
		cfg  OrchestratorConfig
	}{
		{"no subjects", OrchestratorConfig{TimingMode: timingPerSubject, PerSubjectDuration: time.Minute}},
		{"bad timing mode", OrchestratorConfig{TimingMode: "FREEFORM", Subjects: plans}},
		{"shared without total", OrchestratorConfig{TimingMode: timingShared, Subjects: plans}},
		{"per-subject without duration", OrchestratorConfig{TimingMode: timingPerSubject, Subjects: plans}},
		{"start index out of range", OrchestratorConfig{
			TimingMode: timingPerSubject, PerSubjectDuration: time.Minute,
			Subjects: plans, StartIndex: 2,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.SessionID = uuid.New()
			tc.cfg.Sink = newOrchSink()
			tc.cfg.Submitters = planSubmitter(plans)
			tc.cfg.Logger = zerolog.Nop()
			if _, err := NewOrchestrator(tc.cfg); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestOrchestratorRunsSubjectsInOrder(t *testing.T) {
	plans := twoSubjectPlans()
	sink := newOrchSink()

	orch, err := NewOrchestrator(OrchestratorConfig{
		SessionID:          uuid.New(),
		TimingMode:         timingPerSubject,
		PerSubjectDuration: time.Hour,
		Subjects:           plans,
		Submitters:         planSubmitter(plans),
		Sink:               sink,
		Logger:             zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orch.Run(ctx)

	for want := 0; want < len(plans); want++ {
		select {
		case idx := <-sink.started:
			if idx != want {
				t.Fatalf("expected subject %d to start, got %d", want, idx)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for subject %d to start", want)
		}

		orch.Active().Submit()

		select {
		case ev := <-sink.graded:
			if ev.index != want {
				t.Fatalf("expected subject %d graded, got %d", want, ev.index)
			}
			if ev.auto {
				t.Fatal("explicit submit must not be auto-flagged")
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for subject %d to grade", want)
		}
	}

	select {
	case res := <-sink.completed:
		if !res.ExamCompleted || res.ExamScore != 6 || res.ExamTotalPossible != 10 {
			t.Fatalf("unexpected exam completion %+v", res)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for exam completion")
	}

	<-orch.Done()
	results := orch.Results()
	for i, r := range results {
		if r == nil {
			t.Fatalf("missing result for subject %d", i)
		}
	}
}

func TestOrchestratorSharedBudgetExpiryFlushesRemainingSubjects(t *testing.T) {
	plans := twoSubjectPlans()
	sink := newOrchSink()

	orch, err := NewOrchestrator(OrchestratorConfig{
		SessionID:     uuid.New(),
		TimingMode:    timingShared,
		TotalDuration: 10 * time.Millisecond,
		Subjects:      plans,
		Submitters:    planSubmitter(plans),
		Sink:          sink,
		Logger:        zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orch.Run(ctx)

	for want := 0; want < len(plans); want++ {
		select {
		case ev := <-sink.graded:
			if ev.index != want {
				t.Fatalf("expected subject %d graded, got %d", want, ev.index)
			}
			if !ev.auto {
				t.Fatalf("subject %d must be auto-submitted on shared expiry", want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for subject %d to auto-submit", want)
		}
	}

	select {
	case <-sink.completed:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for exam completion")
	}
}

func TestOrchestratorResumesFromStartIndex(t *testing.T) {
	plans := twoSubjectPlans()
	sink := newOrchSink()

	orch, err := NewOrchestrator(OrchestratorConfig{
		SessionID:          uuid.New(),
		TimingMode:         timingPerSubject,
		PerSubjectDuration: time.Hour,
		Subjects:           plans,
		StartIndex:         1,
		Submitters:         planSubmitter(plans),
		Sink:               sink,
		Logger:             zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orch.Run(ctx)

	select {
	case idx := <-sink.started:
		if idx != 1 {
			t.Fatalf("expected resume at subject 1, got %d", idx)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the resumed subject")
	}

	orch.Active().Submit()

	select {
	case <-sink.completed:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for exam completion")
	}
}
