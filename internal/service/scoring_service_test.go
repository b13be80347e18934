package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
	"github.com/rs/zerolog"
)

type fakeAttemptStore struct {
	attempts      map[uuid.UUID]*model.Attempt
	graded        map[uuid.UUID][]model.Answer
	finalizeCalls int
	finalizeDeny  bool
	onDeny        func()
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{
		attempts: make(map[uuid.UUID]*model.Attempt),
		graded:   make(map[uuid.UUID][]model.Answer),
	}
}

func (f *fakeAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, ok := f.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAttemptStore) Finalize(_ context.Context, attemptID uuid.UUID, p repository.FinalizeParams, answers []model.Answer) (bool, error) {
	f.finalizeCalls++
	if f.finalizeDeny {
		if f.onDeny != nil {
			f.onDeny()
		}
		return false, nil
	}
	a, ok := f.attempts[attemptID]
	if !ok || a.SubmittedAt != nil {
		return false, nil
	}
	now := time.Now()
	a.SubmittedAt = &now
	a.Score = &p.Score
	a.TotalPossible = &p.TotalPossible
	a.Passed = &p.Passed
	a.AutoSubmitted = p.AutoSubmitted
	f.graded[attemptID] = answers
	return true, nil
}

func (f *fakeAttemptStore) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	return f.graded[attemptID], nil
}

type fakeAssessmentSource struct {
	assessments map[uuid.UUID]*model.Assessment
	keys        map[uuid.UUID]map[uuid.UUID]string
}

func (f *fakeAssessmentSource) GetByID(_ context.Context, id uuid.UUID) (*model.Assessment, error) {
	a, ok := f.assessments[id]
	if !ok {
		return nil, ErrAssessmentNotFound
	}
	return a, nil
}

func (f *fakeAssessmentSource) AnswerKey(_ context.Context, id uuid.UUID) (map[uuid.UUID]string, int, error) {
	key, ok := f.keys[id]
	if !ok {
		return nil, 0, ErrAssessmentNotFound
	}
	return key, len(key), nil
}

type fakeMockStore struct {
	exams     map[uuid.UUID]*model.MockExam
	sessions  map[uuid.UUID]*model.MockExamSession
	results   map[uuid.UUID][]model.SubjectResult
	completed map[uuid.UUID]bool
}

func newFakeMockStore() *fakeMockStore {
	return &fakeMockStore{
		exams:     make(map[uuid.UUID]*model.MockExam),
		sessions:  make(map[uuid.UUID]*model.MockExamSession),
		results:   make(map[uuid.UUID][]model.SubjectResult),
		completed: make(map[uuid.UUID]bool),
	}
}

func (f *fakeMockStore) GetByID(_ context.Context, id uuid.UUID) (*model.MockExam, error) {
	m, ok := f.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return m, nil
}

func (f *fakeMockStore) GetSessionByID(_ context.Context, id uuid.UUID) (*model.MockExamSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s, nil
}

func (f *fakeMockStore) InsertSubjectResult(_ context.Context, res *model.SubjectResult) (bool, error) {
	for _, existing := range f.results[res.SessionID] {
		if existing.SubjectID == res.SubjectID {
			return false, nil
		}
	}
	res.ID = uuid.New()
	res.CompletedAt = time.Now()
	f.results[res.SessionID] = append(f.results[res.SessionID], *res)
	return true, nil
}

func (f *fakeMockStore) ListSubjectResults(_ context.Context, sessionID uuid.UUID) ([]model.SubjectResult, error) {
	return f.results[sessionID], nil
}

func (f *fakeMockStore) AdvancePosition(_ context.Context, sessionID uuid.UUID, position int) error {
	s := f.sessions[sessionID]
	if s != nil && s.CurrentPosition < position {
		s.CurrentPosition = position
	}
	return nil
}

func (f *fakeMockStore) CompleteSession(_ context.Context, sessionID uuid.UUID, totalScore, totalPossible int) (bool, error) {
	if f.completed[sessionID] {
		return false, nil
	}
	f.completed[sessionID] = true
	s := f.sessions[sessionID]
	s.IsCompleted = true
	s.TotalScore = &totalScore
	s.TotalPossible = &totalPossible
	return true, nil
}

type gradingFixture struct {
	svc         *ScoringService
	attempts    *fakeAttemptStore
	assessments *fakeAssessmentSource
	mocks       *fakeMockStore
	assessment  *model.Assessment
	questions   []uuid.UUID
	attemptID   uuid.UUID
}

// newGradingFixture seeds an open attempt on an assessment where every
// question's correct answer is "A".
func newGradingFixture(t *testing.T, questionCount, marksPerQuestion int, passingPercent float64) *gradingFixture {
	t.Helper()

	assessmentID := uuid.New()
	key := make(map[uuid.UUID]string, questionCount)
	questions := make([]uuid.UUID, 0, questionCount)
	for i := 0; i < questionCount; i++ {
		qid := uuid.New()
		key[qid] = "A"
		questions = append(questions, qid)
	}

	assessment := &model.Assessment{
		ID:               assessmentID,
		Title:            "Algebra Basics",
		DurationMinutes:  60,
		MarksPerQuestion: marksPerQuestion,
		PassingPercent:   passingPercent,
		IsActive:         true,
	}

	attempts := newFakeAttemptStore()
	attemptID := uuid.New()
	attempts.attempts[attemptID] = &model.Attempt{
		ID:           attemptID,
		StudentID:    7,
		AssessmentID: assessmentID,
		StartedAt:    time.Now(),
	}

	assessments := &fakeAssessmentSource{
		assessments: map[uuid.UUID]*model.Assessment{assessmentID: assessment},
		keys:        map[uuid.UUID]map[uuid.UUID]string{assessmentID: key},
	}
	mocks := newFakeMockStore()

	return &gradingFixture{
		svc:         NewScoringService(attempts, attempts, assessments, mocks, nil, nil, zerolog.Nop()),
		attempts:    attempts,
		assessments: assessments,
		mocks:       mocks,
		assessment:  assessment,
		questions:   questions,
		attemptID:   attemptID,
	}
}

// answersFor builds submissions selecting "A" (correct) for the first n
// questions and "B" (wrong) for the next m.
func (fx *gradingFixture) answersFor(correct, wrong int) []model.AnswerSubmission {
	subs := make([]model.AnswerSubmission, 0, correct+wrong)
	for i := 0; i < correct; i++ {
		subs = append(subs, model.AnswerSubmission{QuestionID: fx.questions[i], SelectedLabel: "A"})
	}
	for i := correct; i < correct+wrong; i++ {
		subs = append(subs, model.AnswerSubmission{QuestionID: fx.questions[i], SelectedLabel: "B"})
	}
	return subs
}

func TestSubmitAssessmentUnansweredStayInDenominator(t *testing.T) {
	fx := newGradingFixture(t, 10, 1, 60)

	// 6 answered (4 correct), 4 left blank.
	summary, err := fx.svc.SubmitAssessment(context.Background(), 7, fx.attemptID, fx.answersFor(4, 2), false)
	if err != nil {
		t.Fatal(err)
	}

	if summary.Score != 4 || summary.TotalPossible != 10 {
		t.Fatalf("expected 4/10, got %d/%d", summary.Score, summary.TotalPossible)
	}
	if summary.CorrectCount != 4 || summary.TotalQuestions != 10 {
		t.Fatalf("expected 4 of 10 correct, got %d of %d", summary.CorrectCount, summary.TotalQuestions)
	}
	if summary.Percentage != 40 {
		t.Fatalf("expected 40%%, got %v", summary.Percentage)
	}
	if summary.Passed {
		t.Fatal("40% must not pass a 60% threshold")
	}
	if got := len(fx.attempts.graded[fx.attemptID]); got != 6 {
		t.Fatalf("expected answer rows for the 6 answered questions only, got %d", got)
	}
}

func TestSubmitAssessmentMarksPerQuestionScaling(t *testing.T) {
	fx := newGradingFixture(t, 8, 2, 50)

	summary, err := fx.svc.SubmitAssessment(context.Background(), 7, fx.attemptID, fx.answersFor(5, 3), false)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Score != 10 || summary.TotalPossible != 16 {
		t.Fatalf("expected 10/16, got %d/%d", summary.Score, summary.TotalPossible)
	}
}

func TestSubmitAssessmentPassBoundaryIsInclusive(t *testing.T) {
	fx := newGradingFixture(t, 10, 1, 50)

	summary, err := fx.svc.SubmitAssessment(context.Background(), 7, fx.attemptID, fx.answersFor(5, 5), false)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Percentage != 50 {
		t.Fatalf("expected exactly 50%%, got %v", summary.Percentage)
	}
	if !summary.Passed {
		t.Fatal("a score exactly on the threshold must pass")
	}
}

func TestSubmitAssessmentIdempotent(t *testing.T) {
	fx := newGradingFixture(t, 5, 1, 50)

	first, err := fx.svc.SubmitAssessment(context.Background(), 7, fx.attemptID, fx.answersFor(3, 0), false)
	if err != nil {
		t.Fatal(err)
	}

	// Second call with a different (better) payload must not re-grade.
	second, err := fx.svc.SubmitAssessment(context.Background(), 7, fx.attemptID, fx.answersFor(5, 0), false)
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if second.Score != first.Score || second.TotalPossible != first.TotalPossible {
		t.Fatalf("conflict path must return the stored result, got %d/%d", second.Score, second.TotalPossible)
	}
	if second.CorrectCount != 3 {
		t.Fatalf("stored correct count must survive, got %d", second.CorrectCount)
	}
	if fx.attempts.finalizeCalls != 1 {
		t.Fatalf("expected a single finalize, got %d", fx.attempts.finalizeCalls)
	}
	if got := len(fx.attempts.graded[fx.attemptID]); got != 3 {
		t.Fatalf("answer rows must be unchanged by the second call, got %d", got)
	}
}

func TestSubmitAssessmentLostRaceReturnsStoredResult(t *testing.T) {
	fx := newGradingFixture(t, 5, 1, 50)

	// A concurrent submission lands between this call's read and its
	// conditional update: the update matches no row, and by the time the
	// service refetches, the attempt carries the other writer's result.
	fx.attempts.finalizeDeny = true
	fx.attempts.onDeny = func() {
		now := time.Now()
		storedScore, storedTotal, storedPassed := 2, 5, false
		a := fx.attempts.attempts[fx.attemptID]
		a.SubmittedAt = &now
		a.Score = &storedScore
		a.TotalPossible = &storedTotal
		a.Passed = &storedPassed
	}

	summary, err := fx.svc.SubmitAssessment(context.Background(), 7, fx.attemptID, fx.answersFor(5, 0), false)
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted after lost race, got %v", err)
	}
	if summary.Score != 2 || summary.TotalPossible != 5 {
		t.Fatalf("expected the concurrent writer's 2/5, got %d/%d", summary.Score, summary.TotalPossible)
	}
}

func TestSubmitAssessmentOwnershipAndExistence(t *testing.T) {
	fx := newGradingFixture(t, 5, 1, 50)

	if _, err := fx.svc.SubmitAssessment(context.Background(), 99, fx.attemptID, nil, false); !errors.Is(err, ErrNotAttemptOwner) {
		t.Fatalf("expected ErrNotAttemptOwner, got %v", err)
	}
	if _, err := fx.svc.SubmitAssessment(context.Background(), 7, uuid.New(), nil, false); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
}

func TestSubmitAssessmentIgnoresForeignQuestionIDs(t *testing.T) {
	fx := newGradingFixture(t, 4, 1, 50)

	subs := fx.answersFor(2, 0)
	subs = append(subs, model.AnswerSubmission{QuestionID: uuid.New(), SelectedLabel: "A"})

	summary, err := fx.svc.SubmitAssessment(context.Background(), 7, fx.attemptID, subs, false)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Score != 2 || summary.TotalPossible != 4 {
		t.Fatalf("foreign question ids must not count, got %d/%d", summary.Score, summary.TotalPossible)
	}
	if got := len(fx.attempts.graded[fx.attemptID]); got != 2 {
		t.Fatalf("expected 2 answer rows, got %d", got)
	}
}

// mockFixture seeds a 4-subject mock exam where each subject has 5
// questions worth 1 mark each.
type mockFixture struct {
	*gradingFixture
	sessionID  uuid.UUID
	examID     uuid.UUID
	attemptIDs []uuid.UUID
	perSubject [][]uuid.UUID
}

func newMockFixture(t *testing.T) *mockFixture {
	t.Helper()

	fx := newGradingFixture(t, 5, 1, 50)
	examID := uuid.New()
	sessionID := uuid.New()

	exam := &model.MockExam{
		ID:         examID,
		Title:      "National Mock Exam",
		TimingMode: model.TimingModePerSubject,
		IsActive:   true,
	}

	var attemptIDs []uuid.UUID
	var perSubject [][]uuid.UUID

	for pos := 0; pos < 4; pos++ {
		assessmentID := uuid.New()
		key := make(map[uuid.UUID]string, 5)
		var qids []uuid.UUID
		for i := 0; i < 5; i++ {
			qid := uuid.New()
			key[qid] = "A"
			qids = append(qids, qid)
		}
		fx.assessments.assessments[assessmentID] = &model.Assessment{
			ID:               assessmentID,
			Title:            fmt.Sprintf("Mock Subject %d", pos+1),
			MarksPerQuestion: 1,
			PassingPercent:   50,
			IsMockSubject:    true,
			IsActive:         true,
		}
		fx.assessments.keys[assessmentID] = key

		attemptID := uuid.New()
		sid := sessionID
		fx.attempts.attempts[attemptID] = &model.Attempt{
			ID:            attemptID,
			StudentID:     7,
			AssessmentID:  assessmentID,
			MockSessionID: &sid,
			StartedAt:     time.Now(),
		}

		exam.Subjects = append(exam.Subjects, model.MockExamSubject{
			MockExamID:   examID,
			SubjectID:    pos + 1,
			AssessmentID: assessmentID,
			Position:     pos,
		})
		attemptIDs = append(attemptIDs, attemptID)
		perSubject = append(perSubject, qids)
	}

	fx.mocks.exams[examID] = exam
	fx.mocks.sessions[sessionID] = &model.MockExamSession{
		ID:         sessionID,
		MockExamID: examID,
		StudentID:  7,
		StartedAt:  time.Now(),
	}

	return &mockFixture{
		gradingFixture: fx,
		sessionID:      sessionID,
		examID:         examID,
		attemptIDs:     attemptIDs,
		perSubject:     perSubject,
	}
}

func (fx *mockFixture) subjectAnswers(pos, correct int) []model.AnswerSubmission {
	subs := make([]model.AnswerSubmission, 0, correct)
	for i := 0; i < correct; i++ {
		subs = append(subs, model.AnswerSubmission{QuestionID: fx.perSubject[pos][i], SelectedLabel: "A"})
	}
	return subs
}

func TestSubmitMockExamSubjectAggregatesOnFinalSubject(t *testing.T) {
	fx := newMockFixture(t)
	ctx := context.Background()

	for pos := 0; pos < 4; pos++ {
		summary, err := fx.svc.SubmitMockExamSubject(ctx, 7, fx.sessionID, fx.attemptIDs[pos], fx.subjectAnswers(pos, 3), false)
		if err != nil {
			t.Fatalf("subject %d: %v", pos, err)
		}
		if summary.Score != 3 || summary.TotalPossible != 5 {
			t.Fatalf("subject %d: expected 3/5, got %d/%d", pos, summary.Score, summary.TotalPossible)
		}

		if pos < 3 {
			if summary.ExamCompleted {
				t.Fatalf("subject %d must not complete the exam", pos)
			}
			if fx.mocks.completed[fx.sessionID] {
				t.Fatalf("session must not be completed after subject %d", pos)
			}
		} else {
			if !summary.ExamCompleted {
				t.Fatal("final subject must complete the exam")
			}
			if summary.ExamScore != 12 || summary.ExamTotalPossible != 20 {
				t.Fatalf("expected aggregate 12/20, got %d/%d", summary.ExamScore, summary.ExamTotalPossible)
			}
		}
	}

	session := fx.mocks.sessions[fx.sessionID]
	if !session.IsCompleted || session.TotalScore == nil || *session.TotalScore != 12 {
		t.Fatalf("session must persist the aggregate, got %+v", session)
	}
}

func TestSubmitMockExamSubjectResubmitConverges(t *testing.T) {
	fx := newMockFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.SubmitMockExamSubject(ctx, 7, fx.sessionID, fx.attemptIDs[0], fx.subjectAnswers(0, 3), false); err != nil {
		t.Fatal(err)
	}

	summary, err := fx.svc.SubmitMockExamSubject(ctx, 7, fx.sessionID, fx.attemptIDs[0], fx.subjectAnswers(0, 5), false)
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted on resubmit, got %v", err)
	}
	if summary.Score != 3 {
		t.Fatalf("resubmit must return the stored subject score, got %d", summary.Score)
	}
	if got := len(fx.mocks.results[fx.sessionID]); got != 1 {
		t.Fatalf("expected a single subject result, got %d", got)
	}
}

func TestSubmitMockExamSubjectOwnership(t *testing.T) {
	fx := newMockFixture(t)

	if _, err := fx.svc.SubmitMockExamSubject(context.Background(), 42, fx.sessionID, fx.attemptIDs[0], nil, false); !errors.Is(err, ErrNotAttemptOwner) {
		t.Fatalf("expected ErrNotAttemptOwner, got %v", err)
	}
}

func TestSubmitMockExamSubjectRejectsUnboundAttempt(t *testing.T) {
	fx := newMockFixture(t)
	ctx := context.Background()

	// Bound to a different session entirely.
	foreign := uuid.New()
	fx.attempts.attempts[fx.attemptIDs[0]].MockSessionID = &foreign
	if _, err := fx.svc.SubmitMockExamSubject(ctx, 7, fx.sessionID, fx.attemptIDs[0], fx.subjectAnswers(0, 3), false); !errors.Is(err, ErrAttemptNotInSession) {
		t.Fatalf("expected ErrAttemptNotInSession for a foreign-session attempt, got %v", err)
	}

	// A standalone attempt is just as foreign.
	fx.attempts.attempts[fx.attemptIDs[0]].MockSessionID = nil
	if _, err := fx.svc.SubmitMockExamSubject(ctx, 7, fx.sessionID, fx.attemptIDs[0], fx.subjectAnswers(0, 3), false); !errors.Is(err, ErrAttemptNotInSession) {
		t.Fatalf("expected ErrAttemptNotInSession for a standalone attempt, got %v", err)
	}

	if fx.attempts.finalizeCalls != 0 {
		t.Fatalf("an unbound attempt must not be graded, got %d finalize calls", fx.attempts.finalizeCalls)
	}
	if got := len(fx.mocks.results[fx.sessionID]); got != 0 {
		t.Fatalf("an unbound attempt must not credit the session, got %d results", got)
	}
}

func TestSubmitMockExamSubjectRejectsSkippingAhead(t *testing.T) {
	fx := newMockFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.SubmitMockExamSubject(ctx, 7, fx.sessionID, fx.attemptIDs[1], fx.subjectAnswers(1, 3), false); !errors.Is(err, ErrSubjectOutOfOrder) {
		t.Fatalf("expected ErrSubjectOutOfOrder, got %v", err)
	}
	if got := len(fx.mocks.results[fx.sessionID]); got != 0 {
		t.Fatalf("a skipped subject must not land a result, got %d", got)
	}

	// Finishing the current subject opens the next one.
	if _, err := fx.svc.SubmitMockExamSubject(ctx, 7, fx.sessionID, fx.attemptIDs[0], fx.subjectAnswers(0, 3), false); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.svc.SubmitMockExamSubject(ctx, 7, fx.sessionID, fx.attemptIDs[1], fx.subjectAnswers(1, 3), false); err != nil {
		t.Fatal(err)
	}
}
