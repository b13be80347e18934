package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer    Action = "answer"
	ActionViolation Action = "violation"
	ActionSubmit    Action = "submit"
	ActionRetry     Action = "retry"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest is sent by the client to record a single answer selection.
type AnswerRequest struct {
	Action Action `json:"action"`
	QID    string `json:"q_id"`
	Answer string `json:"ans"`
}

// ViolationRequest is sent by the client to report a proctoring violation.
type ViolationRequest struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// SubmitRequest is sent by the client to finish and grade the attempt.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// RetryRequest is sent by the client to retry a failed submission.
type RetryRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError          Event = "error"
	EventState          Event = "state"
	EventTick           Event = "tick"
	EventBreach         Event = "breach"
	EventGraded         Event = "graded"
	EventSubmitFailed   Event = "submit_failed"
	EventSubjectStarted Event = "subject_started"
	EventExamCompleted  Event = "exam_completed"
	EventPong           Event = "pong"
)

// StateResponse restores the client after connect or reconnect: remaining
// seconds, buffered answers keyed by question ID and the violation count so far.
type StateResponse struct {
	Event      Event             `json:"event"`
	Remaining  int               `json:"remaining"`
	Answers    map[string]string `json:"answers"`
	Violations int               `json:"violations"`
}

type TickResponse struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining"`
}

type BreachResponse struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// GradedResponse carries the stored grading result. For mock-exam subjects
// the exam_* fields are populated once the final subject completes.
type GradedResponse struct {
	Event             Event   `json:"event"`
	AutoSubmitted     bool    `json:"auto_submitted"`
	Score             int     `json:"score"`
	TotalPossible     int     `json:"total_possible"`
	CorrectCount      int     `json:"correct_count"`
	TotalQuestions    int     `json:"total_questions"`
	Percentage        float64 `json:"percentage"`
	Passed            bool    `json:"passed"`
	ExamCompleted     bool    `json:"exam_completed,omitempty"`
	ExamScore         int     `json:"exam_score,omitempty"`
	ExamTotalPossible int     `json:"exam_total_possible,omitempty"`
}

// SubmitFailedResponse signals a transient grading failure. The attempt is
// still locked server-side; the client should offer a retry action.
type SubmitFailedResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

// SubjectStartedResponse announces the next subject of a mock-exam session.
type SubjectStartedResponse struct {
	Event        Event  `json:"event"`
	Index        int    `json:"index"`
	SubjectID    int    `json:"subject_id"`
	AssessmentID string `json:"assessment_id"`
	AttemptID    string `json:"attempt_id"`
	Remaining    int    `json:"remaining"`
}

// ExamCompletedResponse carries the aggregate mock-exam result.
type ExamCompletedResponse struct {
	Event         Event `json:"event"`
	Score         int   `json:"score"`
	TotalPossible int   `json:"total_possible"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
