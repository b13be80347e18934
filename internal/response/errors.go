package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden           ErrCode = "FORBIDDEN"
	ErrNotAttemptOwner     ErrCode = "NOT_ATTEMPT_OWNER"
	ErrAttemptNotInSession ErrCode = "ATTEMPT_NOT_IN_SESSION"
	ErrStudentAccessOnly   ErrCode = "STUDENT_ACCESS_ONLY"
	ErrStaffAccessOnly     ErrCode = "STAFF_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrConflict        ErrCode = "CONFLICT"
	ErrActionForbidden ErrCode = "ACTION_FORBIDDEN"

	// ─── Exam-taking ───────────────────────────────────────────────────
	ErrAlreadySubmitted     ErrCode = "ATTEMPT_ALREADY_SUBMITTED"
	ErrRetakeNotAllowed     ErrCode = "RETAKE_NOT_ALLOWED"
	ErrAssessmentNotOpen    ErrCode = "ASSESSMENT_NOT_OPEN"
	ErrAssessmentInactive   ErrCode = "ASSESSMENT_INACTIVE"
	ErrAssessmentNoQuestion ErrCode = "ASSESSMENT_NO_QUESTIONS"
	ErrSubjectOutOfOrder    ErrCode = "SUBJECT_OUT_OF_ORDER"
	ErrSubmissionTransient  ErrCode = "SUBMISSION_TRANSIENT"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email/registration number or password is incorrect."
	case ErrSessionActive:
		return "You are already logged in on another device."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrNotAttemptOwner:
		return "This attempt belongs to another student."
	case ErrAttemptNotInSession:
		return "This attempt is not part of this mock exam session."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrStaffAccessOnly:
		return "This resource is restricted to staff."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrActionForbidden:
		return "This action is not allowed."

	// ─── Exam-taking ───────────────────────────────────────────────────
	case ErrAlreadySubmitted:
		return "This attempt has already been submitted and graded."
	case ErrRetakeNotAllowed:
		return "You have no attempts left for this assessment."
	case ErrAssessmentNotOpen:
		return "This assessment is not open yet."
	case ErrAssessmentInactive:
		return "This assessment is currently inactive."
	case ErrAssessmentNoQuestion:
		return "This assessment has no questions."
	case ErrSubjectOutOfOrder:
		return "This subject is not open yet. Finish the current one first."
	case ErrSubmissionTransient:
		return "Submission could not be stored. Please retry — your answers are safe."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
