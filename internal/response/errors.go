package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrActionForbidden ErrCode = "ACTION_FORBIDDEN"

	// ─── Attempt-specific ──────────────────────────────────────────────
	ErrAttemptNotFound   ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptFinalized  ErrCode = "ATTEMPT_FINALIZED"
	ErrQuestionNotFound  ErrCode = "QUESTION_NOT_FOUND"
	ErrInvalidAnswer     ErrCode = "INVALID_ANSWER"
	ErrAnswerUndecodable ErrCode = "ANSWER_UNDECODABLE"
	ErrSubmitGateClosed  ErrCode = "SUBMIT_GATE_CLOSED"
	ErrNoPendingSubmit   ErrCode = "NO_PENDING_SUBMIT"
	ErrNoNextSection     ErrCode = "NO_NEXT_SECTION"
	ErrInvalidState      ErrCode = "INVALID_STATE"

	// ─── Upstream ──────────────────────────────────────────────────────
	ErrUpstreamLoad  ErrCode = "UPSTREAM_LOAD_FAILED"
	ErrUpstreamWrite ErrCode = "UPSTREAM_WRITE_FAILED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid identifier format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrActionForbidden:
		return "This action is not allowed."

	// ─── Attempt-specific ──────────────────────────────────────────────
	case ErrAttemptNotFound:
		return "No live attempt found. Load the attempt first."
	case ErrAttemptFinalized:
		return "This attempt has already been submitted."
	case ErrQuestionNotFound:
		return "The question does not belong to this attempt."
	case ErrInvalidAnswer:
		return "The answer does not fit the question's shape."
	case ErrAnswerUndecodable:
		return "The stored answer could not be read. Save a fresh answer."
	case ErrSubmitGateClosed:
		return "Minimum time has not elapsed yet."
	case ErrNoPendingSubmit:
		return "There is no submit awaiting confirmation."
	case ErrNoNextSection:
		return "This is the last section. Submit the test instead."
	case ErrInvalidState:
		return "The operation is not valid in the attempt's current state."

	// ─── Upstream ──────────────────────────────────────────────────────
	case ErrUpstreamLoad:
		return "The assessment platform could not be reached. Please retry."
	case ErrUpstreamWrite:
		return "Saving to the assessment platform failed. Please retry."

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
