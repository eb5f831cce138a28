package session

import "errors"

var (
	// ErrAttemptNotFound means no live controller exists for the attempt.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAlreadyFinalized means the attempt reached its terminal state; no
	// further operation is accepted.
	ErrAlreadyFinalized = errors.New("attempt already finalized")
	// ErrLoadFailed wraps a metadata or question fetch failure. Recoverable
	// by retrying the load.
	ErrLoadFailed = errors.New("attempt load failed")
	// ErrSubmitFailed wraps an upstream answer-write or end-attempt failure.
	// Question status is never advanced on this path.
	ErrSubmitFailed = errors.New("submit failed")
	// ErrNoNextSection means advance was requested from the last section;
	// the caller must finalize instead.
	ErrNoNextSection = errors.New("no next section")
	// ErrQuestionNotFound means the question id does not belong to the attempt.
	ErrQuestionNotFound = errors.New("question not in attempt")
	// ErrNoPendingSubmit means confirm or cancel was called with no submit
	// request outstanding.
	ErrNoPendingSubmit = errors.New("no pending submit")
	// ErrInvalidState means the operation is not valid in the controller's
	// current lifecycle state.
	ErrInvalidState = errors.New("operation not valid in current state")
)
