// Package progress holds the per-question status transition rules.
//
// Statuses move NOT_VISITED → UNATTEMPTED → ATTEMPTED with a parallel review
// flag (TO_REVIEW, ANSWERED_TO_REVIEW). NOT_VISITED is never re-entered once
// left, and the answered states are reachable only after the upstream answer
// write has been confirmed.
package progress

import "github.com/cognivia/exam-engine/internal/model"

// Visit is applied on first navigation to a question.
func Visit(s model.QuestionStatus) model.QuestionStatus {
	if s == model.StatusNotVisited {
		return model.StatusUnattempted
	}
	return s
}

// AnswerSaved is applied after a successful answer submission with a
// non-empty canonical answer. The review flag survives.
func AnswerSaved(s model.QuestionStatus) model.QuestionStatus {
	if s.Marked() {
		return model.StatusAnsweredToReview
	}
	return model.StatusAttempted
}

// Cleared is applied when the candidate clears their response. The review
// flag survives; a never-visited question stays NOT_VISITED.
func Cleared(s model.QuestionStatus) model.QuestionStatus {
	switch s {
	case model.StatusNotVisited:
		return model.StatusNotVisited
	case model.StatusAnsweredToReview, model.StatusToReview:
		return model.StatusToReview
	default:
		return model.StatusUnattempted
	}
}

// ToggleReview flips the review flag without discarding the
// answered/unanswered distinction.
func ToggleReview(s model.QuestionStatus) model.QuestionStatus {
	switch s {
	case model.StatusUnattempted:
		return model.StatusToReview
	case model.StatusToReview:
		return model.StatusUnattempted
	case model.StatusAttempted:
		return model.StatusAnsweredToReview
	case model.StatusAnsweredToReview:
		return model.StatusAttempted
	default:
		// NOT_VISITED cannot be marked before being visited.
		return s
	}
}
