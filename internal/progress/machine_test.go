package progress

import (
	"testing"

	"github.com/cognivia/exam-engine/internal/model"
)

func TestVisit(t *testing.T) {
	tests := []struct {
		in   model.QuestionStatus
		want model.QuestionStatus
	}{
		{model.StatusNotVisited, model.StatusUnattempted},
		{model.StatusUnattempted, model.StatusUnattempted},
		{model.StatusAttempted, model.StatusAttempted},
		{model.StatusToReview, model.StatusToReview},
		{model.StatusAnsweredToReview, model.StatusAnsweredToReview},
	}
	for _, tc := range tests {
		if got := Visit(tc.in); got != tc.want {
			t.Errorf("Visit(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestAnswerSavedKeepsReviewFlag(t *testing.T) {
	if got := AnswerSaved(model.StatusUnattempted); got != model.StatusAttempted {
		t.Errorf("AnswerSaved(UNATTEMPTED) = %s", got)
	}
	if got := AnswerSaved(model.StatusToReview); got != model.StatusAnsweredToReview {
		t.Errorf("AnswerSaved(TO_REVIEW) = %s", got)
	}
	if got := AnswerSaved(model.StatusAnsweredToReview); got != model.StatusAnsweredToReview {
		t.Errorf("AnswerSaved(ANSWERED_TO_REVIEW) = %s", got)
	}
}

func TestClearedDemotes(t *testing.T) {
	tests := []struct {
		in   model.QuestionStatus
		want model.QuestionStatus
	}{
		{model.StatusAttempted, model.StatusUnattempted},
		{model.StatusAnsweredToReview, model.StatusToReview},
		{model.StatusToReview, model.StatusToReview},
		{model.StatusUnattempted, model.StatusUnattempted},
		{model.StatusNotVisited, model.StatusNotVisited},
	}
	for _, tc := range tests {
		if got := Cleared(tc.in); got != tc.want {
			t.Errorf("Cleared(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestToggleReviewIsInvolution(t *testing.T) {
	for _, s := range []model.QuestionStatus{
		model.StatusUnattempted,
		model.StatusAttempted,
		model.StatusToReview,
		model.StatusAnsweredToReview,
	} {
		if got := ToggleReview(ToggleReview(s)); got != s {
			t.Errorf("ToggleReview twice from %s = %s, want %s", s, got, s)
		}
	}
}

// NOT_VISITED must be unreachable once left, whatever event sequence fires.
func TestNotVisitedNeverReentered(t *testing.T) {
	events := []func(model.QuestionStatus) model.QuestionStatus{
		Visit, AnswerSaved, Cleared, ToggleReview,
		Cleared, ToggleReview, AnswerSaved, Visit,
	}

	s := Visit(model.StatusNotVisited)
	for i, ev := range events {
		s = ev(s)
		if s == model.StatusNotVisited {
			t.Fatalf("status returned to NOT_VISITED after event %d", i)
		}
	}
}
