package model

import "time"

// QuestionStatus enumerates per-question progress states.
type QuestionStatus string

const (
	StatusNotVisited       QuestionStatus = "NOT_VISITED"
	StatusUnattempted      QuestionStatus = "UNATTEMPTED"
	StatusAttempted        QuestionStatus = "ATTEMPTED"
	StatusToReview         QuestionStatus = "TO_REVIEW"
	StatusAnsweredToReview QuestionStatus = "ANSWERED_TO_REVIEW"
)

// Answered reports whether the status implies a saved answer.
func (s QuestionStatus) Answered() bool {
	return s == StatusAttempted || s == StatusAnsweredToReview
}

// Marked reports whether the review flag is set.
func (s QuestionStatus) Marked() bool {
	return s == StatusToReview || s == StatusAnsweredToReview
}

// QuestionProgress tracks one question's state within an attempt.
// Created NOT_VISITED at load time and never deleted while the attempt lives.
type QuestionProgress struct {
	QuestionID int64          `json:"question_id"`
	Status     QuestionStatus `json:"status"`
	// Raw is the canonical serialized answer; empty means no answer yet.
	// Always parseable by the codec for the question's kind.
	Raw string `json:"raw"`
}

// Section is an ordered, optionally time-boxed group of questions.
type Section struct {
	SectionID      int64               `json:"section_id"`
	SectionName    string              `json:"section_name"`
	TimeBoxMinutes int                 `json:"time_box_minutes,omitempty"` // 0 = not individually time-boxed
	Questions      []*QuestionProgress `json:"questions"`
}

// QuestionByID returns the progress entry for a question, or nil.
func (s *Section) QuestionByID(id int64) *QuestionProgress {
	for _, q := range s.Questions {
		if q.QuestionID == id {
			return q
		}
	}
	return nil
}

// LifecycleState is the controller's coarse state.
type LifecycleState string

const (
	StateLoading              LifecycleState = "LOADING"
	StateInSection            LifecycleState = "IN_SECTION"
	StateSectionSubmitPending LifecycleState = "SECTION_SUBMIT_PENDING"
	StateTestSubmitPending    LifecycleState = "TEST_SUBMIT_PENDING"
	StateFinalized            LifecycleState = "FINALIZED"
)

// Attempt is one candidate's run through one test, from metadata load to
// final submission. Owned exclusively by the session controller; the upstream
// platform is the system of record and this view may be rebuilt from it.
type Attempt struct {
	AttemptID            int64      `json:"attempt_id"`
	TestID               int64      `json:"test_id"`
	UserID               int64      `json:"user_id"`
	Sections             []*Section `json:"sections"`
	CurrentSectionIndex  int        `json:"current_section_index"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	TestTimeBoxMinutes   int        `json:"test_time_box_minutes"`
	StartedAt            time.Time  `json:"started_at"`
}

// CurrentSection returns the active section, or nil when out of range.
func (a *Attempt) CurrentSection() *Section {
	if a.CurrentSectionIndex < 0 || a.CurrentSectionIndex >= len(a.Sections) {
		return nil
	}
	return a.Sections[a.CurrentSectionIndex]
}

// CurrentQuestion returns the active question's progress entry, or nil.
func (a *Attempt) CurrentQuestion() *QuestionProgress {
	sec := a.CurrentSection()
	if sec == nil || a.CurrentQuestionIndex < 0 || a.CurrentQuestionIndex >= len(sec.Questions) {
		return nil
	}
	return sec.Questions[a.CurrentQuestionIndex]
}

// FindQuestion locates a question across all sections.
// Returns the section index, question index and progress entry, or (-1, -1, nil).
func (a *Attempt) FindQuestion(questionID int64) (int, int, *QuestionProgress) {
	for si, sec := range a.Sections {
		for qi, q := range sec.Questions {
			if q.QuestionID == questionID {
				return si, qi, q
			}
		}
	}
	return -1, -1, nil
}

// ─── API request payloads ───────────────────────────────────────────

// LoadAttemptRequest starts or resumes an attempt.
type LoadAttemptRequest struct {
	TestID int64 `json:"test_id" binding:"required,min=1"`
	UserID int64 `json:"user_id" binding:"required,min=1"`
}

// JumpRequest navigates to a question within the current section. Backward
// jumps are always allowed; sections change only through submits.
type JumpRequest struct {
	QuestionID int64 `json:"question_id" binding:"required,min=1"`
}

// QuestionRefRequest names a question for clear-response and review toggles.
type QuestionRefRequest struct {
	QuestionID int64 `json:"question_id" binding:"required,min=1"`
}

// AnswerEditRequest carries the candidate's edited value for the current
// question. Exactly one field group is meaningful per question kind.
type AnswerEditRequest struct {
	QuestionID   int64      `json:"question_id" binding:"required,min=1"`
	Selections   []string   `json:"selections,omitempty"`
	Matches      []string   `json:"matches,omitempty"`
	MultiMatches [][]string `json:"multi_matches,omitempty"`
	Text         *string    `json:"text,omitempty"`
}
