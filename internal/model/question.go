package model

import "encoding/json"

// QuestionKind enumerates the answerable question variants.
type QuestionKind string

const (
	KindSingleChoice       QuestionKind = "SINGLE_CHOICE"
	KindMultiChoice        QuestionKind = "MULTI_CHOICE"
	KindMatchPairsSingle   QuestionKind = "MATCH_PAIRS_SINGLE"
	KindMatchPairsMultiple QuestionKind = "MATCH_PAIRS_MULTIPLE"
	KindTrueFalse          QuestionKind = "TRUE_FALSE"
	KindNumeric            QuestionKind = "NUMERIC"
	KindFillBlank          QuestionKind = "FILL_BLANK"
	KindWriteUp            QuestionKind = "WRITE_UP"
)

// Valid reports whether k is one of the eight known kinds.
func (k QuestionKind) Valid() bool {
	switch k {
	case KindSingleChoice, KindMultiChoice, KindMatchPairsSingle,
		KindMatchPairsMultiple, KindTrueFalse, KindNumeric,
		KindFillBlank, KindWriteUp:
		return true
	}
	return false
}

// HasOptions reports whether the kind carries an options payload.
func (k QuestionKind) HasOptions() bool {
	switch k {
	case KindSingleChoice, KindMultiChoice, KindMatchPairsSingle,
		KindMatchPairsMultiple, KindTrueFalse:
		return true
	}
	return false
}

// Question is a single exam question as delivered by the upstream platform.
// Immutable once fetched for a given attempt.
type Question struct {
	QuestionID    int64           `json:"question_id"`
	Kind          QuestionKind    `json:"kind"`
	Options       json.RawMessage `json:"options,omitempty"`
	Marks         float64         `json:"marks"`
	NegativeMarks float64         `json:"negative_marks"`
	HeaderText    string          `json:"header_text,omitempty"`
	BodyText      string          `json:"body_text"`
}

// ChoiceOptions is the options payload for SingleChoice and MultiChoice
// questions: an ordered list of option texts.
type ChoiceOptions struct {
	Choices []string `json:"choices"`
}

// MatchOptions is the options payload for both match-pairs kinds.
type MatchOptions struct {
	Left  []string `json:"left"`
	Right []string `json:"right"`
}

// TrueFalseChoices is the fixed option pair for TrueFalse questions.
var TrueFalseChoices = []string{"True", "False"}
