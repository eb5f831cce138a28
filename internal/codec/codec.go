package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/cognivia/exam-engine/internal/model"
)

// numericPattern is the full grammar for Numeric answers: optional leading
// digits, at most one decimal point, optional trailing digits.
var numericPattern = regexp.MustCompile(`^\d*\.?\d*$`)

// ErrInvalidEdit is returned when an edit operation does not fit the value's
// kind or references an option outside the question's option list. The prior
// value is left untouched.
var ErrInvalidEdit = errors.New("edit does not match question shape")

// DecodeError reports a stored answer or options payload that does not match
// its declared kind. It is isolated to a single question: the session
// continues and the question is treated as unattempted until corrected.
type DecodeError struct {
	QuestionID int64
	Kind       model.QuestionKind
	Reason     string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode question %d (%s): %s", e.QuestionID, e.Kind, e.Reason)
}

func decodeErr(q *model.Question, reason string) *DecodeError {
	return &DecodeError{QuestionID: q.QuestionID, Kind: q.Kind, Reason: reason}
}

// Value is the editable, in-memory form of a candidate's answer, paired with
// the parsed option shape it must stay consistent with. All edits go through
// the methods below so the canonical raw string can always be re-encoded.
type Value struct {
	Kind model.QuestionKind

	// Option shape (immutable after Decode/Empty).
	Choices []string // SingleChoice, MultiChoice, TrueFalse
	Left    []string // match kinds
	Right   []string // match kinds

	// Answer state.
	Selections   []string   // SingleChoice (0..1), MultiChoice (set)
	Matches      []string   // MatchPairsSingle, len == len(Left)
	MultiMatches [][]string // MatchPairsMultiple, len == len(Left)
	Text         string     // TrueFalse, Numeric, FillBlank, WriteUp
}

// Empty builds the kind-appropriate unanswered value for a question.
// It fails only when the options payload itself is malformed.
func Empty(q *model.Question) (*Value, error) {
	v := &Value{Kind: q.Kind}

	switch q.Kind {
	case model.KindSingleChoice, model.KindMultiChoice:
		var opts model.ChoiceOptions
		if err := json.Unmarshal(q.Options, &opts); err != nil {
			return nil, decodeErr(q, "options payload is not a choice list")
		}
		if len(opts.Choices) < 2 {
			return nil, decodeErr(q, "choice question needs at least 2 options")
		}
		v.Choices = opts.Choices
		v.Selections = []string{}

	case model.KindMatchPairsSingle, model.KindMatchPairsMultiple:
		var opts model.MatchOptions
		if err := json.Unmarshal(q.Options, &opts); err != nil {
			return nil, decodeErr(q, "options payload is not a left/right pair")
		}
		if len(opts.Left) == 0 || len(opts.Right) == 0 {
			return nil, decodeErr(q, "match question needs non-empty left and right lists")
		}
		v.Left, v.Right = opts.Left, opts.Right
		if q.Kind == model.KindMatchPairsSingle {
			v.Matches = make([]string, len(opts.Left))
		} else {
			v.MultiMatches = make([][]string, len(opts.Left))
			for i := range v.MultiMatches {
				v.MultiMatches[i] = []string{}
			}
		}

	case model.KindTrueFalse:
		v.Choices = model.TrueFalseChoices

	case model.KindNumeric, model.KindFillBlank, model.KindWriteUp:
		// No options, empty text.

	default:
		return nil, decodeErr(q, "unknown question kind")
	}

	return v, nil
}

// EmptyRaw returns the canonical "no answer yet" encoding for a question.
func EmptyRaw(q *model.Question) (string, error) {
	v, err := Empty(q)
	if err != nil {
		return "", err
	}
	return Encode(v)
}

// Decode turns a canonical raw answer string back into an editable value.
// An empty raw string always decodes to the unanswered value. Total for
// well-formed input; shape mismatches return a *DecodeError.
func Decode(q *model.Question, raw string) (*Value, error) {
	v, err := Empty(q)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return v, nil
	}

	switch q.Kind {
	case model.KindSingleChoice:
		var sel []string
		if err := json.Unmarshal([]byte(raw), &sel); err != nil {
			return nil, decodeErr(q, "answer is not a string list")
		}
		if len(sel) > 1 {
			return nil, decodeErr(q, "single choice answer has more than one selection")
		}
		for _, s := range sel {
			if !contains(v.Choices, s) {
				return nil, decodeErr(q, "selection is not one of the options")
			}
		}
		v.Selections = sel

	case model.KindMultiChoice:
		var sel []string
		if err := json.Unmarshal([]byte(raw), &sel); err != nil {
			return nil, decodeErr(q, "answer is not a string list")
		}
		for _, s := range sel {
			if !contains(v.Choices, s) {
				return nil, decodeErr(q, "selection is not one of the options")
			}
		}
		v.Selections = sel

	case model.KindMatchPairsSingle:
		var matches []string
		if err := json.Unmarshal([]byte(raw), &matches); err != nil {
			return nil, decodeErr(q, "answer is not a string list")
		}
		if len(matches) == 0 {
			return v, nil // legacy empty sentinel
		}
		if len(matches) != len(v.Left) {
			return nil, decodeErr(q, "answer length does not match left list")
		}
		for _, m := range matches {
			if m != "" && !contains(v.Right, m) {
				return nil, decodeErr(q, "match value is not one of the right options")
			}
		}
		v.Matches = matches

	case model.KindMatchPairsMultiple:
		var matches [][]string
		if err := json.Unmarshal([]byte(raw), &matches); err != nil {
			return nil, decodeErr(q, "answer is not a list of string lists")
		}
		if len(matches) == 0 {
			return v, nil
		}
		if len(matches) != len(v.Left) {
			return nil, decodeErr(q, "answer length does not match left list")
		}
		for i, row := range matches {
			if row == nil {
				matches[i] = []string{}
				continue
			}
			for _, m := range row {
				if !contains(v.Right, m) {
					return nil, decodeErr(q, "match value is not one of the right options")
				}
			}
		}
		v.MultiMatches = matches

	case model.KindTrueFalse:
		if raw != "True" && raw != "False" {
			return nil, decodeErr(q, `answer must be "True" or "False"`)
		}
		v.Text = raw

	case model.KindNumeric:
		if !numericPattern.MatchString(raw) {
			return nil, decodeErr(q, "answer violates numeric grammar")
		}
		v.Text = raw

	case model.KindFillBlank, model.KindWriteUp:
		v.Text = raw
	}

	return v, nil
}

// Encode serializes an editable value into its canonical raw string.
// The result is always decodable by Decode for the same question shape.
func Encode(v *Value) (string, error) {
	switch v.Kind {
	case model.KindSingleChoice, model.KindMultiChoice:
		sel := v.Selections
		if sel == nil {
			sel = []string{}
		}
		b, err := json.Marshal(sel)
		if err != nil {
			return "", fmt.Errorf("marshal selections: %w", err)
		}
		return string(b), nil

	case model.KindMatchPairsSingle:
		b, err := json.Marshal(v.Matches)
		if err != nil {
			return "", fmt.Errorf("marshal matches: %w", err)
		}
		return string(b), nil

	case model.KindMatchPairsMultiple:
		b, err := json.Marshal(v.MultiMatches)
		if err != nil {
			return "", fmt.Errorf("marshal matches: %w", err)
		}
		return string(b), nil

	case model.KindTrueFalse, model.KindNumeric, model.KindFillBlank, model.KindWriteUp:
		return v.Text, nil
	}
	return "", fmt.Errorf("encode: unknown kind %q", v.Kind)
}

// IsEmpty reports whether the value counts as "no answer yet".
func (v *Value) IsEmpty() bool {
	switch v.Kind {
	case model.KindSingleChoice, model.KindMultiChoice:
		return len(v.Selections) == 0
	case model.KindMatchPairsSingle:
		for _, m := range v.Matches {
			if m != "" {
				return false
			}
		}
		return true
	case model.KindMatchPairsMultiple:
		for _, row := range v.MultiMatches {
			if len(row) > 0 {
				return false
			}
		}
		return true
	default:
		return v.Text == ""
	}
}

// ─── Edit operations ────────────────────────────────────────────────

// Select replaces the selection with the given option (SingleChoice) or
// sets the True/False answer. Selecting always replaces, never appends.
func (v *Value) Select(option string) error {
	switch v.Kind {
	case model.KindSingleChoice:
		if !contains(v.Choices, option) {
			return ErrInvalidEdit
		}
		v.Selections = []string{option}
		return nil
	case model.KindTrueFalse:
		if option != "True" && option != "False" {
			return ErrInvalidEdit
		}
		v.Text = option
		return nil
	}
	return ErrInvalidEdit
}

// Toggle flips an option's membership in a MultiChoice selection set.
func (v *Value) Toggle(option string) error {
	if v.Kind != model.KindMultiChoice {
		return ErrInvalidEdit
	}
	if !contains(v.Choices, option) {
		return ErrInvalidEdit
	}
	for i, s := range v.Selections {
		if s == option {
			v.Selections = append(v.Selections[:i], v.Selections[i+1:]...)
			return nil
		}
	}
	v.Selections = append(v.Selections, option)
	return nil
}

// AssignMatch writes a right-side value into a left row (MatchPairsSingle).
// A right value is consumed at most once across the mapping: if another row
// already holds it, that row's slot is cleared before the new assignment.
func (v *Value) AssignMatch(leftIdx int, right string) error {
	if v.Kind != model.KindMatchPairsSingle {
		return ErrInvalidEdit
	}
	if leftIdx < 0 || leftIdx >= len(v.Matches) {
		return ErrInvalidEdit
	}
	if right != "" && !contains(v.Right, right) {
		return ErrInvalidEdit
	}
	for i, m := range v.Matches {
		if i != leftIdx && m == right && right != "" {
			v.Matches[i] = ""
		}
	}
	v.Matches[leftIdx] = right
	return nil
}

// ToggleMatch flips a right value's membership in a left row's set
// (MatchPairsMultiple). No exclusivity constraint across rows.
func (v *Value) ToggleMatch(leftIdx int, right string) error {
	if v.Kind != model.KindMatchPairsMultiple {
		return ErrInvalidEdit
	}
	if leftIdx < 0 || leftIdx >= len(v.MultiMatches) {
		return ErrInvalidEdit
	}
	if !contains(v.Right, right) {
		return ErrInvalidEdit
	}
	row := v.MultiMatches[leftIdx]
	for i, m := range row {
		if m == right {
			v.MultiMatches[leftIdx] = append(row[:i], row[i+1:]...)
			return nil
		}
	}
	v.MultiMatches[leftIdx] = append(row, right)
	return nil
}

// SetText replaces the textual answer. For Numeric questions an edit that
// violates the grammar is rejected and the prior value stays unchanged.
func (v *Value) SetText(s string) error {
	switch v.Kind {
	case model.KindNumeric:
		if !numericPattern.MatchString(s) {
			return ErrInvalidEdit
		}
		v.Text = s
		return nil
	case model.KindFillBlank, model.KindWriteUp:
		v.Text = s
		return nil
	}
	return ErrInvalidEdit
}

// Clear resets the answer to its kind-appropriate empty shape. The option
// shape is preserved.
func (v *Value) Clear() {
	switch v.Kind {
	case model.KindSingleChoice, model.KindMultiChoice:
		v.Selections = []string{}
	case model.KindMatchPairsSingle:
		v.Matches = make([]string, len(v.Left))
	case model.KindMatchPairsMultiple:
		v.MultiMatches = make([][]string, len(v.Left))
		for i := range v.MultiMatches {
			v.MultiMatches[i] = []string{}
		}
	default:
		v.Text = ""
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
