package session

import (
	"math"

	"github.com/cognivia/exam-engine/internal/model"
)

// StatusCounts tallies questions by progress status.
type StatusCounts struct {
	NotVisited       int `json:"not_visited"`
	Unattempted      int `json:"unattempted"`
	Attempted        int `json:"attempted"`
	ToReview         int `json:"to_review"`
	AnsweredToReview int `json:"answered_to_review"`
	Total            int `json:"total"`
}

func (c *StatusCounts) add(s model.QuestionStatus) {
	switch s {
	case model.StatusNotVisited:
		c.NotVisited++
	case model.StatusUnattempted:
		c.Unattempted++
	case model.StatusAttempted:
		c.Attempted++
	case model.StatusToReview:
		c.ToReview++
	case model.StatusAnsweredToReview:
		c.AnsweredToReview++
	}
	c.Total++
}

// Answered counts questions with a saved answer.
func (c *StatusCounts) Answered() int {
	return c.Attempted + c.AnsweredToReview
}

// SectionSummary is the pre-submit view of one section.
type SectionSummary struct {
	SectionID       int64        `json:"section_id"`
	SectionName     string       `json:"section_name"`
	Counts          StatusCounts `json:"counts"`
	PercentAnswered int          `json:"percent_answered"`
	// Unresolved lists question ids still needing attention before submit:
	// unattempted or marked for review.
	Unresolved []int64 `json:"unresolved"`
}

// Summary is the whole-attempt aggregation shown before a section or test
// submit. Pure read: it never mutates attempt state and may be recomputed on
// every render.
type Summary struct {
	Sections        []SectionSummary `json:"sections"`
	Overall         StatusCounts     `json:"overall"`
	PercentAnswered int              `json:"percent_answered"`
}

// Summarize aggregates status counts per section and overall.
func Summarize(sections []*model.Section) *Summary {
	sum := &Summary{Sections: make([]SectionSummary, 0, len(sections))}
	for _, sec := range sections {
		ss := SectionSummary{
			SectionID:   sec.SectionID,
			SectionName: sec.SectionName,
			Unresolved:  []int64{},
		}
		for _, q := range sec.Questions {
			ss.Counts.add(q.Status)
			sum.Overall.add(q.Status)
			if unresolved(q.Status) {
				ss.Unresolved = append(ss.Unresolved, q.QuestionID)
			}
		}
		ss.PercentAnswered = percent(ss.Counts.Answered(), ss.Counts.Total)
		sum.Sections = append(sum.Sections, ss)
	}
	sum.PercentAnswered = percent(sum.Overall.Answered(), sum.Overall.Total)
	return sum
}

// SummarizeSection aggregates a single section, used for the section-submit
// confirmation.
func SummarizeSection(sec *model.Section) *SectionSummary {
	s := Summarize([]*model.Section{sec})
	return &s.Sections[0]
}

func unresolved(s model.QuestionStatus) bool {
	return s == model.StatusUnattempted || s == model.StatusToReview || s == model.StatusAnsweredToReview
}

func percent(answered, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(answered) / float64(total) * 100))
}
