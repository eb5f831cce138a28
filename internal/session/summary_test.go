package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cognivia/exam-engine/internal/model"
)

func section(id int64, name string, statuses ...model.QuestionStatus) *model.Section {
	sec := &model.Section{SectionID: id, SectionName: name}
	for i, st := range statuses {
		sec.Questions = append(sec.Questions, &model.QuestionProgress{
			QuestionID: id*100 + int64(i),
			Status:     st,
		})
	}
	return sec
}

func TestSummarizeCountsAndPercent(t *testing.T) {
	sections := []*model.Section{
		section(1, "Aptitude",
			model.StatusAttempted,
			model.StatusAttempted,
			model.StatusUnattempted,
			model.StatusNotVisited,
		),
		section(2, "Reasoning",
			model.StatusAnsweredToReview,
			model.StatusToReview,
		),
	}

	sum := Summarize(sections)

	assert.Len(t, sum.Sections, 2)
	first := sum.Sections[0]
	assert.Equal(t, 2, first.Counts.Attempted)
	assert.Equal(t, 1, first.Counts.Unattempted)
	assert.Equal(t, 1, first.Counts.NotVisited)
	assert.Equal(t, 4, first.Counts.Total)
	assert.Equal(t, 50, first.PercentAnswered)

	second := sum.Sections[1]
	assert.Equal(t, 1, second.Counts.AnsweredToReview)
	assert.Equal(t, 1, second.Counts.ToReview)
	assert.Equal(t, 50, second.PercentAnswered)

	assert.Equal(t, 6, sum.Overall.Total)
	assert.Equal(t, 3, sum.Overall.Answered())
	assert.Equal(t, 50, sum.PercentAnswered)
}

func TestSummarizeUnresolvedList(t *testing.T) {
	sec := section(3, "GK",
		model.StatusAttempted,        // 300
		model.StatusUnattempted,      // 301
		model.StatusToReview,         // 302
		model.StatusAnsweredToReview, // 303
		model.StatusNotVisited,       // 304
	)

	ss := SummarizeSection(sec)

	assert.Equal(t, []int64{301, 302, 303}, ss.Unresolved)
}

func TestSummarizeEmptySections(t *testing.T) {
	sum := Summarize(nil)
	assert.Equal(t, 0, sum.PercentAnswered)
	assert.Equal(t, 0, sum.Overall.Total)

	sum = Summarize([]*model.Section{{SectionID: 1, SectionName: "Empty"}})
	assert.Equal(t, 0, sum.Sections[0].PercentAnswered)
}

func TestSummarizeRounding(t *testing.T) {
	sec := section(4, "Math",
		model.StatusAttempted,
		model.StatusUnattempted,
		model.StatusUnattempted,
	)
	// 1/3 answered rounds to 33.
	assert.Equal(t, 33, SummarizeSection(sec).PercentAnswered)

	sec = section(5, "Physics",
		model.StatusAttempted,
		model.StatusAttempted,
		model.StatusUnattempted,
	)
	// 2/3 answered rounds to 67.
	assert.Equal(t, 67, SummarizeSection(sec).PercentAnswered)
}

func TestSummarizeDoesNotMutate(t *testing.T) {
	sec := section(6, "Chem", model.StatusAttempted, model.StatusToReview)
	before := []model.QuestionStatus{sec.Questions[0].Status, sec.Questions[1].Status}

	for i := 0; i < 3; i++ {
		Summarize([]*model.Section{sec})
	}

	assert.Equal(t, before[0], sec.Questions[0].Status)
	assert.Equal(t, before[1], sec.Questions[1].Status)
}
