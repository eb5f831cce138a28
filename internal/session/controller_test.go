package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognivia/exam-engine/internal/model"
	"github.com/cognivia/exam-engine/internal/store"
	"github.com/cognivia/exam-engine/internal/upstream"
)

// fakeClient scripts the platform API for controller tests.
type fakeClient struct {
	mu         sync.Mutex
	meta       *upstream.AttemptMetadata
	questions  map[int64]*model.Question
	failSubmit bool
	failEnd    int // EndAttempt calls to fail; -1 fails forever
	submits    []submitRecord
	endCalls   int
}

type submitRecord struct {
	questionID int64
	raw        string
	status     model.QuestionStatus
}

func (f *fakeClient) FetchAttemptMetadata(ctx context.Context, testID, userID int64) (*upstream.AttemptMetadata, error) {
	if f.meta == nil {
		return nil, errors.New("metadata unavailable")
	}
	return f.meta, nil
}

func (f *fakeClient) FetchQuestion(ctx context.Context, questionID int64) (*model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.questions[questionID]
	if !ok {
		return nil, upstream.ErrNotFound
	}
	return q, nil
}

func (f *fakeClient) SubmitAnswer(ctx context.Context, attemptID, questionID int64, raw string, status model.QuestionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubmit {
		return errors.New("write rejected")
	}
	f.submits = append(f.submits, submitRecord{questionID, raw, status})
	return nil
}

func (f *fakeClient) EndAttempt(ctx context.Context, attemptID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endCalls++
	if f.failEnd == -1 || f.failEnd >= f.endCalls {
		return errors.New("end rejected")
	}
	return nil
}

func (f *fakeClient) endCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.endCalls
}

func (f *fakeClient) lastSubmit() (submitRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.submits) == 0 {
		return submitRecord{}, false
	}
	return f.submits[len(f.submits)-1], true
}

// fakeStore serves a pre-seeded snapshot on load.
type fakeStore struct {
	store.Noop
	snap *store.Snapshot
}

func (f *fakeStore) Load(ctx context.Context, attemptID int64) (*store.Snapshot, error) {
	return f.snap, nil
}

// recordingQueue captures finalize retry jobs.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []int64
}

func (q *recordingQueue) EnqueueFinalize(ctx context.Context, attemptID, userID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, attemptID)
	return nil
}

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func choiceQuestion(id int64, kind model.QuestionKind) *model.Question {
	return &model.Question{
		QuestionID: id,
		Kind:       kind,
		Options:    []byte(`{"choices":["A","B","C","D"]}`),
		Marks:      1,
	}
}

func numericQuestion(id int64) *model.Question {
	return &model.Question{QuestionID: id, Kind: model.KindNumeric, Marks: 1}
}

// twoSectionMeta builds an attempt with questions 101,102 in section one and
// 201 in section two.
func twoSectionMeta(startedAt time.Time, testBoxMinutes int, sectionBoxMinutes int) *upstream.AttemptMetadata {
	return &upstream.AttemptMetadata{
		AttemptID:          9001,
		TestTimeBoxMinutes: testBoxMinutes,
		StartedAt:          startedAt,
		Sections: []upstream.SectionMetadata{
			{SectionID: 1, SectionName: "Aptitude", TimeBoxMinutes: sectionBoxMinutes, QuestionIDs: []int64{101, 102}},
			{SectionID: 2, SectionName: "Reasoning", QuestionIDs: []int64{201}},
		},
	}
}

func newTestController(t *testing.T, client *fakeClient, snapshots store.SnapshotStore, queue FinalizeQueue, opts Options) *Controller {
	t.Helper()
	if opts.TickInterval == 0 {
		opts.TickInterval = 10 * time.Millisecond
	}
	if snapshots == nil {
		snapshots = store.Noop{}
	}
	if queue == nil {
		queue = NoopQueue{}
	}
	c := NewController(client, snapshots, queue, opts, zerolog.Nop())
	t.Cleanup(c.Shutdown)
	return c
}

func TestLoadAttemptBuildsProgress(t *testing.T) {
	client := &fakeClient{meta: twoSectionMeta(time.Now(), 60, 0)}
	c := newTestController(t, client, nil, nil, Options{})

	attempt, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	assert.Equal(t, int64(9001), attempt.AttemptID)
	assert.Len(t, attempt.Sections, 2)
	assert.Equal(t, 0, attempt.CurrentSectionIndex)
	for _, sec := range attempt.Sections {
		for _, q := range sec.Questions {
			assert.Equal(t, model.StatusNotVisited, q.Status)
		}
	}

	st := c.State()
	assert.Equal(t, model.StateInSection, st.State)
	assert.Greater(t, st.TestRemainingMS, int64(0))
	assert.Equal(t, int64(-1), st.SectionRemainingMS) // section one is unboxed here
}

func TestLoadAttemptFailure(t *testing.T) {
	c := newTestController(t, &fakeClient{}, nil, nil, Options{})

	_, err := c.LoadAttempt(context.Background(), 7, 42)
	assert.ErrorIs(t, err, ErrLoadFailed)
}

func TestJumpMarksVisitedAndAllowsBackwardJumps(t *testing.T) {
	client := &fakeClient{
		meta: twoSectionMeta(time.Now(), 60, 0),
		questions: map[int64]*model.Question{
			101: choiceQuestion(101, model.KindSingleChoice),
			102: choiceQuestion(102, model.KindMultiChoice),
		},
	}
	c := newTestController(t, client, nil, nil, Options{})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	view, err := c.JumpTo(context.Background(), 102)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnattempted, view.Status)
	assert.Equal(t, 1, c.State().Attempt.CurrentQuestionIndex)

	// Backward jump.
	view, err = c.JumpTo(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnattempted, view.Status)
	assert.Equal(t, 0, c.State().Attempt.CurrentQuestionIndex)

	// Cross-section jumps are rejected.
	_, err = c.JumpTo(context.Background(), 201)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = c.JumpTo(context.Background(), 999)
	assert.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestSubmitAnswerAdvancesStatusAndCursor(t *testing.T) {
	client := &fakeClient{
		meta: twoSectionMeta(time.Now(), 60, 0),
		questions: map[int64]*model.Question{
			101: choiceQuestion(101, model.KindSingleChoice),
			102: choiceQuestion(102, model.KindMultiChoice),
		},
	}
	c := newTestController(t, client, nil, nil, Options{})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)
	_, err = c.JumpTo(context.Background(), 101)
	require.NoError(t, err)

	view, err := c.SubmitAnswer(context.Background(), &model.AnswerEditRequest{
		QuestionID: 101,
		Selections: []string{"B"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAttempted, view.Status)

	rec, ok := client.lastSubmit()
	require.True(t, ok)
	assert.Equal(t, int64(101), rec.questionID)
	assert.Equal(t, `["B"]`, rec.raw)
	assert.Equal(t, model.StatusAttempted, rec.status)

	// Cursor moved to the next question in section order.
	st := c.State()
	assert.Equal(t, 1, st.Attempt.CurrentQuestionIndex)
	assert.Equal(t, model.StatusUnattempted, st.Attempt.Sections[0].Questions[1].Status)
}

func TestSubmitFailureDoesNotAdvanceStatus(t *testing.T) {
	client := &fakeClient{
		meta: twoSectionMeta(time.Now(), 60, 0),
		questions: map[int64]*model.Question{
			101: choiceQuestion(101, model.KindSingleChoice),
		},
		failSubmit: true,
	}
	c := newTestController(t, client, nil, nil, Options{})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)
	_, err = c.JumpTo(context.Background(), 101)
	require.NoError(t, err)

	_, err = c.SubmitAnswer(context.Background(), &model.AnswerEditRequest{
		QuestionID: 101,
		Selections: []string{"B"},
	})
	assert.ErrorIs(t, err, ErrSubmitFailed)

	st := c.State()
	assert.Equal(t, model.StatusUnattempted, st.Attempt.Sections[0].Questions[0].Status)
	assert.Equal(t, 0, st.Attempt.CurrentQuestionIndex)

	// Retry after the upstream recovers succeeds.
	client.failSubmit = false
	view, err := c.SubmitAnswer(context.Background(), &model.AnswerEditRequest{
		QuestionID: 101,
		Selections: []string{"B"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAttempted, view.Status)
}

func TestSubmitRejectsInvalidEdit(t *testing.T) {
	client := &fakeClient{
		meta: twoSectionMeta(time.Now(), 60, 0),
		questions: map[int64]*model.Question{
			101: numericQuestion(101),
		},
	}
	c := newTestController(t, client, nil, nil, Options{})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	bad := "1.2.3"
	_, err = c.SubmitAnswer(context.Background(), &model.AnswerEditRequest{QuestionID: 101, Text: &bad})
	assert.Error(t, err)
	_, ok := client.lastSubmit()
	assert.False(t, ok, "rejected edit must never reach the upstream")

	good := "3.14"
	view, err := c.SubmitAnswer(context.Background(), &model.AnswerEditRequest{QuestionID: 101, Text: &good})
	require.NoError(t, err)
	assert.Equal(t, "3.14", view.Value.Text)
}

func TestClearResponseDemotesStatus(t *testing.T) {
	client := &fakeClient{
		meta: twoSectionMeta(time.Now(), 60, 0),
		questions: map[int64]*model.Question{
			101: choiceQuestion(101, model.KindSingleChoice),
		},
	}
	c := newTestController(t, client, nil, nil, Options{})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)
	_, err = c.JumpTo(context.Background(), 101)
	require.NoError(t, err)
	_, err = c.SubmitAnswer(context.Background(), &model.AnswerEditRequest{
		QuestionID: 101,
		Selections: []string{"C"},
	})
	require.NoError(t, err)

	view, err := c.ClearResponse(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnattempted, view.Status)
	assert.True(t, view.Value.IsEmpty())

	// Clearing is local until the next explicit save.
	rec, _ := client.lastSubmit()
	assert.Equal(t, `["C"]`, rec.raw)
}

func TestToggleReviewKeepsAnsweredDistinction(t *testing.T) {
	client := &fakeClient{
		meta: twoSectionMeta(time.Now(), 60, 0),
		questions: map[int64]*model.Question{
			101: choiceQuestion(101, model.KindSingleChoice),
		},
	}
	c := newTestController(t, client, nil, nil, Options{})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)
	_, err = c.JumpTo(context.Background(), 101)
	require.NoError(t, err)
	_, err = c.SubmitAnswer(context.Background(), &model.AnswerEditRequest{
		QuestionID: 101,
		Selections: []string{"A"},
	})
	require.NoError(t, err)

	st, err := c.ToggleReview(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAnsweredToReview, st)

	st, err = c.ToggleReview(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAttempted, st)
}

func TestSectionGateRejectsEarlySubmit(t *testing.T) {
	client := &fakeClient{meta: twoSectionMeta(time.Now(), 60, 0)}
	c := newTestController(t, client, nil, nil, Options{MinSectionTime: time.Hour})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	res, err := c.RequestSectionSubmit()
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.NotEmpty(t, res.Reason)

	st := c.State()
	assert.Equal(t, model.StateInSection, st.State)
	assert.Equal(t, 0, st.Attempt.CurrentSectionIndex)
}

func TestSectionSubmitConfirmedAdvancesOneSection(t *testing.T) {
	client := &fakeClient{meta: twoSectionMeta(time.Now(), 60, 0)}
	c := newTestController(t, client, nil, nil, Options{})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	res, err := c.RequestSectionSubmit()
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.NotNil(t, res.Section)
	assert.Equal(t, int64(1), res.Section.SectionID)
	assert.Equal(t, model.StateSectionSubmitPending, c.State().State)

	require.NoError(t, c.ConfirmPendingSubmit(context.Background()))

	st := c.State()
	assert.Equal(t, model.StateInSection, st.State)
	assert.Equal(t, 1, st.Attempt.CurrentSectionIndex)
	assert.Equal(t, 0, st.Attempt.CurrentQuestionIndex)
}

func TestCancelPendingSubmit(t *testing.T) {
	client := &fakeClient{meta: twoSectionMeta(time.Now(), 60, 0)}
	c := newTestController(t, client, nil, nil, Options{})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	assert.ErrorIs(t, c.CancelPendingSubmit(), ErrNoPendingSubmit)

	_, err = c.RequestTestSubmit()
	require.NoError(t, err)
	require.NoError(t, c.CancelPendingSubmit())
	assert.Equal(t, model.StateInSection, c.State().State)
}

func TestTestGateBlocksThenFinalizes(t *testing.T) {
	// Attempt started 10 minutes ago; the gate requires 20.
	client := &fakeClient{meta: twoSectionMeta(time.Now().Add(-10*time.Minute), 60, 0)}
	c := newTestController(t, client, nil, nil, Options{MinTestTime: 20 * time.Minute})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	res, err := c.RequestTestSubmit()
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	c.mu.Lock()
	c.opts.MinTestTime = time.Minute
	c.mu.Unlock()

	res, err = c.RequestTestSubmit()
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.NotNil(t, res.Summary)
	assert.Equal(t, 3, res.Summary.Overall.Total)

	require.NoError(t, c.ConfirmPendingSubmit(context.Background()))
	assert.Equal(t, model.StateFinalized, c.State().State)
	assert.Equal(t, 1, client.endCount())
}

func TestAdvanceSectionRejectsLastSection(t *testing.T) {
	client := &fakeClient{meta: twoSectionMeta(time.Now(), 60, 0)}
	c := newTestController(t, client, nil, nil, Options{})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	require.NoError(t, c.AdvanceSection(context.Background()))
	assert.ErrorIs(t, c.AdvanceSection(context.Background()), ErrNoNextSection)
}

func TestVoluntaryFinalizeRetriesAfterFailure(t *testing.T) {
	client := &fakeClient{meta: twoSectionMeta(time.Now(), 60, 0), failEnd: 1}
	c := newTestController(t, client, nil, nil, Options{})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	err = c.FinalizeAttempt(context.Background())
	assert.ErrorIs(t, err, ErrSubmitFailed)
	assert.Equal(t, model.StateInSection, c.State().State)

	require.NoError(t, c.FinalizeAttempt(context.Background()))
	assert.Equal(t, model.StateFinalized, c.State().State)
	assert.ErrorIs(t, c.FinalizeAttempt(context.Background()), ErrAlreadyFinalized)
}

func TestTestClockExpiryForcesFinalize(t *testing.T) {
	// One-minute box with all but 50ms already elapsed: five ticks remain.
	started := time.Now().Add(-(time.Minute - 50*time.Millisecond))
	client := &fakeClient{
		meta: twoSectionMeta(started, 1, 0),
		questions: map[int64]*model.Question{
			101: choiceQuestion(101, model.KindSingleChoice),
		},
	}
	c := newTestController(t, client, nil, nil, Options{})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	// Candidate is mid-edit on an unsaved question; expiry must not wait.
	_, err = c.JumpTo(context.Background(), 101)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return c.State().State == model.StateFinalized
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, client.endCount())

	// Idempotent expiry: give any stray callback a chance to re-fire.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, client.endCount())
}

func TestSectionClockExpiryForcesAdvance(t *testing.T) {
	now := time.Now()
	client := &fakeClient{meta: twoSectionMeta(now, 60, 1)}
	snapshots := &fakeStore{snap: &store.Snapshot{
		StartedAt:        now,
		SectionEnteredAt: now.Add(-(time.Minute - 30*time.Millisecond)),
	}}
	// A huge section gate proves forced transitions bypass it.
	c := newTestController(t, client, snapshots, nil, Options{MinSectionTime: time.Hour})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return c.State().Attempt.CurrentSectionIndex == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, model.StateInSection, c.State().State)
	assert.Equal(t, 0, client.endCount())
}

func TestBackToBackAdvancesLeaveNoStaleSectionClock(t *testing.T) {
	client := &fakeClient{meta: &upstream.AttemptMetadata{
		AttemptID:          9002,
		TestTimeBoxMinutes: 60,
		StartedAt:          time.Now(),
		Sections: []upstream.SectionMetadata{
			{SectionID: 1, SectionName: "Aptitude", QuestionIDs: []int64{101}},
			{SectionID: 2, SectionName: "Reasoning", TimeBoxMinutes: 30, QuestionIDs: []int64{201}},
			{SectionID: 3, SectionName: "English", QuestionIDs: []int64{301}},
		},
	}}
	c := newTestController(t, client, nil, nil, Options{})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	// Two advances in quick succession: into the boxed section and straight
	// out of it. Section two's clock must not survive into section three.
	require.NoError(t, c.AdvanceSection(context.Background()))
	require.NoError(t, c.AdvanceSection(context.Background()))

	st := c.State()
	require.Equal(t, 2, st.Attempt.CurrentSectionIndex)
	assert.Equal(t, int64(-1), st.SectionRemainingMS)

	// No leaked clock may force a transition out of the last section.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, c.State().Attempt.CurrentSectionIndex)
	assert.Equal(t, model.StateInSection, c.State().State)
}

func TestUndecodableSnapshotAnswerCountsUnanswered(t *testing.T) {
	now := time.Now()
	client := &fakeClient{
		meta: twoSectionMeta(now, 60, 0),
		questions: map[int64]*model.Question{
			101: choiceQuestion(101, model.KindSingleChoice),
		},
	}
	snapshots := &fakeStore{snap: &store.Snapshot{
		Answers:   map[int64]string{101: `{"not":"a list"}`},
		Statuses:  map[int64]model.QuestionStatus{101: model.StatusAttempted},
		StartedAt: now,
	}}
	c := newTestController(t, client, snapshots, nil, Options{})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	view, err := c.JumpTo(context.Background(), 101)
	require.NoError(t, err)
	assert.NotEmpty(t, view.DecodeFailure)
	assert.Equal(t, model.StatusUnattempted, view.Status)
	assert.True(t, view.Value.IsEmpty())
	assert.Equal(t, 0, c.SummaryNow().Overall.Attempted)

	// A fresh save recovers the question.
	saved, err := c.SubmitAnswer(context.Background(), &model.AnswerEditRequest{
		QuestionID: 101,
		Selections: []string{"A"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAttempted, saved.Status)
	assert.Equal(t, 1, c.SummaryNow().Overall.Attempted)
}

func TestFinalizeWinsOverSectionAdvance(t *testing.T) {
	now := time.Now()
	// Test clock expires one tick before the section clock.
	client := &fakeClient{meta: twoSectionMeta(now.Add(-(time.Minute - 15*time.Millisecond)), 1, 1)}
	snapshots := &fakeStore{snap: &store.Snapshot{
		StartedAt:        now.Add(-(time.Minute - 15*time.Millisecond)),
		SectionEnteredAt: now.Add(-(time.Minute - 35*time.Millisecond)),
	}}
	c := newTestController(t, client, snapshots, nil, Options{})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return c.State().State == model.StateFinalized
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	st := c.State()
	assert.Equal(t, 0, st.Attempt.CurrentSectionIndex, "advance must not run once finalize won")
	assert.Equal(t, 1, client.endCount())
}

func TestForcedFinalizeQueuesRetryOnUpstreamFailure(t *testing.T) {
	started := time.Now().Add(-(time.Minute - 30*time.Millisecond))
	client := &fakeClient{meta: twoSectionMeta(started, 1, 0), failEnd: -1}
	queue := &recordingQueue{}
	c := newTestController(t, client, nil, queue, Options{})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return queue.count() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Time legitimately ran out: the session ends locally even though the
	// upstream write is still owed.
	assert.Equal(t, model.StateFinalized, c.State().State)
}

func TestResumeFromSnapshot(t *testing.T) {
	now := time.Now()
	client := &fakeClient{
		meta: twoSectionMeta(now.Add(-5*time.Minute), 60, 0),
		questions: map[int64]*model.Question{
			102: choiceQuestion(102, model.KindMultiChoice),
		},
	}
	snapshots := &fakeStore{snap: &store.Snapshot{
		Answers:          map[int64]string{101: `["B"]`},
		Statuses:         map[int64]model.QuestionStatus{101: model.StatusAttempted, 102: model.StatusUnattempted},
		SectionIndex:     0,
		QuestionIndex:    1,
		StartedAt:        now.Add(-5 * time.Minute),
		SectionEnteredAt: now.Add(-5 * time.Minute),
	}}
	c := newTestController(t, client, snapshots, nil, Options{})

	attempt, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	assert.Equal(t, model.StatusAttempted, attempt.Sections[0].Questions[0].Status)
	assert.Equal(t, `["B"]`, attempt.Sections[0].Questions[0].Raw)
	assert.Equal(t, 1, attempt.CurrentQuestionIndex)

	// The test clock resumed from the original start, not from reload.
	st := c.State()
	assert.Less(t, st.TestRemainingMS, int64(56*time.Minute/time.Millisecond))
}

func TestTimeWarningEmittedOnce(t *testing.T) {
	started := time.Now().Add(-(time.Minute - 60*time.Millisecond))
	client := &fakeClient{meta: twoSectionMeta(started, 1, 0)}
	c := newTestController(t, client, nil, nil, Options{TimeWarning: 40 * time.Millisecond})

	warned := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range c.Events() {
			if ev.Type == EventTimeWarning {
				warned++
			}
			if ev.Type == EventFinalized {
				return
			}
		}
	}()

	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("attempt did not finalize in time")
	}
	assert.Equal(t, 1, warned)
}

func TestRegistryLoadIsIdempotent(t *testing.T) {
	client := &fakeClient{meta: twoSectionMeta(time.Now(), 60, 0)}
	reg := NewRegistry(client, store.Noop{}, NoopQueue{}, Options{TickInterval: 10 * time.Millisecond}, zerolog.Nop())

	ctrl1, attempt, err := reg.Load(context.Background(), 7, 42)
	require.NoError(t, err)
	defer ctrl1.Shutdown()

	ctrl2, _, err := reg.Load(context.Background(), 7, 42)
	require.NoError(t, err)
	assert.Same(t, ctrl1, ctrl2)

	got, err := reg.Get(attempt.AttemptID)
	require.NoError(t, err)
	assert.Same(t, ctrl1, got)

	_, err = reg.Get(123456)
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestRegistryDeregistersOnFinalize(t *testing.T) {
	client := &fakeClient{meta: twoSectionMeta(time.Now(), 60, 0)}
	reg := NewRegistry(client, store.Noop{}, NoopQueue{}, Options{TickInterval: 10 * time.Millisecond}, zerolog.Nop())

	ctrl, attempt, err := reg.Load(context.Background(), 7, 42)
	require.NoError(t, err)

	require.NoError(t, ctrl.FinalizeAttempt(context.Background()))

	_, err = reg.Get(attempt.AttemptID)
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestSubmitSerializationPerQuestion(t *testing.T) {
	client := &fakeClient{
		meta: twoSectionMeta(time.Now(), 60, 0),
		questions: map[int64]*model.Question{
			101: choiceQuestion(101, model.KindMultiChoice),
		},
	}
	c := newTestController(t, client, nil, nil, Options{})
	_, err := c.LoadAttempt(context.Background(), 7, 42)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = c.SubmitAnswer(context.Background(), &model.AnswerEditRequest{
				QuestionID: 101,
				Selections: []string{fmt.Sprintf("%c", 'A'+n%4)},
			})
		}(i)
	}
	wg.Wait()

	// Whatever order the writes landed in, the local raw matches the last
	// accepted upstream write for this question.
	rec, ok := client.lastSubmit()
	require.True(t, ok)
	st := c.State()
	assert.Equal(t, rec.raw, st.Attempt.Sections[0].Questions[0].Raw)
}
