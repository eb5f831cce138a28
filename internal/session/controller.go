// Package session owns the live state of in-progress exam attempts. Each
// attempt gets exactly one Controller, which is the sole writer of its
// Attempt: handlers relay candidate intents (jump, answer, clear, submit)
// through controller methods and receive read-only projections back.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cognivia/exam-engine/internal/codec"
	"github.com/cognivia/exam-engine/internal/model"
	"github.com/cognivia/exam-engine/internal/progress"
	"github.com/cognivia/exam-engine/internal/store"
	"github.com/cognivia/exam-engine/internal/timer"
	"github.com/cognivia/exam-engine/internal/upstream"
)

// EventType tags the realtime events pushed to connected clients.
type EventType string

const (
	EventTestTick        EventType = "test_tick"
	EventSectionTick     EventType = "section_tick"
	EventTimeWarning     EventType = "time_warning"
	EventSectionAdvanced EventType = "section_advanced"
	EventSubmitForced    EventType = "submit_forced"
	EventFinalized       EventType = "finalized"
)

// Event is a single realtime notification for an attempt.
type Event struct {
	Type         EventType `json:"type"`
	AttemptID    int64     `json:"attempt_id"`
	RemainingMS  int64     `json:"remaining_ms,omitempty"`
	SectionIndex int       `json:"section_index,omitempty"`
	Forced       bool      `json:"forced,omitempty"`
}

// GateResult is the outcome of a voluntary submit request. A rejected gate is
// a normal result, not an error: the reason is shown to the candidate and no
// state changes.
type GateResult struct {
	Allowed bool            `json:"allowed"`
	Reason  string          `json:"reason,omitempty"`
	Section *SectionSummary `json:"section,omitempty"`
	Summary *Summary        `json:"summary,omitempty"`
}

// QuestionView pairs a question with the candidate's current editable value,
// for rendering the answer widget.
type QuestionView struct {
	Question *model.Question      `json:"question"`
	Value    *codec.Value         `json:"value"`
	Status   model.QuestionStatus `json:"status"`
	// DecodeFailure is set when the stored answer could not be decoded for
	// the question's kind. The question behaves as unanswered until the
	// candidate saves a fresh value.
	DecodeFailure string `json:"decode_failure,omitempty"`
}

// FinalizeQueue accepts finalize jobs that must survive upstream outages.
type FinalizeQueue interface {
	EnqueueFinalize(ctx context.Context, attemptID, userID int64) error
}

// NoopQueue drops finalize jobs. Test use only.
type NoopQueue struct{}

func (NoopQueue) EnqueueFinalize(context.Context, int64, int64) error { return nil }

// Options configures a controller's time gates and clock granularity.
type Options struct {
	// MinSectionTime is the minimum elapsed time in a section before a
	// voluntary section submit is allowed.
	MinSectionTime time.Duration
	// MinTestTime is the minimum elapsed attempt time before a voluntary
	// test submit is allowed.
	MinTestTime time.Duration
	// TimeWarning, when positive, emits a warning event once the test clock
	// drops to or below it.
	TimeWarning time.Duration
	// TickInterval overrides the clock tick granularity. Zero means one
	// second; tests shrink it.
	TickInterval time.Duration
}

// Controller drives one attempt's session: position, answers, statuses, the
// two clocks and the coarse lifecycle state. All exported methods are safe
// for concurrent use.
type Controller struct {
	mu        sync.Mutex
	opts      Options
	log       zerolog.Logger
	client    upstream.Client
	snapshots store.SnapshotStore
	queue     FinalizeQueue

	attempt *model.Attempt
	state   model.LifecycleState

	// questions caches fetched question bodies; values holds the editable
	// answer state per question.
	questions    map[int64]*model.Question
	values       map[int64]*codec.Value
	decodeFailed map[int64]string

	testClock        *timer.Countdown
	sectionClock     *timer.Countdown
	sectionEnteredAt time.Time
	testExpired      bool
	warned           bool

	// inFlight serializes answer submits per question so a late retry can
	// never overwrite a newer write with stale raw.
	inFlight map[int64]*sync.Mutex

	events chan Event

	// onTerminal runs once when the attempt reaches FINALIZED, outside the
	// controller lock. Set by the registry to deregister the attempt.
	onTerminal func(attemptID int64)
}

// NewController builds a controller in the LOADING state. Call LoadAttempt
// before anything else.
func NewController(client upstream.Client, snapshots store.SnapshotStore, queue FinalizeQueue, opts Options, log zerolog.Logger) *Controller {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	return &Controller{
		opts:         opts,
		log:          log,
		client:       client,
		snapshots:    snapshots,
		queue:        queue,
		state:        model.StateLoading,
		questions:    make(map[int64]*model.Question),
		values:       make(map[int64]*codec.Value),
		decodeFailed: make(map[int64]string),
		inFlight:     make(map[int64]*sync.Mutex),
		events:       make(chan Event, 64),
	}
}

// Events exposes the attempt's realtime event stream. Events are dropped,
// never blocked on, when no consumer keeps up.
func (c *Controller) Events() <-chan Event {
	return c.events
}

func (c *Controller) emit(ev Event) {
	ev.AttemptID = c.attemptID()
	select {
	case c.events <- ev:
	default:
		c.log.Debug().Str("event", string(ev.Type)).Msg("event dropped, stream consumer behind")
	}
}

func (c *Controller) attemptID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt == nil {
		return 0
	}
	return c.attempt.AttemptID
}

// ─────────────────────────────────────────────────────────────────────
// Loading
// ─────────────────────────────────────────────────────────────────────

// LoadAttempt fetches section and question metadata from the platform, builds
// every QuestionProgress at NOT_VISITED and overlays any snapshot left by a
// previous gateway run, so a reloading candidate keeps answers, statuses,
// position and the original clock origin.
func (c *Controller) LoadAttempt(ctx context.Context, testID, userID int64) (*model.Attempt, error) {
	meta, err := c.client.FetchAttemptMetadata(ctx, testID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	attempt := &model.Attempt{
		AttemptID:          meta.AttemptID,
		TestID:             testID,
		UserID:             userID,
		TestTimeBoxMinutes: meta.TestTimeBoxMinutes,
		StartedAt:          meta.StartedAt,
	}
	for _, sm := range meta.Sections {
		sec := &model.Section{
			SectionID:      sm.SectionID,
			SectionName:    sm.SectionName,
			TimeBoxMinutes: sm.TimeBoxMinutes,
		}
		for _, qid := range sm.QuestionIDs {
			sec.Questions = append(sec.Questions, &model.QuestionProgress{
				QuestionID: qid,
				Status:     model.StatusNotVisited,
			})
		}
		attempt.Sections = append(attempt.Sections, sec)
	}

	now := time.Now()
	sectionEnteredAt := now

	snap, err := c.snapshots.Load(ctx, attempt.AttemptID)
	if err != nil {
		c.log.Warn().Err(err).Int64("attempt_id", attempt.AttemptID).Msg("snapshot load failed, starting clean")
	} else if snap != nil {
		for _, sec := range attempt.Sections {
			for _, q := range sec.Questions {
				if raw, ok := snap.Answers[q.QuestionID]; ok {
					q.Raw = raw
				}
				if st, ok := snap.Statuses[q.QuestionID]; ok {
					q.Status = st
				}
			}
		}
		if snap.SectionIndex >= 0 && snap.SectionIndex < len(attempt.Sections) {
			attempt.CurrentSectionIndex = snap.SectionIndex
			sec := attempt.Sections[snap.SectionIndex]
			if snap.QuestionIndex >= 0 && snap.QuestionIndex < len(sec.Questions) {
				attempt.CurrentQuestionIndex = snap.QuestionIndex
			}
		}
		if !snap.SectionEnteredAt.IsZero() {
			sectionEnteredAt = snap.SectionEnteredAt
		}
	}

	c.mu.Lock()
	c.attempt = attempt
	c.state = model.StateInSection
	c.sectionEnteredAt = sectionEnteredAt
	c.mu.Unlock()

	if err := c.snapshots.SaveStart(ctx, attempt.AttemptID, attempt.StartedAt); err != nil {
		c.log.Warn().Err(err).Msg("persist start time failed")
	}
	if err := c.snapshots.SaveSectionEntered(ctx, attempt.AttemptID, sectionEnteredAt); err != nil {
		c.log.Warn().Err(err).Msg("persist section entry time failed")
	}

	c.startTestClock(attempt, now)
	c.startSectionClock(attempt.CurrentSection(), sectionEnteredAt, now)

	c.log.Info().
		Int64("attempt_id", attempt.AttemptID).
		Int64("test_id", testID).
		Int64("user_id", userID).
		Int("sections", len(attempt.Sections)).
		Msg("attempt loaded")

	return attempt, nil
}

// startTestClock starts the whole-attempt clock from the time already spent.
// A clock that is already out of time forces finalize immediately.
func (c *Controller) startTestClock(attempt *model.Attempt, now time.Time) {
	budget := time.Duration(attempt.TestTimeBoxMinutes) * time.Minute
	remaining := budget - now.Sub(attempt.StartedAt)
	if remaining < 0 {
		remaining = 0
	}
	clock := timer.NewWithInterval(remaining, c.opts.TickInterval, c.onTestTick, c.onTestExpired)
	c.mu.Lock()
	c.testClock = clock
	c.mu.Unlock()
	clock.Start()
}

// startSectionClock swaps in the clock for the given section. Start runs
// outside the lock: a resumed section whose box already ran out completes
// inline, and that callback takes c.mu.
func (c *Controller) startSectionClock(sec *model.Section, enteredAt, now time.Time) {
	c.mu.Lock()
	clock := c.swapSectionClockLocked(sec, enteredAt, now)
	c.mu.Unlock()
	if clock != nil {
		clock.Start()
	}
}

// swapSectionClockLocked stops any live section clock and installs the new
// one, unstarted. Swaps are serialized under c.mu in advance order, so a
// stale clock from a previous section can never outlive its swap. Unboxed
// sections run without a clock. Caller holds c.mu.
func (c *Controller) swapSectionClockLocked(sec *model.Section, enteredAt, now time.Time) *timer.Countdown {
	if c.sectionClock != nil {
		c.sectionClock.Stop()
		c.sectionClock = nil
	}
	if sec == nil || sec.TimeBoxMinutes <= 0 {
		return nil
	}
	remaining := time.Duration(sec.TimeBoxMinutes)*time.Minute - now.Sub(enteredAt)
	if remaining < 0 {
		remaining = 0
	}
	clock := timer.NewWithInterval(remaining, c.opts.TickInterval, c.onSectionTick, c.onSectionExpired)
	c.sectionClock = clock
	return clock
}

// ─────────────────────────────────────────────────────────────────────
// Navigation and answers
// ─────────────────────────────────────────────────────────────────────

// JumpTo navigates to a question in the current section, fetching its body if
// not cached. Backward jumps are always allowed; cross-section jumps are not,
// sections only change through submits.
func (c *Controller) JumpTo(ctx context.Context, questionID int64) (*QuestionView, error) {
	c.mu.Lock()
	if c.state != model.StateInSection {
		c.mu.Unlock()
		return nil, ErrInvalidState
	}
	attempt := c.attempt
	si, qi, prog := attempt.FindQuestion(questionID)
	if prog == nil {
		c.mu.Unlock()
		return nil, ErrQuestionNotFound
	}
	if si != attempt.CurrentSectionIndex {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: question belongs to another section", ErrInvalidState)
	}
	question := c.questions[questionID]
	c.mu.Unlock()

	if question == nil {
		fetched, err := c.client.FetchQuestion(ctx, questionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
		}
		question = fetched
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != model.StateInSection {
		return nil, ErrInvalidState
	}
	c.questions[questionID] = question
	attempt.CurrentQuestionIndex = qi
	prog.Status = progress.Visit(prog.Status)

	value, ok := c.values[questionID]
	if !ok {
		decoded, derr := codec.Decode(question, prog.Raw)
		if derr != nil {
			var de *codec.DecodeError
			if errors.As(derr, &de) {
				c.decodeFailed[questionID] = de.Reason
				decoded, _ = codec.Empty(question)
				// An unusable stored answer does not count as answered:
				// demote the status and drop the raw until a fresh save.
				prog.Status = progress.Cleared(prog.Status)
				prog.Raw = ""
				c.persistAnswerLocked(ctx, prog)
			} else {
				return nil, derr
			}
		} else {
			delete(c.decodeFailed, questionID)
		}
		value = decoded
		c.values[questionID] = value
	}

	view := &QuestionView{
		Question:      question,
		Value:         value,
		Status:        prog.Status,
		DecodeFailure: c.decodeFailed[questionID],
	}

	c.persistPositionLocked(ctx)
	c.persistStatusLocked(ctx, prog)
	return view, nil
}

// applyEdit replays the request's value through the codec's edit operations,
// so every shape and grammar rule is enforced the same way the answer widgets
// enforce it.
func applyEdit(q *model.Question, req *model.AnswerEditRequest) (*codec.Value, error) {
	v, err := codec.Empty(q)
	if err != nil {
		return nil, err
	}
	switch q.Kind {
	case model.KindSingleChoice, model.KindTrueFalse:
		for _, sel := range req.Selections {
			if err := v.Select(sel); err != nil {
				return nil, err
			}
		}
	case model.KindMultiChoice:
		for _, sel := range req.Selections {
			if err := v.Toggle(sel); err != nil {
				return nil, err
			}
		}
	case model.KindMatchPairsSingle:
		for i, right := range req.Matches {
			if right == "" {
				continue
			}
			if err := v.AssignMatch(i, right); err != nil {
				return nil, err
			}
		}
	case model.KindMatchPairsMultiple:
		for i, row := range req.MultiMatches {
			for _, right := range row {
				if err := v.ToggleMatch(i, right); err != nil {
					return nil, err
				}
			}
		}
	case model.KindNumeric, model.KindFillBlank, model.KindWriteUp:
		if req.Text != nil {
			if err := v.SetText(*req.Text); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

// SubmitAnswer encodes the candidate's edited value, writes it upstream and,
// only on confirmed success, advances the question's status and moves the
// cursor to the next question in section order. Submits for the same question
// are serialized; a second submit queues behind the first instead of racing.
func (c *Controller) SubmitAnswer(ctx context.Context, req *model.AnswerEditRequest) (*QuestionView, error) {
	c.mu.Lock()
	if c.state != model.StateInSection {
		c.mu.Unlock()
		return nil, ErrInvalidState
	}
	attempt := c.attempt
	attemptID := attempt.AttemptID
	si, _, prog := attempt.FindQuestion(req.QuestionID)
	if prog == nil {
		c.mu.Unlock()
		return nil, ErrQuestionNotFound
	}
	if si != attempt.CurrentSectionIndex {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: question belongs to another section", ErrInvalidState)
	}
	question := c.questions[req.QuestionID]
	qmu, ok := c.inFlight[req.QuestionID]
	if !ok {
		qmu = &sync.Mutex{}
		c.inFlight[req.QuestionID] = qmu
	}
	c.mu.Unlock()

	if question == nil {
		fetched, err := c.client.FetchQuestion(ctx, req.QuestionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
		}
		question = fetched
		c.mu.Lock()
		c.questions[req.QuestionID] = question
		c.mu.Unlock()
	}

	qmu.Lock()
	defer qmu.Unlock()

	value, err := applyEdit(question, req)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Encode(value)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	base := progress.Visit(prog.Status)
	var newStatus model.QuestionStatus
	if value.IsEmpty() {
		newStatus = progress.Cleared(base)
	} else {
		newStatus = progress.AnswerSaved(base)
	}
	c.mu.Unlock()

	// The upstream write happens outside the controller lock: a slow call
	// must not stall the clocks or other questions.
	if err := c.client.SubmitAnswer(ctx, attemptID, req.QuestionID, raw, newStatus); err != nil {
		c.log.Warn().Err(err).Int64("question_id", req.QuestionID).Msg("answer write rejected upstream")
		return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// The result binds to the question the call was made for. If the attempt
	// finalized while the write was in flight, the write stands upstream but
	// local state is gone.
	if c.state == model.StateFinalized {
		return nil, ErrAlreadyFinalized
	}
	prog.Status = newStatus
	prog.Raw = raw
	c.values[req.QuestionID] = value
	delete(c.decodeFailed, req.QuestionID)

	c.persistAnswerLocked(ctx, prog)
	c.persistStatusLocked(ctx, prog)

	// Auto-advance only when the candidate is still sitting on this
	// question; a jump made during the in-flight write wins.
	sec := attempt.CurrentSection()
	if c.state == model.StateInSection && sec != nil {
		cur := attempt.CurrentQuestion()
		if cur != nil && cur.QuestionID == req.QuestionID && attempt.CurrentQuestionIndex+1 < len(sec.Questions) {
			attempt.CurrentQuestionIndex++
			next := attempt.CurrentQuestion()
			next.Status = progress.Visit(next.Status)
			c.persistPositionLocked(ctx)
			c.persistStatusLocked(ctx, next)
		}
	}

	return &QuestionView{Question: question, Value: value, Status: prog.Status}, nil
}

// ClearResponse resets a question to its kind-appropriate empty value and
// demotes its status. The cleared value is not written upstream until the
// next explicit save.
func (c *Controller) ClearResponse(ctx context.Context, questionID int64) (*QuestionView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != model.StateInSection {
		return nil, ErrInvalidState
	}
	_, _, prog := c.attempt.FindQuestion(questionID)
	if prog == nil {
		return nil, ErrQuestionNotFound
	}
	question := c.questions[questionID]
	if question == nil {
		return nil, fmt.Errorf("%w: question body not loaded", ErrInvalidState)
	}

	value, err := codec.Empty(question)
	if err != nil {
		return nil, err
	}
	raw, err := codec.EmptyRaw(question)
	if err != nil {
		return nil, err
	}

	prog.Status = progress.Cleared(prog.Status)
	prog.Raw = raw
	c.values[questionID] = value
	delete(c.decodeFailed, questionID)

	c.persistAnswerLocked(ctx, prog)
	c.persistStatusLocked(ctx, prog)

	return &QuestionView{Question: question, Value: value, Status: prog.Status}, nil
}

// ToggleReview flips the question's review flag without touching the
// answered/unanswered distinction.
func (c *Controller) ToggleReview(ctx context.Context, questionID int64) (model.QuestionStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != model.StateInSection {
		return "", ErrInvalidState
	}
	_, _, prog := c.attempt.FindQuestion(questionID)
	if prog == nil {
		return "", ErrQuestionNotFound
	}
	prog.Status = progress.ToggleReview(prog.Status)
	c.persistStatusLocked(ctx, prog)
	return prog.Status, nil
}

// ─────────────────────────────────────────────────────────────────────
// Submits
// ─────────────────────────────────────────────────────────────────────

// RequestSectionSubmit asks to leave the current section. Gated: rejected
// with a reason when the candidate has not spent the configured minimum time
// in the section. When allowed, the controller enters SECTION_SUBMIT_PENDING
// and the section's summary is returned for the confirmation dialog.
func (c *Controller) RequestSectionSubmit() (*GateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != model.StateInSection {
		return nil, ErrInvalidState
	}
	elapsed := time.Since(c.sectionEnteredAt)
	if elapsed < c.opts.MinSectionTime {
		return &GateResult{
			Allowed: false,
			Reason: fmt.Sprintf("section can be submitted after %s, %s elapsed",
				c.opts.MinSectionTime, elapsed.Truncate(time.Second)),
		}, nil
	}
	c.state = model.StateSectionSubmitPending
	return &GateResult{
		Allowed: true,
		Section: SummarizeSection(c.attempt.CurrentSection()),
	}, nil
}

// RequestTestSubmit asks to end the whole attempt. Gated on minimum attempt
// time; when allowed, the controller enters TEST_SUBMIT_PENDING and the
// whole-attempt summary is returned.
func (c *Controller) RequestTestSubmit() (*GateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != model.StateInSection {
		return nil, ErrInvalidState
	}
	elapsed := time.Since(c.attempt.StartedAt)
	if elapsed < c.opts.MinTestTime {
		return &GateResult{
			Allowed: false,
			Reason: fmt.Sprintf("test can be submitted after %s, %s elapsed",
				c.opts.MinTestTime, elapsed.Truncate(time.Second)),
		}, nil
	}
	c.state = model.StateTestSubmitPending
	return &GateResult{
		Allowed: true,
		Summary: Summarize(c.attempt.Sections),
	}, nil
}

// CancelPendingSubmit abandons an unconfirmed submit and returns to the
// section.
func (c *Controller) CancelPendingSubmit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != model.StateSectionSubmitPending && c.state != model.StateTestSubmitPending {
		return ErrNoPendingSubmit
	}
	c.state = model.StateInSection
	return nil
}

// ConfirmPendingSubmit executes the pending submit: a confirmed section
// submit advances one section (or finalizes when leaving the last section), a
// confirmed test submit finalizes.
func (c *Controller) ConfirmPendingSubmit(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case model.StateSectionSubmitPending:
		if c.attempt.CurrentSectionIndex+1 >= len(c.attempt.Sections) {
			c.mu.Unlock()
			return c.finalize(ctx, false)
		}
		c.state = model.StateInSection
		c.advanceSectionLocked(ctx, false)
		c.mu.Unlock()
		return nil
	case model.StateTestSubmitPending:
		c.mu.Unlock()
		return c.finalize(ctx, false)
	default:
		c.mu.Unlock()
		return ErrNoPendingSubmit
	}
}

// advanceSectionLocked moves to the next section, resets the cursor and swaps
// the live section clock. Caller holds c.mu and has verified a next section
// exists.
func (c *Controller) advanceSectionLocked(ctx context.Context, forced bool) {
	attempt := c.attempt
	attempt.CurrentSectionIndex++
	attempt.CurrentQuestionIndex = 0
	now := time.Now()
	c.sectionEnteredAt = now
	sec := attempt.CurrentSection()

	c.persistPositionLocked(ctx)
	if err := c.snapshots.SaveSectionEntered(ctx, attempt.AttemptID, now); err != nil {
		c.log.Warn().Err(err).Msg("persist section entry time failed")
	}

	c.emitLocked(Event{
		Type:         EventSectionAdvanced,
		SectionIndex: attempt.CurrentSectionIndex,
		Forced:       forced,
	})
	c.log.Info().
		Int64("attempt_id", attempt.AttemptID).
		Int("section_index", attempt.CurrentSectionIndex).
		Bool("forced", forced).
		Msg("section advanced")

	// The fresh section enters with its full box, so Start never completes
	// inline and is safe under the lock.
	if clock := c.swapSectionClockLocked(sec, now, now); clock != nil {
		clock.Start()
	}
}

// AdvanceSection is the voluntary, already-confirmed section advance used by
// forced flows and tests. Fails when the current section is the last one.
func (c *Controller) AdvanceSection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != model.StateInSection {
		return ErrInvalidState
	}
	if c.attempt.CurrentSectionIndex+1 >= len(c.attempt.Sections) {
		return ErrNoNextSection
	}
	c.advanceSectionLocked(ctx, false)
	return nil
}

// FinalizeAttempt voluntarily ends the attempt. On upstream failure the
// attempt stays live and the candidate may retry, even after the test clock
// has expired.
func (c *Controller) FinalizeAttempt(ctx context.Context) error {
	return c.finalize(ctx, false)
}

// finalize ends the attempt upstream. Voluntary finalize reports failure to
// the caller for retry. Forced finalize (clock expiry) is unconditional: on
// upstream failure the job is queued for background retry, because losing it
// would strand a candidate whose time has legitimately run out.
func (c *Controller) finalize(ctx context.Context, forced bool) error {
	c.mu.Lock()
	if c.state == model.StateFinalized {
		c.mu.Unlock()
		return ErrAlreadyFinalized
	}
	attempt := c.attempt
	c.mu.Unlock()

	err := c.client.EndAttempt(ctx, attempt.AttemptID, attempt.UserID)
	if err != nil && !forced {
		c.log.Warn().Err(err).Int64("attempt_id", attempt.AttemptID).Msg("finalize rejected upstream")
		return fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	c.mu.Lock()
	if c.state == model.StateFinalized {
		c.mu.Unlock()
		return ErrAlreadyFinalized
	}
	c.state = model.StateFinalized
	if c.testClock != nil {
		c.testClock.Stop()
	}
	if c.sectionClock != nil {
		c.sectionClock.Stop()
	}
	c.emitLocked(Event{Type: EventFinalized, Forced: forced})
	terminal := c.onTerminal
	c.mu.Unlock()

	if err != nil {
		// Forced path with a failed upstream write: hand off to the retry
		// queue so the end-attempt is never silently dropped.
		if qerr := c.queue.EnqueueFinalize(context.WithoutCancel(ctx), attempt.AttemptID, attempt.UserID); qerr != nil {
			c.log.Error().Err(qerr).Int64("attempt_id", attempt.AttemptID).Msg("finalize retry enqueue failed")
		} else {
			c.log.Warn().Err(err).Int64("attempt_id", attempt.AttemptID).Msg("forced finalize queued for retry")
		}
	} else if cerr := c.snapshots.Clear(context.WithoutCancel(ctx), attempt.AttemptID); cerr != nil {
		c.log.Warn().Err(cerr).Int64("attempt_id", attempt.AttemptID).Msg("snapshot clear failed")
	}

	c.log.Info().Int64("attempt_id", attempt.AttemptID).Bool("forced", forced).Msg("attempt finalized")
	if terminal != nil {
		terminal(attempt.AttemptID)
	}
	return nil
}

// Shutdown stops the clocks without finalizing. Used when a duplicate
// controller loses a load race and on gateway shutdown; the snapshot keeps
// the attempt resumable.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.testClock != nil {
		c.testClock.Stop()
	}
	if c.sectionClock != nil {
		c.sectionClock.Stop()
	}
}

// ─────────────────────────────────────────────────────────────────────
// Clock callbacks
// ─────────────────────────────────────────────────────────────────────

func (c *Controller) onTestTick(remaining time.Duration) {
	c.emit(Event{Type: EventTestTick, RemainingMS: remaining.Milliseconds()})

	c.mu.Lock()
	warn := c.opts.TimeWarning > 0 && !c.warned && remaining <= c.opts.TimeWarning
	if warn {
		c.warned = true
	}
	c.mu.Unlock()
	if warn {
		c.emit(Event{Type: EventTimeWarning, RemainingMS: remaining.Milliseconds()})
	}
}

func (c *Controller) onSectionTick(remaining time.Duration) {
	c.emit(Event{Type: EventSectionTick, RemainingMS: remaining.Milliseconds()})
}

// onTestExpired forces finalization regardless of unanswered questions or
// pending confirmations. Fires at most once per attempt.
func (c *Controller) onTestExpired() {
	c.mu.Lock()
	if c.state == model.StateFinalized {
		c.mu.Unlock()
		return
	}
	c.testExpired = true
	c.emitLocked(Event{Type: EventSubmitForced})
	c.mu.Unlock()

	if err := c.finalize(context.Background(), true); err != nil && !errors.Is(err, ErrAlreadyFinalized) {
		c.log.Error().Err(err).Msg("forced finalize failed")
	}
}

// onSectionExpired forces an advance past the expiring section, bypassing the
// minimum-time gate and the confirmation step, or forces finalization when the
// expiring section is the last one. When the test clock runs out in the same
// tick, finalize wins and the advance is skipped.
func (c *Controller) onSectionExpired() {
	c.mu.Lock()
	if c.state == model.StateFinalized {
		c.mu.Unlock()
		return
	}
	if c.testExpired || (c.testClock != nil && (c.testClock.Expired() || c.testClock.Remaining() == 0)) {
		c.mu.Unlock()
		return
	}
	c.emitLocked(Event{Type: EventSubmitForced, SectionIndex: c.attempt.CurrentSectionIndex})

	if c.attempt.CurrentSectionIndex+1 >= len(c.attempt.Sections) {
		c.mu.Unlock()
		if err := c.finalize(context.Background(), true); err != nil && !errors.Is(err, ErrAlreadyFinalized) {
			c.log.Error().Err(err).Msg("forced finalize failed")
		}
		return
	}
	// A pending confirmation dialog does not outlive its section.
	c.state = model.StateInSection
	c.advanceSectionLocked(context.Background(), true)
	c.mu.Unlock()
}

// emitLocked is emit for callers already holding c.mu.
func (c *Controller) emitLocked(ev Event) {
	if c.attempt != nil {
		ev.AttemptID = c.attempt.AttemptID
	}
	select {
	case c.events <- ev:
	default:
		c.log.Debug().Str("event", string(ev.Type)).Msg("event dropped, stream consumer behind")
	}
}

// ─────────────────────────────────────────────────────────────────────
// Projections
// ─────────────────────────────────────────────────────────────────────

// AttemptState is the read-only projection handlers and clients consume.
type AttemptState struct {
	Attempt            *model.Attempt       `json:"attempt"`
	State              model.LifecycleState `json:"state"`
	TestRemainingMS    int64                `json:"test_remaining_ms"`
	SectionRemainingMS int64                `json:"section_remaining_ms"`
	// SectionRemainingMS is -1 when the current section has no time box.
}

// State returns a deep copy of the attempt plus clock readings. Safe to
// marshal without racing controller mutations.
func (c *Controller) State() *AttemptState {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := &AttemptState{State: c.state, SectionRemainingMS: -1}
	if c.attempt == nil {
		return st
	}

	cp := *c.attempt
	cp.Sections = make([]*model.Section, len(c.attempt.Sections))
	for i, sec := range c.attempt.Sections {
		sc := *sec
		sc.Questions = make([]*model.QuestionProgress, len(sec.Questions))
		for j, q := range sec.Questions {
			qc := *q
			sc.Questions[j] = &qc
		}
		cp.Sections[i] = &sc
	}
	st.Attempt = &cp

	if c.testClock != nil {
		st.TestRemainingMS = c.testClock.Remaining().Milliseconds()
	}
	if c.sectionClock != nil {
		st.SectionRemainingMS = c.sectionClock.Remaining().Milliseconds()
	}
	return st
}

// SummaryNow recomputes the whole-attempt summary on demand.
func (c *Controller) SummaryNow() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Summarize(c.attempt.Sections)
}

// ─────────────────────────────────────────────────────────────────────
// Snapshot persistence (best effort)
// ─────────────────────────────────────────────────────────────────────

func (c *Controller) persistAnswerLocked(ctx context.Context, q *model.QuestionProgress) {
	if err := c.snapshots.SaveAnswer(ctx, c.attempt.AttemptID, q.QuestionID, q.Raw); err != nil {
		c.log.Warn().Err(err).Int64("question_id", q.QuestionID).Msg("persist answer failed")
	}
}

func (c *Controller) persistStatusLocked(ctx context.Context, q *model.QuestionProgress) {
	if err := c.snapshots.SaveStatus(ctx, c.attempt.AttemptID, q.QuestionID, q.Status); err != nil {
		c.log.Warn().Err(err).Int64("question_id", q.QuestionID).Msg("persist status failed")
	}
}

func (c *Controller) persistPositionLocked(ctx context.Context) {
	if err := c.snapshots.SavePosition(ctx, c.attempt.AttemptID, c.attempt.CurrentSectionIndex, c.attempt.CurrentQuestionIndex); err != nil {
		c.log.Warn().Err(err).Msg("persist position failed")
	}
}
