// Package store persists a hot, rebuildable snapshot of each live attempt.
// The upstream platform remains the system of record; the snapshot only lets
// a reloaded candidate (or a restarted gateway) resume with the same answers,
// statuses, position and the same clock origin the time gates depend on.
package store

import (
	"context"
	"time"

	"github.com/cognivia/exam-engine/internal/model"
)

// Snapshot is the persisted view of one attempt.
type Snapshot struct {
	Answers          map[int64]string
	Statuses         map[int64]model.QuestionStatus
	SectionIndex     int
	QuestionIndex    int
	StartedAt        time.Time // zero when no snapshot exists
	SectionEnteredAt time.Time
}

// SnapshotStore is the attempt snapshot persistence surface. All writes are
// best-effort from the controller's point of view: a failed write degrades
// resume fidelity, never the live session.
type SnapshotStore interface {
	SaveAnswer(ctx context.Context, attemptID, questionID int64, raw string) error
	SaveStatus(ctx context.Context, attemptID, questionID int64, status model.QuestionStatus) error
	SavePosition(ctx context.Context, attemptID int64, sectionIdx, questionIdx int) error
	SaveStart(ctx context.Context, attemptID int64, startedAt time.Time) error
	SaveSectionEntered(ctx context.Context, attemptID int64, enteredAt time.Time) error
	Load(ctx context.Context, attemptID int64) (*Snapshot, error)
	Clear(ctx context.Context, attemptID int64) error
}

// Noop discards every write and loads nothing. Used in tests and when the
// gateway runs without Redis.
type Noop struct{}

func (Noop) SaveAnswer(context.Context, int64, int64, string) error { return nil }
func (Noop) SaveStatus(context.Context, int64, int64, model.QuestionStatus) error {
	return nil
}
func (Noop) SavePosition(context.Context, int64, int, int) error           { return nil }
func (Noop) SaveStart(context.Context, int64, time.Time) error             { return nil }
func (Noop) SaveSectionEntered(context.Context, int64, time.Time) error    { return nil }
func (Noop) Load(context.Context, int64) (*Snapshot, error)                { return nil, nil }
func (Noop) Clear(context.Context, int64) error                            { return nil }
