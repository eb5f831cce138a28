package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cognivia/exam-engine/internal/model"
	"github.com/cognivia/exam-engine/internal/store"
	"github.com/cognivia/exam-engine/internal/upstream"
)

// Registry holds the live controller for every in-progress attempt on this
// gateway. Load is idempotent per (test, user): a candidate reloading the
// exam page reattaches to the same controller instead of resetting clocks.
type Registry struct {
	mu      sync.Mutex
	byID    map[int64]*Controller
	byOwner map[string]int64 // "testID:userID" -> attemptID

	client    upstream.Client
	snapshots store.SnapshotStore
	queue     FinalizeQueue
	opts      Options
	log       zerolog.Logger
}

func NewRegistry(client upstream.Client, snapshots store.SnapshotStore, queue FinalizeQueue, opts Options, log zerolog.Logger) *Registry {
	return &Registry{
		byID:      make(map[int64]*Controller),
		byOwner:   make(map[string]int64),
		client:    client,
		snapshots: snapshots,
		queue:     queue,
		opts:      opts,
		log:       log,
	}
}

func ownerKey(testID, userID int64) string {
	return fmt.Sprintf("%d:%d", testID, userID)
}

// Load returns the live controller for the candidate's attempt, creating and
// loading one on first call.
func (r *Registry) Load(ctx context.Context, testID, userID int64) (*Controller, *model.Attempt, error) {
	r.mu.Lock()
	if id, ok := r.byOwner[ownerKey(testID, userID)]; ok {
		if ctrl, live := r.byID[id]; live {
			r.mu.Unlock()
			return ctrl, ctrl.State().Attempt, nil
		}
	}
	r.mu.Unlock()

	ctrl := NewController(r.client, r.snapshots, r.queue, r.opts, r.log.With().Int64("test_id", testID).Int64("user_id", userID).Logger())
	attempt, err := ctrl.LoadAttempt(ctx, testID, userID)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// A concurrent load for the same candidate may have won; keep the first.
	if id, ok := r.byOwner[ownerKey(testID, userID)]; ok {
		if existing, live := r.byID[id]; live {
			ctrl.Shutdown()
			return existing, existing.State().Attempt, nil
		}
	}
	r.byID[attempt.AttemptID] = ctrl
	r.byOwner[ownerKey(testID, userID)] = attempt.AttemptID
	ctrl.mu.Lock()
	finalized := ctrl.state == model.StateFinalized
	ctrl.onTerminal = func(attemptID int64) {
		r.remove(attemptID, testID, userID)
	}
	ctrl.mu.Unlock()
	// The clock may have expired and finalized during LoadAttempt, before the
	// terminal hook existed; deregister inline in that case.
	if finalized {
		delete(r.byID, attempt.AttemptID)
		delete(r.byOwner, ownerKey(testID, userID))
	}
	return ctrl, attempt, nil
}

// Get returns the live controller for an attempt.
func (r *Registry) Get(attemptID int64) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctrl, ok := r.byID[attemptID]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return ctrl, nil
}

// Shutdown stops every live attempt's clocks. Snapshots keep attempts
// resumable after a restart.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ctrl := range r.byID {
		ctrl.Shutdown()
	}
}

func (r *Registry) remove(attemptID, testID, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, attemptID)
	delete(r.byOwner, ownerKey(testID, userID))
	r.log.Debug().Int64("attempt_id", attemptID).Msg("attempt deregistered")
}
