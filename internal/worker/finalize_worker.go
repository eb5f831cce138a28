package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cognivia/exam-engine/internal/config"
	"github.com/cognivia/exam-engine/internal/upstream"
)

// FinalizeWorker consumes finalize_retry_queue and replays end-attempt calls
// the forced-expiry path could not deliver upstream. A timed-out attempt's
// finalize is never dropped: failures go back on the queue.
type FinalizeWorker struct {
	client upstream.Client
	rdb    *redis.Client
	log    zerolog.Logger
}

// NewFinalizeWorker creates a new FinalizeWorker.
func NewFinalizeWorker(client upstream.Client, rdb *redis.Client, log zerolog.Logger) *FinalizeWorker {
	return &FinalizeWorker{
		client: client,
		rdb:    rdb,
		log:    log.With().Str("component", "finalize_worker").Logger(),
	}
}

type finalizePayload struct {
	AttemptID int64 `json:"attempt_id"`
	UserID    int64 `json:"user_id"`
}

// EnqueueFinalize queues an end-attempt job for background delivery.
// Satisfies session.FinalizeQueue.
func (w *FinalizeWorker) EnqueueFinalize(ctx context.Context, attemptID, userID int64) error {
	body, err := json.Marshal(finalizePayload{AttemptID: attemptID, UserID: userID})
	if err != nil {
		return fmt.Errorf("marshal finalize job: %w", err)
	}
	if err := w.rdb.RPush(ctx, config.WorkerKey.FinalizeRetryQueue, body).Err(); err != nil {
		return fmt.Errorf("enqueue finalize job: %w", err)
	}
	return nil
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *FinalizeWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *FinalizeWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.FinalizeRetryQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var payload finalizePayload
	if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.endAttempt(ctx, &payload); err != nil {
		w.log.Error().Err(err).
			Int64("attempt_id", payload.AttemptID).
			Int64("user_id", payload.UserID).
			Msg("End attempt error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.FinalizeRetryQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *FinalizeWorker) endAttempt(ctx context.Context, p *finalizePayload) error {
	err := w.client.EndAttempt(ctx, p.AttemptID, p.UserID)
	if err == nil {
		w.log.Info().Int64("attempt_id", p.AttemptID).Msg("Queued finalize delivered")
		return nil
	}
	// An attempt the platform no longer knows was ended by another path;
	// retrying forever would wedge the queue.
	if errors.Is(err, upstream.ErrNotFound) {
		w.log.Warn().Int64("attempt_id", p.AttemptID).Msg("Attempt gone upstream, dropping job")
		return nil
	}
	return err
}

// drain processes all remaining items in the queue before shutdown.
func (w *FinalizeWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.FinalizeRetryQueue).Result()
		if err != nil {
			break
		}

		var payload finalizePayload
		if err := json.Unmarshal([]byte(result), &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.endAttempt(ctx, &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain end attempt error")
			w.rdb.RPush(ctx, config.WorkerKey.FinalizeRetryQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
