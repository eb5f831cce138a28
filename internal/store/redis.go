package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cognivia/exam-engine/internal/config"
	"github.com/cognivia/exam-engine/internal/model"
)

// snapshotTTL keeps abandoned attempts from pinning Redis memory forever.
// Well beyond any realistic test duration.
const snapshotTTL = 24 * time.Hour

// RedisStore keeps attempt snapshots in Redis hashes and scalar keys.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) SaveAnswer(ctx context.Context, attemptID, questionID int64, raw string) error {
	key := config.CacheKey.AttemptAnswersKey(attemptID)
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, strconv.FormatInt(questionID, 10), raw)
	pipe.Expire(ctx, key, snapshotTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveStatus(ctx context.Context, attemptID, questionID int64, status model.QuestionStatus) error {
	key := config.CacheKey.AttemptStatusKey(attemptID)
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, strconv.FormatInt(questionID, 10), string(status))
	pipe.Expire(ctx, key, snapshotTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save status: %w", err)
	}
	return nil
}

func (s *RedisStore) SavePosition(ctx context.Context, attemptID int64, sectionIdx, questionIdx int) error {
	key := config.CacheKey.AttemptPositionKey(attemptID)
	val := fmt.Sprintf("%d:%d", sectionIdx, questionIdx)
	if err := s.rdb.Set(ctx, key, val, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveStart(ctx context.Context, attemptID int64, startedAt time.Time) error {
	key := config.CacheKey.AttemptStartKey(attemptID)
	if err := s.rdb.Set(ctx, key, startedAt.Unix(), snapshotTTL).Err(); err != nil {
		return fmt.Errorf("save start time: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveSectionEntered(ctx context.Context, attemptID int64, enteredAt time.Time) error {
	key := config.CacheKey.SectionEnteredKey(attemptID)
	if err := s.rdb.Set(ctx, key, enteredAt.Unix(), snapshotTTL).Err(); err != nil {
		return fmt.Errorf("save section entry time: %w", err)
	}
	return nil
}

// Load reassembles a snapshot from Redis. Returns (nil, nil) when no start
// time exists, meaning the attempt was never seen by this store.
func (s *RedisStore) Load(ctx context.Context, attemptID int64) (*Snapshot, error) {
	startVal, err := s.rdb.Get(ctx, config.CacheKey.AttemptStartKey(attemptID)).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("get start time: %w", err)
	}
	startUnix, err := strconv.ParseInt(startVal, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid start time format in cache: %w", err)
	}

	snap := &Snapshot{
		Answers:   make(map[int64]string),
		Statuses:  make(map[int64]model.QuestionStatus),
		StartedAt: time.Unix(startUnix, 0),
	}

	answers, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attemptID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get answers: %w", err)
	}
	for field, raw := range answers {
		qid, parseErr := strconv.ParseInt(field, 10, 64)
		if parseErr != nil {
			continue
		}
		snap.Answers[qid] = raw
	}

	statuses, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptStatusKey(attemptID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get statuses: %w", err)
	}
	for field, st := range statuses {
		qid, parseErr := strconv.ParseInt(field, 10, 64)
		if parseErr != nil {
			continue
		}
		snap.Statuses[qid] = model.QuestionStatus(st)
	}

	posVal, err := s.rdb.Get(ctx, config.CacheKey.AttemptPositionKey(attemptID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	if err == nil {
		if _, scanErr := fmt.Sscanf(posVal, "%d:%d", &snap.SectionIndex, &snap.QuestionIndex); scanErr != nil {
			snap.SectionIndex, snap.QuestionIndex = 0, 0
		}
	}

	enteredVal, err := s.rdb.Get(ctx, config.CacheKey.SectionEnteredKey(attemptID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get section entry time: %w", err)
	}
	if err == nil {
		if enteredUnix, parseErr := strconv.ParseInt(enteredVal, 10, 64); parseErr == nil {
			snap.SectionEnteredAt = time.Unix(enteredUnix, 0)
		}
	}

	return snap, nil
}

// Clear removes every snapshot key for the attempt. Called after finalize.
func (s *RedisStore) Clear(ctx context.Context, attemptID int64) error {
	keys := []string{
		config.CacheKey.AttemptStartKey(attemptID),
		config.CacheKey.AttemptAnswersKey(attemptID),
		config.CacheKey.AttemptStatusKey(attemptID),
		config.CacheKey.AttemptPositionKey(attemptID),
		config.CacheKey.SectionEnteredKey(attemptID),
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
