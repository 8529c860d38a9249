package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed Store implementation for deployments that
// already run Redis and want checkpoint reads off the hot path of a SQL
// database.
//
// Key layout (all under the configured prefix):
//   - <prefix>snapshot:<threadID>  serialized Snapshot, plain string
//   - <prefix>steps:<threadID>     sorted set of StepRecord scored by step
//
// Redis string SET is atomic per key, which is all the engine requires on
// top of its own per-thread serialization.
//
// Type parameter S is the state type to persist (JSON-serializable).
type RedisStore[S any] struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing Redis client. The prefix namespaces all
// keys; "convograph:" is a reasonable default.
func NewRedisStore[S any](client *redis.Client, prefix string) *RedisStore[S] {
	return &RedisStore[S]{client: client, prefix: prefix}
}

func (r *RedisStore[S]) snapshotKey(threadID string) string {
	return r.prefix + "snapshot:" + threadID
}

func (r *RedisStore[S]) stepsKey(threadID string) string {
	return r.prefix + "steps:" + threadID
}

// SaveSnapshot overwrites the snapshot for a thread.
func (r *RedisStore[S]) SaveSnapshot(ctx context.Context, threadID string, snap Snapshot[S]) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.snapshotKey(threadID), data, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot for a thread.
func (r *RedisStore[S]) LoadSnapshot(ctx context.Context, threadID string) (Snapshot[S], error) {
	var snap Snapshot[S]
	data, err := r.client.Get(ctx, r.snapshotKey(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return snap, ErrNotFound
	}
	if err != nil {
		return snap, fmt.Errorf("load snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// DeleteSnapshot removes a thread's snapshot and step history.
func (r *RedisStore[S]) DeleteSnapshot(ctx context.Context, threadID string) error {
	if err := r.client.Del(ctx, r.snapshotKey(threadID), r.stepsKey(threadID)).Err(); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return nil
}

// SaveStep appends one committed step to the thread's history.
func (r *RedisStore[S]) SaveStep(ctx context.Context, threadID string, step int, stepID string, state S) error {
	record, err := json.Marshal(StepRecord[S]{Step: step, StepID: stepID, State: state})
	if err != nil {
		return fmt.Errorf("marshal step: %w", err)
	}
	err = r.client.ZAdd(ctx, r.stepsKey(threadID), redis.Z{
		Score:  float64(step),
		Member: record,
	}).Err()
	if err != nil {
		return fmt.Errorf("save step: %w", err)
	}
	return nil
}

// LoadLatest returns the state and step number of the most recent history
// entry for a thread.
func (r *RedisStore[S]) LoadLatest(ctx context.Context, threadID string) (S, int, error) {
	var zero S
	members, err := r.client.ZRevRangeByScore(ctx, r.stepsKey(threadID), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil {
		return zero, 0, fmt.Errorf("load latest: %w", err)
	}
	if len(members) == 0 {
		return zero, 0, ErrNotFound
	}
	var record StepRecord[S]
	if err := json.Unmarshal([]byte(members[0]), &record); err != nil {
		return zero, 0, fmt.Errorf("unmarshal step: %w", err)
	}
	return record.State, record.Step, nil
}
