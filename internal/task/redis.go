package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	pendingKey    = "tasks:pending"
	processingKey = "tasks:processing"
)

// RedisQueue is the multi-node queue backend. Tasks move atomically from
// the pending list to a processing list on dequeue, so an unacked
// delivery survives a consumer crash and can be requeued by Recover.
type RedisQueue struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisQueue(client *redis.Client, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQueue{client: client, logger: logger}
}

func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := q.client.LPush(ctx, pendingKey, raw).Err(); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	q.logger.Debug("task queued", "job_id", t.JobID, "stage", t.Stage, "attempt", t.Attempt)
	return nil
}

// Dequeue blocks in short intervals so context cancellation is observed
// between polls.
func (q *RedisQueue) Dequeue(ctx context.Context) (Task, error) {
	for {
		raw, err := q.client.BLMove(ctx, pendingKey, processingKey, "RIGHT", "LEFT", 2*time.Second).Result()
		if errors.Is(err, redis.Nil) {
			select {
			case <-ctx.Done():
				return Task{}, ctx.Err()
			default:
				continue
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return Task{}, ctx.Err()
			}
			return Task{}, fmt.Errorf("dequeue task: %w", err)
		}
		var t Task
		if derr := json.Unmarshal([]byte(raw), &t); derr != nil {
			// poison entry; drop it from the processing list and move on
			q.logger.Error("undecodable task dropped", "error", derr)
			q.client.LRem(ctx, processingKey, 1, raw)
			continue
		}
		return t, nil
	}
}

func (q *RedisQueue) Ack(ctx context.Context, t Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := q.client.LRem(ctx, processingKey, 1, raw).Err(); err != nil {
		return fmt.Errorf("ack task: %w", err)
	}
	return nil
}

// Recover moves every in-flight task back to pending. Call once at
// startup, before workers begin consuming.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		_, err := q.client.LMove(ctx, processingKey, pendingKey, "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover tasks: %w", err)
		}
		n++
	}
}

func (q *RedisQueue) Shutdown(context.Context) {}
