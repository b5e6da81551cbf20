// Package lock provides the TTL-based idempotency lock guarding each
// (job, stage) pair against duplicate concurrent execution under
// at-least-once task delivery.
package lock

import (
	"context"
	"time"
)

// StageLock is an atomic set-if-absent lock with expiry. Acquire returns
// false when another execution already holds the key; callers must then
// abort without side effects. Release is best effort and never reports
// an error to callers.
type StageLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string)
}

// Key builds the canonical lock key for a (job, stage) pair.
func Key(jobID, stage string) string {
	return "lock:" + jobID + ":" + stage
}
