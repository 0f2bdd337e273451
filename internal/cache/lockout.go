package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutTracker counts consecutive failed pin attempts per account
// owner. Counters expire with the window rather than being reset on a
// successful operation.
type LockoutTracker struct {
	client redis.UniversalClient
	window time.Duration
}

func NewLockoutTracker(client redis.UniversalClient, window time.Duration) *LockoutTracker {
	return &LockoutTracker{client: client, window: window}
}

func failureKey(ownerID string) string { return "pinfail:" + ownerID }

// RecordFailure atomically increments the owner's failure counter,
// refreshes the window, and returns the post-increment count. INCR is a
// single atomic read-modify-write; concurrent failures cannot lose
// updates.
func (t *LockoutTracker) RecordFailure(ctx context.Context, ownerID string) (int64, error) {
	key := failureKey(ownerID)

	pipe := t.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, t.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to record pin failure: %w", err)
	}

	return incr.Val(), nil
}

// Failures returns the current count without modifying it.
func (t *LockoutTracker) Failures(ctx context.Context, ownerID string) (int64, error) {
	n, err := t.client.Get(ctx, failureKey(ownerID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read pin failures: %w", err)
	}
	return n, nil
}
