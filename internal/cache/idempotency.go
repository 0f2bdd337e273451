package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// IdempotencyCache maps a caller-supplied idempotency key to the exact
// response payload returned to the original request. Replays within the
// TTL get the stored bytes back without re-executing the movement.
type IdempotencyCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewIdempotencyCache(client redis.UniversalClient, ttl time.Duration) *IdempotencyCache {
	return &IdempotencyCache{client: client, ttl: ttl}
}

func responseKey(key string) string { return "idem:resp:" + key }
func lockKey(key string) string     { return "idem:lock:" + key }

// Get returns the cached response for the key, or ok=false on a miss.
func (c *IdempotencyCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := c.client.Get(ctx, responseKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read idempotency cache: %w", err)
	}
	return payload, true, nil
}

// Put stores the response payload under the key for the configured TTL.
func (c *IdempotencyCache) Put(ctx context.Context, key string, payload []byte) error {
	if err := c.client.Set(ctx, responseKey(key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write idempotency cache: %w", err)
	}
	return nil
}

// unlockScript deletes the lock only when the caller still holds it.
const unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

// InFlightLock guards a fresh idempotency key while the original
// request executes, so a concurrent duplicate cannot run the mutation a
// second time before the response lands in the cache.
type InFlightLock struct {
	client redis.UniversalClient
	key    string
	value  string
}

// Acquire takes the in-flight lock for the key. It does not wait: a
// held lock means a duplicate is already executing and the caller
// should fail fast.
func (c *IdempotencyCache) Acquire(ctx context.Context, key string, timeout time.Duration) (*InFlightLock, error) {
	lock := &InFlightLock{
		client: c.client,
		key:    lockKey(key),
		value:  uuid.New().String(),
	}

	ok, err := c.client.SetNX(ctx, lock.key, lock.value, timeout).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire in-flight lock: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return lock, nil
}

// Release frees the lock if the caller still holds it. An expired lock
// is not an error.
func (l *InFlightLock) Release(ctx context.Context) error {
	if err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Err(); err != nil {
		return fmt.Errorf("failed to release in-flight lock: %w", err)
	}
	return nil
}
