package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) (*LockoutTracker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLockoutTracker(client, time.Hour), mr
}

func TestLockoutTracker_CountsConsecutiveFailures(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		got, err := tracker.RecordFailure(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestLockoutTracker_OwnersAreIndependent(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.RecordFailure(ctx, "owner-1")
	require.NoError(t, err)

	count, err := tracker.RecordFailure(ctx, "owner-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestLockoutTracker_WindowExpiry(t *testing.T) {
	tracker, mr := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := tracker.RecordFailure(ctx, "owner-1")
		require.NoError(t, err)
	}

	mr.FastForward(2 * time.Hour)

	count, err := tracker.RecordFailure(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "counter must restart after the window lapses")
}

func TestLockoutTracker_FailuresReadsWithoutIncrement(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	count, err := tracker.Failures(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, err = tracker.RecordFailure(ctx, "owner-1")
	require.NoError(t, err)

	count, err = tracker.Failures(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestLockoutTracker_ConcurrentFailuresLoseNoUpdates(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	const attempts = 20
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.RecordFailure(ctx, "owner-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := tracker.Failures(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(attempts), count)
}
