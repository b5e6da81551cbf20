package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockSingleWinner(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()
	key := Key("job-1", "OCR_LAYOUT")

	const attempts = 32
	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Acquire(ctx, key, time.Minute)
			require.NoError(t, err)
			if ok {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), wins)
}

func TestMemoryLockExpiry(t *testing.T) {
	now := time.Now()
	l := NewMemoryLock()
	l.clock = func() time.Time { return now }
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "k", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Acquire(ctx, "k", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// past the TTL the key is reclaimable
	now = now.Add(31 * time.Second)
	ok, err = l.Acquire(ctx, "k", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLockRelease(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	l.Release(ctx, "k")

	ok, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeyFormat(t *testing.T) {
	assert.Equal(t, "lock:abc:VALIDATE", Key("abc", "VALIDATE"))
}

func TestLocksAreIndependentPerKey(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()

	ok, err := l.Acquire(ctx, Key("job-1", "VALIDATE"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Acquire(ctx, Key("job-2", "VALIDATE"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Acquire(ctx, Key("job-1", "STORE"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
