package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

func TestKeyedExcludesSameKey(t *testing.T) {
	t.Parallel()
	k := NewKeyed()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := k.Acquire(context.Background(), "employer:acme", time.Second)
			if err != nil {
				t.Error(err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
	assert.Zero(t, k.size())
}

func TestKeyedIndependentKeys(t *testing.T) {
	t.Parallel()
	k := NewKeyed()

	releaseA, err := k.Acquire(context.Background(), "a", 0)
	require.NoError(t, err)
	releaseB, err := k.Acquire(context.Background(), "b", 0)
	require.NoError(t, err)
	releaseA()
	releaseB()
}

func TestKeyedHeldReturnsErrLockHeld(t *testing.T) {
	t.Parallel()
	k := NewKeyed()

	release, err := k.Acquire(context.Background(), "pass:lock", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_, err = k.Acquire(ctx, "pass:lock", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, crawler.ErrLockHeld))

	release()
	release()

	again, err := k.Acquire(ctx, "pass:lock", 0)
	require.NoError(t, err, "expired ctx still gets a non-blocking attempt")
	again()
	assert.Zero(t, k.size())
}
