package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/franchisefund/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "franchise:1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), peak)
	require.Empty(t, m.locks)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := m.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := m.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedMutexContextTimeout(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "a")
	require.Error(t, err)
	require.True(t, apperror.IsConcurrencyConflict(err))
}

func TestUnlockIsIdempotent(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock()
	unlock()

	again, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	again()
}

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, time.Second, zap.NewNop()), mr
}

func TestRedisLockerExclusive(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "franchise:1")
	require.NoError(t, err)
	require.True(t, mr.Exists("franchise:1"))

	_, ok, err := locker.TryLock(ctx, "franchise:1")
	require.NoError(t, err)
	require.False(t, ok)

	unlock()
	require.False(t, mr.Exists("franchise:1"))

	_, ok, err = locker.TryLock(ctx, "franchise:1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockerReleaseChecksToken(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, locker.Release(ctx, "k", "someone-else"))
	require.True(t, mr.Exists("k"))
}

func TestRedisLockerTimeout(t *testing.T) {
	locker, _ := newRedisLocker(t)
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k")
	require.ErrorIs(t, err, ErrLockTimeout)
}

func TestChainReleasesInReverse(t *testing.T) {
	redisLocker, mr := newRedisLocker(t)
	chain := Chain{NewKeyedMutex(), redisLocker}

	unlock, err := chain.Lock(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, mr.Exists("k"))
	unlock()
	require.False(t, mr.Exists("k"))
}
