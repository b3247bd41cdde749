package redislock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/sleepgrind/internal/infrastructure/config"
	"github.com/nerrad567/sleepgrind/internal/infrastructure/redislock"
)

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLocker_AcquireRelease(t *testing.T) {
	mr, client := setup(t)
	locker := redislock.New(client, "test:display", 5*time.Second, 0)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", lease.Token())

	got, err := mr.Get("test:display")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got)
	assert.Equal(t, 5*time.Second, mr.TTL("test:display"))

	holder, err := locker.Holder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", holder)

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("test:display"), "key should be removed after release")
	assert.NoError(t, lease.Release(ctx), "second release is a no-op")

	holder, err = locker.Holder(ctx)
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestLocker_Defaults(t *testing.T) {
	_, client := setup(t)
	locker := redislock.New(client, "", 0, 0)
	assert.Equal(t, redislock.DefaultKey, locker.Key())
}

func TestLocker_WaitElapses(t *testing.T) {
	_, client := setup(t)
	first := redislock.New(client, "test:display", 5*time.Second, 0)
	second := redislock.New(client, "test:display", 5*time.Second, 300*time.Millisecond)
	ctx := context.Background()

	lease, err := first.Acquire(ctx, "run-1")
	require.NoError(t, err)
	defer lease.Release(ctx)

	start := time.Now()
	_, err = second.Acquire(ctx, "run-2")
	assert.ErrorIs(t, err, redislock.ErrLocked)
	assert.Contains(t, err.Error(), "run-1")
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestLocker_ContextCancelled(t *testing.T) {
	_, client := setup(t)
	locker := redislock.New(client, "test:display", 5*time.Second, 0)

	lease, err := locker.Acquire(context.Background(), "run-1")
	require.NoError(t, err)
	defer lease.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "run-2")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, redislock.ErrLocked)
}

func TestLocker_AcquireAfterRelease(t *testing.T) {
	_, client := setup(t)
	locker := redislock.New(client, "test:display", 5*time.Second, 0)
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "run-1")
	require.NoError(t, err)

	acquired := make(chan error, 1)
	go func() {
		lease, err := locker.Acquire(ctx, "run-2")
		if err == nil {
			defer lease.Release(ctx)
		}
		acquired <- err
	}()

	time.Sleep(150 * time.Millisecond)
	require.NoError(t, first.Release(ctx))

	select {
	case err := <-acquired:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second Acquire did not complete after release")
	}
}

func TestLease_ReleaseKeepsForeignKey(t *testing.T) {
	mr, client := setup(t)
	locker := redislock.New(client, "test:display", 5*time.Second, 0)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "run-1")
	require.NoError(t, err)

	// The lease expired and someone else took the display.
	require.NoError(t, mr.Set("test:display", "run-2"))

	require.NoError(t, lease.Release(ctx))
	got, err := mr.Get("test:display")
	require.NoError(t, err)
	assert.Equal(t, "run-2", got)
}

func TestLease_Refresh(t *testing.T) {
	mr, client := setup(t)
	locker := redislock.New(client, "test:display", 300*time.Millisecond, 0)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "run-1")
	require.NoError(t, err)
	defer lease.Release(ctx)

	mr.SetTTL("test:display", time.Millisecond)
	assert.Eventually(t, func() bool {
		return mr.TTL("test:display") == 300*time.Millisecond
	}, 2*time.Second, 20*time.Millisecond, "refresh should restore the TTL")
}

func TestLease_Lost(t *testing.T) {
	mr, client := setup(t)
	locker := redislock.New(client, "test:display", 150*time.Millisecond, 0)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "run-1")
	require.NoError(t, err)
	defer lease.Release(ctx)

	mr.Del("test:display")

	select {
	case <-lease.Lost():
	case <-time.After(2 * time.Second):
		t.Fatal("Lost() not closed after the key disappeared")
	}
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	locker, err := redislock.Connect(ctx, config.LockConfig{Addr: mr.Addr(), Key: "k", TTL: time.Second})
	require.NoError(t, err)
	defer locker.Close()
	assert.Equal(t, "k", locker.Key())

	mr.Close()
	_, err = redislock.Connect(ctx, config.LockConfig{Addr: mr.Addr()})
	assert.ErrorIs(t, err, redislock.ErrConnectionFailed)
}
