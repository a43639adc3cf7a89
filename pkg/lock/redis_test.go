package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/prism/pkg/errdefs"
)

// setupRedisLocker creates a miniredis instance and a locker over it
func setupRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	l, err := NewRedisLockerFromURL(context.Background(), "redis://"+mr.Addr(), "prism:lock:", time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, mr
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	l, mr := setupRedisLocker(t)
	opts := RetryOptions{Retries: 2, MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

	release, err := l.Acquire(ctx, "best/a.js", opts)
	require.NoError(t, err)
	assert.True(t, mr.Exists("prism:lock:best/a.js"))

	_, err = l.Acquire(ctx, "best/a.js", opts)
	assert.ErrorIs(t, err, errdefs.ErrLockTimeout)

	require.NoError(t, release())
	require.NoError(t, release(), "release is idempotent")
	assert.False(t, mr.Exists("prism:lock:best/a.js"))

	release, err = l.Acquire(ctx, "best/a.js", opts)
	require.NoError(t, err)
	require.NoError(t, release())
}

func TestRedisLocker_LostLock(t *testing.T) {
	ctx := context.Background()
	l, mr := setupRedisLocker(t)
	opts := RetryOptions{Retries: 0}

	release, err := l.Acquire(ctx, "k", opts)
	require.NoError(t, err)

	// another holder took over after expiry
	require.NoError(t, mr.Set("prism:lock:k", "someone-else"))

	err = release()
	assert.ErrorIs(t, err, ErrNotHeld)
	got, err := mr.Get("prism:lock:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got, "release must not delete another holder's key")
}

func TestNewRedisLockerFromURL_Errors(t *testing.T) {
	_, err := NewRedisLockerFromURL(context.Background(), "not a url", "", time.Second)
	assert.Error(t, err)
}

func TestNewRedisLocker_DefaultTTL(t *testing.T) {
	l := NewRedisLocker(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "", 0)
	defer l.Close()
	assert.Equal(t, 30*time.Second, l.ttl)
}

func TestRedisLocker_Ping(t *testing.T) {
	l, mr := setupRedisLocker(t)
	require.NoError(t, l.Ping(context.Background()))

	mr.Close()
	assert.Error(t, l.Ping(context.Background()))
}
