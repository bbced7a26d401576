package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiter_BlocksAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	l := NewRedisLimiter(rdb, false, 2, time.Minute)

	ok, _, err := l.Allow(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Fail(ctx, "bob"))
	require.NoError(t, l.Fail(ctx, "Bob"))

	ok, retry, err := l.Allow(ctx, "BOB")
	require.NoError(t, err)
	assert.False(t, ok, "keys ignore case when usernames do")
	assert.Greater(t, retry, time.Duration(0))
	assert.LessOrEqual(t, retry, time.Minute)

	mr.FastForward(time.Minute + time.Second)
	ok, _, err = l.Allow(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ok, "window expiry clears the counter")
}

func TestRedisLimiter_ResetClearsFailures(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	l := NewRedisLimiter(rdb, true, 1, time.Minute)

	require.NoError(t, l.Fail(ctx, "alice"))
	ok, _, _ := l.Allow(ctx, "alice")
	require.False(t, ok)

	require.NoError(t, l.Reset(ctx, "alice"))
	ok, _, err := l.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("login:fail:alice"))
}

func TestRedisLimiter_CaseSensitiveKeysAreDistinct(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	l := NewRedisLimiter(rdb, true, 2, time.Minute)

	require.NoError(t, l.Fail(ctx, "Bob"))
	require.NoError(t, l.Fail(ctx, "Bob"))

	ok, _, err := l.Allow(ctx, "Bob")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _, err = l.Allow(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ok, "bob is a different account from Bob")
}

func TestRedisLimiter_FailAlwaysSetsWindow(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	l := NewRedisLimiter(rdb, true, 5, time.Minute)

	require.NoError(t, l.Fail(ctx, "carol"))
	assert.Equal(t, time.Minute, mr.TTL("login:fail:carol"))

	mr.FastForward(20 * time.Second)
	require.NoError(t, l.Fail(ctx, "carol"))
	assert.Equal(t, 40*time.Second, mr.TTL("login:fail:carol"), "later failures keep the original window")

	// A counter left behind without an expiry still gets one on the next failure.
	mr.Set("login:fail:dave", "1")
	require.NoError(t, l.Fail(ctx, "dave"))
	assert.Equal(t, time.Minute, mr.TTL("login:fail:dave"))
	got, err := mr.Get("login:fail:dave")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestRedisLimiter_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	_, _, err := NewRedisLimiter(rdb, true, 1, time.Minute).Allow(context.Background(), "x")
	assert.Error(t, err)
}

func TestNoopLimiter(t *testing.T) {
	var l LoginLimiter = NoopLimiter{}
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Fail(context.Background(), "x"))
	}
	ok, _, err := l.Allow(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, ok)
}
