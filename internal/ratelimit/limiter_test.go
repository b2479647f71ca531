package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/davidm/taskflow/internal/ratelimit"
	"github.com/davidm/taskflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_CountsHits(t *testing.T) {
	tr := testutil.NewTestRedis(t)
	limiter := ratelimit.NewLimiter(tr.Client)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		count, ttl, err := limiter.Hit(ctx, "auth:1.2.3.4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, time.Minute)
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	tr := testutil.NewTestRedis(t)
	limiter := ratelimit.NewLimiter(tr.Client)
	ctx := context.Background()

	count, _, err := limiter.Hit(ctx, "auth:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, _, err = limiter.Hit(ctx, "auth:5.6.7.8", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, _, err = limiter.Hit(ctx, "api:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestLimiter_WindowExpiryIsFixedAtFirstHit(t *testing.T) {
	tr := testutil.NewTestRedis(t)
	limiter := ratelimit.NewLimiter(tr.Client)
	ctx := context.Background()

	_, first, err := limiter.Hit(ctx, "auth:1.2.3.4", time.Minute)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	// Later hits must not push the window end forward
	_, second, err := limiter.Hit(ctx, "auth:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.LessOrEqual(t, second, first)
}

func TestLimiter_ResetsAfterWindow(t *testing.T) {
	tr := testutil.NewTestRedis(t)
	limiter := ratelimit.NewLimiter(tr.Client)
	ctx := context.Background()

	count, _, err := limiter.Hit(ctx, "auth:1.2.3.4", 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, _, err = limiter.Hit(ctx, "auth:1.2.3.4", 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	time.Sleep(700 * time.Millisecond)

	count, _, err = limiter.Hit(ctx, "auth:1.2.3.4", 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
