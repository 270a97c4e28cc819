package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/museguard/museguard/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// 分布式模式测试（Redis 不可达时自动跳过）
// ============================================================

func newDistributedLimiter(t *testing.T) Limiter {
	t.Helper()

	conn := testkit.GetRedisConnector(t)
	limiter, err := NewDistributed(conn, &DistributedConfig{
		Prefix: "museguard-test:" + testkit.NewID() + ":",
	}, WithLogger(testkit.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	return limiter
}

func TestDistributedLimiter_BudgetLifecycle(t *testing.T) {
	limiter := newDistributedLimiter(t)
	ctx := context.Background()

	provider := "spotify-" + testkit.NewID()
	limiter.Register(provider, &Config{RequestsPerWindow: 5, WindowDuration: time.Minute})

	t.Run("懒建满预算", func(t *testing.T) {
		st, err := limiter.Snapshot(ctx, provider)
		require.NoError(t, err)
		assert.Equal(t, 5, st.RequestsRemaining)
		assert.True(t, st.WindowResetAt.After(time.Now()))
	})

	t.Run("成功预算减一且不降到 0 以下", func(t *testing.T) {
		for i := 0; i < 8; i++ {
			require.NoError(t, limiter.RecordSuccess(ctx, provider, nil))
		}

		st, err := limiter.Snapshot(ctx, provider)
		require.NoError(t, err)
		assert.Equal(t, 0, st.RequestsRemaining)

		ok, err := limiter.CanProceed(ctx, provider)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestDistributedLimiter_FailureHandling(t *testing.T) {
	limiter := newDistributedLimiter(t)
	ctx := context.Background()

	provider := "apple-" + testkit.NewID()
	limiter.Register(provider, &Config{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
		BackoffMultiplier: 2,
		MinCooldown:       time.Minute,
	})

	t.Run("瞬时失败推进退避", func(t *testing.T) {
		require.NoError(t, limiter.RecordFailure(ctx, provider, KindTransient))
		require.NoError(t, limiter.RecordFailure(ctx, provider, KindTransient))
		require.NoError(t, limiter.RecordFailure(ctx, provider, KindTransient))

		st, err := limiter.Snapshot(ctx, provider)
		require.NoError(t, err)
		assert.Equal(t, 3, st.ConsecutiveFailures)
		assert.Equal(t, 8*time.Second, st.CurrentBackoff)
	})

	t.Run("限流类失败清零预算并强制冷却", func(t *testing.T) {
		before := time.Now()
		require.NoError(t, limiter.RecordFailure(ctx, provider, KindRateLimited))

		st, err := limiter.Snapshot(ctx, provider)
		require.NoError(t, err)
		assert.Zero(t, st.RequestsRemaining)
		assert.False(t, st.WindowResetAt.Before(before.Add(time.Minute)))
	})

	t.Run("成功清零失败与退避", func(t *testing.T) {
		require.NoError(t, limiter.RecordSuccess(ctx, provider, nil))

		st, err := limiter.Snapshot(ctx, provider)
		require.NoError(t, err)
		assert.Zero(t, st.ConsecutiveFailures)
		assert.Zero(t, st.CurrentBackoff)
	})
}

func TestDistributedLimiter_WindowReset(t *testing.T) {
	limiter := newDistributedLimiter(t)
	ctx := context.Background()

	provider := "youtube-" + testkit.NewID()
	limiter.Register(provider, &Config{RequestsPerWindow: 2, WindowDuration: 100 * time.Millisecond})

	require.NoError(t, limiter.RecordSuccess(ctx, provider, nil))
	require.NoError(t, limiter.RecordSuccess(ctx, provider, nil))

	ok, err := limiter.CanProceed(ctx, provider)
	require.NoError(t, err)
	require.False(t, ok)

	// 状态键 TTL = 窗口时长，过期后以满预算重建
	time.Sleep(150 * time.Millisecond)

	st, err := limiter.Snapshot(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, 2, st.RequestsRemaining)
}

func TestDistributedLimiter_SharedBudget(t *testing.T) {
	conn := testkit.GetRedisConnector(t)
	prefix := "museguard-test:" + testkit.NewID() + ":"

	newShared := func() Limiter {
		l, err := NewDistributed(conn, &DistributedConfig{Prefix: prefix},
			WithLogger(testkit.NewLogger(t)))
		require.NoError(t, err)
		return l
	}

	// 两个限流器实例模拟两个编排器副本
	a := newShared()
	b := newShared()
	defer a.Close()
	defer b.Close()

	ctx := context.Background()
	provider := "shared-" + testkit.NewID()
	cfg := &Config{RequestsPerWindow: 4, WindowDuration: time.Minute}
	a.Register(provider, cfg)
	b.Register(provider, cfg)

	require.NoError(t, a.RecordSuccess(ctx, provider, nil))
	require.NoError(t, b.RecordSuccess(ctx, provider, nil))
	require.NoError(t, a.RecordSuccess(ctx, provider, nil))

	st, err := b.Snapshot(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, 1, st.RequestsRemaining, "两个副本消耗同一预算")
}
