package breaker

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

func newTestDistributed(t *testing.T, cfg *Config) Breaker {
	t.Helper()

	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Prefix = "museguard-test:" + testkit.NewID() + ":"

	conn := testkit.GetRedisConnector(t)
	b, err := NewDistributed(conn, cfg, WithLogger(testkit.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	return b
}

func TestDistributedBreaker_StateMachine(t *testing.T) {
	b := newTestDistributed(t, &Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Cooldown:         100 * time.Millisecond,
	})
	ctx := context.Background()
	key := "spotify-" + testkit.NewID()

	t.Run("初始闭合", func(t *testing.T) {
		ok, err := b.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("连续失败达到阈值后打开", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, b.RecordFailure(ctx, key))
		}

		ok, err := b.Allow(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("冷却期过后半开", func(t *testing.T) {
		time.Sleep(120 * time.Millisecond)

		st, err := b.State(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, StateHalfOpen, st)

		ok, err := b.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("半开期间连续成功后闭合", func(t *testing.T) {
		require.NoError(t, b.RecordSuccess(ctx, key))
		require.NoError(t, b.RecordSuccess(ctx, key))

		st, err := b.State(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, StateClosed, st)
	})
}

func TestDistributedBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := newTestDistributed(t, &Config{
		FailureThreshold: 2,
		Cooldown:         100 * time.Millisecond,
	})
	ctx := context.Background()
	key := "apple-" + testkit.NewID()

	require.NoError(t, b.RecordFailure(ctx, key))
	require.NoError(t, b.RecordFailure(ctx, key))

	time.Sleep(120 * time.Millisecond)

	// 半开探测失败立即重新打开
	require.NoError(t, b.RecordFailure(ctx, key))

	st, err := b.State(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, StateOpen, st)
}

func TestDistributedBreaker_SharedState(t *testing.T) {
	conn := testkit.GetRedisConnector(t)
	cfg := &Config{
		FailureThreshold: 2,
		Cooldown:         time.Minute,
		Prefix:           "museguard-test:" + testkit.NewID() + ":",
	}

	newShared := func() Breaker {
		b, err := NewDistributed(conn, cfg, WithLogger(testkit.NewLogger(t)))
		require.NoError(t, err)
		return b
	}

	// 两个熔断器实例模拟两个编排器副本
	a := newShared()
	c := newShared()
	defer a.Close()
	defer c.Close()

	ctx := context.Background()
	key := "shared-" + testkit.NewID()

	require.NoError(t, a.RecordFailure(ctx, key))
	require.NoError(t, c.RecordFailure(ctx, key))

	// 副本 a 观察到由两边共同累计触发的熔断
	ok, err := a.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "两个副本观察同一熔断判定")
}
