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
// 创建限流器辅助函数
// ============================================================

func newMemoryLimiter(t *testing.T, opts ...Option) Limiter {
	t.Helper()

	opts = append(opts, WithLogger(testkit.NewLogger(t)))
	limiter, err := NewMemory(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	return limiter
}

// fakeGate 测试用熔断门控
type fakeGate struct {
	allowed bool
}

func (g *fakeGate) Allow(ctx context.Context, key string) (bool, error) {
	return g.allowed, nil
}

// ============================================================
// 基础功能测试
// ============================================================

func TestMemoryLimiter_CanProceed(t *testing.T) {
	limiter := newMemoryLimiter(t)
	ctx := context.Background()

	t.Run("未注册的提供方返回 ErrProviderUnknown", func(t *testing.T) {
		_, err := limiter.CanProceed(ctx, "nobody")
		assert.ErrorIs(t, err, ErrProviderUnknown)
	})

	t.Run("注册后首次请求应该被允许", func(t *testing.T) {
		limiter.Register("spotify", &Config{RequestsPerWindow: 10, WindowDuration: time.Minute})

		ok, err := limiter.CanProceed(ctx, "spotify")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestMemoryLimiter_BudgetDecrement(t *testing.T) {
	limiter := newMemoryLimiter(t)
	ctx := context.Background()

	limiter.Register("spotify", &Config{RequestsPerWindow: 5, WindowDuration: time.Minute})

	t.Run("每次成功预算减一", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, limiter.RecordSuccess(ctx, "spotify", nil))
		}

		st, err := limiter.Snapshot(ctx, "spotify")
		require.NoError(t, err)
		assert.Equal(t, 2, st.RequestsRemaining)
	})

	t.Run("预算不会降到 0 以下", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			require.NoError(t, limiter.RecordSuccess(ctx, "spotify", nil))
		}

		st, err := limiter.Snapshot(ctx, "spotify")
		require.NoError(t, err)
		assert.Equal(t, 0, st.RequestsRemaining)
	})
}

// 场景：100 req/60s，耗尽预算后 CanProceed 为 false，直到窗口重置
func TestMemoryLimiter_BudgetExhaustion(t *testing.T) {
	limiter := newMemoryLimiter(t)
	ctx := context.Background()

	limiter.Register("spotify", &Config{RequestsPerWindow: 100, WindowDuration: time.Minute})

	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.RecordSuccess(ctx, "spotify", nil))
	}

	ok, err := limiter.CanProceed(ctx, "spotify")
	require.NoError(t, err)
	assert.False(t, ok, "预算耗尽后应该被拒绝")
}

func TestMemoryLimiter_WindowReset(t *testing.T) {
	limiter := newMemoryLimiter(t)
	ctx := context.Background()

	limiter.Register("spotify", &Config{RequestsPerWindow: 2, WindowDuration: 50 * time.Millisecond})

	require.NoError(t, limiter.RecordSuccess(ctx, "spotify", nil))
	require.NoError(t, limiter.RecordSuccess(ctx, "spotify", nil))

	ok, err := limiter.CanProceed(ctx, "spotify")
	require.NoError(t, err)
	require.False(t, ok)

	// 窗口过期后以满预算懒惰重建
	time.Sleep(60 * time.Millisecond)

	st, err := limiter.Snapshot(ctx, "spotify")
	require.NoError(t, err)
	assert.Equal(t, 2, st.RequestsRemaining, "窗口重置后恢复满预算")

	ok, err = limiter.CanProceed(ctx, "spotify")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiter_ResponseHints(t *testing.T) {
	limiter := newMemoryLimiter(t)
	ctx := context.Background()

	limiter.Register("spotify", &Config{RequestsPerWindow: 100, WindowDuration: time.Minute})

	t.Run("采纳上游的 remaining 提示", func(t *testing.T) {
		remaining := 7
		require.NoError(t, limiter.RecordSuccess(ctx, "spotify", &ResponseHints{Remaining: &remaining}))

		st, err := limiter.Snapshot(ctx, "spotify")
		require.NoError(t, err)
		assert.Equal(t, 7, st.RequestsRemaining)
	})

	t.Run("采纳上游的 reset 提示", func(t *testing.T) {
		resetAt := time.Now().Add(10 * time.Minute)
		require.NoError(t, limiter.RecordSuccess(ctx, "spotify", &ResponseHints{ResetAt: &resetAt}))

		st, err := limiter.Snapshot(ctx, "spotify")
		require.NoError(t, err)
		assert.WithinDuration(t, resetAt, st.WindowResetAt, time.Second)
	})
}

// ============================================================
// 失败与退避测试
// ============================================================

func TestMemoryLimiter_RecordFailure(t *testing.T) {
	limiter := newMemoryLimiter(t)
	ctx := context.Background()

	limiter.Register("spotify", &Config{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BackoffMultiplier: 2,
		MaxBackoff:        5 * time.Minute,
		MinCooldown:       time.Minute,
	})

	t.Run("瞬时失败推进退避", func(t *testing.T) {
		require.NoError(t, limiter.RecordFailure(ctx, "spotify", KindTransient))
		require.NoError(t, limiter.RecordFailure(ctx, "spotify", KindTransient))

		st, err := limiter.Snapshot(ctx, "spotify")
		require.NoError(t, err)
		assert.Equal(t, 2, st.ConsecutiveFailures)
		assert.Equal(t, 4*time.Second, st.CurrentBackoff, "2^2 秒")
	})

	t.Run("成功清零失败与退避", func(t *testing.T) {
		require.NoError(t, limiter.RecordSuccess(ctx, "spotify", nil))

		st, err := limiter.Snapshot(ctx, "spotify")
		require.NoError(t, err)
		assert.Zero(t, st.ConsecutiveFailures)
		assert.Zero(t, st.CurrentBackoff)
	})

	t.Run("限流类失败清零预算并强制冷却", func(t *testing.T) {
		before := time.Now()
		require.NoError(t, limiter.RecordFailure(ctx, "spotify", KindRateLimited))

		st, err := limiter.Snapshot(ctx, "spotify")
		require.NoError(t, err)
		assert.Zero(t, st.RequestsRemaining)
		assert.False(t, st.WindowResetAt.Before(before.Add(time.Minute)),
			"窗口重置时间至少推后 MinCooldown")
	})

	t.Run("退避封顶 MaxBackoff", func(t *testing.T) {
		limiter.Register("capped", &Config{
			BackoffMultiplier: 2,
			MaxBackoff:        8 * time.Second,
		})
		for i := 0; i < 10; i++ {
			require.NoError(t, limiter.RecordFailure(ctx, "capped", KindTransient))
		}

		st, err := limiter.Snapshot(ctx, "capped")
		require.NoError(t, err)
		assert.Equal(t, 8*time.Second, st.CurrentBackoff)
	})
}

func TestBackoffDelay(t *testing.T) {
	t.Run("随 attempt 单调不减直到封顶", func(t *testing.T) {
		base := 100 * time.Millisecond
		prev := time.Duration(0)
		for attempt := 0; attempt <= 12; attempt++ {
			// 去掉 jitter 的下界：base << min(attempt, 10)
			shift := attempt
			if shift > 10 {
				shift = 10
			}
			floor := base << shift
			if floor > backoffCeiling {
				floor = backoffCeiling
			}
			assert.GreaterOrEqual(t, floor, prev)
			prev = floor

			d := BackoffDelay(attempt, base)
			assert.GreaterOrEqual(t, d, floor-base, "退避不应低于指数下界")
			assert.LessOrEqual(t, d, backoffCeiling)
		}
	})

	t.Run("相同 attempt 的两次调用因 jitter 而不同", func(t *testing.T) {
		base := time.Second
		seen := make(map[time.Duration]bool)
		for i := 0; i < 10; i++ {
			seen[BackoffDelay(3, base)] = true
		}
		assert.Greater(t, len(seen), 1, "jitter 应该产生不同的时长")
	})

	t.Run("永不超过 5 分钟上限", func(t *testing.T) {
		d := BackoffDelay(20, time.Minute)
		assert.LessOrEqual(t, d, 5*time.Minute)
	})
}

// ============================================================
// 等待与门控测试
// ============================================================

func TestMemoryLimiter_Wait(t *testing.T) {
	t.Run("预算充足时只等待最小间距", func(t *testing.T) {
		limiter := newMemoryLimiter(t)
		ctx := context.Background()

		limiter.Register("spotify", &Config{
			RequestsPerWindow: 100,
			WindowDuration:    time.Minute,
			MinInterval:       10 * time.Millisecond,
		})

		// 第一次立即通过，第二次要等最小间距
		_, err := limiter.Wait(ctx, "spotify")
		require.NoError(t, err)

		waited, err := limiter.Wait(ctx, "spotify")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, waited, 5*time.Millisecond)
	})

	t.Run("预算耗尽时等到窗口重置", func(t *testing.T) {
		limiter := newMemoryLimiter(t)
		ctx := context.Background()

		limiter.Register("spotify", &Config{
			RequestsPerWindow: 1,
			WindowDuration:    80 * time.Millisecond,
			MinInterval:       time.Millisecond,
		})
		require.NoError(t, limiter.RecordSuccess(ctx, "spotify", nil))

		start := time.Now()
		waited, err := limiter.Wait(ctx, "spotify")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
		assert.Greater(t, waited, time.Duration(0))
	})

	t.Run("ctx 取消时提前返回", func(t *testing.T) {
		limiter := newMemoryLimiter(t)

		limiter.Register("spotify", &Config{
			RequestsPerWindow: 1,
			WindowDuration:    time.Minute,
			MinInterval:       time.Millisecond,
		})
		require.NoError(t, limiter.RecordSuccess(context.Background(), "spotify", nil))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := limiter.Wait(ctx, "spotify")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

// 场景：熔断打开时 CanProceed 为 false，即使预算仍有剩余
func TestMemoryLimiter_CircuitGate(t *testing.T) {
	gate := &fakeGate{allowed: true}
	limiter := newMemoryLimiter(t, WithCircuitGate(gate))
	ctx := context.Background()

	limiter.Register("p", &Config{RequestsPerWindow: 100, WindowDuration: time.Minute})

	ok, err := limiter.CanProceed(ctx, "p")
	require.NoError(t, err)
	require.True(t, ok)

	gate.allowed = false

	ok, err = limiter.CanProceed(ctx, "p")
	require.NoError(t, err)
	assert.False(t, ok, "熔断拒绝时预算再多也不放行")

	st, err := limiter.Snapshot(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 100, st.RequestsRemaining, "预算本身未被消耗")
}
