package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// backoffCeiling 指数退避的硬上限
const backoffCeiling = 5 * time.Minute

// maxBackoffShift 2^attempt 中 attempt 的封顶值
const maxBackoffShift = 10

// limiter Limiter 实现（非导出）。
// 窗口预算与失败状态委托给 store；最小请求间距由进程内的
// x/time pacer 保证（间距本质上是对上游的礼貌节奏，按进程
// 控制已足够，预算才是跨副本共享的硬约束）。
type limiter struct {
	store  store
	logger *zap.Logger
	gate   CircuitGate

	mu      sync.RWMutex
	configs map[string]*Config

	pacers sync.Map // map[string]*rate.Limiter
}

func newLimiter(s store, logger *zap.Logger, gate CircuitGate) *limiter {
	return &limiter{
		store:   s,
		logger:  logger,
		gate:    gate,
		configs: make(map[string]*Config),
	}
}

// Register 注册（或更新）提供方限流配置
func (l *limiter) Register(provider string, cfg *Config) {
	if cfg == nil {
		cfg = &Config{}
	}
	cp := *cfg
	cp.setDefaults()

	l.mu.Lock()
	l.configs[provider] = &cp
	l.mu.Unlock()

	if l.logger != nil {
		l.logger.Info("provider rate limit registered",
			zap.String("provider", provider),
			zap.Int("requests_per_window", cp.RequestsPerWindow),
			zap.Duration("window", cp.WindowDuration))
	}
}

func (l *limiter) config(provider string) (*Config, error) {
	l.mu.RLock()
	cfg, ok := l.configs[provider]
	l.mu.RUnlock()
	if !ok {
		return nil, ErrProviderUnknown
	}
	return cfg, nil
}

// CanProceed 熔断未拒绝且窗口预算有剩余
func (l *limiter) CanProceed(ctx context.Context, provider string) (bool, error) {
	cfg, err := l.config(provider)
	if err != nil {
		return false, err
	}

	if l.gate != nil {
		allowed, err := l.gate.Allow(ctx, provider)
		if err != nil {
			return false, err
		}
		if !allowed {
			return false, nil
		}
	}

	st, err := l.store.ensure(ctx, provider, cfg)
	if err != nil {
		return false, err
	}
	return st.RequestsRemaining > 0, nil
}

// Wait 挂起到允许下一次请求为止，返回实际等待时长
func (l *limiter) Wait(ctx context.Context, provider string) (time.Duration, error) {
	cfg, err := l.config(provider)
	if err != nil {
		return 0, err
	}

	start := time.Now()

	st, err := l.store.ensure(ctx, provider, cfg)
	if err != nil {
		return 0, err
	}

	// 预算耗尽：等到窗口重置
	if st.RequestsRemaining <= 0 {
		if wait := time.Until(st.WindowResetAt); wait > 0 {
			if l.logger != nil {
				l.logger.Debug("budget exhausted, waiting for window reset",
					zap.String("provider", provider),
					zap.Duration("wait", wait))
			}
			if err := sleep(ctx, wait); err != nil {
				return time.Since(start), err
			}
			// 窗口滚动由下一次 store 操作懒惰完成
			if _, err := l.store.ensure(ctx, provider, cfg); err != nil {
				return time.Since(start), err
			}
		}
	}

	// 最小请求间距
	if err := l.pacer(provider, cfg).Wait(ctx); err != nil {
		return time.Since(start), err
	}

	waited := time.Since(start)
	if err := l.store.touch(ctx, provider, cfg, time.Now()); err != nil {
		return waited, err
	}
	return waited, nil
}

// RecordSuccess 记录成功
func (l *limiter) RecordSuccess(ctx context.Context, provider string, hints *ResponseHints) error {
	cfg, err := l.config(provider)
	if err != nil {
		return err
	}

	st, err := l.store.recordSuccess(ctx, provider, cfg, hints)
	if err != nil {
		return err
	}

	if l.logger != nil {
		l.logger.Debug("request success recorded",
			zap.String("provider", provider),
			zap.Int("remaining", st.RequestsRemaining))
	}
	return nil
}

// RecordFailure 记录失败
func (l *limiter) RecordFailure(ctx context.Context, provider string, kind ErrorKind) error {
	cfg, err := l.config(provider)
	if err != nil {
		return err
	}

	st, err := l.store.recordFailure(ctx, provider, cfg, kind == KindRateLimited)
	if err != nil {
		return err
	}

	if l.logger != nil {
		l.logger.Warn("request failure recorded",
			zap.String("provider", provider),
			zap.Int("consecutive_failures", st.ConsecutiveFailures),
			zap.Duration("backoff", st.CurrentBackoff),
			zap.Bool("rate_limited", kind == KindRateLimited))
	}
	return nil
}

// Backoff 带抖动的指数退避。
// 抖动让并发重试者错开，避免同时砸向刚恢复的上游。
func (l *limiter) Backoff(ctx context.Context, attempt int, base time.Duration) (time.Duration, error) {
	delay := BackoffDelay(attempt, base)
	if err := sleep(ctx, delay); err != nil {
		return 0, err
	}
	return delay, nil
}

// Snapshot 返回状态副本
func (l *limiter) Snapshot(ctx context.Context, provider string) (*State, error) {
	cfg, err := l.config(provider)
	if err != nil {
		return nil, err
	}
	return l.store.ensure(ctx, provider, cfg)
}

// Close 释放资源
func (l *limiter) Close() error {
	return l.store.close()
}

// pacer 获取或创建提供方的间距控制器
func (l *limiter) pacer(provider string, cfg *Config) *rate.Limiter {
	if v, ok := l.pacers.Load(provider); ok {
		return v.(*rate.Limiter)
	}
	p := rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	actual, _ := l.pacers.LoadOrStore(provider, p)
	return actual.(*rate.Limiter)
}

// BackoffDelay 计算第 attempt 次重试的退避时长：
// min(base * 2^min(attempt,10) + jitter, 5min)，jitter ∈ [0, base)。
func BackoffDelay(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt < 0 {
		attempt = 0
	}
	shift := attempt
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}

	jitter := time.Duration(rand.Int63n(int64(base)))
	delay := base<<shift + jitter
	if delay > backoffCeiling {
		delay = backoffCeiling
	}
	return delay
}

// sleep 可取消的休眠
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
