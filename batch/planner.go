package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/museguard/museguard/ratelimit"
	"go.uber.org/zap"
)

// planner Planner 的默认实现（非导出）
type planner struct {
	limiter  ratelimit.Limiter
	recorder Recorder
	logger   *zap.Logger

	mu      sync.RWMutex
	configs map[string]*Config // key: provider + "/" + operation
}

func newPlanner(limiter ratelimit.Limiter, recorder Recorder, logger *zap.Logger) *planner {
	return &planner{
		limiter:  limiter,
		recorder: recorder,
		logger:   logger,
		configs:  make(map[string]*Config),
	}
}

func configKey(provider, operation string) string {
	return provider + "/" + operation
}

// Register 注册（或更新）提供方 + 操作粒度的批次配置
func (p *planner) Register(provider, operation string, cfg *Config) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	c.setDefaults()

	p.mu.Lock()
	p.configs[configKey(provider, operation)] = &c
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.Info("batch config registered",
			zap.String("provider", provider),
			zap.String("operation", operation),
			zap.Int("optimal_batch_size", c.OptimalBatchSize),
			zap.Duration("min_delay", c.MinDelayBetweenBatches))
	}
}

// config 查找配置，未注册时返回默认配置
func (p *planner) config(provider, operation string) *Config {
	p.mu.RLock()
	cfg, ok := p.configs[configKey(provider, operation)]
	p.mu.RUnlock()
	if ok {
		return cfg
	}

	def := &Config{}
	def.setDefaults()
	return def
}

// OptimalBatchSize 返回配置批次大小与当前剩余预算的较小者，下限为 1
func (p *planner) OptimalBatchSize(ctx context.Context, provider, operation string) (int, error) {
	size := p.config(provider, operation).OptimalBatchSize

	state, err := p.limiter.Snapshot(ctx, provider)
	if err != nil {
		// 提供方未注册限流配置时不做收缩
		if errors.Is(err, ratelimit.ErrProviderUnknown) {
			return size, nil
		}
		return 0, err
	}

	if state.RequestsRemaining < size {
		size = state.RequestsRemaining
	}
	if size < 1 {
		size = 1
	}
	return size, nil
}

// Delay 返回该操作配置的批次间最小延迟
func (p *planner) Delay(provider, operation string) time.Duration {
	return p.config(provider, operation).MinDelayBetweenBatches
}

// CanProceed 执行前门控
func (p *planner) CanProceed(ctx context.Context, provider string) (bool, error) {
	return p.limiter.CanProceed(ctx, provider)
}

// Wait 挂起直到允许下一次请求
func (p *planner) Wait(ctx context.Context, provider string) (time.Duration, error) {
	return p.limiter.Wait(ctx, provider)
}

// RecordOutcome 将批次结果回馈给限流器与熔断器
func (p *planner) RecordOutcome(ctx context.Context, provider string, hints *ratelimit.ResponseHints, err error) error {
	if err == nil {
		if recErr := p.limiter.RecordSuccess(ctx, provider, hints); recErr != nil {
			return recErr
		}
		if p.recorder != nil {
			return p.recorder.RecordSuccess(ctx, provider)
		}
		return nil
	}

	kind := ratelimit.KindTransient
	if errors.Is(err, ratelimit.ErrRateLimited) {
		kind = ratelimit.KindRateLimited
	}
	if recErr := p.limiter.RecordFailure(ctx, provider, kind); recErr != nil {
		return recErr
	}
	if p.recorder != nil {
		return p.recorder.RecordFailure(ctx, provider)
	}
	return nil
}
