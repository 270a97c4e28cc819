package breaker

import (
	"context"
	"sync"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// standaloneBreaker 单机熔断器实现（非导出）。
// 每个键对应一个 gobreaker 两步熔断器；记录式 API
// （RecordSuccess/RecordFailure）通过 Allow + done 回调映射到
// gobreaker 的计数语义。
type standaloneBreaker struct {
	cfg    *Config
	logger *zap.Logger

	breakers sync.Map // map[string]*gobreaker.TwoStepCircuitBreaker[struct{}]
}

func newStandalone(cfg *Config, logger *zap.Logger) *standaloneBreaker {
	return &standaloneBreaker{
		cfg:    cfg,
		logger: logger,
	}
}

// Allow 准入检查。gobreaker 的 State() 会在冷却期结束时完成
// Open → HalfOpen 迁移。
func (b *standaloneBreaker) Allow(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}
	return b.getOrCreate(key).State() != gobreaker.StateOpen, nil
}

// RecordSuccess 记录一次成功
func (b *standaloneBreaker) RecordSuccess(ctx context.Context, key string) error {
	return b.record(key, true)
}

// RecordFailure 记录一次失败
func (b *standaloneBreaker) RecordFailure(ctx context.Context, key string) error {
	return b.record(key, false)
}

func (b *standaloneBreaker) record(key string, success bool) error {
	if key == "" {
		return ErrKeyEmpty
	}

	done, err := b.getOrCreate(key).Allow()
	if err != nil {
		// 打开状态下的记录没有意义：调用本不应发生过
		if b.logger != nil {
			b.logger.Debug("record dropped, circuit not admitting",
				zap.String("key", key),
				zap.Bool("success", success))
		}
		return nil
	}
	done(success)
	return nil
}

// State 返回指定键的熔断器状态
func (b *standaloneBreaker) State(ctx context.Context, key string) (State, error) {
	if key == "" {
		return StateClosed, ErrKeyEmpty
	}

	switch b.getOrCreate(key).State() {
	case gobreaker.StateOpen:
		return StateOpen, nil
	case gobreaker.StateHalfOpen:
		return StateHalfOpen, nil
	default:
		return StateClosed, nil
	}
}

// Execute 执行受熔断保护的函数
func (b *standaloneBreaker) Execute(ctx context.Context, key string, fn func() error) error {
	return execute(ctx, b, key, fn)
}

// Close 释放资源
func (b *standaloneBreaker) Close() error {
	return nil
}

// getOrCreate 获取或创建键级熔断器
func (b *standaloneBreaker) getOrCreate(key string) *gobreaker.TwoStepCircuitBreaker[struct{}] {
	if v, ok := b.breakers.Load(key); ok {
		return v.(*gobreaker.TwoStepCircuitBreaker[struct{}])
	}

	settings := gobreaker.Settings{
		Name: key,
		// 半开期间连续成功 MaxRequests 次即闭合
		MaxRequests: uint32(b.cfg.SuccessThreshold),
		Timeout:     b.cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(b.cfg.FailureThreshold)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if b.logger != nil {
				b.logger.Info("circuit breaker state changed",
					zap.String("key", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			}
		},
	}

	cb := gobreaker.NewTwoStepCircuitBreaker[struct{}](settings)

	// 并发创建时以先存入者为准
	actual, _ := b.breakers.LoadOrStore(key, cb)
	return actual.(*gobreaker.TwoStepCircuitBreaker[struct{}])
}

// execute Execute 的公共实现，单机与分布式共用
func execute(ctx context.Context, b Breaker, key string, fn func() error) error {
	allowed, err := b.Allow(ctx, key)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrCircuitOpen
	}

	if err := fn(); err != nil {
		if recordErr := b.RecordFailure(ctx, key); recordErr != nil {
			return recordErr
		}
		return err
	}
	return b.RecordSuccess(ctx, key)
}
