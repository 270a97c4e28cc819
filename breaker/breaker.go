// Package breaker 提供按提供方粒度的熔断器组件，用于隔离持续故障的
// 外部音乐平台 API 并在其恢复后自动放行。
//
// 状态机（初始 Closed）：
//   - Closed → Open：连续失败达到 FailureThreshold
//   - Open → HalfOpen：距打开时刻超过 Cooldown（由准入检查触发）
//   - HalfOpen → Closed：半开期间连续成功达到 SuccessThreshold
//   - HalfOpen → Open：半开期间任意一次失败
//
// 成功与失败互相重置对方的连击计数。
//
// 两种模式：
//   - 单机模式：基于 sony/gobreaker 的进程内状态
//   - 分布式模式：基于 Redis + Lua 的共享状态机，多副本观察同一
//     熔断判定，所有状态迁移在脚本内原子完成
//
// ## 基本使用
//
//	brk, _ := breaker.NewStandalone(&breaker.Config{
//	    FailureThreshold: 5,
//	    SuccessThreshold: 3,
//	    Cooldown:         60 * time.Second,
//	}, breaker.WithLogger(logger))
//
//	if ok, _ := brk.Allow(ctx, "spotify"); !ok {
//	    return breaker.ErrCircuitOpen
//	}
//	// 调用上游 ...
//	_ = brk.RecordSuccess(ctx, "spotify")
package breaker

import (
	"context"
	"time"

	"github.com/museguard/museguard/connector"
	"go.uber.org/zap"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Breaker 熔断器核心接口
type Breaker interface {
	// Allow 返回当前是否允许向该键（提供方）发起请求。
	// Open 状态下冷却期已过时，该检查本身会触发 Open → HalfOpen。
	Allow(ctx context.Context, key string) (bool, error)

	// RecordSuccess 记录一次成功，重置失败连击；
	// 半开期间累计到 SuccessThreshold 次则闭合。
	RecordSuccess(ctx context.Context, key string) error

	// RecordFailure 记录一次失败，重置成功连击；
	// 闭合期间累计到 FailureThreshold 次、或半开期间任意一次，
	// 都会打开熔断。
	RecordFailure(ctx context.Context, key string) error

	// State 返回该键的熔断器状态（会应用冷却期迁移）
	State(ctx context.Context, key string) (State, error)

	// Execute 执行受熔断保护的函数：先准入检查，拒绝时返回
	// ErrCircuitOpen 且不调用 fn；否则按 fn 结果记录成败。
	Execute(ctx context.Context, key string, fn func() error) error

	// Close 释放资源
	Close() error
}

// State 熔断器状态
type State int

const (
	// StateClosed 闭合状态（正常）
	StateClosed State = iota
	// StateHalfOpen 半开状态（探测恢复）
	StateHalfOpen
	// StateOpen 打开状态（熔断中）
	StateOpen
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 熔断器配置
type Config struct {
	// FailureThreshold 触发熔断的连续失败数（默认: 5）
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold" mapstructure:"failure_threshold"`

	// SuccessThreshold 半开期间闭合所需的连续成功数（默认: 3）
	SuccessThreshold int `json:"success_threshold" yaml:"success_threshold" mapstructure:"success_threshold"`

	// Cooldown 打开状态持续时长，超时后允许半开探测（默认: 60s）
	Cooldown time.Duration `json:"cooldown" yaml:"cooldown" mapstructure:"cooldown"`

	// StateTTL 分布式模式下状态键的 TTL，过期后懒惰重建为闭合
	// 状态（默认: 1h）
	StateTTL time.Duration `json:"state_ttl" yaml:"state_ttl" mapstructure:"state_ttl"`

	// Prefix 分布式模式下 Redis Key 前缀（默认: "museguard:"）
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	if c.StateTTL <= 0 {
		c.StateTTL = time.Hour
	}
	if c.Prefix == "" {
		c.Prefix = "museguard:"
	}
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// NewStandalone 创建单机熔断器（进程内状态，基于 gobreaker）
func NewStandalone(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger != nil {
		logger = logger.With(zap.String("component", "breaker"))
		logger.Info("creating standalone circuit breaker",
			zap.Int("failure_threshold", cfg.FailureThreshold),
			zap.Int("success_threshold", cfg.SuccessThreshold),
			zap.Duration("cooldown", cfg.Cooldown))
	}

	return newStandalone(cfg, logger), nil
}

// NewDistributed 创建分布式熔断器。
// 状态存放在 Redis（键 circuit:{key}），多副本共享同一判定。
func NewDistributed(redisConn connector.RedisConnector, cfg *Config, opts ...Option) (Breaker, error) {
	if redisConn == nil {
		return nil, ErrConnectorNil
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger != nil {
		logger = logger.With(zap.String("component", "breaker"))
		logger.Info("creating distributed circuit breaker",
			zap.String("prefix", cfg.Prefix),
			zap.Int("failure_threshold", cfg.FailureThreshold),
			zap.Int("success_threshold", cfg.SuccessThreshold),
			zap.Duration("cooldown", cfg.Cooldown))
	}

	return newDistributed(redisConn.GetClient(), cfg, logger), nil
}
