// Package ratelimit 提供面向外部音乐平台 API 的按提供方限流组件。
//
// 每个提供方（spotify、apple、youtube、musicbrainz …）拥有独立的
// 请求窗口预算与退避状态。组件提供：
//   - 统一的 Limiter 接口，屏蔽单机与分布式差异
//   - 单机模式：进程内状态，适合单副本部署与测试
//   - 分布式模式：基于 Redis + Lua 的共享状态，多副本观察同一预算，
//     所有状态迁移在 Lua 脚本内原子完成，不存在丢失更新
//   - 最小请求间距控制（golang.org/x/time/rate）
//   - 带抖动的指数退避，让并发重试者自然错开
//
// ## 基本使用
//
//	limiter, _ := ratelimit.NewMemory(ratelimit.WithLogger(logger))
//	limiter.Register("spotify", &ratelimit.Config{
//	    RequestsPerWindow: 100,
//	    WindowDuration:    time.Minute,
//	})
//
//	ok, _ := limiter.CanProceed(ctx, "spotify")
//	if ok {
//	    waited, _ := limiter.Wait(ctx, "spotify")
//	    _ = waited
//	    // 调用上游 ...
//	    _ = limiter.RecordSuccess(ctx, "spotify", nil)
//	}
//
// ## 分布式模式
//
//	redisConn, _ := connector.NewRedis(&cfg.Redis, connector.WithLogger(logger))
//	defer redisConn.Close()
//
//	limiter, _ := ratelimit.NewDistributed(redisConn, &ratelimit.DistributedConfig{
//	    Prefix: "museguard:",
//	}, ratelimit.WithLogger(logger))
//
// 状态键为 rate_limit:{provider}，TTL 等于窗口时长，过期后以满预算
// 懒惰重建。
package ratelimit

import (
	"context"
	"time"

	"github.com/museguard/museguard/connector"
	"go.uber.org/zap"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Limiter 按提供方限流器核心接口
type Limiter interface {
	// Register 注册（或更新）提供方的限流配置。
	// 未注册的提供方的任何操作都会返回 ErrProviderUnknown。
	Register(provider string, cfg *Config)

	// CanProceed 返回当前是否允许向该提供方发起请求：
	// 熔断器未拒绝（若注入了 CircuitGate）且窗口预算有剩余。
	// 窗口已过期时先以满预算刷新再判断。
	CanProceed(ctx context.Context, provider string) (bool, error)

	// Wait 挂起调用方直到允许下一次请求：
	// 预算耗尽时等待到 WindowResetAt；否则保证距上次请求
	// 至少间隔 MinInterval。返回实际等待时长。
	// 只阻塞调用协程，ctx 取消时提前返回 ctx.Err()。
	Wait(ctx context.Context, provider string) (time.Duration, error)

	// RecordSuccess 记录一次成功调用。
	// 上游响应带有明确的 remaining/reset 提示时采纳提示值，
	// 否则预算减一（不会降到 0 以下）。连续失败数与退避清零。
	RecordSuccess(ctx context.Context, provider string, hints *ResponseHints) error

	// RecordFailure 记录一次失败调用。
	// 连续失败数加一，退避按 BackoffMultiplier 指数增长（封顶
	// MaxBackoff）。kind 为 KindRateLimited 时预算强制清零，
	// WindowResetAt 至少推后 MinCooldown。
	RecordFailure(ctx context.Context, provider string, kind ErrorKind) error

	// Backoff 按尝试次数执行带抖动的指数退避：
	// sleep(min(base * 2^min(attempt,10) + jitter, 5min))。
	// 返回实际休眠时长；ctx 取消时提前返回。
	Backoff(ctx context.Context, attempt int, base time.Duration) (time.Duration, error)

	// Snapshot 返回提供方当前限流状态的副本，用于状态上报。
	Snapshot(ctx context.Context, provider string) (*State, error)

	// Close 释放资源
	Close() error
}

// CircuitGate 熔断准入检查。
// breaker.Breaker 隐式满足该接口；CanProceed 会先咨询它。
type CircuitGate interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// ========================================
// 数据模型 (Data Model)
// ========================================

// Config 提供方限流配置。加载后不可变。
type Config struct {
	// RequestsPerWindow 窗口内允许的请求数（默认: 100）
	RequestsPerWindow int `json:"requests_per_window" yaml:"requests_per_window" mapstructure:"requests_per_window"`

	// WindowDuration 窗口时长（默认: 60s）
	WindowDuration time.Duration `json:"window_duration" yaml:"window_duration" mapstructure:"window_duration"`

	// BurstAllowance 突发余量，计入窗口预算（默认: 0）
	BurstAllowance int `json:"burst_allowance" yaml:"burst_allowance" mapstructure:"burst_allowance"`

	// BackoffMultiplier 退避基数，退避 = multiplier^连续失败数 秒（默认: 2）
	BackoffMultiplier float64 `json:"backoff_multiplier" yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`

	// MaxBackoff 退避上限（默认: 5m）
	MaxBackoff time.Duration `json:"max_backoff" yaml:"max_backoff" mapstructure:"max_backoff"`

	// MinInterval 两次请求之间的最小间距（默认: 100ms）
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval" mapstructure:"min_interval"`

	// MinCooldown 上游明确拒绝（429 类）但未给出重置时间时，
	// 窗口重置时间至少推后的时长（默认: 60s）
	MinCooldown time.Duration `json:"min_cooldown" yaml:"min_cooldown" mapstructure:"min_cooldown"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.RequestsPerWindow <= 0 {
		c.RequestsPerWindow = 100
	}
	if c.WindowDuration <= 0 {
		c.WindowDuration = time.Minute
	}
	if c.BurstAllowance < 0 {
		c.BurstAllowance = 0
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = 2
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	if c.MinInterval <= 0 {
		c.MinInterval = 100 * time.Millisecond
	}
	if c.MinCooldown <= 0 {
		c.MinCooldown = time.Minute
	}
}

// budget 窗口满预算
func (c *Config) budget() int {
	return c.RequestsPerWindow + c.BurstAllowance
}

// State 提供方限流状态。可变，分布式模式下经由外部存储共享。
type State struct {
	RequestsRemaining   int           `json:"requests_remaining"`
	WindowResetAt       time.Time     `json:"window_reset_at"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	CurrentBackoff      time.Duration `json:"current_backoff"`
	LastRequestAt       time.Time     `json:"last_request_at"`
}

// ResponseHints 上游响应中携带的限流提示（如 X-RateLimit-Remaining）。
// 字段为 nil 表示上游未给出该提示。
type ResponseHints struct {
	Remaining *int
	ResetAt   *time.Time
}

// ErrorKind 失败类别，决定 RecordFailure 的处理方式
type ErrorKind int

const (
	// KindTransient 瞬时失败（5xx、超时），只推进退避
	KindTransient ErrorKind = iota
	// KindRateLimited 上游明确的限流拒绝（429），预算清零并强制冷却
	KindRateLimited
)

// ========================================
// 配置定义 (Configuration)
// ========================================

// DistributedConfig 分布式限流配置
type DistributedConfig struct {
	// Prefix Redis Key 前缀（默认: "museguard:"）
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
}

func (c *DistributedConfig) setDefaults() {
	if c.Prefix == "" {
		c.Prefix = "museguard:"
	}
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// NewMemory 创建单机限流器。状态仅本进程可见，适合单副本部署与测试。
func NewMemory(opts ...Option) (Limiter, error) {
	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger != nil {
		logger = logger.With(zap.String("component", "ratelimit"))
		logger.Info("creating memory rate limiter")
	}

	return newLimiter(newMemoryStore(), logger, opt.gate), nil
}

// NewDistributed 创建分布式限流器。
// 状态存放在 Redis（键 rate_limit:{provider}，TTL = 窗口时长），
// 所有读改写经由 Lua 脚本原子执行，多副本观察同一预算。
func NewDistributed(redisConn connector.RedisConnector, cfg *DistributedConfig, opts ...Option) (Limiter, error) {
	if redisConn == nil {
		return nil, ErrConnectorNil
	}
	if cfg == nil {
		cfg = &DistributedConfig{}
	}
	cfg.setDefaults()

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger != nil {
		logger = logger.With(zap.String("component", "ratelimit"))
		logger.Info("creating distributed rate limiter", zap.String("prefix", cfg.Prefix))
	}

	return newLimiter(newRedisStore(redisConn.GetClient(), cfg.Prefix), logger, opt.gate), nil
}
