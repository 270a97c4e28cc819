// Package config 提供引擎配置的加载与热更新能力。
//
// 配置来源优先级：环境变量（MUSEGUARD_ 前缀）> yaml 配置文件。
// 文件不存在时仅使用环境变量与默认值，不报错。Watch 基于 viper
// 的文件监听（fsnotify），配置文件变更时推送重新加载后的完整配置。
//
// ## 基本使用
//
//	loader, _ := config.New(config.WithPaths(".", "/etc/museguard"))
//	cfg, err := loader.Load(ctx)
//
//	events, _ := loader.Watch(ctx)
//	go func() {
//	    for ev := range events {
//	        // 应用新配置 ...
//	        _ = ev.Config
//	    }
//	}()
package config

import (
	"context"
	"time"

	"github.com/museguard/museguard/batch"
	"github.com/museguard/museguard/breaker"
	"github.com/museguard/museguard/checkpoint"
	"github.com/museguard/museguard/connector"
	"github.com/museguard/museguard/ratelimit"
	"go.uber.org/zap"
)

// ========================================
// 数据模型 (Data Model)
// ========================================

// Config 引擎完整配置
type Config struct {
	// Mode 状态存储模式，"memory" 或 "distributed"（默认: "memory"）
	Mode string `json:"mode" yaml:"mode" mapstructure:"mode"`

	// Prefix 分布式模式下所有组件共用的 Redis Key 前缀
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`

	// Redis 分布式模式下的 Redis 连接配置
	Redis connector.RedisConfig `json:"redis" yaml:"redis" mapstructure:"redis"`

	// NATS 可选的进度广播桥连接配置
	NATS connector.NATSConfig `json:"nats" yaml:"nats" mapstructure:"nats"`

	// Breaker 熔断器配置（全提供方共用）
	Breaker breaker.Config `json:"breaker" yaml:"breaker" mapstructure:"breaker"`

	// Checkpoint 检查点存储配置
	Checkpoint checkpoint.Config `json:"checkpoint" yaml:"checkpoint" mapstructure:"checkpoint"`

	// Providers 提供方粒度配置，键为提供方标识
	Providers map[string]Provider `json:"providers" yaml:"providers" mapstructure:"providers"`
}

// Provider 单个提供方的限流与批次配置
type Provider struct {
	// RateLimit 限流画像。工作器自带的画像优先，此处配置作为
	// 运维侧覆盖。
	RateLimit ratelimit.Config `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`

	// Batch 批次配置，键为操作名（如 "full_sync"、"unfollow"）
	Batch map[string]batch.Config `json:"batch" yaml:"batch" mapstructure:"batch"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = "memory"
	}
	if c.Prefix == "" {
		c.Prefix = "museguard:"
	}
}

// Distributed 是否为分布式模式
func (c *Config) Distributed() bool {
	return c.Mode == "distributed"
}

// Event 配置变更事件
type Event struct {
	// Config 重新加载后的完整配置
	Config *Config
	// Path 触发变更的文件路径
	Path string
	// Timestamp 变更时间
	Timestamp time.Time
}

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Loader 配置加载器核心接口
type Loader interface {
	// Load 从文件与环境变量加载配置。
	// 文件不存在时仅使用环境变量与默认值。
	Load(ctx context.Context) (*Config, error)

	// Watch 订阅配置文件变更，返回缓冲通道。
	// ctx 取消时通道被关闭。必须在 Load 之后调用。
	Watch(ctx context.Context) (<-chan Event, error)
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建配置加载器
func New(opts ...Option) (Loader, error) {
	opt := defaultOptions()
	for _, o := range opts {
		o(opt)
	}

	logger := opt.logger
	if logger != nil {
		logger = logger.With(zap.String("component", "config"))
	}

	return newLoader(opt, logger), nil
}
