// Package checkpoint 提供可恢复长任务的检查点存储组件。
//
// 检查点记录批次作业的计数器与恢复游标，作业每执行完一批就更新
// 一次；进程崩溃或重启后，作业加载检查点并从 Position/LastItemID
// 继续，不会重复处理已计数的条目。
//
// 检查点自创建起保留 24 小时（可配置），到期后无论是否完成都
// 允许被存储回收。分布式模式的过期时间固定在创建时刻，更新不续期。
//
// ## 基本使用
//
//	store, _ := checkpoint.NewMemory(checkpoint.WithLogger(logger))
//
//	cp, _ := store.Create(ctx, batchID, "spotify", "full_sync", 1200)
//	// 每批之后 ...
//	_ = store.Update(ctx, cp, processed, failed, position, lastID, nil)
//
//	// 重启后恢复
//	cp, err := store.Get(ctx, batchID)
package checkpoint

import (
	"context"
	"time"

	"github.com/museguard/museguard/connector"
	"go.uber.org/zap"
)

// ========================================
// 数据模型 (Data Model)
// ========================================

// Checkpoint 批次作业检查点。
// 不变式：Processed + Failed ≤ TotalItems。
type Checkpoint struct {
	BatchID       string         `json:"batch_id" msgpack:"batch_id"`
	Provider      string         `json:"provider" msgpack:"provider"`
	OperationType string         `json:"operation_type" msgpack:"operation_type"`
	TotalItems    int            `json:"total_items" msgpack:"total_items"`
	Processed     int            `json:"processed" msgpack:"processed"`
	Failed        int            `json:"failed" msgpack:"failed"`
	Position      int            `json:"position" msgpack:"position"`
	LastItemID    string         `json:"last_item_id" msgpack:"last_item_id"`
	Data          map[string]any `json:"data,omitempty" msgpack:"data,omitempty"`
	CreatedAt     time.Time      `json:"created_at" msgpack:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" msgpack:"updated_at"`
}

// Progress 返回进度百分比 = 100 * (Processed + Failed) / TotalItems
func (c *Checkpoint) Progress() float64 {
	if c.TotalItems <= 0 {
		return 0
	}
	return 100 * float64(c.Processed+c.Failed) / float64(c.TotalItems)
}

// IsComplete 当且仅当 Processed + Failed ≥ TotalItems
func (c *Checkpoint) IsComplete() bool {
	return c.Processed+c.Failed >= c.TotalItems
}

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Store 检查点存储核心接口
type Store interface {
	// Create 以 0 进度创建检查点并立即持久化
	Create(ctx context.Context, batchID, provider, operationType string, totalItems int) (*Checkpoint, error)

	// Update 更新计数器与游标（绝对值）并重新持久化。
	// data 为 nil 时保留原有续传数据。过期时间不变。
	Update(ctx context.Context, cp *Checkpoint, processed, failed, position int, lastItemID string, data map[string]any) error

	// Get 按 batchID 加载检查点，用于恢复。
	// 不存在或已过期时返回 ErrNotFound。
	Get(ctx context.Context, batchID string) (*Checkpoint, error)

	// Delete 删除检查点。不存在时静默成功。
	Delete(ctx context.Context, batchID string) error

	// Close 释放资源
	Close() error
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 检查点存储配置
type Config struct {
	// Expiry 自创建起的保留时长，到期后可被回收（默认: 24h）
	Expiry time.Duration `json:"expiry" yaml:"expiry" mapstructure:"expiry"`

	// Serializer 序列化器类型，"msgpack" 或 "json"（默认: "msgpack"）
	Serializer string `json:"serializer" yaml:"serializer" mapstructure:"serializer"`

	// Prefix 分布式模式下 Redis Key 前缀（默认: "museguard:"）
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Expiry <= 0 {
		c.Expiry = 24 * time.Hour
	}
	if c.Serializer == "" {
		c.Serializer = "msgpack"
	}
	if c.Prefix == "" {
		c.Prefix = "museguard:"
	}
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// NewMemory 创建单机检查点存储（进程内，重启即失）。
// 适合测试与单副本部署；生产恢复场景应使用分布式存储。
func NewMemory(opts ...Option) (Store, error) {
	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger != nil {
		logger = logger.With(zap.String("component", "checkpoint"))
		logger.Info("creating memory checkpoint store")
	}

	return newMemoryStore(defaultConfig(), logger), nil
}

// NewDistributed 创建分布式检查点存储。
// 检查点以 msgpack（或 json）序列化后存入 Redis，键为
// checkpoint:{batch_id}，过期时间固定在创建时刻 + Expiry。
func NewDistributed(redisConn connector.RedisConnector, cfg *Config, opts ...Option) (Store, error) {
	if redisConn == nil {
		return nil, ErrConnectorNil
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()

	ser, err := newSerializer(cfg.Serializer)
	if err != nil {
		return nil, err
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger != nil {
		logger = logger.With(zap.String("component", "checkpoint"))
		logger.Info("creating distributed checkpoint store",
			zap.String("prefix", cfg.Prefix),
			zap.String("serializer", cfg.Serializer),
			zap.Duration("expiry", cfg.Expiry))
	}

	return newRedisStore(redisConn.GetClient(), cfg, ser, logger), nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}
