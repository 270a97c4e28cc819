package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisStore 分布式检查点存储（非导出）。
// 创建时一次性设定 TTL，更新使用 SET XX KEEPTTL：过期时间固定在
// 创建时刻 + Expiry，更新不会续期，过期后更新返回 ErrNotFound。
type redisStore struct {
	cfg    *Config
	client *redis.Client
	ser    serializer
	logger *zap.Logger
}

func newRedisStore(client *redis.Client, cfg *Config, ser serializer, logger *zap.Logger) *redisStore {
	return &redisStore{
		cfg:    cfg,
		client: client,
		ser:    ser,
		logger: logger,
	}
}

func (s *redisStore) key(batchID string) string {
	return s.cfg.Prefix + "checkpoint:" + batchID
}

// Create 以 0 进度创建检查点并立即持久化
func (s *redisStore) Create(ctx context.Context, batchID, provider, operationType string, totalItems int) (*Checkpoint, error) {
	if batchID == "" {
		return nil, ErrBatchIDEmpty
	}

	now := time.Now()
	cp := &Checkpoint{
		BatchID:       batchID,
		Provider:      provider,
		OperationType: operationType,
		TotalItems:    totalItems,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	data, err := s.ser.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.key(batchID), data, s.cfg.Expiry).Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: persist: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("checkpoint created",
			zap.String("batch_id", batchID),
			zap.String("provider", provider),
			zap.String("operation", operationType),
			zap.Int("total_items", totalItems))
	}
	return cp, nil
}

// Update 更新计数器与游标并重新持久化，保留创建时设定的 TTL
func (s *redisStore) Update(ctx context.Context, cp *Checkpoint, processed, failed, position int, lastItemID string, data map[string]any) error {
	if cp == nil {
		return ErrCheckpointNil
	}

	cp.Processed = processed
	cp.Failed = failed
	cp.Position = position
	cp.LastItemID = lastItemID
	if data != nil {
		cp.Data = data
	}
	cp.UpdatedAt = time.Now()

	raw, err := s.ser.Marshal(cp)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	// XX：键已过期或被删除时不再写入
	ok, err := s.client.SetXX(ctx, s.key(cp.BatchID), raw, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("checkpoint: persist: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Get 按 batchID 加载检查点
func (s *redisStore) Get(ctx context.Context, batchID string) (*Checkpoint, error) {
	if batchID == "" {
		return nil, ErrBatchIDEmpty
	}

	raw, err := s.client.Get(ctx, s.key(batchID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("checkpoint: load: %w", err)
	}

	cp, err := s.ser.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal: %w", err)
	}
	return cp, nil
}

// Delete 删除检查点
func (s *redisStore) Delete(ctx context.Context, batchID string) error {
	if batchID == "" {
		return ErrBatchIDEmpty
	}
	if err := s.client.Del(ctx, s.key(batchID)).Err(); err != nil {
		return fmt.Errorf("checkpoint: delete: %w", err)
	}
	return nil
}

// Close 释放资源（连接由 Connector 管理）
func (s *redisStore) Close() error {
	return nil
}
