package checkpoint

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// memoryStore 单机检查点存储（非导出）。
// 过期采用惰性回收：Get 时发现超过保留期即删除并按不存在处理。
type memoryStore struct {
	cfg    *Config
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	cp        *Checkpoint
	expiresAt time.Time
}

func newMemoryStore(cfg *Config, logger *zap.Logger) *memoryStore {
	return &memoryStore{
		cfg:     cfg,
		logger:  logger,
		entries: make(map[string]*memoryEntry),
	}
}

// Create 以 0 进度创建检查点并立即持久化
func (s *memoryStore) Create(ctx context.Context, batchID, provider, operationType string, totalItems int) (*Checkpoint, error) {
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

	s.mu.Lock()
	s.entries[batchID] = &memoryEntry{cp: clone(cp), expiresAt: now.Add(s.cfg.Expiry)}
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("checkpoint created",
			zap.String("batch_id", batchID),
			zap.String("provider", provider),
			zap.String("operation", operationType),
			zap.Int("total_items", totalItems))
	}
	return cp, nil
}

// Update 更新计数器与游标并重新持久化，过期时间不变
func (s *memoryStore) Update(ctx context.Context, cp *Checkpoint, processed, failed, position int, lastItemID string, data map[string]any) error {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[cp.BatchID]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(s.entries, cp.BatchID)
		return ErrNotFound
	}
	entry.cp = clone(cp)
	return nil
}

// Get 按 batchID 加载检查点
func (s *memoryStore) Get(ctx context.Context, batchID string) (*Checkpoint, error) {
	if batchID == "" {
		return nil, ErrBatchIDEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[batchID]
	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.entries, batchID)
		return nil, ErrNotFound
	}
	return clone(entry.cp), nil
}

// Delete 删除检查点
func (s *memoryStore) Delete(ctx context.Context, batchID string) error {
	if batchID == "" {
		return ErrBatchIDEmpty
	}

	s.mu.Lock()
	delete(s.entries, batchID)
	s.mu.Unlock()
	return nil
}

// Close 释放资源
func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.entries = make(map[string]*memoryEntry)
	s.mu.Unlock()
	return nil
}

// clone 深拷贝检查点，避免调用方与存储共享可变状态
func clone(cp *Checkpoint) *Checkpoint {
	c := *cp
	if cp.Data != nil {
		c.Data = make(map[string]any, len(cp.Data))
		for k, v := range cp.Data {
			c.Data[k] = v
		}
	}
	return &c
}
