package ratelimit

import (
	"context"
	"sync"
	"time"
)

// store 限流状态存储。
// 每个方法都是一次完整的原子状态迁移：内存实现靠互斥锁，
// Redis 实现靠 Lua 脚本。
type store interface {
	// ensure 懒建状态并处理窗口滚动：状态不存在或窗口已过期时，
	// 以满预算重建。返回迁移后的状态。
	ensure(ctx context.Context, provider string, cfg *Config) (*State, error)

	// recordSuccess 应用一次成功：采纳提示或预算减一，清零失败与退避。
	recordSuccess(ctx context.Context, provider string, cfg *Config, hints *ResponseHints) (*State, error)

	// recordFailure 应用一次失败：推进退避；rateLimited 时清零预算
	// 并把窗口重置时间至少推后 MinCooldown。
	recordFailure(ctx context.Context, provider string, cfg *Config, rateLimited bool) (*State, error)

	// touch 更新最近一次请求时间
	touch(ctx context.Context, provider string, cfg *Config, at time.Time) error

	close() error
}

// memoryStore 进程内状态存储（单副本）
type memoryStore struct {
	mu     sync.Mutex
	states map[string]*State
}

func newMemoryStore() *memoryStore {
	return &memoryStore{states: make(map[string]*State)}
}

// ensureLocked 调用方必须持有 m.mu
func (m *memoryStore) ensureLocked(provider string, cfg *Config, now time.Time) *State {
	st, ok := m.states[provider]
	if !ok || !now.Before(st.WindowResetAt) {
		st = &State{
			RequestsRemaining: cfg.budget(),
			WindowResetAt:     now.Add(cfg.WindowDuration),
		}
		m.states[provider] = st
	}
	return st
}

func (m *memoryStore) ensure(ctx context.Context, provider string, cfg *Config) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.ensureLocked(provider, cfg, time.Now())
	cp := *st
	return &cp, nil
}

func (m *memoryStore) recordSuccess(ctx context.Context, provider string, cfg *Config, hints *ResponseHints) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	st := m.ensureLocked(provider, cfg, now)

	if hints != nil && hints.Remaining != nil {
		st.RequestsRemaining = max(0, *hints.Remaining)
	} else if st.RequestsRemaining > 0 {
		st.RequestsRemaining--
	}
	if hints != nil && hints.ResetAt != nil {
		st.WindowResetAt = *hints.ResetAt
	}
	st.ConsecutiveFailures = 0
	st.CurrentBackoff = 0
	st.LastRequestAt = now

	cp := *st
	return &cp, nil
}

func (m *memoryStore) recordFailure(ctx context.Context, provider string, cfg *Config, rateLimited bool) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	st := m.ensureLocked(provider, cfg, now)

	st.ConsecutiveFailures++
	st.CurrentBackoff = min(backoffFor(cfg.BackoffMultiplier, st.ConsecutiveFailures), cfg.MaxBackoff)
	if rateLimited {
		st.RequestsRemaining = 0
		if floor := now.Add(cfg.MinCooldown); st.WindowResetAt.Before(floor) {
			st.WindowResetAt = floor
		}
	}
	st.LastRequestAt = now

	cp := *st
	return &cp, nil
}

func (m *memoryStore) touch(ctx context.Context, provider string, cfg *Config, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.states[provider]; ok {
		st.LastRequestAt = at
	}
	return nil
}

func (m *memoryStore) close() error {
	return nil
}

// backoffFor 计算 multiplier^failures 秒，指数封顶防止溢出
func backoffFor(multiplier float64, failures int) time.Duration {
	exp := failures
	if exp > 16 {
		exp = 16
	}
	d := time.Second
	f := 1.0
	for i := 0; i < exp; i++ {
		f *= multiplier
	}
	return time.Duration(f * float64(d))
}
