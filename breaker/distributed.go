package breaker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 状态编码：0 = closed，1 = half_open，2 = open

// luaCircuitLoad 读取状态并应用冷却期迁移（Open → HalfOpen）。
// 状态缺失时懒惰重建为闭合。
// KEYS[1]: 状态键  ARGV[1]: now_ms  ARGV[2]: cooldown_ms  ARGV[3]: ttl_ms
const luaCircuitLoad = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local cooldown = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local state = tonumber(redis.call("HGET", key, "state"))
if not state then
  state = 0
  redis.call("HSET", key, "state", 0, "fails", 0, "succs", 0, "opened_ms", 0)
  redis.call("PEXPIRE", key, ttl)
end

if state == 2 then
  local opened = tonumber(redis.call("HGET", key, "opened_ms")) or 0
  if now - opened >= cooldown then
    state = 1
    redis.call("HSET", key, "state", 1, "fails", 0, "succs", 0)
    redis.call("PEXPIRE", key, ttl)
  end
end
`

// luaCircuitAllow 准入检查
const luaCircuitAllowScript = luaCircuitLoad + `
return state
`

// luaCircuitSuccess 记录成功。
// ARGV[4]: success_threshold
const luaCircuitSuccessScript = luaCircuitLoad + `
local threshold = tonumber(ARGV[4])

if state == 1 then
  local succs = redis.call("HINCRBY", key, "succs", 1)
  redis.call("HSET", key, "fails", 0)
  if succs >= threshold then
    state = 0
    redis.call("HSET", key, "state", 0, "fails", 0, "succs", 0, "opened_ms", 0)
  end
elseif state == 0 then
  redis.call("HSET", key, "fails", 0, "succs", 0)
end

redis.call("PEXPIRE", key, ttl)
return state
`

// luaCircuitFailure 记录失败。
// ARGV[4]: failure_threshold
const luaCircuitFailureScript = luaCircuitLoad + `
local threshold = tonumber(ARGV[4])

if state == 1 then
  state = 2
  redis.call("HSET", key, "state", 2, "opened_ms", now, "fails", 0, "succs", 0)
elseif state == 0 then
  local fails = redis.call("HINCRBY", key, "fails", 1)
  redis.call("HSET", key, "succs", 0)
  if fails >= threshold then
    state = 2
    redis.call("HSET", key, "state", 2, "opened_ms", now)
  end
end

redis.call("PEXPIRE", key, ttl)
return state
`

// distributedBreaker 分布式熔断器实现（非导出）。
// 完整的状态机运行在 Redis Lua 脚本内，每次记录都是一次原子迁移，
// 多副本并发写不会互相覆盖（设计决策见 DESIGN.md）。
type distributedBreaker struct {
	cfg    *Config
	client *redis.Client
	logger *zap.Logger

	allowScript   *redis.Script
	successScript *redis.Script
	failureScript *redis.Script
}

func newDistributed(client *redis.Client, cfg *Config, logger *zap.Logger) *distributedBreaker {
	return &distributedBreaker{
		cfg:           cfg,
		client:        client,
		logger:        logger,
		allowScript:   redis.NewScript(luaCircuitAllowScript),
		successScript: redis.NewScript(luaCircuitSuccessScript),
		failureScript: redis.NewScript(luaCircuitFailureScript),
	}
}

func (b *distributedBreaker) key(key string) string {
	return b.cfg.Prefix + "circuit:" + key
}

func (b *distributedBreaker) run(ctx context.Context, script *redis.Script, key string, extra ...any) (State, error) {
	args := []any{
		time.Now().UnixMilli(),
		b.cfg.Cooldown.Milliseconds(),
		b.cfg.StateTTL.Milliseconds(),
	}
	args = append(args, extra...)

	result, err := script.Run(ctx, b.client, []string{b.key(key)}, args...).Result()
	if err != nil {
		return StateClosed, fmt.Errorf("breaker: execute lua script: %w", err)
	}

	code, ok := result.(int64)
	if !ok {
		return StateClosed, fmt.Errorf("breaker: unexpected lua script result %v", result)
	}

	switch code {
	case 1:
		return StateHalfOpen, nil
	case 2:
		return StateOpen, nil
	default:
		return StateClosed, nil
	}
}

// Allow 准入检查，冷却期结束时在脚本内完成 Open → HalfOpen
func (b *distributedBreaker) Allow(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}

	state, err := b.run(ctx, b.allowScript, key)
	if err != nil {
		return false, err
	}
	return state != StateOpen, nil
}

// RecordSuccess 记录一次成功
func (b *distributedBreaker) RecordSuccess(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyEmpty
	}

	state, err := b.run(ctx, b.successScript, key, b.cfg.SuccessThreshold)
	if err != nil {
		return err
	}

	if b.logger != nil && state == StateClosed {
		b.logger.Debug("circuit success recorded", zap.String("key", key))
	}
	return nil
}

// RecordFailure 记录一次失败
func (b *distributedBreaker) RecordFailure(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyEmpty
	}

	state, err := b.run(ctx, b.failureScript, key, b.cfg.FailureThreshold)
	if err != nil {
		return err
	}

	if b.logger != nil && state == StateOpen {
		b.logger.Warn("circuit opened", zap.String("key", key))
	}
	return nil
}

// State 返回指定键的熔断器状态
func (b *distributedBreaker) State(ctx context.Context, key string) (State, error) {
	if key == "" {
		return StateClosed, ErrKeyEmpty
	}
	return b.run(ctx, b.allowScript, key)
}

// Execute 执行受熔断保护的函数
func (b *distributedBreaker) Execute(ctx context.Context, key string, fn func() error) error {
	return execute(ctx, b, key, fn)
}

// Close 释放资源（连接由 Connector 管理）
func (b *distributedBreaker) Close() error {
	return nil
}
