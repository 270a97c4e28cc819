package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// luaEnsure 窗口状态懒建与滚动的公共前奏。
// 状态不存在或窗口已过期时以满预算重建，TTL 等于窗口时长，
// 过期即等价于"下个窗口满预算"。
// KEYS[1]: 状态键  ARGV[1]: now_ms  ARGV[2]: budget  ARGV[3]: window_ms
const luaEnsure = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local budget = tonumber(ARGV[2])
local window = tonumber(ARGV[3])

local reset = tonumber(redis.call("HGET", key, "reset_ms"))
if not reset or now >= reset then
  reset = now + window
  redis.call("HSET", key, "rem", budget, "reset_ms", reset, "fails", 0, "backoff_ms", 0, "last_ms", 0)
  redis.call("PEXPIRE", key, window)
end
`

// luaLoad 读取当前状态（先执行懒建/滚动）
const luaLoad = luaEnsure + `
local vals = redis.call("HMGET", key, "rem", "reset_ms", "fails", "backoff_ms", "last_ms")
return {tonumber(vals[1]), tonumber(vals[2]), tonumber(vals[3]), tonumber(vals[4]), tonumber(vals[5])}
`

// luaSuccess 原子地应用一次成功。
// ARGV[4]: 提示的 remaining（无提示为 -1）  ARGV[5]: 提示的 reset_ms（无提示为 -1）
const luaSuccess = luaEnsure + `
local hintRem = tonumber(ARGV[4])
local hintReset = tonumber(ARGV[5])

local rem = tonumber(redis.call("HGET", key, "rem"))
if hintRem >= 0 then
  rem = hintRem
elseif rem > 0 then
  rem = rem - 1
end
if hintReset >= 0 then
  reset = hintReset
  redis.call("PEXPIRE", key, math.max(reset - now, 1000))
end

redis.call("HSET", key, "rem", rem, "reset_ms", reset, "fails", 0, "backoff_ms", 0, "last_ms", now)
return {rem, reset, 0, 0, now}
`

// luaFailure 原子地应用一次失败。
// ARGV[4]: rate_limited(0/1)  ARGV[5]: multiplier
// ARGV[6]: max_backoff_ms     ARGV[7]: min_cooldown_ms
const luaFailure = luaEnsure + `
local rateLimited = tonumber(ARGV[4])
local mult = tonumber(ARGV[5])
local maxBackoff = tonumber(ARGV[6])
local minCooldown = tonumber(ARGV[7])

local fails = redis.call("HINCRBY", key, "fails", 1)
local backoff = math.min(mult ^ math.min(fails, 16) * 1000, maxBackoff)
local rem = tonumber(redis.call("HGET", key, "rem"))
if rateLimited == 1 then
  rem = 0
  if reset < now + minCooldown then
    reset = now + minCooldown
  end
  redis.call("PEXPIRE", key, reset - now)
end

redis.call("HSET", key, "rem", rem, "reset_ms", reset, "backoff_ms", backoff, "last_ms", now)
return {rem, reset, fails, backoff, now}
`

// redisStore Redis 共享状态存储。
// 键为 {prefix}rate_limit:{provider}，每个方法对应一个 Lua 脚本，
// 读改写整体原子，多副本并发写不会互相覆盖。
type redisStore struct {
	client  *redis.Client
	prefix  string
	load    *redis.Script
	success *redis.Script
	failure *redis.Script
}

func newRedisStore(client *redis.Client, prefix string) *redisStore {
	return &redisStore{
		client:  client,
		prefix:  prefix,
		load:    redis.NewScript(luaLoad),
		success: redis.NewScript(luaSuccess),
		failure: redis.NewScript(luaFailure),
	}
}

func (r *redisStore) key(provider string) string {
	return r.prefix + "rate_limit:" + provider
}

// run 执行脚本并把 {rem, reset_ms, fails, backoff_ms, last_ms} 解析为 State
func (r *redisStore) run(ctx context.Context, script *redis.Script, provider string, args ...any) (*State, error) {
	result, err := script.Run(ctx, r.client, []string{r.key(provider)}, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("ratelimit: execute lua script: %w", err)
	}

	vals, ok := result.([]interface{})
	if !ok || len(vals) != 5 {
		return nil, fmt.Errorf("ratelimit: unexpected lua script result %v", result)
	}

	nums := make([]int64, 5)
	for i, v := range vals {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("ratelimit: unexpected lua value %v", v)
		}
		nums[i] = n
	}

	st := &State{
		RequestsRemaining:   int(nums[0]),
		WindowResetAt:       time.UnixMilli(nums[1]),
		ConsecutiveFailures: int(nums[2]),
		CurrentBackoff:      time.Duration(nums[3]) * time.Millisecond,
	}
	if nums[4] > 0 {
		st.LastRequestAt = time.UnixMilli(nums[4])
	}
	return st, nil
}

func (r *redisStore) ensure(ctx context.Context, provider string, cfg *Config) (*State, error) {
	return r.run(ctx, r.load, provider,
		time.Now().UnixMilli(), cfg.budget(), cfg.WindowDuration.Milliseconds())
}

func (r *redisStore) recordSuccess(ctx context.Context, provider string, cfg *Config, hints *ResponseHints) (*State, error) {
	hintRem := int64(-1)
	hintReset := int64(-1)
	if hints != nil {
		if hints.Remaining != nil {
			hintRem = int64(max(0, *hints.Remaining))
		}
		if hints.ResetAt != nil {
			hintReset = hints.ResetAt.UnixMilli()
		}
	}
	return r.run(ctx, r.success, provider,
		time.Now().UnixMilli(), cfg.budget(), cfg.WindowDuration.Milliseconds(), hintRem, hintReset)
}

func (r *redisStore) recordFailure(ctx context.Context, provider string, cfg *Config, rateLimited bool) (*State, error) {
	flag := int64(0)
	if rateLimited {
		flag = 1
	}
	return r.run(ctx, r.failure, provider,
		time.Now().UnixMilli(), cfg.budget(), cfg.WindowDuration.Milliseconds(),
		flag, cfg.BackoffMultiplier, cfg.MaxBackoff.Milliseconds(), cfg.MinCooldown.Milliseconds())
}

func (r *redisStore) touch(ctx context.Context, provider string, cfg *Config, at time.Time) error {
	// 单字段写本身原子，无需脚本
	return r.client.HSet(ctx, r.key(provider), "last_ms", at.UnixMilli()).Err()
}

func (r *redisStore) close() error {
	// 连接由 Connector 管理
	return nil
}
