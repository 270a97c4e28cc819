package connector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// 配置校验测试
// ============================================================

func TestRedisConfig_Validation(t *testing.T) {
	t.Run("nil 配置被拒绝", func(t *testing.T) {
		_, err := NewRedis(nil)
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("缺失 addr 被拒绝", func(t *testing.T) {
		_, err := NewRedis(&RedisConfig{})
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("默认值填充", func(t *testing.T) {
		cfg := &RedisConfig{Addr: "127.0.0.1:6379"}
		require.NoError(t, cfg.validate())
		assert.Equal(t, "default", cfg.Name)
		assert.Equal(t, 10, cfg.PoolSize)
		assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	})
}

func TestNATSConfig_Validation(t *testing.T) {
	t.Run("nil 配置被拒绝", func(t *testing.T) {
		_, err := NewNATS(nil)
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("缺失 url 被拒绝", func(t *testing.T) {
		_, err := NewNATS(&NATSConfig{})
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("默认值填充", func(t *testing.T) {
		cfg := &NATSConfig{URL: "nats://127.0.0.1:4222"}
		require.NoError(t, cfg.validate())
		assert.Equal(t, 60, cfg.MaxReconnects)
		assert.Equal(t, 2*time.Second, cfg.ReconnectWait)
	})
}

// ============================================================
// 连接生命周期测试（无外部依赖的部分）
// ============================================================

func TestRedisConnector_Lifecycle(t *testing.T) {
	conn, err := NewRedis(&RedisConfig{
		Addr:        "127.0.0.1:1", // 不可达地址
		DialTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	defer conn.Close()

	t.Run("创建后未连接，不健康", func(t *testing.T) {
		assert.False(t, conn.IsHealthy())
		assert.NotNil(t, conn.GetClient(), "客户端实例在创建时就存在")
	})

	t.Run("连接不可达地址返回 ErrConnection", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := conn.Connect(ctx)
		assert.ErrorIs(t, err, ErrConnection)
		assert.False(t, conn.IsHealthy())
	})

	t.Run("Close 幂等", func(t *testing.T) {
		assert.NoError(t, conn.Close())
		assert.NoError(t, conn.Close())
	})
}

func TestNATSConnector_HealthBeforeConnect(t *testing.T) {
	conn, err := NewNATS(&NATSConfig{URL: "nats://127.0.0.1:1"})
	require.NoError(t, err)
	defer conn.Close()

	assert.False(t, conn.IsHealthy())
	assert.ErrorIs(t, conn.HealthCheck(context.Background()), ErrClientNil)
	assert.Nil(t, conn.GetClient())
}
