package connector

import (
	"fmt"
	"time"
)

// RedisConfig Redis 连接配置
type RedisConfig struct {
	// 基础配置（可选，有默认值）
	Name string `json:"name" yaml:"name" mapstructure:"name"` // 连接器名称 (默认: "default")

	// 核心配置
	Addr     string `json:"addr" yaml:"addr" mapstructure:"addr"`             // [必填] 连接地址，如 "127.0.0.1:6379"
	Password string `json:"password" yaml:"password" mapstructure:"password"` // [可选] 认证密码
	DB       int    `json:"db" yaml:"db" mapstructure:"db"`                   // [可选] 数据库编号 (默认: 0)

	// 高级配置（可选，有默认值）
	PoolSize     int           `json:"pool_size" yaml:"pool_size" mapstructure:"pool_size"`                // 连接池大小 (默认: 10)
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns" mapstructure:"min_idle_conns"` // 最小空闲连接数 (默认: 5)
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" mapstructure:"dial_timeout"`       // 连接超时 (默认: 5s)
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`       // 读取超时 (默认: 3s)
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`    // 写入超时 (默认: 3s)
}

// setDefaults 设置默认值
func (c *RedisConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns < 0 {
		c.MinIdleConns = 5
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

// validate 校验配置
func (c *RedisConfig) validate() error {
	c.setDefaults()
	if c.Addr == "" {
		return fmt.Errorf("%w: redis addr is empty", ErrConfig)
	}
	if c.DB < 0 {
		return fmt.Errorf("%w: redis db must be >= 0", ErrConfig)
	}
	return nil
}

// NATSConfig NATS 连接配置
type NATSConfig struct {
	// 基础配置（可选，有默认值）
	Name string `json:"name" yaml:"name" mapstructure:"name"` // 连接器名称 (默认: "default")

	// 核心配置
	URL      string `json:"url" yaml:"url" mapstructure:"url"`                // [必填] 连接地址，如 "nats://127.0.0.1:4222"
	Username string `json:"username" yaml:"username" mapstructure:"username"` // [可选] 用户名
	Password string `json:"password" yaml:"password" mapstructure:"password"` // [可选] 密码
	Token    string `json:"token" yaml:"token" mapstructure:"token"`          // [可选] 令牌

	// 高级配置（可选，有默认值）
	Timeout       time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`                      // 连接超时 (默认: 5s)
	MaxReconnects int           `json:"max_reconnects" yaml:"max_reconnects" mapstructure:"max_reconnects"` // 最大重连次数 (默认: 60)
	ReconnectWait time.Duration `json:"reconnect_wait" yaml:"reconnect_wait" mapstructure:"reconnect_wait"` // 重连等待时间 (默认: 2s)
}

// setDefaults 设置默认值
func (c *NATSConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 60
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 2 * time.Second
	}
}

// validate 校验配置
func (c *NATSConfig) validate() error {
	c.setDefaults()
	if c.URL == "" {
		return fmt.Errorf("%w: nats url is empty", ErrConfig)
	}
	return nil
}
