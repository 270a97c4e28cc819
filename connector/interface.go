// Package connector 为 museguard 提供统一的外部存储连接管理能力。
//
// 同步引擎的共享状态（限流预算、熔断状态、批次检查点）存放在外部
// KV 存储中，进度事件可选地通过 NATS 广播到其他副本。connector
// 负责这两类连接的生命周期：
//   - 统一抽象：通过 Connector 接口提供一致的连接管理 API
//   - 类型安全：通过 TypedConnector[T] 泛型接口确保编译时类型检查
//   - 健康检查：HealthCheck 主动探测，IsHealthy 读取缓存状态
//   - 幂等连接：Connect() / Close() 均可安全重复调用
//
// 基本使用：
//
//	cfg := &connector.RedisConfig{Addr: "127.0.0.1:6379"}
//	conn, err := connector.NewRedis(cfg, connector.WithLogger(logger))
//	if err != nil {
//		panic(err)
//	}
//	defer conn.Close()
//
//	if err := conn.Connect(ctx); err != nil {
//		panic(err)
//	}
//	client := conn.GetClient()
//
// 资源所有权：Connector 拥有底层连接的生命周期。组件（ratelimit、
// breaker、checkpoint、orchestrator）仅借用 Connector，不应调用 Close()。
package connector

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Connector 定义所有连接器的通用行为。
//
// 接口方法均为并发安全，可从多个协程同时调用。
type Connector interface {
	// Connect 建立连接。幂等，首次调用时建立连接，后续调用直接返回 nil。
	Connect(ctx context.Context) error

	// Close 关闭连接并释放资源。幂等。
	// 应在应用层通过 defer 确保调用，遵循"谁创建，谁负责释放"原则。
	Close() error

	// HealthCheck 主动探测连接健康状态，并更新内部健康缓存。
	HealthCheck(ctx context.Context) error

	// IsHealthy 返回缓存的健康状态，无阻塞。
	IsHealthy() bool

	// Name 返回连接实例名称，用于日志标识。
	Name() string
}

// TypedConnector 提供类型安全的客户端访问。
//
// 类型参数 T 是客户端类型，如 *redis.Client、*nats.Conn。
type TypedConnector[T any] interface {
	Connector

	// GetClient 返回底层客户端实例。
	// 在 Connect() 之前或 Close() 之后调用可能返回 nil。
	GetClient() T
}

// RedisConnector Redis 连接器接口。
//
// 承载引擎的共享可变状态：rate_limit:{provider}、circuit:{provider}、
// checkpoint:{batch_id}。
type RedisConnector interface {
	TypedConnector[*redis.Client]
}

// NATSConnector NATS 连接器接口。
//
// 用于进度事件的跨副本广播（at-most-once，不持久化）。
type NATSConnector interface {
	TypedConnector[*nats.Conn]
}
