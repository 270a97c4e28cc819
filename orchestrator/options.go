package orchestrator

import (
	"github.com/museguard/museguard/breaker"
	"github.com/museguard/museguard/connector"
	"go.uber.org/zap"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger   *zap.Logger
	breaker  breaker.Breaker
	natsConn connector.NATSConnector
	history  HistorySink
	subject  string
}

// WithLogger 设置 Logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBreaker 注入熔断器，用于状态聚合上报
func WithBreaker(b breaker.Breaker) Option {
	return func(o *options) {
		o.breaker = b
	}
}

// WithNATSConnector 启用 NATS 进度桥：每个进度事件以 JSON 发布到
// {subject}.{platform}，供其他副本上的观察者消费。至多一次投递。
func WithNATSConnector(conn connector.NATSConnector) Option {
	return func(o *options) {
		o.natsConn = conn
	}
}

// WithProgressSubject 自定义 NATS 进度主题前缀
// （默认: "museguard.sync.progress"）
func WithProgressSubject(subject string) Option {
	return func(o *options) {
		o.subject = subject
	}
}

// WithHistorySink 注入终态运行记录落点，运行到达终态时被通知
func WithHistorySink(sink HistorySink) Option {
	return func(o *options) {
		o.history = sink
	}
}
