package ratelimit

import "go.uber.org/zap"

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger *zap.Logger
	gate   CircuitGate
}

// WithLogger 设置 Logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCircuitGate 注入熔断准入检查，CanProceed 会先咨询它
func WithCircuitGate(gate CircuitGate) Option {
	return func(o *options) {
		o.gate = gate
	}
}
