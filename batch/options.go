package batch

import "go.uber.org/zap"

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger   *zap.Logger
	recorder Recorder
}

// WithLogger 设置 Logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRecorder 注入熔断器记录器，批次结果将同时回馈给它
func WithRecorder(rec Recorder) Option {
	return func(o *options) {
		o.recorder = rec
	}
}
