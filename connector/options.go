package connector

import "go.uber.org/zap"

type options struct {
	logger *zap.Logger
}

// Option 配置连接器的选项
type Option func(*options)

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// applyDefaults 填充缺省依赖
func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
}
