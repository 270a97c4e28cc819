package ratelimit

import "errors"

// 错误定义
var (
	// ErrConnectorNil 连接器为空
	ErrConnectorNil = errors.New("ratelimit: connector is nil")

	// ErrProviderUnknown 提供方未注册限流配置
	ErrProviderUnknown = errors.New("ratelimit: provider not registered")

	// ErrRateLimited 预算耗尽（软错误，等待窗口重置即可恢复）
	ErrRateLimited = errors.New("ratelimit: rate limit exceeded")
)
