package batch

import "errors"

// 错误定义
var (
	// ErrLimiterNil 限流器为空
	ErrLimiterNil = errors.New("batch: limiter is nil")

	// ErrCircuitOpen 熔断拒绝，该批被跳过且计为失败（执行器未被调用）
	ErrCircuitOpen = errors.New("batch: circuit open, batch skipped")
)
