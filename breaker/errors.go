package breaker

import "errors"

// 错误定义
var (
	// ErrConnectorNil 连接器为空
	ErrConnectorNil = errors.New("breaker: connector is nil")

	// ErrKeyEmpty 熔断键为空
	ErrKeyEmpty = errors.New("breaker: key is empty")

	// ErrCircuitOpen 熔断器打开，请求未被尝试（软错误，预先拒绝）
	ErrCircuitOpen = errors.New("breaker: circuit open")
)
