package connector

import "errors"

// 错误定义
var (
	// ErrConfig 配置无效
	ErrConfig = errors.New("connector: invalid config")

	// ErrClientNil 客户端未初始化或已关闭
	ErrClientNil = errors.New("connector: client is nil")

	// ErrConnection 连接建立失败
	ErrConnection = errors.New("connector: connection failed")

	// ErrHealthCheck 健康检查失败
	ErrHealthCheck = errors.New("connector: health check failed")
)
