package orchestrator

import "errors"

// 错误定义
var (
	// ErrLimiterNil 限流器为空
	ErrLimiterNil = errors.New("orchestrator: limiter is nil")

	// ErrWorkerNil 工作器为空
	ErrWorkerNil = errors.New("orchestrator: worker is nil")

	// ErrWorkerNotRegistered 请求的平台没有注册工作器（致命配置错误，
	// 整个请求被拒绝，不会启动任何作业）
	ErrWorkerNotRegistered = errors.New("orchestrator: worker not registered")

	// ErrNoPlatforms 请求未指定任何平台
	ErrNoPlatforms = errors.New("orchestrator: no platforms requested")

	// ErrRunNotFound 运行不存在或已到达终态并被移出注册表
	ErrRunNotFound = errors.New("orchestrator: run not found")

	// ErrClosed 编排器已关闭
	ErrClosed = errors.New("orchestrator: closed")
)
