package platform

import "errors"

// 错误定义
var (
	// ErrRunCancelled 运行已被取消。进度回调返回该错误时，
	// 工作器应在下一个批边界停止。
	ErrRunCancelled = errors.New("platform: run cancelled")

	// ErrNotFound 上游不存在该资源（艺人 / 曲目 / 专辑）
	ErrNotFound = errors.New("platform: not found")

	// ErrUnhealthy 工作器健康检查失败
	ErrUnhealthy = errors.New("platform: worker unhealthy")
)
