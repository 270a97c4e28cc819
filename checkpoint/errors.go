package checkpoint

import "errors"

// 错误定义
var (
	// ErrConnectorNil 连接器为空
	ErrConnectorNil = errors.New("checkpoint: connector is nil")

	// ErrNotFound 检查点不存在或已过期
	ErrNotFound = errors.New("checkpoint: not found")

	// ErrCheckpointNil 检查点为空
	ErrCheckpointNil = errors.New("checkpoint: checkpoint is nil")

	// ErrBatchIDEmpty 批次 ID 为空
	ErrBatchIDEmpty = errors.New("checkpoint: batch id is empty")

	// ErrUnsupportedSerializer 不支持的序列化器类型
	ErrUnsupportedSerializer = errors.New("checkpoint: unsupported serializer type")
)
