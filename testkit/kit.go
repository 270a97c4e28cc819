// Package testkit 提供各组件测试共用的辅助工具：测试 logger、
// 唯一 ID、以及在 Redis 不可达时自动跳过的连接器获取函数。
package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// NewLogger 返回一个输出到测试日志的 logger
func NewLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// NewContext 返回一个带有超时的测试上下文
func NewContext(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// NewID 返回一个唯一的测试 ID (UUID v4 前 8 位)
// 用于生成唯一的 Key 或 provider 名后缀，避免测试间数据冲突
func NewID() string {
	return uuid.New().String()[0:8]
}
