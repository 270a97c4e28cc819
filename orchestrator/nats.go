package orchestrator

import (
	"encoding/json"

	"github.com/museguard/museguard/connector"
	"github.com/museguard/museguard/platform"
	"go.uber.org/zap"
)

// defaultProgressSubject NATS 进度主题前缀，实际主题为
// {prefix}.{platform}
const defaultProgressSubject = "museguard.sync.progress"

// natsBridge 把进度事件镜像到 NATS（内部使用）。
// Core 语义，fire-and-forget：发布失败只记日志，绝不影响作业本身。
type natsBridge struct {
	conn    connector.NATSConnector
	subject string
	logger  *zap.Logger
}

func newNATSBridge(conn connector.NATSConnector, subject string, logger *zap.Logger) *natsBridge {
	if subject == "" {
		subject = defaultProgressSubject
	}
	return &natsBridge{conn: conn, subject: subject, logger: logger}
}

func (b *natsBridge) publish(ev platform.ProgressEvent) {
	nc := b.conn.GetClient()
	if nc == nil {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		if b.logger != nil {
			b.logger.Warn("progress event marshal failed", zap.Error(err))
		}
		return
	}

	subject := b.subject + "." + ev.Platform
	if err := nc.Publish(subject, payload); err != nil && b.logger != nil {
		b.logger.Warn("progress publish failed",
			zap.String("subject", subject),
			zap.Error(err))
	}
}
