// Package orchestrator 提供同步作业的注册、分发与跟踪组件。
//
// 编排器维护提供方 → Worker 的注册表；TriggerSync 为每个平台分配
// 独立的运行 ID 并启动一个并发作业，立即返回不等待完成。进度经由
// 回调更新活跃运行注册表，同时在进程内广播通道（以及可选的 NATS
// 桥）上扇出给多个订阅者；取消是协作式的，只在批边界生效。
//
// ## 基本使用
//
//	orch, _ := orchestrator.New(limiter,
//	    orchestrator.WithBreaker(brk),
//	    orchestrator.WithLogger(logger))
//	defer orch.Close()
//
//	_ = orch.RegisterWorker(spotifyWorker)
//
//	runIDs, err := orch.TriggerSync(ctx, &orchestrator.Request{
//	    Platforms: []string{"spotify"},
//	    SyncType:  orchestrator.SyncFull,
//	})
//
//	events, unsubscribe := orch.Subscribe()
//	defer unsubscribe()
//	for ev := range events {
//	    // 消费进度 ...
//	}
package orchestrator

import (
	"context"
	"time"

	"github.com/museguard/museguard/platform"
	"github.com/museguard/museguard/ratelimit"
	"go.uber.org/zap"
)

// ========================================
// 数据模型 (Data Model)
// ========================================

// SyncType 同步类型
type SyncType string

const (
	// SyncFull 全量同步
	SyncFull SyncType = "full"
	// SyncIncremental 增量同步（带检查点续传）
	SyncIncremental SyncType = "incremental"
)

// RunStatus 运行状态。终态（Completed / PartiallyCompleted /
// Failed / Cancelled）不再发生迁移。
type RunStatus int

const (
	// StatusPending 已分配、尚未开始
	StatusPending RunStatus = iota
	// StatusRunning 执行中
	StatusRunning
	// StatusCompleted 全部成功
	StatusCompleted
	// StatusPartiallyCompleted 有进展但存在失败
	StatusPartiallyCompleted
	// StatusFailed 无任何进展
	StatusFailed
	// StatusCancelled 已被取消
	StatusCancelled
)

// String 返回状态的字符串表示
func (s RunStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusPartiallyCompleted:
		return "partially_completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal 是否为终态
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartiallyCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Run 一次同步运行的状态快照
type Run struct {
	ID             string               `json:"id"`
	Platform       string               `json:"platform"`
	SyncType       SyncType             `json:"sync_type"`
	Priority       int                  `json:"priority"`
	Status         RunStatus            `json:"status"`
	TotalItems     int                  `json:"total_items"`
	ItemsProcessed int                  `json:"items_processed"`
	Errors         []string             `json:"errors,omitempty"`
	StartedAt      time.Time            `json:"started_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
	FinishedAt     time.Time            `json:"finished_at,omitzero"`
	CheckpointID   string               `json:"checkpoint_id,omitempty"`
	Result         *platform.SyncResult `json:"result,omitempty"`
}

// Request 同步触发请求
type Request struct {
	// Platforms 目标平台，必须全部已注册，否则整个请求被拒绝
	Platforms []string `json:"platforms"`

	// SyncType 同步类型（默认: SyncFull）
	SyncType SyncType `json:"sync_type"`

	// Priority 调用方定义的优先级，随运行透传
	Priority int `json:"priority,omitempty"`

	// ArtistIDs 可选的目标艺人集合，空表示全量范围
	ArtistIDs []string `json:"artist_ids,omitempty"`
}

// ProviderStatus 单个提供方的聚合状态
type ProviderStatus struct {
	Platform   string           `json:"platform"`
	Healthy    bool             `json:"healthy"`
	HealthErr  string           `json:"health_err,omitempty"`
	CurrentRun *Run             `json:"current_run,omitempty"`
	RateLimit  *ratelimit.State `json:"rate_limit,omitempty"`
	Circuit    string           `json:"circuit,omitempty"`
}

// SearchResult 单个提供方的搜索结果，失败彼此隔离
type SearchResult struct {
	Platform string             `json:"platform"`
	Artists  []*platform.Artist `json:"artists,omitempty"`
	Err      error              `json:"-"`
}

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Orchestrator 同步编排器核心接口
type Orchestrator interface {
	// RegisterWorker 注册（或更新）平台工作器，按平台标识幂等覆盖。
	// 同时以工作器自带的限流配置注册限流器。
	RegisterWorker(w platform.Worker) error

	// TriggerSync 为每个请求的平台启动一个独立并发作业，
	// 立即返回对应的运行 ID 列表。任一平台未注册时整个请求
	// 被拒绝（ErrWorkerNotRegistered），不会启动任何作业。
	TriggerSync(ctx context.Context, req *Request) ([]string, error)

	// GetStatus 聚合每个已注册提供方的状态：工作器健康、
	// 当前运行、限流快照与熔断状态
	GetStatus(ctx context.Context) (map[string]*ProviderStatus, error)

	// GetRun 返回活跃运行的快照，终态运行已被移出注册表
	GetRun(runID string) (*Run, error)

	// GetActiveRuns 返回全部活跃运行的快照
	GetActiveRuns() []*Run

	// CancelRun 将运行标记为已取消。仅为建议性：工作器在下一个
	// 批边界经由进度回调观察到取消，已在途的批总是跑完。
	CancelRun(runID string) error

	// SearchArtistAllPlatforms 将查询并发扇出到所有已注册工作器，
	// 按提供方独立收集结果，单个提供方的失败不阻塞其他
	SearchArtistAllPlatforms(ctx context.Context, query string, limit int) map[string]*SearchResult

	// Subscribe 订阅进度事件，返回独立的缓冲通道与退订函数。
	// 至多一次投递：订阅者消费过慢时事件被丢弃而非阻塞发布。
	Subscribe() (<-chan platform.ProgressEvent, func())

	// Close 关闭编排器：停止接受新请求，关闭所有订阅通道
	Close() error
}

// HistorySink 终态运行的记录落点（外部实现，如审计 / 报表存储）
type HistorySink interface {
	RecordRunOutcome(ctx context.Context, run *Run) error
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建编排器。limiter 必选；熔断器、NATS 桥、历史落点经由
// Option 注入。
func New(limiter ratelimit.Limiter, opts ...Option) (Orchestrator, error) {
	if limiter == nil {
		return nil, ErrLimiterNil
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger != nil {
		logger = logger.With(zap.String("component", "orchestrator"))
		logger.Info("creating orchestrator",
			zap.Bool("breaker", opt.breaker != nil),
			zap.Bool("nats_bridge", opt.natsConn != nil),
			zap.Bool("history_sink", opt.history != nil))
	}

	return newEngine(limiter, opt, logger), nil
}
