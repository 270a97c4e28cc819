// Package batch 提供自适应批次规划与有序批次执行组件。
//
// 规划器（Planner）根据提供方当前剩余预算收缩配置的最优批次大小；
// 执行器（Execute）按提交顺序逐批执行，每批之前做熔断/限流门控，
// 单批失败彼此隔离，最终给出完成 / 部分完成 / 失败的汇总分类。
//
// ## 基本使用
//
//	planner, _ := batch.NewPlanner(limiter,
//	    batch.WithRecorder(brk),
//	    batch.WithLogger(logger))
//	planner.Register("spotify", "unfollow", &batch.Config{
//	    OptimalBatchSize:       50,
//	    MinDelayBetweenBatches: time.Second,
//	})
//
//	size, _ := planner.OptimalBatchSize(ctx, "spotify", "unfollow")
//	batches := batch.Chunk(items, size)
//	summary := batch.Execute(ctx, planner, "spotify", "unfollow", batches,
//	    func(ctx context.Context, items []string) (*ratelimit.ResponseHints, error) {
//	        // 调用上游 ...
//	        return nil, nil
//	    })
package batch

import (
	"context"
	"time"

	"github.com/museguard/museguard/ratelimit"
	"go.uber.org/zap"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Planner 批次规划器核心接口。
// 同时作为执行门控的门面：Execute 经由它咨询限流器与熔断器。
type Planner interface {
	// Register 注册（或更新）提供方 + 操作粒度的批次配置。
	// 未注册的组合使用默认配置。
	Register(provider, operation string, cfg *Config)

	// OptimalBatchSize 返回该操作的最优批次大小：
	// 从配置值出发，若提供方当前剩余预算更小则收缩至剩余预算，
	// 下限为 1。
	OptimalBatchSize(ctx context.Context, provider, operation string) (int, error)

	// Delay 返回该操作配置的批次间最小延迟
	Delay(provider, operation string) time.Duration

	// CanProceed 执行前门控：熔断器未拒绝且窗口预算有剩余
	CanProceed(ctx context.Context, provider string) (bool, error)

	// Wait 挂起直到允许下一次请求，返回实际等待时长
	Wait(ctx context.Context, provider string) (time.Duration, error)

	// RecordOutcome 将一批的执行结果回馈给限流器与熔断器。
	// err 为 nil 记成功；包装了 ratelimit.ErrRateLimited 的错误
	// 按限流类失败处理，其余按瞬时失败处理。
	RecordOutcome(ctx context.Context, provider string, hints *ratelimit.ResponseHints, err error) error
}

// Recorder 熔断器记录接口。breaker.Breaker 隐式满足。
type Recorder interface {
	RecordSuccess(ctx context.Context, key string) error
	RecordFailure(ctx context.Context, key string) error
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 提供方 + 操作粒度的批次配置
type Config struct {
	// OptimalBatchSize 配置的最优批次大小（默认: 50）
	OptimalBatchSize int `json:"optimal_batch_size" yaml:"optimal_batch_size" mapstructure:"optimal_batch_size"`

	// MinDelayBetweenBatches 两批之间的最小延迟，首批之前不生效
	// （默认: 1s）
	MinDelayBetweenBatches time.Duration `json:"min_delay_between_batches" yaml:"min_delay_between_batches" mapstructure:"min_delay_between_batches"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.OptimalBatchSize <= 0 {
		c.OptimalBatchSize = 50
	}
	if c.MinDelayBetweenBatches < 0 {
		c.MinDelayBetweenBatches = 0
	}
	if c.MinDelayBetweenBatches == 0 {
		c.MinDelayBetweenBatches = time.Second
	}
}

// ========================================
// 数据模型 (Data Model)
// ========================================

// Status 批次作业的最终分类
type Status int

const (
	// StatusCompleted 所有批次全部成功
	StatusCompleted Status = iota
	// StatusPartiallyCompleted 部分批次成功、部分失败或未执行
	StatusPartiallyCompleted
	// StatusFailed 没有任何批次成功
	StatusFailed
)

// String 返回状态的字符串表示
func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusPartiallyCompleted:
		return "partially_completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result 单批执行结果。Err 为 nil 表示成功；
// 熔断跳过的批次 Err 包装 ErrCircuitOpen，执行器未被调用。
type Result struct {
	Index    int           `json:"index"`
	Size     int           `json:"size"`
	Waited   time.Duration `json:"waited"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Summary 批次作业汇总
type Summary struct {
	Status    Status   `json:"status"`
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Cancelled bool     `json:"cancelled"`
	Results   []Result `json:"results"`
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// NewPlanner 创建批次规划器。
// recorder（熔断器）经由 WithRecorder 注入，缺省时只回馈限流器。
func NewPlanner(limiter ratelimit.Limiter, opts ...Option) (Planner, error) {
	if limiter == nil {
		return nil, ErrLimiterNil
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger != nil {
		logger = logger.With(zap.String("component", "batch"))
		logger.Info("creating batch planner")
	}

	return newPlanner(limiter, opt.recorder, logger), nil
}
