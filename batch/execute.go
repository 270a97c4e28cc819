package batch

import (
	"context"
	"time"

	"github.com/museguard/museguard/ratelimit"
)

// Func 单批执行函数。
// 返回上游响应中的限流提示（可为 nil）与执行结果。
type Func[T any] func(ctx context.Context, items []T) (*ratelimit.ResponseHints, error)

// Chunk 将条目序列切分为连续批次，保持原顺序。
// size < 1 时按 1 处理；空序列返回空切片。
func Chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}

	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}

// Execute 按提交顺序逐批执行，批与批之间绝不并行。
//
// 每批的流程：
//  1. 批边界取消检查：ctx 已取消则停止，剩余批次不再执行
//  2. 门控检查：CanProceed 为 false 时记一次熔断跳过失败
//     （Err 包装 ErrCircuitOpen），继续下一批，执行器不被调用
//  3. 批间最小延迟（首次真正执行之前不生效）
//  4. Wait 等待限流窗口 / 最小间距
//  5. 调用 fn，并将结果回馈给限流器与熔断器
//
// 单批失败彼此隔离，不中止后续批次。返回按批次顺序的逐批结果
// 与完成 / 部分完成 / 失败的汇总分类。
func Execute[T any](ctx context.Context, p Planner, provider, operation string, batches [][]T, fn Func[T]) *Summary {
	summary := &Summary{
		Total:   len(batches),
		Results: make([]Result, 0, len(batches)),
	}

	executed := false
	for i, items := range batches {
		// 取消只在批边界生效，已在途的批总是跑完
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}

		ok, err := p.CanProceed(ctx, provider)
		if err != nil {
			summary.Results = append(summary.Results, Result{Index: i, Size: len(items), Err: err})
			continue
		}
		if !ok {
			summary.Results = append(summary.Results, Result{Index: i, Size: len(items), Err: ErrCircuitOpen})
			continue
		}

		if executed {
			if err := sleep(ctx, p.Delay(provider, operation)); err != nil {
				summary.Cancelled = true
				break
			}
		}

		waited, err := p.Wait(ctx, provider)
		if err != nil {
			if ctx.Err() != nil {
				summary.Cancelled = true
				break
			}
			summary.Results = append(summary.Results, Result{Index: i, Size: len(items), Waited: waited, Err: err})
			continue
		}

		start := time.Now()
		hints, err := fn(ctx, items)
		executed = true

		// 回馈失败不覆盖批次自身的结果
		_ = p.RecordOutcome(ctx, provider, hints, err)

		summary.Results = append(summary.Results, Result{
			Index:    i,
			Size:     len(items),
			Waited:   waited,
			Duration: time.Since(start),
			Err:      err,
		})
	}

	for _, r := range summary.Results {
		if r.Err == nil {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	switch {
	case summary.Succeeded == summary.Total:
		summary.Status = StatusCompleted
	case summary.Succeeded > 0:
		summary.Status = StatusPartiallyCompleted
	default:
		summary.Status = StatusFailed
	}
	return summary
}

// sleep 可被 ctx 取消的休眠
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
