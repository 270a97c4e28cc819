package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/museguard/museguard/breaker"
	"github.com/museguard/museguard/platform"
	"github.com/museguard/museguard/ratelimit"
	"go.uber.org/zap"
)

// engine Orchestrator 的默认实现（非导出）
type engine struct {
	limiter ratelimit.Limiter
	breaker breaker.Breaker
	history HistorySink
	bridge  *natsBridge
	logger  *zap.Logger

	registry *registry
	hub      *hub

	mu      sync.RWMutex
	workers map[string]platform.Worker
	closed  bool
}

func newEngine(limiter ratelimit.Limiter, opt options, logger *zap.Logger) *engine {
	e := &engine{
		limiter:  limiter,
		breaker:  opt.breaker,
		history:  opt.history,
		logger:   logger,
		registry: newRegistry(),
		hub:      newHub(),
		workers:  make(map[string]platform.Worker),
	}
	if opt.natsConn != nil {
		e.bridge = newNATSBridge(opt.natsConn, opt.subject, logger)
	}
	return e
}

// RegisterWorker 注册（或更新）平台工作器，按平台标识幂等覆盖
func (e *engine) RegisterWorker(w platform.Worker) error {
	if w == nil {
		return ErrWorkerNil
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.workers[w.Platform()] = w
	e.mu.Unlock()

	// 工作器自带限流画像，注册即生效
	e.limiter.Register(w.Platform(), w.RateLimitConfig())

	if e.logger != nil {
		e.logger.Info("worker registered", zap.String("platform", w.Platform()))
	}
	return nil
}

func (e *engine) worker(p string) (platform.Worker, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.workers[p]
	return w, ok
}

// TriggerSync 为每个请求的平台启动一个独立并发作业
func (e *engine) TriggerSync(ctx context.Context, req *Request) ([]string, error) {
	if req == nil || len(req.Platforms) == 0 {
		return nil, ErrNoPlatforms
	}

	syncType := req.SyncType
	if syncType == "" {
		syncType = SyncFull
	}

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrClosed
	}
	// 先整体校验：任一平台缺失则一个作业都不启动
	workers := make([]platform.Worker, 0, len(req.Platforms))
	for _, p := range req.Platforms {
		w, ok := e.workers[p]
		if !ok {
			e.mu.RUnlock()
			return nil, fmt.Errorf("%w: %s", ErrWorkerNotRegistered, p)
		}
		workers = append(workers, w)
	}
	e.mu.RUnlock()

	runIDs := make([]string, 0, len(workers))
	for _, w := range workers {
		now := time.Now()
		run := &Run{
			ID:        uuid.NewString(),
			Platform:  w.Platform(),
			SyncType:  syncType,
			Priority:  req.Priority,
			Status:    StatusPending,
			StartedAt: now,
			UpdatedAt: now,
		}
		e.registry.add(run)
		runIDs = append(runIDs, run.ID)

		go e.runJob(run.ID, w, syncType)

		if e.logger != nil {
			e.logger.Info("sync run dispatched",
				zap.String("run_id", run.ID),
				zap.String("platform", w.Platform()),
				zap.String("sync_type", string(syncType)))
		}
	}
	return runIDs, nil
}

// runJob 单平台同步作业。独立协程，生命周期与运行一致。
func (e *engine) runJob(runID string, w platform.Worker, syncType SyncType) {
	// 作业不继承 TriggerSync 的 ctx：触发调用立即返回，
	// 执行期限由调用方经协作式取消控制
	ctx := context.Background()

	e.registry.setStatus(runID, StatusRunning)

	progress := func(ev platform.ProgressEvent) error {
		ev.SyncRunID = runID
		ev.Platform = w.Platform()
		if ev.UpdatedAt.IsZero() {
			ev.UpdatedAt = time.Now()
		}

		e.registry.applyProgress(runID, ev)
		e.broadcast(ev)

		if e.registry.isCancelled(runID) {
			return platform.ErrRunCancelled
		}
		return nil
	}

	var (
		result *platform.SyncResult
		err    error
	)
	switch syncType {
	case SyncIncremental:
		cp, cpErr := w.Checkpoint(ctx, runID)
		if cpErr != nil && e.logger != nil {
			e.logger.Warn("checkpoint load failed, starting fresh",
				zap.String("run_id", runID),
				zap.Error(cpErr))
		}
		result, err = w.SyncIncremental(ctx, cp, progress)
	default:
		result, err = w.SyncFull(ctx, progress)
	}

	status := classify(result, err)
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	final := e.registry.finish(runID, status, result, errMsg)
	if final == nil {
		return
	}

	e.broadcast(terminalEvent(final))

	if e.history != nil {
		if histErr := e.history.RecordRunOutcome(ctx, final); histErr != nil && e.logger != nil {
			e.logger.Warn("history sink failed",
				zap.String("run_id", runID),
				zap.Error(histErr))
		}
	}

	// 终态运行离开活跃注册表，历史由落点负责
	e.registry.remove(runID)

	if e.logger != nil {
		e.logger.Info("sync run finished",
			zap.String("run_id", runID),
			zap.String("platform", final.Platform),
			zap.String("status", final.Status.String()),
			zap.Int("items_processed", final.ItemsProcessed))
	}
}

// classify 由同步结果与错误推导终态。
// 有进展但存在失败 → PartiallyCompleted；无任何进展 → Failed。
func classify(result *platform.SyncResult, err error) RunStatus {
	processed := 0
	failed := 0
	if result != nil {
		processed = result.ItemsProcessed
		failed = result.ItemsFailed
	}

	switch {
	case err == nil && failed == 0:
		return StatusCompleted
	case processed > 0:
		return StatusPartiallyCompleted
	default:
		return StatusFailed
	}
}

// terminalEvent 由终态运行构造收尾进度事件
func terminalEvent(run *Run) platform.ProgressEvent {
	return platform.ProgressEvent{
		Platform:       run.Platform,
		SyncRunID:      run.ID,
		Status:         run.Status.String(),
		TotalItems:     run.TotalItems,
		ItemsProcessed: run.ItemsProcessed,
		Errors:         run.Errors,
		StartedAt:      run.StartedAt,
		UpdatedAt:      run.FinishedAt,
	}
}

func (e *engine) broadcast(ev platform.ProgressEvent) {
	e.hub.publish(ev)
	if e.bridge != nil {
		e.bridge.publish(ev)
	}
}

// GetStatus 聚合每个已注册提供方的状态
func (e *engine) GetStatus(ctx context.Context) (map[string]*ProviderStatus, error) {
	e.mu.RLock()
	workers := make(map[string]platform.Worker, len(e.workers))
	for p, w := range e.workers {
		workers[p] = w
	}
	e.mu.RUnlock()

	out := make(map[string]*ProviderStatus, len(workers))
	for p, w := range workers {
		st := &ProviderStatus{Platform: p}

		if err := w.HealthCheck(ctx); err != nil {
			st.HealthErr = err.Error()
		} else {
			st.Healthy = true
		}

		st.CurrentRun = e.registry.byPlatform(p)

		if snap, err := e.limiter.Snapshot(ctx, p); err == nil {
			st.RateLimit = snap
		}
		if e.breaker != nil {
			if cs, err := e.breaker.State(ctx, p); err == nil {
				st.Circuit = cs.String()
			}
		}
		out[p] = st
	}
	return out, nil
}

// GetRun 返回活跃运行的快照
func (e *engine) GetRun(runID string) (*Run, error) {
	run, ok := e.registry.get(runID)
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// GetActiveRuns 返回全部活跃运行的快照
func (e *engine) GetActiveRuns() []*Run {
	return e.registry.list()
}

// CancelRun 将运行标记为已取消（建议性，批边界生效）
func (e *engine) CancelRun(runID string) error {
	if !e.registry.setStatus(runID, StatusCancelled) {
		return ErrRunNotFound
	}
	if e.logger != nil {
		e.logger.Info("sync run cancelled", zap.String("run_id", runID))
	}
	return nil
}

// SearchArtistAllPlatforms 并发扇出查询，按提供方独立收集结果
func (e *engine) SearchArtistAllPlatforms(ctx context.Context, query string, limit int) map[string]*SearchResult {
	e.mu.RLock()
	workers := make(map[string]platform.Worker, len(e.workers))
	for p, w := range e.workers {
		workers[p] = w
	}
	e.mu.RUnlock()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	out := make(map[string]*SearchResult, len(workers))

	for p, w := range workers {
		wg.Add(1)
		go func(p string, w platform.Worker) {
			defer wg.Done()

			artists, err := w.SearchArtist(ctx, query, limit)
			mu.Lock()
			out[p] = &SearchResult{Platform: p, Artists: artists, Err: err}
			mu.Unlock()
		}(p, w)
	}
	wg.Wait()
	return out
}

// Subscribe 订阅进度事件
func (e *engine) Subscribe() (<-chan platform.ProgressEvent, func()) {
	return e.hub.subscribe()
}

// Close 关闭编排器。不等待在途作业：取消是协作式的，
// 需要同步收尾的调用方应先 CancelRun 再等待终态事件。
func (e *engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.hub.close()

	if e.logger != nil {
		e.logger.Info("orchestrator closed")
	}
	return nil
}
