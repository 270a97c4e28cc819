package orchestrator

import (
	"sync"
	"time"

	"github.com/museguard/museguard/platform"
)

// registry 活跃运行注册表（内部使用）。
// 只保存未到达终态的运行；终态运行在历史落点通知之后被移除。
type registry struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

func newRegistry() *registry {
	return &registry{runs: make(map[string]*Run)}
}

func (r *registry) add(run *Run) {
	r.mu.Lock()
	r.runs[run.ID] = run
	r.mu.Unlock()
}

func (r *registry) remove(runID string) {
	r.mu.Lock()
	delete(r.runs, runID)
	r.mu.Unlock()
}

// get 返回运行的快照副本
func (r *registry) get(runID string) (*Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil, false
	}
	return snapshot(run), true
}

// list 返回全部活跃运行的快照
func (r *registry) list() []*Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, snapshot(run))
	}
	return out
}

// byPlatform 返回该平台当前的活跃运行（如有）
func (r *registry) byPlatform(p string) *Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, run := range r.runs {
		if run.Platform == p {
			return snapshot(run)
		}
	}
	return nil
}

// setStatus 迁移运行状态。终态不再迁移；返回是否生效。
func (r *registry) setStatus(runID string, status RunStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok || run.Status.Terminal() {
		return false
	}
	run.Status = status
	run.UpdatedAt = time.Now()
	return true
}

// isCancelled 运行是否已被标记取消
func (r *registry) isCancelled(runID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[runID]
	return ok && run.Status == StatusCancelled
}

// applyProgress 将进度事件合入运行状态
func (r *registry) applyProgress(runID string, ev platform.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok || run.Status.Terminal() {
		return
	}
	if ev.TotalItems > 0 {
		run.TotalItems = ev.TotalItems
	}
	run.ItemsProcessed = ev.ItemsProcessed
	if len(ev.Errors) > 0 {
		run.Errors = append(run.Errors, ev.Errors...)
	}
	run.UpdatedAt = time.Now()
}

// finish 落定终态并返回最终快照。
// 已被取消的运行保持 Cancelled，不被 status 覆盖。
func (r *registry) finish(runID string, status RunStatus, result *platform.SyncResult, errMsg string) *Run {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil
	}
	if run.Status != StatusCancelled {
		run.Status = status
	}
	run.Result = result
	if result != nil {
		if result.TotalItems > 0 {
			run.TotalItems = result.TotalItems
		}
		run.ItemsProcessed = result.ItemsProcessed
		run.CheckpointID = result.CheckpointID
		if len(result.Errors) > 0 {
			run.Errors = append(run.Errors, result.Errors...)
		}
	}
	if errMsg != "" {
		run.Errors = append(run.Errors, errMsg)
	}
	now := time.Now()
	run.UpdatedAt = now
	run.FinishedAt = now
	return snapshot(run)
}

// snapshot 深拷贝运行，避免调用方与注册表共享可变状态
func snapshot(run *Run) *Run {
	cp := *run
	if run.Errors != nil {
		cp.Errors = append([]string(nil), run.Errors...)
	}
	return &cp
}
