package orchestrator

import (
	"sync"

	"github.com/museguard/museguard/platform"
)

// 订阅通道缓冲大小。写满即丢弃，发布方永不阻塞。
const subscriberBuffer = 16

// hub 进程内进度广播（内部使用）。
// 至多一次投递：没有回放，迟到的订阅者错过更早的事件；当前状态
// 始终可经 GetRun / GetStatus 查询，事件流只是增量通知。
type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan platform.ProgressEvent
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan platform.ProgressEvent)}
}

// subscribe 返回独立的缓冲通道与退订函数。
// 退订幂等，退订后通道被关闭。
func (h *hub) subscribe() (<-chan platform.ProgressEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		ch := make(chan platform.ProgressEvent)
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	ch := make(chan platform.ProgressEvent, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
	return ch, unsubscribe
}

// publish 向所有订阅者非阻塞投递，慢订阅者丢事件
func (h *hub) publish(ev platform.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// close 关闭所有订阅通道
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
