package lifecycle

import (
	"sync"
	"time"
)

// Event 审核状态变化事件
type Event struct {
	AuditID    string    `json:"audit_id"`
	Action     string    `json:"action"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	ActorID    string    `json:"actor"`
	Detail     any       `json:"detail,omitempty"`
	OccurredAt time.Time `json:"at"`
}

// EventBusConfig 控制事件总线行为
type EventBusConfig struct {
	BufferSize int
}

// EventBus 进程内事件总线，按审核ID订阅
type EventBus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan Event
	seq    uint64
	buffer int
}

// NewEventBus 创建事件总线
func NewEventBus(cfg *EventBusConfig) *EventBus {
	buffer := 8
	if cfg != nil && cfg.BufferSize > 0 {
		buffer = cfg.BufferSize
	}
	return &EventBus{
		subs:   make(map[string]map[uint64]chan Event),
		buffer: buffer,
	}
}

// Publish 发布事件，接收方处理慢时丢弃，不阻塞业务
func (b *EventBus) Publish(evt Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[evt.AuditID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribe 订阅指定审核的事件，返回的 cancel 会关闭通道
func (b *EventBus) Subscribe(auditID string) (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.seq++
	id := b.seq
	if _, ok := b.subs[auditID]; !ok {
		b.subs[auditID] = make(map[uint64]chan Event)
	}
	b.subs[auditID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.remove(auditID, id) })
	}
}

// Subscribers 当前订阅数
func (b *EventBus) Subscribers(auditID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[auditID])
}

func (b *EventBus) remove(auditID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	listeners, ok := b.subs[auditID]
	if !ok {
		return
	}
	if ch, exists := listeners[id]; exists {
		delete(listeners, id)
		close(ch)
	}
	if len(listeners) == 0 {
		delete(b.subs, auditID)
	}
}
