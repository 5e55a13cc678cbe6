package registry

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Fanline/internal/gateway"
)

// Hub раздаёт события сессий подписчикам (WebSocket-стримы API).
//
// Медленный подписчик события теряет: буфер канала ограничен, и
// переполнение не блокирует Supervisor.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan gateway.Event]struct{}
}

// NewHub создаёт пустой Hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[uuid.UUID]map[chan gateway.Event]struct{}),
	}
}

// Subscribe подписывает на события instance.
// Возвращённая функция снимает подписку и закрывает канал.
func (h *Hub) Subscribe(id uuid.UUID) (<-chan gateway.Event, func()) {
	ch := make(chan gateway.Event, 16)

	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[chan gateway.Event]struct{})
	}
	h.subs[id][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[id], ch)
			if len(h.subs[id]) == 0 {
				delete(h.subs, id)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Broadcast рассылает событие всем подписчикам instance.
func (h *Hub) Broadcast(id uuid.UUID, evt gateway.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[id] {
		select {
		case ch <- evt:
		default:
		}
	}
}
