package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// downDebouncer откладывает признание instance отключённым.
//
// Обрыв сокета у whatsmeow — штатное событие: клиент сам
// переподключается. Rebalance по каждому обрыву навсегда сжимал бы
// набор instances кампаний, поэтому fire вызывается только если за
// grace не пришло повторное подключение.
type downDebouncer struct {
	grace time.Duration
	fire  func(id uuid.UUID)

	mu      sync.Mutex
	pending map[uuid.UUID]*time.Timer
}

func newDownDebouncer(grace time.Duration, fire func(id uuid.UUID)) *downDebouncer {
	return &downDebouncer{
		grace:   grace,
		fire:    fire,
		pending: make(map[uuid.UUID]*time.Timer),
	}
}

// Arm взводит таймер для instance. Уже взведённый таймер не трогается:
// отсчёт идёт от первого обрыва.
func (d *downDebouncer) Arm(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[id]; ok {
		return
	}
	d.pending[id] = time.AfterFunc(d.grace, func() {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
		d.fire(id)
	})
}

// Cancel снимает взведённый таймер instance.
func (d *downDebouncer) Cancel(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if timer, ok := d.pending[id]; ok {
		timer.Stop()
		delete(d.pending, id)
	}
}

// Stop снимает все таймеры.
func (d *downDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, timer := range d.pending {
		timer.Stop()
		delete(d.pending, id)
	}
}
