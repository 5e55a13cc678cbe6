// Package registry управляет запущенными сессиями instances.
//
// Registry хранит живые сессии, Hub раздаёт их события подписчикам,
// Supervisor связывает события сессий с ledger и очередями.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Fanline/internal/gateway"
)

// Registry — потокобезопасная карта запущенных сессий.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]gateway.Session
}

// NewRegistry создаёт пустой Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]gateway.Session),
	}
}

// Add регистрирует сессию instance.
// Возвращает false, если сессия уже зарегистрирована.
func (r *Registry) Add(id uuid.UUID, session gateway.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		return false
	}
	r.sessions[id] = session
	return true
}

// Get возвращает сессию instance.
func (r *Registry) Get(id uuid.UUID) (gateway.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Remove снимает сессию с регистрации и возвращает её.
func (r *Registry) Remove(id uuid.UUID) (gateway.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return session, ok
}

// Participants возвращает участников чата через сессию instance.
func (r *Registry) Participants(ctx context.Context, instanceID uuid.UUID, chatJID string) ([]gateway.Participant, error) {
	session, ok := r.Get(instanceID)
	if !ok {
		return nil, fmt.Errorf("instance %s has no running session", instanceID)
	}
	if !session.Connected() {
		return nil, fmt.Errorf("instance %s is not connected", instanceID)
	}
	return session.Participants(ctx, chatJID)
}

// IDs возвращает ID всех зарегистрированных сессий.
func (r *Registry) IDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
