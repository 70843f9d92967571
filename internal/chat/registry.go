package chat

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks the single live channel per authenticated principal.
// It is constructed at startup and owned by the server process; no
// package-level state.
type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]Outbound
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[uuid.UUID]Outbound)}
}

// Register stores the channel for its principal. A second registration
// for the same principal replaces the entry; the displaced channel is
// returned so the caller can close it.
func (r *Registry) Register(c Outbound) Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.conns[c.ID()]
	r.conns[c.ID()] = c
	if prev != nil {
		log.Printf("[REGISTRY] Replacing existing session for user %s", c.ID())
	}
	log.Printf("[REGISTRY] Registered %s (%s). Total active: %d", c.Name(), c.ID(), len(r.conns))
	return prev
}

// Unregister removes the entry only if it still belongs to this channel.
// A stale channel (already replaced by a reconnect) must not evict its
// successor.
func (r *Registry) Unregister(c Outbound) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.conns[c.ID()]
	if !ok || current != c {
		return false
	}
	delete(r.conns, c.ID())
	log.Printf("[REGISTRY] Unregistered %s (%s). Total active: %d", c.Name(), c.ID(), len(r.conns))
	return true
}

func (r *Registry) Lookup(userID uuid.UUID) (Outbound, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[userID]
	return c, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
