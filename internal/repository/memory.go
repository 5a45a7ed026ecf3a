package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryDeduper is the single-process fallback for RedisDeduper.
type MemoryDeduper struct {
	mu     sync.Mutex
	events map[string]time.Time
	now    func() time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{
		events: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (r *MemoryDeduper) MarkDelivered(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if expiresAt, ok := r.events[eventID]; ok && now.Before(expiresAt) {
		return false, nil
	}
	r.events[eventID] = now.Add(ttl)

	// opportunistic sweep keeps the map bounded
	for id, exp := range r.events {
		if !now.Before(exp) {
			delete(r.events, id)
		}
	}
	return true, nil
}

func (r *MemoryDeduper) Forget(ctx context.Context, eventID string) error {
	r.mu.Lock()
	delete(r.events, eventID)
	r.mu.Unlock()
	return nil
}
