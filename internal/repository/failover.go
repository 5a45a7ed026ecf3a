package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cubenotary/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverDeduper uses the primary deduper until it errors, then the fallback,
// probing the primary again once recoveryInterval has passed.
type FailoverDeduper struct {
	primary   domain.DeliveryDeduper
	fallback  domain.DeliveryDeduper
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverDeduper(primary, fallback domain.DeliveryDeduper, logger *zerolog.Logger) *FailoverDeduper {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverDeduper{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverDeduper) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary deduper failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverDeduper) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > recoveryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverDeduper) MarkDelivered(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	if r.usePrimary() {
		fresh, err := r.primary.MarkDelivered(ctx, eventID, ttl)
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("Primary deduper recovered")
			}
			return fresh, nil
		}
		r.markDown(err)
	}
	return r.fallback.MarkDelivered(ctx, eventID, ttl)
}

func (r *FailoverDeduper) Forget(ctx context.Context, eventID string) error {
	if !r.isDown.Load() {
		if err := r.primary.Forget(ctx, eventID); err != nil {
			r.markDown(err)
		}
	}
	return r.fallback.Forget(ctx, eventID)
}

// IsDegraded reports whether calls are currently served by the fallback.
func (r *FailoverDeduper) IsDegraded() bool {
	return r.isDown.Load()
}
