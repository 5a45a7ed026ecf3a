package worker

import (
	"math"
	"math/rand/v2"
	"time"

	"cubenotary/internal/config"
)

// RetryPolicy defines exponential backoff for failed sync tasks.
// Jitter is a fraction of the computed delay (0.2 means +/-20%).
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        float64
}

// PolicyFromConfig maps the sync section of the Google config onto a policy.
func PolicyFromConfig(cfg config.SyncConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
		Jitter:       cfg.Jitter,
	}
}

// Exhausted reports whether a task that has failed attempts times should go to
// the dead letter instead of being rescheduled.
func (r RetryPolicy) Exhausted(attempts int) bool {
	return r.MaxRetries > 0 && attempts >= r.MaxRetries
}

// NextDelay returns the wait before retry number attempt (1-based), capped at MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	base := r.InitialDelay
	if base <= 0 {
		base = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	exp := math.Max(float64(attempt-1), 0)
	d := time.Duration(float64(base) * math.Pow(factor, exp))
	if r.Jitter > 0 {
		spread := (rand.Float64()*2 - 1) * r.Jitter
		d += time.Duration(float64(d) * spread)
	}
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		return base
	}
	return d
}
