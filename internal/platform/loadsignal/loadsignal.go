// Package loadsignal defines the contract for correlated hospital-load
// indicators consumed by the reorder engine. Providers are read-only and may
// serve stale values; consumers must tolerate a zero-valued signal.
package loadsignal

import (
	"context"
	"sync"
	"time"
)

// DefaultEDLoadPercent is assumed when a provider returns a zero-valued or
// missing signal.
const DefaultEDLoadPercent = 65.0

// Signal is a snapshot of hospital-load indicators.
type Signal struct {
	EDLoadPercent float64   `json:"ed_load_percent"`
	OccupiedBeds  int       `json:"occupied_beds"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsZero reports whether the signal carries no information.
func (s Signal) IsZero() bool {
	return s.EDLoadPercent == 0 && s.OccupiedBeds == 0
}

// Normalize substitutes the documented default for a zero-valued signal.
func (s Signal) Normalize() Signal {
	if s.EDLoadPercent <= 0 {
		s.EDLoadPercent = DefaultEDLoadPercent
	}
	return s
}

// Provider supplies the current load signal.
type Provider interface {
	CurrentLoad(ctx context.Context) (Signal, error)
}

// Static is a Provider that always returns a fixed signal.
type Static struct {
	Signal Signal
}

func (s Static) CurrentLoad(context.Context) (Signal, error) {
	return s.Signal, nil
}

// Cached is a TTL read-through cache around another Provider. The core is
// safe to call on every sweep without it; it only spares the upstream
// provider from per-sweep reads.
type Cached struct {
	upstream Provider
	ttl      time.Duration

	mu        sync.Mutex
	cached    Signal
	fetchedAt time.Time
}

func NewCached(upstream Provider, ttl time.Duration) *Cached {
	return &Cached{upstream: upstream, ttl: ttl}
}

func (c *Cached) CurrentLoad(ctx context.Context) (Signal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.ttl {
		return c.cached, nil
	}
	sig, err := c.upstream.CurrentLoad(ctx)
	if err != nil {
		// Serve the stale value if we have one; stale beats nothing.
		if !c.fetchedAt.IsZero() {
			return c.cached, nil
		}
		return Signal{}, err
	}
	c.cached = sig
	c.fetchedAt = time.Now()
	return sig, nil
}
