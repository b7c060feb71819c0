// Package sweep hosts the periodic transport lifecycle sweep.
package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hospitalflow/logistics/internal/domain/transport"
	"github.com/hospitalflow/logistics/internal/platform/metrics"
)

// Runner drives the sweeper on a fixed interval until its context is
// cancelled. Sweeps never overlap: the next tick waits for the previous sweep
// to return.
type Runner struct {
	sweeper  *transport.Sweeper
	interval time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func NewRunner(sweeper *transport.Sweeper, interval time.Duration, logger zerolog.Logger) *Runner {
	return &Runner{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger.With().Str("component", "sweep-runner").Logger(),
	}
}

// SetMetrics attaches optional Prometheus instrumentation.
func (r *Runner) SetMetrics(m *metrics.Metrics) { r.metrics = m }

// Run blocks until ctx is cancelled. One sweep runs immediately so a fresh
// process catches up without waiting a full interval.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Msg("sweep runner started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("sweep runner stopped")
			return
		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

func (r *Runner) sweepOnce(ctx context.Context) {
	if _, err := r.sweeper.Sweep(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error().Err(err).Msg("sweep failed")
		if r.metrics != nil {
			r.metrics.SweepFailures.Inc()
		}
	}
}
