package transport

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/hospitalflow/logistics/internal/platform/clock"
	"github.com/hospitalflow/logistics/internal/platform/metrics"
)

// Rand is the randomness source for delay injection. math/rand's *rand.Rand
// satisfies it; tests substitute a deterministic sequence.
type Rand interface {
	Float64() float64
}

// NewSeededRand returns a Rand seeded from the given value.
func NewSeededRand(seed int64) Rand {
	return rand.New(rand.NewSource(seed))
}

// DelayPolicy describes the randomized disruption model: with probability
// Probability, a transport is delayed by a uniform fraction of its estimated
// duration drawn from [MinFraction, MaxFraction).
type DelayPolicy struct {
	Probability float64
	MinFraction float64
	MaxFraction float64
}

// DefaultDelayPolicy matches the observed disruption rate on the transport fleet.
func DefaultDelayPolicy() DelayPolicy {
	return DelayPolicy{Probability: 0.10, MinFraction: 0.2, MaxFraction: 0.5}
}

// Draw performs one Bernoulli draw. It returns the delay in whole minutes,
// zero when the draw does not fire.
func (p DelayPolicy) Draw(rng Rand, estimatedMinutes int) int {
	if p.Probability <= 0 || rng.Float64() >= p.Probability {
		return 0
	}
	f := p.MinFraction + rng.Float64()*(p.MaxFraction-p.MinFraction)
	return int(float64(estimatedMinutes) * f)
}

// Hook receives lifecycle transitions synchronously, before the sweep counts
// the transition as done. Implemented by the fulfillment coupling.
type Hook interface {
	OnActivate(ctx context.Context, t *Request) error
	OnComplete(ctx context.Context, t *Request) error
}

// NopHook ignores all transitions.
type NopHook struct{}

func (NopHook) OnActivate(context.Context, *Request) error { return nil }
func (NopHook) OnComplete(context.Context, *Request) error { return nil }

// Result aggregates one sweep. Partial progress is always committed; failures
// are retried by the next sweep.
type Result struct {
	Activated int `json:"activated"`
	Delayed   int `json:"delayed"`
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Sweeper drives the transport lifecycle. It holds no state across sweeps:
// every cycle reads fresh records from the repository and applies transitions
// through conditional updates, so re-running a sweep against already-updated
// records is a no-op.
type Sweeper struct {
	repo    Repository
	clock   clock.Clock
	policy  DelayPolicy
	rng     Rand
	hook    Hook
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewSweeper(repo Repository, clk clock.Clock, policy DelayPolicy, rng Rand, hook Hook, logger zerolog.Logger) *Sweeper {
	if hook == nil {
		hook = NopHook{}
	}
	if rng == nil {
		rng = NewSeededRand(time.Now().UnixNano())
	}
	return &Sweeper{
		repo:   repo,
		clock:  clk,
		policy: policy,
		rng:    rng,
		hook:   hook,
		logger: logger.With().Str("component", "transport-sweeper").Logger(),
	}
}

// SetMetrics attaches optional Prometheus instrumentation.
func (s *Sweeper) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// Sweep runs one pass of the lifecycle state machine. Within a sweep,
// activation is evaluated before completion, so a request whose planned start
// and estimated completion both fall due still passes through in_progress.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	started := time.Now()
	now := s.clock.Now()
	var res Result

	requests, err := s.repo.ListNonTerminal(ctx)
	if err != nil {
		return res, err
	}

	// The in_progress work list is fixed before activation runs, so a
	// transport activated in this pass is not eligible for the mid-transit
	// draw or completion until the next sweep.
	var inProgress []*Request
	for _, t := range requests {
		if t.Status == StatusInProgress {
			inProgress = append(inProgress, t)
		}
	}

	for _, t := range requests {
		if t.Status != StatusPlanned {
			continue
		}
		s.activate(ctx, t, now, &res)
	}

	for _, t := range inProgress {
		s.progress(ctx, t, now, &res)
	}

	if s.metrics != nil {
		s.metrics.SweepDuration.Observe(time.Since(started).Seconds())
		s.metrics.Transitions.WithLabelValues(metrics.TransitionActivated).Add(float64(res.Activated))
		s.metrics.Transitions.WithLabelValues(metrics.TransitionDelayed).Add(float64(res.Delayed))
		s.metrics.Transitions.WithLabelValues(metrics.TransitionCompleted).Add(float64(res.Completed))
		s.metrics.Transitions.WithLabelValues(metrics.TransitionSkipped).Add(float64(res.Skipped))
		s.metrics.SweepFailures.Add(float64(res.Failed))
	}

	s.logger.Info().
		Int("activated", res.Activated).
		Int("delayed", res.Delayed).
		Int("completed", res.Completed).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("sweep finished")

	return res, nil
}

// activate moves a due planned request to in_progress. The delay draw happens
// at most once per activation; it is never re-evaluated on later sweeps.
func (s *Sweeper) activate(ctx context.Context, t *Request, now time.Time, res *Result) {
	if t.PlannedStartTime == nil || t.PlannedStartTime.After(now) {
		return
	}
	if t.EstimatedTimeMinutes <= 0 {
		s.flag(t, "planned transport has no estimated duration")
		res.Skipped++
		return
	}

	delay := s.policy.Draw(s.rng, t.EstimatedTimeMinutes)
	expected := now.Add(time.Duration(t.EstimatedTimeMinutes+delay) * time.Minute)

	status := StatusInProgress
	ok, err := s.repo.ConditionalUpdate(ctx, t.ID, t.VersionID, StatusPlanned, Transition{
		Status:                 &status,
		StartTime:              &now,
		ExpectedCompletionTime: &expected,
		DelayMinutes:           &delay,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("transport_id", t.ID.String()).Msg("activate failed")
		res.Failed++
		return
	}
	if !ok {
		// Concurrent edit or delete; re-evaluated next sweep.
		res.Skipped++
		return
	}

	t.Status = StatusInProgress
	t.StartTime = &now
	t.ExpectedCompletionTime = &expected
	t.DelayMinutes = delay
	t.VersionID++

	res.Activated++
	if delay > 0 {
		res.Delayed++
	}

	if err := s.hook.OnActivate(ctx, t); err != nil {
		s.logger.Error().Err(err).Str("transport_id", t.ID.String()).Msg("activation hook failed")
		res.Failed++
	}
}

// progress handles an in_progress request: one possible mid-transit delay
// draw, then completion once the (possibly extended) expected completion time
// has elapsed.
func (s *Sweeper) progress(ctx context.Context, t *Request, now time.Time, res *Result) {
	if err := t.CheckTimingInvariants(); err != nil {
		s.flag(t, err.Error())
		res.Skipped++
		return
	}

	expected := *t.ExpectedCompletionTime

	// A disruption discovered mid-transit. Guarded by delay_minutes: once a
	// delay is recorded, from either injection point, it is never re-drawn.
	if t.DelayMinutes == 0 {
		if delay := s.policy.Draw(s.rng, t.EstimatedTimeMinutes); delay > 0 {
			extended := expected.Add(time.Duration(delay) * time.Minute)
			ok, err := s.repo.ConditionalUpdate(ctx, t.ID, t.VersionID, StatusInProgress, Transition{
				ExpectedCompletionTime: &extended,
				DelayMinutes:           &delay,
			})
			if err != nil {
				s.logger.Error().Err(err).Str("transport_id", t.ID.String()).Msg("delay injection failed")
				res.Failed++
				return
			}
			if !ok {
				res.Skipped++
				return
			}
			t.DelayMinutes = delay
			t.ExpectedCompletionTime = &extended
			t.VersionID++
			expected = extended
			res.Delayed++
		}
	}

	if expected.After(now) {
		return
	}

	actual := int(now.Sub(*t.StartTime) / time.Minute)
	status := StatusCompleted
	ok, err := s.repo.ConditionalUpdate(ctx, t.ID, t.VersionID, StatusInProgress, Transition{
		Status:            &status,
		ActualTimeMinutes: &actual,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("transport_id", t.ID.String()).Msg("complete failed")
		res.Failed++
		return
	}
	if !ok {
		res.Skipped++
		return
	}

	t.Status = StatusCompleted
	t.ActualTimeMinutes = &actual
	t.VersionID++
	res.Completed++

	if err := s.hook.OnComplete(ctx, t); err != nil {
		s.logger.Error().Err(err).Str("transport_id", t.ID.String()).Msg("completion hook failed")
		res.Failed++
	}
}

func (s *Sweeper) flag(t *Request, reason string) {
	s.logger.Error().
		Str("transport_id", t.ID.String()).
		Str("status", t.Status).
		Str("reason", reason).
		Msg("transport record flagged for operator review")
}
