package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hospitalflow/logistics/internal/platform/clock"
)

// ErrConflict is returned when a conditional update lost against a concurrent
// edit. Callers may re-read and retry.
var ErrConflict = errors.New("transport request was modified concurrently")

// ErrNotCancellable is returned when cancelling a request that is already
// underway. Once in_progress, a transport always runs to completion.
var ErrNotCancellable = errors.New("only pending or planned transports can be cancelled")

const defaultEstimatedMinutes = 15

type Service struct {
	repo  Repository
	clock clock.Clock
}

func NewService(repo Repository, clk clock.Clock) *Service {
	return &Service{repo: repo, clock: clk}
}

func (s *Service) Create(ctx context.Context, t *Request) error {
	if t.FromLocation == "" || t.ToLocation == "" {
		return fmt.Errorf("from_location and to_location are required")
	}
	if t.RequestType == "" {
		t.RequestType = TypePatient
	}
	if !validTypes[t.RequestType] {
		return fmt.Errorf("invalid request_type: %s", t.RequestType)
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if !validPriorities[t.Priority] {
		return fmt.Errorf("invalid priority: %s", t.Priority)
	}
	if t.EstimatedTimeMinutes <= 0 {
		t.EstimatedTimeMinutes = defaultEstimatedMinutes
	}
	if t.RequestedStart != nil && t.RequestedEnd != nil && !t.RequestedStart.Before(*t.RequestedEnd) {
		return fmt.Errorf("requested time window is empty")
	}

	// A precomputed start time makes the request planned; otherwise it waits
	// as pending until scheduled.
	if t.PlannedStartTime != nil {
		t.Status = StatusPlanned
	} else {
		t.Status = StatusPending
	}
	return s.repo.Create(ctx, t)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Request, int, error) {
	if status != "" && !validStatuses[status] {
		return nil, 0, fmt.Errorf("invalid status: %s", status)
	}
	return s.repo.List(ctx, status, limit, offset)
}

// Reschedule sets a new planned start time on a pending or planned request.
// The version check makes a human edit racing the sweep fail cleanly instead
// of overwriting an activation.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, plannedStart time.Time) error {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != StatusPending && t.Status != StatusPlanned {
		return fmt.Errorf("cannot reschedule a %s transport", t.Status)
	}
	ok, err := s.repo.UpdateSchedule(ctx, id, t.VersionID, plannedStart)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

// Cancel removes a pending or planned request. Cancellation is a delete, not
// a status: no completion side effects fire, and a linked inventory order is
// left as-is for the caller to re-schedule.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != StatusPending && t.Status != StatusPlanned {
		return ErrNotCancellable
	}
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		// Activated between the read and the delete.
		return ErrNotCancellable
	}
	return nil
}

// PlannedStartIn computes a realistic planned start: 5-10 minutes of
// preparation plus 10-15 minutes of wait per transport already queued, with a
// 5 minute floor.
func (s *Service) PlannedStartIn(rng Rand, queueLength int) time.Time {
	prep := 5 + rng.Float64()*5
	wait := float64(queueLength) * (10 + rng.Float64()*5)
	total := prep + wait
	if total < 5 {
		total = 5
	}
	return s.clock.Now().Add(time.Duration(total * float64(time.Minute)))
}
