package transport

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a transport request does not exist.
var ErrNotFound = errors.New("transport request not found")

// Transition describes the fields written by one lifecycle transition. Nil
// fields are left untouched.
type Transition struct {
	Status                 *string
	StartTime              *time.Time
	ExpectedCompletionTime *time.Time
	DelayMinutes           *int
	ActualTimeMinutes      *int
}

// Repository is the store contract for transport requests. ConditionalUpdate
// and UpdateSchedule are read-modify-write guards: they only apply when the
// persisted version and status still match what the caller read, so a sweep
// racing a human edit re-evaluates instead of silently overwriting.
type Repository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	List(ctx context.Context, status string, limit, offset int) ([]*Request, int, error)
	ListNonTerminal(ctx context.Context) ([]*Request, error)
	ConditionalUpdate(ctx context.Context, id uuid.UUID, expectedVersion int, expectedStatus string, tr Transition) (bool, error)
	UpdateSchedule(ctx context.Context, id uuid.UUID, expectedVersion int, plannedStart time.Time) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}
