package transport

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Lifecycle statuses. Cancellation is not a status: cancelling a pending or
// planned request deletes the record.
const (
	StatusPending    = "pending"
	StatusPlanned    = "planned"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Request types.
const (
	TypePatient   = "patient"
	TypeEquipment = "equipment"
	TypeSpecimen  = "specimen"
)

// Priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// RelatedInventoryOrder marks a transport created to fulfill an inventory order.
const RelatedInventoryOrder = "inventory_order"

var validStatuses = map[string]bool{
	StatusPending: true, StatusPlanned: true, StatusInProgress: true, StatusCompleted: true,
}

var validTypes = map[string]bool{
	TypePatient: true, TypeEquipment: true, TypeSpecimen: true,
}

var validPriorities = map[string]bool{
	PriorityLow: true, PriorityMedium: true, PriorityHigh: true,
}

// statusRank orders the lifecycle; transitions may only move forward.
var statusRank = map[string]int{
	StatusPending:    0,
	StatusPlanned:    1,
	StatusInProgress: 2,
	StatusCompleted:  3,
}

// StatusRank returns the position of a status in the lifecycle, -1 for unknown.
func StatusRank(status string) int {
	if r, ok := statusRank[status]; ok {
		return r
	}
	return -1
}

// Request maps to the transport_request table.
type Request struct {
	ID                     uuid.UUID  `db:"id" json:"id"`
	RequestType            string     `db:"request_type" json:"request_type"`
	Priority               string     `db:"priority" json:"priority"`
	FromLocation           string     `db:"from_location" json:"from_location"`
	ToLocation             string     `db:"to_location" json:"to_location"`
	Status                 string     `db:"status" json:"status"`
	RequestedStart         *time.Time `db:"requested_start" json:"requested_start,omitempty"`
	RequestedEnd           *time.Time `db:"requested_end" json:"requested_end,omitempty"`
	PlannedStartTime       *time.Time `db:"planned_start_time" json:"planned_start_time,omitempty"`
	EstimatedTimeMinutes   int        `db:"estimated_time_minutes" json:"estimated_time_minutes"`
	StartTime              *time.Time `db:"start_time" json:"start_time,omitempty"`
	ExpectedCompletionTime *time.Time `db:"expected_completion_time" json:"expected_completion_time,omitempty"`
	DelayMinutes           int        `db:"delay_minutes" json:"delay_minutes"`
	ActualTimeMinutes      *int       `db:"actual_time_minutes" json:"actual_time_minutes,omitempty"`
	RelatedEntityType      *string    `db:"related_entity_type" json:"related_entity_type,omitempty"`
	RelatedEntityID        *uuid.UUID `db:"related_entity_id" json:"related_entity_id,omitempty"`
	VersionID              int        `db:"version_id" json:"version_id"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
}

// GetVersionID returns the current version.
func (r *Request) GetVersionID() int { return r.VersionID }

// SetVersionID sets the current version.
func (r *Request) SetVersionID(v int) { r.VersionID = v }

// Terminal reports whether the request has reached its terminal status.
func (r *Request) Terminal() bool { return r.Status == StatusCompleted }

// RelatesTo reports whether the request is linked to the given entity type.
func (r *Request) RelatesTo(entityType string) bool {
	return r.RelatedEntityType != nil && *r.RelatedEntityType == entityType
}

// CheckTimingInvariants verifies the timing fields are consistent with the
// status: start_time is set iff in_progress or completed, and
// actual_time_minutes is set iff completed. Records violating this are
// skipped by the sweep and flagged for operator review.
func (r *Request) CheckTimingInvariants() error {
	started := r.Status == StatusInProgress || r.Status == StatusCompleted
	if started && r.StartTime == nil {
		return fmt.Errorf("transport %s is %s but has no start_time", r.ID, r.Status)
	}
	if !started && r.StartTime != nil {
		return fmt.Errorf("transport %s is %s but has start_time set", r.ID, r.Status)
	}
	if r.Status == StatusInProgress && r.ExpectedCompletionTime == nil {
		return fmt.Errorf("transport %s is in_progress but has no expected_completion_time", r.ID)
	}
	if r.Status == StatusCompleted && r.ActualTimeMinutes == nil {
		return fmt.Errorf("transport %s is completed but has no actual_time_minutes", r.ID)
	}
	if r.Status != StatusCompleted && r.ActualTimeMinutes != nil {
		return fmt.Errorf("transport %s is %s but has actual_time_minutes set", r.ID, r.Status)
	}
	return nil
}
