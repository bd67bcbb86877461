package booking

import (
	"time"

	"github.com/google/uuid"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Appointment is a clinic visit created only after a completed booking-fee
// payment of the correct amount exists and is not yet linked elsewhere.
type Appointment struct {
	ID            uuid.UUID
	UserID        string
	BranchID      string
	ScheduledAt   time.Time
	TreatmentType string
	Notes         string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
