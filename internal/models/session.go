package models

import "time"

// SessionStatus represents the lifecycle of a training session.
type SessionStatus string

// Possible session statuses.
const (
	SessionStatusPending   SessionStatus = "PENDING"
	SessionStatusCompleted SessionStatus = "COMPLETED"
)

// Valid reports whether the status is a known value.
func (s SessionStatus) Valid() bool {
	return s == SessionStatusPending || s == SessionStatusCompleted
}

// TrainingSession is a scheduled physical-training event with fixed capacity.
// IDs are human readable, minted from a monotonic counter ("PT0001").
type TrainingSession struct {
	ID            string        `db:"id" json:"id"`
	SessionDate   time.Time     `db:"session_date" json:"session_date"`
	SessionTime   string        `db:"session_time" json:"session_time"`
	Location      string        `db:"location" json:"location"`
	VehicleID     string        `db:"vehicle_id" json:"vehicle_id"`
	InstructorID  string        `db:"instructor_id" json:"instructor_id"`
	MaxCount      int           `db:"max_count" json:"max_count"`
	CurrentCount  int           `db:"current_count" json:"current_count"`
	Status        SessionStatus `db:"status" json:"status"`
	Qualification string        `db:"qualification" json:"qualification"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// SessionDetail enriches TrainingSession with vehicle and instructor info.
type SessionDetail struct {
	TrainingSession
	PlateNumber    *string `db:"plate_number" json:"plate_number,omitempty"`
	InstructorName *string `db:"instructor_name" json:"instructor_name,omitempty"`
}

// SessionFilter provides filters for listing sessions.
type SessionFilter struct {
	InstructorID  string
	Status        SessionStatus
	DateFrom      *time.Time
	DateTo        *time.Time
	AvailableOnly bool
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
