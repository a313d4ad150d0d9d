package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusAbsent    EnrollmentStatus = "ABSENT"
)

// Valid reports whether the status is a known value.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusCompleted, EnrollmentStatusAbsent:
		return true
	}
	return false
}

// Enrollment captures a user's registration in a training session.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	UserID     string           `db:"user_id" json:"user_id"`
	SessionID  string           `db:"session_id" json:"session_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
}

// EnrollmentDetail enriches Enrollment with a snapshot of the session.
type EnrollmentDetail struct {
	Enrollment
	SessionDate     *time.Time     `db:"session_date" json:"session_date,omitempty"`
	SessionTime     *string        `db:"session_time" json:"session_time,omitempty"`
	SessionLocation *string        `db:"session_location" json:"session_location,omitempty"`
	SessionStatus   *SessionStatus `db:"session_status" json:"session_status,omitempty"`
	CurrentCount    *int           `db:"current_count" json:"current_count,omitempty"`
	MaxCount        *int           `db:"max_count" json:"max_count,omitempty"`
}

// EnrollmentRosterEntry enriches Enrollment with the user's public fields.
type EnrollmentRosterEntry struct {
	Enrollment
	UserName  string `db:"user_name" json:"user_name"`
	UserEmail string `db:"user_email" json:"user_email"`
}

// EnrollmentStats aggregates enrollment counts per status.
type EnrollmentStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Absent    int `json:"absent"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	UserID    string
	SessionID string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
