package models

import "time"

// Instructor is a roster entry managed by administrators. Instructors
// are stored separately from login accounts with role INSTRUCTOR.
type Instructor struct {
	ID              string    `db:"id" json:"id"`
	FullName        string    `db:"full_name" json:"full_name"`
	Email           string    `db:"email" json:"email"`
	PasswordHash    string    `db:"password_hash" json:"-"`
	Location        string    `db:"location" json:"location"`
	YearsExperience int       `db:"years_experience" json:"years_experience"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// InstructorFilter defines filter criteria for listing instructors.
type InstructorFilter struct {
	Location  string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
