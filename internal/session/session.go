package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a session.
//
// SCHEDULED -> ACTIVE -> COMPLETED, with CANCELLED reachable from
// SCHEDULED and ACTIVE. COMPLETED and CANCELLED are terminal. There are
// no timer-driven transitions: a session stays ACTIVE past its end time
// until the teacher completes it; token expiry caps redemption anyway.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var (
	// ErrNotFound means no session exists with the given id.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidTransition means the requested lifecycle change is not
	// allowed from the session's current status.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrNotAuthorized means the session's teacher is not the teacher
	// assigned to the course.
	ErrNotAuthorized = errors.New("teacher is not assigned to this course")
	// ErrGeofenceIncomplete means location was required but the campus
	// center or radius is missing.
	ErrGeofenceIncomplete = errors.New("geofence requires campus latitude, longitude and radius")
)

// Session is one scheduled class meeting. A session is never deleted;
// it is retained for audit and export after it ends.
type Session struct {
	ID        uuid.UUID `json:"id"`
	CourseID  uuid.UUID `json:"course_id"`
	TeacherID uuid.UUID `json:"teacher_id"`

	// SessionDate is the calendar day; StartsAt/EndsAt are the absolute
	// scheduled times derived from date + start/end time at creation.
	SessionDate time.Time `json:"session_date"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`

	Classroom string `json:"classroom"`

	// ValidityMinutes is the QR token validity window measured from the
	// scheduled start, not from when a token happens to be generated.
	ValidityMinutes int `json:"validity_minutes"`

	Status Status `json:"status"`

	LocationRequired bool     `json:"location_required"`
	CampusLat        *float64 `json:"campus_lat,omitempty"`
	CampusLon        *float64 `json:"campus_lon,omitempty"`
	CampusRadiusM    *float64 `json:"campus_radius_m,omitempty"`

	Mandatory bool      `json:"mandatory_attendance"`
	CreatedAt time.Time `json:"created_at"`
}

// LateThreshold is the instant after which a redemption counts as LATE.
// It is also the absolute expiry embedded in issued tokens.
func (s *Session) LateThreshold() time.Time {
	return s.StartsAt.Add(time.Duration(s.ValidityMinutes) * time.Minute)
}
