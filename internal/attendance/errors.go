package attendance

import (
	"errors"
	"fmt"
)

// Redemption failures, one sentinel per outcome so the transport layer
// can map each to a status code without string inspection. ErrInvalidToken
// and ErrTokenExpired are produced before any session lookup, so neither
// reveals whether the session referenced in a bad token exists.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionNotActive = errors.New("session is not active")
	ErrStudentNotFound  = errors.New("student not found")
	ErrAlreadyMarked    = errors.New("attendance already marked for this session")
	ErrLocationRequired = errors.New("location is required for this session")
	ErrRecordNotFound   = errors.New("attendance record not found")

	// ErrConflict is the storage-level loss of the duplicate-insert race.
	// The service maps it to ErrAlreadyMarked before it reaches a caller.
	ErrConflict = errors.New("attendance record already exists")
)

// OutOfRangeError means the redeeming device was outside the campus
// geofence. It carries the computed distance for user feedback.
type OutOfRangeError struct {
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("outside campus: %.0f m from center, allowed %.0f m", e.DistanceMeters, e.RadiusMeters)
}
