package attendance

import (
	"time"

	"github.com/google/uuid"
)

// Status classifies a student's attendance for one session.
// PRESENT and LATE are assigned at redemption; EXCUSED and ABSENT exist
// only for manual correction afterwards.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusLate    Status = "LATE"
	StatusExcused Status = "EXCUSED"
	StatusAbsent  Status = "ABSENT"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusLate, StatusExcused, StatusAbsent:
		return true
	}
	return false
}

// Record is one student's attendance claim for one session. MarkedAt is
// the server clock at redemption and never changes; Status may be
// corrected manually afterwards. At most one record exists per
// (session, student) pair.
type Record struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	StudentID  uuid.UUID `json:"student_id"`
	MarkedAt   time.Time `json:"marked_at"`
	Status     Status    `json:"status"`
	DeviceInfo string    `json:"device_info,omitempty"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
}

// Event is the queue message published after each successful
// redemption, consumed by the audit worker and the live feed.
type Event struct {
	RecordID  uuid.UUID `json:"record_id"`
	SessionID uuid.UUID `json:"session_id"`
	StudentID uuid.UUID `json:"student_id"`
	Status    Status    `json:"status"`
	MarkedAt  time.Time `json:"marked_at"`
}
