// Package export renders attendance data for download. The export
// surface is CSV; spreadsheet tools open it directly.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/session"
)

// NameResolver maps a user id (in string form) to a display name.
// Unknown ids resolve to the id itself so an export never fails on a
// missing user.
type NameResolver func(id string) string

// SessionCSV writes one session's records.
func SessionCSV(w io.Writer, sess *session.Session, records []attendance.Record, name NameResolver) error {
	cw := csv.NewWriter(w)
	header := []string{"student_id", "student_name", "status", "marked_at", "device_info", "latitude", "longitude"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.StudentID.String(),
			name(rec.StudentID.String()),
			string(rec.Status),
			rec.MarkedAt.Format(time.RFC3339),
			rec.DeviceInfo,
			coord(rec.Latitude),
			coord(rec.Longitude),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// StudentCSV writes one student's full history.
func StudentCSV(w io.Writer, records []attendance.Record) error {
	cw := csv.NewWriter(w)
	header := []string{"session_id", "status", "marked_at", "device_info"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.SessionID.String(),
			string(rec.Status),
			rec.MarkedAt.Format(time.RFC3339),
			rec.DeviceInfo,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func coord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}
