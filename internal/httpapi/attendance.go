package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/export"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/user"
)

type scanRequest struct {
	Token      string    `json:"token" binding:"required"`
	StudentID  uuid.UUID `json:"student_id" binding:"required"`
	DeviceInfo string    `json:"device_info"`
	Latitude   *float64  `json:"latitude"`
	Longitude  *float64  `json:"longitude"`
}

// Scan redeems a QR token and marks attendance. Students may only mark
// themselves; staff tokens may mark on a student's behalf.
func (h *Handler) Scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, _ := auth.FromContext(c)
	if claims.Role == string(user.RoleStudent) && claims.Subject != req.StudentID.String() {
		c.JSON(http.StatusForbidden, gin.H{"error": "students may only mark their own attendance"})
		return
	}

	started := time.Now()
	rec, err := h.att.Mark(c.Request.Context(), req.Token, req.StudentID, req.DeviceInfo, req.Latitude, req.Longitude)
	metrics.MarkDuration.Observe(time.Since(started).Seconds())
	metrics.Redemptions.WithLabelValues(markOutcome(rec, err)).Inc()
	if err != nil {
		respondError(c, err)
		return
	}

	h.publishRedemption(c, rec)
	h.hub.Broadcast(rec.SessionID, rec)

	c.JSON(http.StatusCreated, rec)
}

func markOutcome(rec *attendance.Record, err error) string {
	if err == nil {
		if rec.Status == attendance.StatusLate {
			return "marked_late"
		}
		return "marked_present"
	}
	var outOfRange *attendance.OutOfRangeError
	switch {
	case errors.Is(err, attendance.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, attendance.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, attendance.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, attendance.ErrSessionNotActive):
		return "session_not_active"
	case errors.Is(err, attendance.ErrStudentNotFound):
		return "student_not_found"
	case errors.Is(err, attendance.ErrAlreadyMarked):
		return "already_marked"
	case errors.Is(err, attendance.ErrLocationRequired):
		return "location_required"
	case errors.As(err, &outOfRange):
		return "out_of_range"
	}
	return "error"
}

// publishRedemption enqueues the audit event. Failure to enqueue never
// fails the request; the record is already durable.
func (h *Handler) publishRedemption(c *gin.Context, rec *attendance.Record) {
	body, err := json.Marshal(attendance.Event{
		RecordID:  rec.ID,
		SessionID: rec.SessionID,
		StudentID: rec.StudentID,
		Status:    rec.Status,
		MarkedAt:  rec.MarkedAt,
	})
	if err != nil {
		log.Error().Err(err).Msg("marshal redemption event")
		return
	}
	if err := h.q.Publish(c.Request.Context(), queue.Message{Kind: "redemption", Body: body}); err != nil {
		log.Error().Err(err).Str("record_id", rec.ID.String()).Msg("publish redemption event")
	}
}

// AttendanceBySession lists a session's records.
func (h *Handler) AttendanceBySession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	records, err := h.att.BySession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondRecords(c, records)
}

// AttendanceByStudent lists a student's records.
func (h *Handler) AttendanceByStudent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}
	records, err := h.att.ByStudent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondRecords(c, records)
}

// AttendanceByStudentAndCourse lists a student's records in one course.
func (h *Handler) AttendanceByStudentAndCourse(c *gin.Context) {
	studentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}
	courseID, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}
	records, err := h.att.ByStudentAndCourse(c.Request.Context(), studentID, courseID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondRecords(c, records)
}

// AttendancePercentage returns the student's PRESENT share.
func (h *Handler) AttendancePercentage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}
	pct, err := h.att.Percentage(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"percentage": pct})
}

// AttendanceCheck reports whether a student has a record for a session.
func (h *Handler) AttendanceCheck(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Query("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	studentID, err := uuid.Parse(c.Query("student_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}
	attended, err := h.att.HasAttended(c.Request.Context(), sessionID, studentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"has_attended": attended})
}

type correctRequest struct {
	Status string `json:"status" binding:"required"`
}

// CorrectAttendance manually overrides a record's status.
func (h *Handler) CorrectAttendance(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}
	var req correctRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := attendance.Status(req.Status)
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown attendance status"})
		return
	}
	rec, err := h.att.Correct(c.Request.Context(), id, status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ExportSessionCSV downloads a session's records as CSV.
func (h *Handler) ExportSessionCSV(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	ctx := c.Request.Context()

	sess, err := h.sessions.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	records, err := h.att.BySession(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	filename := "attendance_" + sess.SessionDate.Format(dateLayout) + "_" + sess.ID.String() + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "text/csv")
	if err := export.SessionCSV(c.Writer, sess, records, h.resolveName(ctx)); err != nil {
		log.Error().Err(err).Msg("session csv export")
	}
}

// ExportStudentCSV downloads a student's history as CSV.
func (h *Handler) ExportStudentCSV(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}
	records, err := h.att.ByStudent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="attendance_student_`+id.String()+`.csv"`)
	c.Header("Content-Type", "text/csv")
	if err := export.StudentCSV(c.Writer, records); err != nil {
		log.Error().Err(err).Msg("student csv export")
	}
}

func (h *Handler) respondRecords(c *gin.Context, records []attendance.Record) {
	if records == nil {
		records = []attendance.Record{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) resolveName(ctx context.Context) export.NameResolver {
	return func(id string) string {
		uid, err := uuid.Parse(id)
		if err != nil {
			return id
		}
		u, err := h.users.Get(ctx, uid)
		if err != nil {
			return id
		}
		return u.FullName()
	}
}
