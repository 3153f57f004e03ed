package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rollcall/internal/metrics"
	"rollcall/internal/qrimage"
	"rollcall/internal/session"
	"rollcall/internal/token"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

type createSessionRequest struct {
	CourseID        uuid.UUID `json:"course_id" binding:"required"`
	TeacherID       uuid.UUID `json:"teacher_id" binding:"required"`
	Date            string    `json:"date" binding:"required"`
	StartTime       string    `json:"start_time" binding:"required"`
	EndTime         string    `json:"end_time" binding:"required"`
	Classroom       string    `json:"classroom" binding:"required"`
	ValidityMinutes int       `json:"validity_minutes"`

	LocationRequired bool     `json:"location_required"`
	CampusLat        *float64 `json:"campus_lat"`
	CampusLon        *float64 `json:"campus_lon"`
	CampusRadiusM    *float64 `json:"campus_radius_m"`

	Mandatory *bool `json:"mandatory_attendance"`
}

// CreateSession schedules a class meeting.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	date, err := time.ParseInLocation(dateLayout, req.Date, time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	startsAt, err := combine(date, req.StartTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_time must be HH:MM"})
		return
	}
	endsAt, err := combine(date, req.EndTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_time must be HH:MM"})
		return
	}
	if !endsAt.After(startsAt) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_time must be after start_time"})
		return
	}

	mandatory := true
	if req.Mandatory != nil {
		mandatory = *req.Mandatory
	}

	sess := &session.Session{
		CourseID:         req.CourseID,
		TeacherID:        req.TeacherID,
		SessionDate:      date,
		StartsAt:         startsAt,
		EndsAt:           endsAt,
		Classroom:        req.Classroom,
		ValidityMinutes:  req.ValidityMinutes,
		LocationRequired: req.LocationRequired,
		CampusLat:        req.CampusLat,
		CampusLon:        req.CampusLon,
		CampusRadiusM:    req.CampusRadiusM,
		Mandatory:        mandatory,
	}
	created, err := h.sessions.Create(c.Request.Context(), sess)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetSession returns one session.
func (h *Handler) GetSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	sess, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// ListSessions filters by teacher, course or date. With today=true and
// a teacher_id it returns the teacher's sessions for the current day.
func (h *Handler) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()

	if teacherStr := c.Query("teacher_id"); teacherStr != "" {
		teacherID, err := uuid.Parse(teacherStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid teacher id"})
			return
		}
		var sessions []session.Session
		if c.Query("today") == "true" {
			sessions, err = h.sessions.TodayForTeacher(ctx, teacherID)
		} else {
			sessions, err = h.sessions.ListByTeacher(ctx, teacherID)
		}
		h.respondSessions(c, sessions, err)
		return
	}

	if courseStr := c.Query("course_id"); courseStr != "" {
		courseID, err := uuid.Parse(courseStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
			return
		}
		from, to := c.Query("from"), c.Query("to")
		if from != "" && to != "" {
			fromDate, err1 := time.ParseInLocation(dateLayout, from, time.Local)
			toDate, err2 := time.ParseInLocation(dateLayout, to, time.Local)
			if err1 != nil || err2 != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "from/to must be YYYY-MM-DD"})
				return
			}
			sessions, err := h.sessions.ListByCourseBetween(ctx, courseID, fromDate, toDate)
			h.respondSessions(c, sessions, err)
			return
		}
		sessions, err := h.sessions.ListByCourse(ctx, courseID)
		h.respondSessions(c, sessions, err)
		return
	}

	if dateStr := c.Query("date"); dateStr != "" {
		date, err := time.ParseInLocation(dateLayout, dateStr, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		sessions, err := h.sessions.ListByDate(ctx, date)
		h.respondSessions(c, sessions, err)
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{"error": "provide teacher_id, course_id or date"})
}

func (h *Handler) respondSessions(c *gin.Context, sessions []session.Session, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

// StartSession activates a scheduled session.
func (h *Handler) StartSession(c *gin.Context) { h.transition(c, "start", h.sessions.Start) }

// CompleteSession ends an active session.
func (h *Handler) CompleteSession(c *gin.Context) { h.transition(c, "complete", h.sessions.Complete) }

// CancelSession voids a not-yet-completed session.
func (h *Handler) CancelSession(c *gin.Context) { h.transition(c, "cancel", h.sessions.Cancel) }

func (h *Handler) transition(c *gin.Context, action string, fn func(ctx context.Context, id uuid.UUID) (*session.Session, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	sess, err := fn(c.Request.Context(), id)
	if err != nil {
		metrics.SessionTransitions.WithLabelValues(action, "rejected").Inc()
		respondError(c, err)
		return
	}
	metrics.SessionTransitions.WithLabelValues(action, "ok").Inc()
	c.JSON(http.StatusOK, sess)
}

// issueToken builds (or reuses) the current bearer token for a session.
// Tokens are only issued for ACTIVE sessions whose redemption window is
// still open; the cache guarantees redisplaying a code cannot extend
// the window.
func (h *Handler) issueToken(c *gin.Context) (*session.Session, string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return nil, "", false
	}
	ctx := c.Request.Context()

	sess, err := h.sessions.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return nil, "", false
	}
	if sess.Status != session.StatusActive {
		c.JSON(http.StatusConflict, gin.H{"error": "session is not active"})
		return nil, "", false
	}

	now := time.Now()
	if !now.Before(sess.LateThreshold()) {
		c.JSON(http.StatusGone, gin.H{"error": "redemption window has closed"})
		return nil, "", false
	}

	tok, err := h.tokens.GetOrIssue(sess.ID, sess.LateThreshold().Sub(now), func() (string, error) {
		crs, err := h.courses.Get(ctx, sess.CourseID)
		if err != nil {
			return "", err
		}
		teacher, err := h.users.Get(ctx, sess.TeacherID)
		if err != nil {
			return "", err
		}
		return h.codec.Issue(token.NewClaim(sess, crs, teacher, now))
	})
	if err != nil {
		respondError(c, err)
		return nil, "", false
	}
	return sess, tok, true
}

// SessionToken returns the bearer token for embedding client-side.
func (h *Handler) SessionToken(c *gin.Context) {
	sess, tok, ok := h.issueToken(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      tok,
		"expires_at": sess.LateThreshold(),
	})
}

// SessionQRImage renders the bearer token as a PNG QR code.
func (h *Handler) SessionQRImage(c *gin.Context) {
	_, tok, ok := h.issueToken(c)
	if !ok {
		return
	}
	size := h.cfg.QRImageSizeDefault
	if v := c.Query("size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			size = parsed
		}
	}
	png, err := qrimage.PNG(tok, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr render failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func combine(date time.Time, hhmm string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, hhmm, time.Local)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, time.Local), nil
}
