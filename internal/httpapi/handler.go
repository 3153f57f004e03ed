// Package httpapi exposes the service over HTTP. Handlers translate
// transport concerns only; every rule lives in the domain services.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/course"
	"rollcall/internal/live"
	"rollcall/internal/queue"
	"rollcall/internal/session"
	"rollcall/internal/store"
	"rollcall/internal/token"
	"rollcall/internal/user"
)

// Handler carries the wired services for all routes.
type Handler struct {
	cfg config.App

	users    *user.Service
	courses  *course.Service
	sessions *session.Service
	att      *attendance.Service

	codec  *token.Codec
	tokens *token.Cache

	q   queue.Queue
	hub *live.Hub

	db  *store.DB
	rds *store.Redis
}

// New wires a handler.
func New(cfg config.App, users *user.Service, courses *course.Service, sessions *session.Service,
	att *attendance.Service, codec *token.Codec, tokens *token.Cache,
	q queue.Queue, hub *live.Hub, db *store.DB, rds *store.Redis,
) *Handler {
	return &Handler{
		cfg:      cfg,
		users:    users,
		courses:  courses,
		sessions: sessions,
		att:      att,
		codec:    codec,
		tokens:   tokens,
		q:        q,
		hub:      hub,
		db:       db,
		rds:      rds,
	}
}

// Healthz reports process and dependency health.
func (h *Handler) Healthz(c *gin.Context) {
	dbHealthy := h.db.Healthy(c.Request.Context())
	redisHealthy := h.rds.Healthy(c.Request.Context())
	status := http.StatusOK
	if !dbHealthy || !redisHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": "ok", "db": dbHealthy, "redis": redisHealthy})
}

// respondError maps each typed domain failure to a status code. No
// string inspection: the sentinels are the contract.
func respondError(c *gin.Context, err error) {
	var outOfRange *attendance.OutOfRangeError
	if errors.As(err, &outOfRange) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":           outOfRange.Error(),
			"distance_meters": outOfRange.DistanceMeters,
			"radius_meters":   outOfRange.RadiusMeters,
		})
		return
	}

	var status int
	switch {
	case errors.Is(err, attendance.ErrInvalidToken):
		status = http.StatusBadRequest
	case errors.Is(err, attendance.ErrTokenExpired):
		status = http.StatusGone
	case errors.Is(err, attendance.ErrSessionNotFound),
		errors.Is(err, attendance.ErrStudentNotFound),
		errors.Is(err, attendance.ErrRecordNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, course.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, attendance.ErrSessionNotActive),
		errors.Is(err, attendance.ErrAlreadyMarked),
		errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, user.ErrEmailTaken),
		errors.Is(err, course.ErrCodeTaken):
		status = http.StatusConflict
	case errors.Is(err, attendance.ErrLocationRequired),
		errors.Is(err, session.ErrGeofenceIncomplete),
		errors.Is(err, course.ErrTeacherRequired):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, user.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
