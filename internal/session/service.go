package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/course"
	"rollcall/internal/user"
)

// ErrStatusMoved is returned by stores when a compare-and-set transition
// finds the session in a different status than expected. The service
// maps it to ErrInvalidTransition so a racing caller loses cleanly.
var ErrStatusMoved = errors.New("session status changed concurrently")

// Store is the persistence contract the service needs. Transition must
// be a compare-and-set on status so concurrent lifecycle calls are
// serialized per session.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Create(ctx context.Context, s *Session) error
	Transition(ctx context.Context, id uuid.UUID, from, to Status) error
	ListByCourse(ctx context.Context, courseID uuid.UUID) ([]Session, error)
	ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]Session, error)
	ListByDate(ctx context.Context, date time.Time) ([]Session, error)
	ListByTeacherAndDate(ctx context.Context, teacherID uuid.UUID, date time.Time) ([]Session, error)
	ListByCourseBetween(ctx context.Context, courseID uuid.UUID, from, to time.Time) ([]Session, error)
}

// CourseStore is the slice of the course store the service needs.
type CourseStore interface {
	Get(ctx context.Context, id uuid.UUID) (*course.Course, error)
}

// UserStore is the slice of the user store the service needs.
type UserStore interface {
	Get(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// DefaultValidityMinutes applies when a session is created without an
// explicit QR validity window.
const DefaultValidityMinutes = 15

// Service owns the session lifecycle.
type Service struct {
	store   Store
	courses CourseStore
	users   UserStore
}

// NewService creates a session service.
func NewService(store Store, courses CourseStore, users UserStore) *Service {
	return &Service{store: store, courses: courses, users: users}
}

// Create schedules a session. The named teacher must be the teacher
// assigned to the course, and geofence fields must be complete when
// location is required.
func (s *Service) Create(ctx context.Context, sess *Session) (*Session, error) {
	crs, err := s.courses.Get(ctx, sess.CourseID)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.Get(ctx, sess.TeacherID); err != nil {
		return nil, err
	}
	if crs.TeacherID != sess.TeacherID {
		return nil, ErrNotAuthorized
	}

	if sess.LocationRequired {
		if sess.CampusLat == nil || sess.CampusLon == nil || sess.CampusRadiusM == nil {
			return nil, ErrGeofenceIncomplete
		}
	}
	if sess.ValidityMinutes <= 0 {
		sess.ValidityMinutes = DefaultValidityMinutes
	}

	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	sess.Status = StatusScheduled
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.store.Get(ctx, id)
}

// Start activates a scheduled session so tokens become redeemable.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.transition(ctx, id, StatusActive, StatusScheduled)
}

// Complete ends an active session.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.transition(ctx, id, StatusCompleted, StatusActive)
}

// Cancel voids a session that has not completed.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.transition(ctx, id, StatusCancelled, StatusScheduled, StatusActive)
}

// transition moves a session to next if its current status is one of
// allowedFrom. Losers of a concurrent race get ErrInvalidTransition.
func (s *Service) transition(ctx context.Context, id uuid.UUID, next Status, allowedFrom ...Status) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	from := sess.Status
	allowed := false
	for _, st := range allowedFrom {
		if from == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrInvalidTransition
	}

	if err := s.store.Transition(ctx, id, from, next); err != nil {
		if errors.Is(err, ErrStatusMoved) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	sess.Status = next
	return sess, nil
}

// ListByCourse returns all sessions of a course.
func (s *Service) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]Session, error) {
	if _, err := s.courses.Get(ctx, courseID); err != nil {
		return nil, err
	}
	return s.store.ListByCourse(ctx, courseID)
}

// ListByTeacher returns all sessions owned by a teacher.
func (s *Service) ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]Session, error) {
	return s.store.ListByTeacher(ctx, teacherID)
}

// ListByDate returns all sessions on a calendar day.
func (s *Service) ListByDate(ctx context.Context, date time.Time) ([]Session, error) {
	return s.store.ListByDate(ctx, date)
}

// TodayForTeacher returns a teacher's sessions for the current day.
func (s *Service) TodayForTeacher(ctx context.Context, teacherID uuid.UUID) ([]Session, error) {
	return s.store.ListByTeacherAndDate(ctx, teacherID, time.Now())
}

// ListByCourseBetween returns a course's sessions in a date range.
func (s *Service) ListByCourseBetween(ctx context.Context, courseID uuid.UUID, from, to time.Time) ([]Session, error) {
	return s.store.ListByCourseBetween(ctx, courseID, from, to)
}
