package course

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/user"
)

var (
	// ErrNotFound means no course exists with the given id.
	ErrNotFound = errors.New("course not found")
	// ErrCodeTaken means the course code is already in use.
	ErrCodeTaken = errors.New("course code already in use")
	// ErrTeacherRequired means the assigned user is missing or not a teacher.
	ErrTeacherRequired = errors.New("assigned user is not a teacher")
)

// Course is a taught unit (e.g. CS101). Each course has exactly one
// assigned teacher; sessions created for the course must name that
// teacher.
type Course struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	TeacherID   uuid.UUID `json:"teacher_id"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the persistence contract the service needs.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Course, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, c *Course) error
	Update(ctx context.Context, c *Course) error
	ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]Course, error)
}

// UserStore is the slice of the user store the service needs.
type UserStore interface {
	Get(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// Service owns course rules: unique code, teacher assignment.
type Service struct {
	store Store
	users UserStore
}

// NewService creates a course service.
func NewService(store Store, users UserStore) *Service {
	return &Service{store: store, users: users}
}

// Create registers a course after checking the assigned teacher.
func (s *Service) Create(ctx context.Context, c *Course) (*Course, error) {
	t, err := s.users.Get(ctx, c.TeacherID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrTeacherRequired
		}
		return nil, err
	}
	if t.Role != user.RoleTeacher {
		return nil, ErrTeacherRequired
	}

	taken, err := s.store.ExistsByCode(ctx, c.Code)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrCodeTaken
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Active = true
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns a course by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Course, error) {
	return s.store.Get(ctx, id)
}

// ListByTeacher returns all courses assigned to a teacher.
func (s *Service) ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]Course, error) {
	return s.store.ListByTeacher(ctx, teacherID)
}

// Deactivate soft-deletes a course.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	c.Active = false
	return s.store.Update(ctx, c)
}
