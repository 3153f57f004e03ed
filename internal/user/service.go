package user

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNotFound means no user exists with the given id or email.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken means another user already registered the email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Store is the persistence contract the service needs.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	ListByRole(ctx context.Context, role Role) ([]User, error)
}

// Service owns user account rules: unique email, bcrypt passwords,
// soft deactivation.
type Service struct {
	store Store
}

// NewService creates a user service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create registers a user with a freshly hashed password.
func (s *Service) Create(ctx context.Context, u *User, password string) (*User, error) {
	if !u.Role.Valid() {
		return nil, errors.New("unknown role: " + string(u.Role))
	}
	taken, err := s.store.ExistsByEmail(ctx, u.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.PasswordHash = string(hash)
	u.Active = true
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.store.Get(ctx, id)
}

// FindByEmail returns a user by email.
func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.store.FindByEmail(ctx, email)
}

// ListByRole returns all users with the given role.
func (s *Service) ListByRole(ctx context.Context, role Role) ([]User, error) {
	return s.store.ListByRole(ctx, role)
}

// Authenticate verifies email+password and returns the user on success.
// Unknown email and wrong password are deliberately indistinguishable.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.Active {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Deactivate soft-deletes a user.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	u.Active = false
	return s.store.Update(ctx, u)
}
