package user

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	users map[uuid.UUID]*User
}

func newMemStore() *memStore {
	return &memStore{users: make(map[uuid.UUID]*User)}
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := m.FindByEmail(ctx, email)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (m *memStore) Create(_ context.Context, u *User) error {
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) Update(_ context.Context, u *User) error {
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) ListByRole(_ context.Context, role Role) ([]User, error) {
	var out []User
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	return out, nil
}

func TestCreateAndAuthenticate(t *testing.T) {
	svc := NewService(newMemStore())

	u, err := svc.Create(context.Background(), &User{
		Email:     "sam@example.edu",
		FirstName: "Sam",
		LastName:  "Chen",
		Role:      RoleStudent,
	}, "hunter22")
	require.NoError(t, err)
	assert.True(t, u.Active)
	assert.NotEmpty(t, u.PasswordHash)
	assert.NotEqual(t, "hunter22", u.PasswordHash)

	got, err := svc.Authenticate(context.Background(), "sam@example.edu", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestAuthenticateFailuresLookAlike(t *testing.T) {
	svc := NewService(newMemStore())
	_, err := svc.Create(context.Background(), &User{
		Email: "sam@example.edu",
		Role:  RoleStudent,
	}, "hunter22")
	require.NoError(t, err)

	_, wrongPass := svc.Authenticate(context.Background(), "sam@example.edu", "nope")
	_, unknown := svc.Authenticate(context.Background(), "nobody@example.edu", "hunter22")

	assert.ErrorIs(t, wrongPass, ErrInvalidCredentials)
	assert.ErrorIs(t, unknown, ErrInvalidCredentials)
}

func TestAuthenticateDeactivated(t *testing.T) {
	svc := NewService(newMemStore())
	u, err := svc.Create(context.Background(), &User{
		Email: "sam@example.edu",
		Role:  RoleStudent,
	}, "hunter22")
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), u.ID))

	_, err = svc.Authenticate(context.Background(), "sam@example.edu", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateDuplicateEmail(t *testing.T) {
	svc := NewService(newMemStore())
	_, err := svc.Create(context.Background(), &User{Email: "a@b.edu", Role: RoleTeacher}, "pw")
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), &User{Email: "a@b.edu", Role: RoleStudent}, "pw")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestCreateRejectsUnknownRole(t *testing.T) {
	svc := NewService(newMemStore())
	_, err := svc.Create(context.Background(), &User{Email: "a@b.edu", Role: "WIZARD"}, "pw")
	assert.Error(t, err)
}
