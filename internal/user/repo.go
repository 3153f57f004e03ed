package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// Repository persists users in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, email, first_name, last_name, password_hash, role, active, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Get returns a user by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// FindByEmail returns a user by email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// ExistsByEmail reports whether a user with the email exists.
func (r *Repository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, u *User) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, password_hash, role, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.Role, u.Active)
	return row.Scan(&u.CreatedAt)
}

// Update rewrites the mutable columns of a user.
func (r *Repository) Update(ctx context.Context, u *User) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET email = $2, first_name = $3, last_name = $4, password_hash = $5, role = $6, active = $7
		WHERE id = $1
	`, u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.Role, u.Active)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByRole returns users having the role, newest first.
func (r *Repository) ListByRole(ctx context.Context, role Role) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY created_at DESC
	`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
