package course

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// Repository persists courses in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const courseColumns = `id, code, name, teacher_id, description, active, created_at`

// Get returns a course by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Course, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id)
	var c Course
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.TeacherID, &c.Description, &c.Active, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ExistsByCode reports whether a course with the code exists.
func (r *Repository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM courses WHERE code = $1)`, code).Scan(&exists)
	return exists, err
}

// Create inserts a new course.
func (r *Repository) Create(ctx context.Context, c *Course) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO courses (id, code, name, teacher_id, description, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, c.ID, c.Code, c.Name, c.TeacherID, c.Description, c.Active)
	return row.Scan(&c.CreatedAt)
}

// Update rewrites the mutable columns of a course.
func (r *Repository) Update(ctx context.Context, c *Course) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE courses
		SET code = $2, name = $3, teacher_id = $4, description = $5, active = $6
		WHERE id = $1
	`, c.ID, c.Code, c.Name, c.TeacherID, c.Description, c.Active)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByTeacher returns courses assigned to a teacher.
func (r *Repository) ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]Course, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+courseColumns+` FROM courses WHERE teacher_id = $1 ORDER BY code
	`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.TeacherID, &c.Description, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}
