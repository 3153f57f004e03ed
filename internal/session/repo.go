package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository persists sessions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, course_id, teacher_id, session_date, starts_at, ends_at, classroom,
	validity_minutes, status, location_required, campus_lat, campus_lon, campus_radius_m,
	mandatory, created_at`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.CourseID, &s.TeacherID, &s.SessionDate, &s.StartsAt, &s.EndsAt,
		&s.Classroom, &s.ValidityMinutes, &s.Status, &s.LocationRequired,
		&s.CampusLat, &s.CampusLon, &s.CampusRadiusM, &s.Mandatory, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Get returns a session by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// Create inserts a new session.
func (r *Repository) Create(ctx context.Context, s *Session) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, course_id, teacher_id, session_date, starts_at, ends_at,
			classroom, validity_minutes, status, location_required,
			campus_lat, campus_lon, campus_radius_m, mandatory)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at
	`, s.ID, s.CourseID, s.TeacherID, s.SessionDate, s.StartsAt, s.EndsAt,
		s.Classroom, s.ValidityMinutes, s.Status, s.LocationRequired,
		s.CampusLat, s.CampusLon, s.CampusRadiusM, s.Mandatory)
	return row.Scan(&s.CreatedAt)
}

// Transition compare-and-sets the session status. Only one of two
// racing transitions can match WHERE status = from; the other sees zero
// rows and gets ErrStatusMoved (or ErrNotFound if the id is unknown).
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from, to Status) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = $3 WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStatusMoved
}

// ListByCourse returns a course's sessions, newest first.
func (r *Repository) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]Session, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE course_id = $1 ORDER BY starts_at DESC`, courseID)
}

// ListByTeacher returns a teacher's sessions, newest first.
func (r *Repository) ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]Session, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE teacher_id = $1 ORDER BY starts_at DESC`, teacherID)
}

// ListByDate returns all sessions on a calendar day.
func (r *Repository) ListByDate(ctx context.Context, date time.Time) ([]Session, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_date = $1 ORDER BY starts_at`, dateOnly(date))
}

// ListByTeacherAndDate returns a teacher's sessions for a calendar day.
func (r *Repository) ListByTeacherAndDate(ctx context.Context, teacherID uuid.UUID, date time.Time) ([]Session, error) {
	return r.list(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE teacher_id = $1 AND session_date = $2 ORDER BY starts_at
	`, teacherID, dateOnly(date))
}

// ListByCourseBetween returns a course's sessions with dates in [from, to].
func (r *Repository) ListByCourseBetween(ctx context.Context, courseID uuid.UUID, from, to time.Time) ([]Session, error) {
	return r.list(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE course_id = $1 AND session_date BETWEEN $2 AND $3 ORDER BY starts_at
	`, courseID, dateOnly(from), dateOnly(to))
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		err := rows.Scan(&s.ID, &s.CourseID, &s.TeacherID, &s.SessionDate, &s.StartsAt, &s.EndsAt,
			&s.Classroom, &s.ValidityMinutes, &s.Status, &s.LocationRequired,
			&s.CampusLat, &s.CampusLon, &s.CampusRadiusM, &s.Mandatory, &s.CreatedAt)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
