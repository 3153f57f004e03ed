package attendance

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists attendance records in Postgres. The table carries
// a unique index on (session_id, student_id), so the duplicate check in
// the service and the insert here form an atomic pair: whoever loses
// the race hits the constraint and gets ErrConflict.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, session_id, student_id, marked_at, status, device_info, latitude, longitude`

// ExistsFor reports whether a record exists for (session, student).
func (r *Repository) ExistsFor(ctx context.Context, sessionID, studentID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM attendance_records WHERE session_id = $1 AND student_id = $2)
	`, sessionID, studentID).Scan(&exists)
	return exists, err
}

// InsertIfAbsent appends a record, returning ErrConflict when the
// (session, student) pair already has one.
func (r *Repository) InsertIfAbsent(ctx context.Context, rec *Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, session_id, student_id, marked_at, status, device_info, latitude, longitude)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.ID, rec.SessionID, rec.StudentID, rec.MarkedAt, rec.Status, rec.DeviceInfo, rec.Latitude, rec.Longitude)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

// Get returns a record by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM attendance_records WHERE id = $1`, id)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.MarkedAt, &rec.Status, &rec.DeviceInfo, &rec.Latitude, &rec.Longitude); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// UpdateStatus overrides a record's status (manual correction) and
// returns the updated record. MarkedAt never changes.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance_records SET status = $2 WHERE id = $1
		RETURNING `+recordColumns+`
	`, id, status)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.MarkedAt, &rec.Status, &rec.DeviceInfo, &rec.Latitude, &rec.Longitude); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ListBySession returns a session's records ordered by redemption time.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]Record, error) {
	return r.list(ctx, `SELECT `+recordColumns+` FROM attendance_records WHERE session_id = $1 ORDER BY marked_at`, sessionID)
}

// ListByStudent returns a student's records, newest first.
func (r *Repository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]Record, error) {
	return r.list(ctx, `SELECT `+recordColumns+` FROM attendance_records WHERE student_id = $1 ORDER BY marked_at DESC`, studentID)
}

// ListByStudentAndCourse returns a student's records within one course.
func (r *Repository) ListByStudentAndCourse(ctx context.Context, studentID, courseID uuid.UUID) ([]Record, error) {
	return r.list(ctx, `
		SELECT r.id, r.session_id, r.student_id, r.marked_at, r.status, r.device_info, r.latitude, r.longitude
		FROM attendance_records r
		JOIN sessions s ON s.id = r.session_id
		WHERE r.student_id = $1 AND s.course_id = $2
		ORDER BY r.marked_at DESC
	`, studentID, courseID)
}

// CountForStudent returns how many records a student has in total.
func (r *Repository) CountForStudent(ctx context.Context, studentID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance_records WHERE student_id = $1`, studentID).Scan(&n)
	return n, err
}

// CountPresentForStudent returns how many PRESENT records a student has.
func (r *Repository) CountPresentForStudent(ctx context.Context, studentID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_records WHERE student_id = $1 AND status = $2
	`, studentID, StatusPresent).Scan(&n)
	return n, err
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.MarkedAt, &rec.Status, &rec.DeviceInfo, &rec.Latitude, &rec.Longitude); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
