package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/geo"
	"rollcall/internal/session"
	"rollcall/internal/token"
	"rollcall/internal/user"
)

// Ledger is the append-only record store. InsertIfAbsent must be atomic
// with respect to the (session, student) uniqueness guarantee: two
// concurrent inserts for the same pair yield exactly one success and
// one ErrConflict.
type Ledger interface {
	ExistsFor(ctx context.Context, sessionID, studentID uuid.UUID) (bool, error)
	InsertIfAbsent(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Record, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]Record, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]Record, error)
	ListByStudentAndCourse(ctx context.Context, studentID, courseID uuid.UUID) ([]Record, error)
	CountForStudent(ctx context.Context, studentID uuid.UUID) (int64, error)
	CountPresentForStudent(ctx context.Context, studentID uuid.UUID) (int64, error)
}

// SessionStore is the slice of the session store the validator needs.
type SessionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*session.Session, error)
}

// UserStore is the slice of the user store the validator needs.
type UserStore interface {
	Get(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// Service validates token redemptions and writes the ledger.
type Service struct {
	codec    *token.Codec
	ledger   Ledger
	sessions SessionStore
	users    UserStore

	now func() time.Time
}

// NewService creates the validation engine.
func NewService(codec *token.Codec, ledger Ledger, sessions SessionStore, users UserStore) *Service {
	return &Service{
		codec:    codec,
		ledger:   ledger,
		sessions: sessions,
		users:    users,
		now:      time.Now,
	}
}

// Mark redeems a bearer token for a student and appends the attendance
// record. The check order is fixed: token decode, expiry, session
// lookup, session state, student lookup, duplicate, geofence,
// classification, insert. Exactly one ledger write happens per success
// and the service never retries.
func (s *Service) Mark(ctx context.Context, tok string, studentID uuid.UUID, deviceInfo string, lat, lon *float64) (*Record, error) {
	claim, err := s.codec.Redeem(tok)
	if err != nil {
		return nil, ErrInvalidToken
	}

	now := s.now()
	if claim.Expired(now) {
		return nil, ErrTokenExpired
	}

	sess, err := s.sessions.Get(ctx, claim.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if sess.Status != session.StatusActive {
		return nil, ErrSessionNotActive
	}

	if _, err := s.users.Get(ctx, studentID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}

	exists, err := s.ledger.ExistsFor(ctx, sess.ID, studentID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyMarked
	}

	if sess.LocationRequired {
		if lat == nil || lon == nil || !geo.ValidCoordinate(*lat, *lon) {
			return nil, ErrLocationRequired
		}
		dist := geo.DistanceMeters(*lat, *lon, *sess.CampusLat, *sess.CampusLon)
		if dist > *sess.CampusRadiusM {
			return nil, &OutOfRangeError{DistanceMeters: dist, RadiusMeters: *sess.CampusRadiusM}
		}
	}

	status := StatusLate
	if now.Before(sess.LateThreshold()) {
		status = StatusPresent
	}

	rec := &Record{
		ID:         uuid.New(),
		SessionID:  sess.ID,
		StudentID:  studentID,
		MarkedAt:   now,
		Status:     status,
		DeviceInfo: deviceInfo,
		Latitude:   lat,
		Longitude:  lon,
	}
	if err := s.ledger.InsertIfAbsent(ctx, rec); err != nil {
		// A concurrent redemption won the insert race between the
		// duplicate check and here; surface it as the same outcome.
		if errors.Is(err, ErrConflict) {
			return nil, ErrAlreadyMarked
		}
		return nil, err
	}
	return rec, nil
}

// HasAttended reports whether a student already holds a record for a
// session.
func (s *Service) HasAttended(ctx context.Context, sessionID, studentID uuid.UUID) (bool, error) {
	return s.ledger.ExistsFor(ctx, sessionID, studentID)
}

// BySession returns all records of a session.
func (s *Service) BySession(ctx context.Context, sessionID uuid.UUID) ([]Record, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s.ledger.ListBySession(ctx, sessionID)
}

// ByStudent returns all records of a student.
func (s *Service) ByStudent(ctx context.Context, studentID uuid.UUID) ([]Record, error) {
	if err := s.requireStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return s.ledger.ListByStudent(ctx, studentID)
}

// ByStudentAndCourse returns a student's records within one course.
func (s *Service) ByStudentAndCourse(ctx context.Context, studentID, courseID uuid.UUID) ([]Record, error) {
	if err := s.requireStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return s.ledger.ListByStudentAndCourse(ctx, studentID, courseID)
}

// Percentage returns 100 * PRESENT / total records for a student, and
// 0.0 when the student has no records at all. LATE, EXCUSED and ABSENT
// count toward the denominator only.
func (s *Service) Percentage(ctx context.Context, studentID uuid.UUID) (float64, error) {
	if err := s.requireStudent(ctx, studentID); err != nil {
		return 0, err
	}
	total, err := s.ledger.CountForStudent(ctx, studentID)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	present, err := s.ledger.CountPresentForStudent(ctx, studentID)
	if err != nil {
		return 0, err
	}
	return 100 * float64(present) / float64(total), nil
}

// Correct manually overrides a record's status after creation.
func (s *Service) Correct(ctx context.Context, recordID uuid.UUID, status Status) (*Record, error) {
	if !status.Valid() {
		return nil, errors.New("unknown attendance status: " + string(status))
	}
	return s.ledger.UpdateStatus(ctx, recordID, status)
}

func (s *Service) requireStudent(ctx context.Context, studentID uuid.UUID) error {
	if _, err := s.users.Get(ctx, studentID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrStudentNotFound
		}
		return err
	}
	return nil
}
