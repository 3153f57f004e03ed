package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/course"
	"rollcall/internal/session"
	"rollcall/internal/token"
	"rollcall/internal/user"
)

// memLedger mirrors the unique-constraint behavior of the SQL ledger:
// InsertIfAbsent is atomic per (session, student) pair.
type memLedger struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record
	pairs   map[[2]uuid.UUID]struct{}
}

func newMemLedger() *memLedger {
	return &memLedger{
		records: make(map[uuid.UUID]*Record),
		pairs:   make(map[[2]uuid.UUID]struct{}),
	}
}

func (m *memLedger) ExistsFor(_ context.Context, sessionID, studentID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pairs[[2]uuid.UUID{sessionID, studentID}]
	return ok, nil
}

func (m *memLedger) InsertIfAbsent(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]uuid.UUID{rec.SessionID, rec.StudentID}
	if _, ok := m.pairs[key]; ok {
		return ErrConflict
	}
	m.pairs[key] = struct{}{}
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *memLedger) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memLedger) UpdateStatus(_ context.Context, id uuid.UUID, status Status) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	r.Status = status
	cp := *r
	return &cp, nil
}

func (m *memLedger) ListBySession(_ context.Context, sessionID uuid.UUID) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if r.SessionID == sessionID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memLedger) ListByStudent(_ context.Context, studentID uuid.UUID) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if r.StudentID == studentID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memLedger) ListByStudentAndCourse(_ context.Context, studentID, courseID uuid.UUID) ([]Record, error) {
	return m.ListByStudent(context.Background(), studentID)
}

func (m *memLedger) CountForStudent(_ context.Context, studentID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.records {
		if r.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (m *memLedger) CountPresentForStudent(_ context.Context, studentID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.records {
		if r.StudentID == studentID && r.Status == StatusPresent {
			n++
		}
	}
	return n, nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*session.Session
}

func (m *memSessions) Get(_ context.Context, id uuid.UUID) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

type memUsers struct {
	users map[uuid.UUID]*user.User
}

func (m *memUsers) Get(_ context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

// fixture bundles everything a redemption test needs.
type fixture struct {
	svc      *Service
	codec    *token.Codec
	ledger   *memLedger
	sessions *memSessions
	users    *memUsers

	sess    *session.Session
	crs     *course.Course
	teacher *user.User
	student *user.User
}

var sessionStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	codec, err := token.NewCodec("test-secret")
	require.NoError(t, err)

	teacher := &user.User{ID: uuid.New(), FirstName: "Ada", LastName: "Lovelace", Role: user.RoleTeacher, Active: true}
	student := &user.User{ID: uuid.New(), FirstName: "Sam", LastName: "Chen", Role: user.RoleStudent, Active: true}
	crs := &course.Course{ID: uuid.New(), Code: "CS101", Name: "Systems", TeacherID: teacher.ID}
	sess := &session.Session{
		ID:              uuid.New(),
		CourseID:        crs.ID,
		TeacherID:       teacher.ID,
		StartsAt:        sessionStart,
		EndsAt:          sessionStart.Add(time.Hour),
		Classroom:       "A-1",
		ValidityMinutes: 15,
		Status:          session.StatusActive,
	}

	f := &fixture{
		codec:    codec,
		ledger:   newMemLedger(),
		sessions: &memSessions{sessions: map[uuid.UUID]*session.Session{sess.ID: sess}},
		users: &memUsers{users: map[uuid.UUID]*user.User{
			teacher.ID: teacher,
			student.ID: student,
		}},
		sess:    sess,
		crs:     crs,
		teacher: teacher,
		student: student,
	}
	f.svc = NewService(codec, f.ledger, f.sessions, f.users)
	f.at(sessionStart.Add(5 * time.Minute))
	return f
}

// at pins the service clock.
func (f *fixture) at(now time.Time) {
	f.svc.now = func() time.Time { return now }
}

func (f *fixture) token(t *testing.T) string {
	t.Helper()
	tok, err := f.codec.Issue(token.NewClaim(f.sess, f.crs, f.teacher, sessionStart.Add(-5*time.Minute)))
	require.NoError(t, err)
	return tok
}

func TestMarkPresent(t *testing.T) {
	f := newFixture(t)
	now := sessionStart.Add(5 * time.Minute)
	f.at(now)

	rec, err := f.svc.Mark(context.Background(), f.token(t), f.student.ID, "android 14", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusPresent, rec.Status)
	assert.Equal(t, f.sess.ID, rec.SessionID)
	assert.Equal(t, f.student.ID, rec.StudentID)
	assert.True(t, rec.MarkedAt.Equal(now))
	assert.Equal(t, "android 14", rec.DeviceInfo)
}

func TestMarkClassificationBoundary(t *testing.T) {
	f := newFixture(t)
	threshold := f.sess.LateThreshold()

	// One instant before the threshold is PRESENT.
	f.at(threshold.Add(-time.Nanosecond))
	rec, err := f.svc.Mark(context.Background(), f.token(t), f.student.ID, "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, rec.Status)

	// Exactly at the threshold the token is still redeemable but the
	// redemption counts as LATE.
	f2 := newFixture(t)
	f2.at(threshold)
	rec, err = f2.svc.Mark(context.Background(), f2.token(t), f2.student.ID, "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusLate, rec.Status)

	// Past the threshold the token itself has expired.
	f3 := newFixture(t)
	f3.at(threshold.Add(time.Nanosecond))
	_, err = f3.svc.Mark(context.Background(), f3.token(t), f3.student.ID, "", nil, nil)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestMarkInvalidToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Mark(context.Background(), "not-a-token", f.student.ID, "", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMarkExpiryBeforeSessionLookup(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t)

	// Remove the session and move past expiry: the expiry check fires
	// first so a stale token never probes session existence.
	delete(f.sessions.sessions, f.sess.ID)
	f.at(f.sess.LateThreshold().Add(time.Minute))
	_, err := f.svc.Mark(context.Background(), tok, f.student.ID, "", nil, nil)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestMarkSessionNotFound(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t)
	delete(f.sessions.sessions, f.sess.ID)

	_, err := f.svc.Mark(context.Background(), tok, f.student.ID, "", nil, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMarkSessionNotActive(t *testing.T) {
	for _, st := range []session.Status{
		session.StatusScheduled,
		session.StatusCompleted,
		session.StatusCancelled,
	} {
		t.Run(string(st), func(t *testing.T) {
			f := newFixture(t)
			f.sessions.sessions[f.sess.ID].Status = st
			_, err := f.svc.Mark(context.Background(), f.token(t), f.student.ID, "", nil, nil)
			assert.ErrorIs(t, err, ErrSessionNotActive)
		})
	}
}

func TestMarkStudentNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Mark(context.Background(), f.token(t), uuid.New(), "", nil, nil)
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestMarkDuplicate(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Mark(context.Background(), f.token(t), f.student.ID, "", nil, nil)
	require.NoError(t, err)

	_, err = f.svc.Mark(context.Background(), f.token(t), f.student.ID, "", nil, nil)
	assert.ErrorIs(t, err, ErrAlreadyMarked)

	recs, err := f.svc.BySession(context.Background(), f.sess.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestMarkConcurrentDuplicate(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Mark(context.Background(), tok, f.student.ID, "", nil, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyMarked)
		}
	}
	assert.Equal(t, 1, wins, "exactly one ledger write per (session, student)")

	recs, err := f.svc.BySession(context.Background(), f.sess.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func geofenced(f *fixture) {
	lat, lon, radius := 40.7128, -74.0060, 75.0
	s := f.sessions.sessions[f.sess.ID]
	s.LocationRequired = true
	s.CampusLat = &lat
	s.CampusLon = &lon
	s.CampusRadiusM = &radius
	f.sess = s
}

func TestMarkGeofence(t *testing.T) {
	t.Run("missing coordinates", func(t *testing.T) {
		f := newFixture(t)
		geofenced(f)
		_, err := f.svc.Mark(context.Background(), f.token(t), f.student.ID, "", nil, nil)
		assert.ErrorIs(t, err, ErrLocationRequired)
	})

	t.Run("invalid coordinates", func(t *testing.T) {
		f := newFixture(t)
		geofenced(f)
		lat, lon := 91.0, 0.0
		_, err := f.svc.Mark(context.Background(), f.token(t), f.student.ID, "", &lat, &lon)
		assert.ErrorIs(t, err, ErrLocationRequired)
	})

	t.Run("inside radius", func(t *testing.T) {
		f := newFixture(t)
		geofenced(f)
		lat, lon := 40.7128, -74.0060
		rec, err := f.svc.Mark(context.Background(), f.token(t), f.student.ID, "", &lat, &lon)
		require.NoError(t, err)
		assert.Equal(t, &lat, rec.Latitude)
		assert.Equal(t, &lon, rec.Longitude)
	})

	t.Run("outside radius", func(t *testing.T) {
		f := newFixture(t)
		geofenced(f)
		// Roughly a kilometer north of campus.
		lat, lon := 40.7218, -74.0060
		_, err := f.svc.Mark(context.Background(), f.token(t), f.student.ID, "", &lat, &lon)

		var oor *OutOfRangeError
		require.ErrorAs(t, err, &oor)
		assert.Greater(t, oor.DistanceMeters, 900.0)
		assert.Less(t, oor.DistanceMeters, 1200.0)
		assert.Equal(t, 75.0, oor.RadiusMeters)
	})

	t.Run("coordinates ignored when not required", func(t *testing.T) {
		f := newFixture(t)
		lat, lon := 0.0, 0.0
		_, err := f.svc.Mark(context.Background(), f.token(t), f.student.ID, "", &lat, &lon)
		assert.NoError(t, err)
	})
}

func TestPercentage(t *testing.T) {
	f := newFixture(t)

	pct, err := f.svc.Percentage(context.Background(), f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pct, "no records yields zero, not a division error")

	insert := func(status Status) {
		require.NoError(t, f.ledger.InsertIfAbsent(context.Background(), &Record{
			ID:        uuid.New(),
			SessionID: uuid.New(),
			StudentID: f.student.ID,
			Status:    status,
			MarkedAt:  sessionStart,
		}))
	}

	insert(StatusPresent)
	insert(StatusPresent)
	insert(StatusPresent)
	insert(StatusLate)

	pct, err = f.svc.Percentage(context.Background(), f.student.ID)
	require.NoError(t, err)
	assert.InDelta(t, 75.0, pct, 1e-9)

	_, err = f.svc.Percentage(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestCorrect(t *testing.T) {
	f := newFixture(t)

	rec, err := f.svc.Mark(context.Background(), f.token(t), f.student.ID, "", nil, nil)
	require.NoError(t, err)

	got, err := f.svc.Correct(context.Background(), rec.ID, StatusExcused)
	require.NoError(t, err)
	assert.Equal(t, StatusExcused, got.Status)
	assert.True(t, got.MarkedAt.Equal(rec.MarkedAt), "correction never rewrites the timestamp")

	_, err = f.svc.Correct(context.Background(), rec.ID, Status("MAYBE"))
	assert.Error(t, err)

	_, err = f.svc.Correct(context.Background(), uuid.New(), StatusAbsent)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestHasAttended(t *testing.T) {
	f := newFixture(t)

	ok, err := f.svc.HasAttended(context.Background(), f.sess.ID, f.student.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.Mark(context.Background(), f.token(t), f.student.ID, "", nil, nil)
	require.NoError(t, err)

	ok, err = f.svc.HasAttended(context.Background(), f.sess.ID, f.student.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
