package token

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/course"
	"rollcall/internal/session"
	"rollcall/internal/user"
)

func testFixture(t *testing.T) (*session.Session, *course.Course, *user.User) {
	t.Helper()
	teacher := &user.User{
		ID:        uuid.New(),
		FirstName: "Grace",
		LastName:  "Hopper",
		Role:      user.RoleTeacher,
	}
	crs := &course.Course{
		ID:        uuid.New(),
		Code:      "CS101",
		Name:      "Intro, to: \"Systems\"",
		TeacherID: teacher.ID,
	}
	sess := &session.Session{
		ID:              uuid.New(),
		CourseID:        crs.ID,
		TeacherID:       teacher.ID,
		StartsAt:        time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Classroom:       "B-204, wing: east",
		ValidityMinutes: 15,
		Status:          session.StatusActive,
	}
	return sess, crs, teacher
}

func TestCodecRoundTrip(t *testing.T) {
	codec, err := NewCodec("test-secret")
	require.NoError(t, err)

	sess, crs, teacher := testFixture(t)
	issued := time.Date(2026, 3, 2, 8, 55, 0, 0, time.UTC)
	cl := NewClaim(sess, crs, teacher, issued)

	tok, err := codec.Issue(cl)
	require.NoError(t, err)

	got, err := codec.Redeem(tok)
	require.NoError(t, err)

	assert.Equal(t, sess.ID, got.SessionID)
	// Field values with commas, colons and quotes must survive intact.
	assert.Equal(t, crs.Code, got.CourseCode)
	assert.Equal(t, crs.Name, got.CourseName)
	assert.Equal(t, sess.Classroom, got.Classroom)
	assert.Equal(t, teacher.ID, got.TeacherID)
	assert.Equal(t, "Grace Hopper", got.TeacherName)
	assert.True(t, got.IssuedAt.Equal(issued))
	assert.True(t, got.ExpiresAt.Equal(sess.LateThreshold()))
	assert.NotEmpty(t, got.Nonce)
}

func TestCodecExpiryFixedAtSchedule(t *testing.T) {
	sess, crs, teacher := testFixture(t)

	// However late the token is minted, expiry stays anchored to the
	// scheduled start plus the validity window.
	late := sess.StartsAt.Add(10 * time.Minute)
	cl := NewClaim(sess, crs, teacher, late)
	assert.True(t, cl.ExpiresAt.Equal(sess.StartsAt.Add(15*time.Minute)))
	assert.Equal(t, 5*time.Minute, cl.TTL(late))

	assert.False(t, cl.Expired(cl.ExpiresAt), "expiry instant itself is still redeemable")
	assert.True(t, cl.Expired(cl.ExpiresAt.Add(time.Nanosecond)))
}

func TestCodecRejectsGarbage(t *testing.T) {
	codec, err := NewCodec("test-secret")
	require.NoError(t, err)

	sess, crs, teacher := testFixture(t)
	tok, err := codec.Issue(NewClaim(sess, crs, teacher, time.Now()))
	require.NoError(t, err)

	cases := map[string]string{
		"empty":       "",
		"not base64":  "!!!not-base64!!!",
		"too short":   "AAAA",
		"truncated":   tok[:len(tok)/2],
		"bit flipped": flipLastChar(tok),
	}
	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Redeem(bad)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestCodecRejectsForeignKey(t *testing.T) {
	a, err := NewCodec("secret-a")
	require.NoError(t, err)
	b, err := NewCodec("secret-b")
	require.NoError(t, err)

	sess, crs, teacher := testFixture(t)
	tok, err := a.Issue(NewClaim(sess, crs, teacher, time.Now()))
	require.NoError(t, err)

	_, err = b.Redeem(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodecNonDeterministic(t *testing.T) {
	codec, err := NewCodec("test-secret")
	require.NoError(t, err)

	sess, crs, teacher := testFixture(t)
	cl := NewClaim(sess, crs, teacher, time.Now())

	t1, err := codec.Issue(cl)
	require.NoError(t, err)
	t2, err := codec.Issue(cl)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2, "fresh nonce per encryption")
}

func TestNewCodecEmptySecret(t *testing.T) {
	_, err := NewCodec("")
	assert.Error(t, err)
}

func TestCacheReturnsSameToken(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()

	id := uuid.New()
	calls := 0
	issue := func() (string, error) {
		calls++
		return uuid.NewString(), nil
	}

	first, err := cache.GetOrIssue(id, time.Minute, issue)
	require.NoError(t, err)
	second, err := cache.GetOrIssue(id, time.Minute, issue)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	other, err := cache.GetOrIssue(uuid.New(), time.Minute, issue)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestCacheSkipsClosedWindow(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()

	id := uuid.New()
	calls := 0
	issue := func() (string, error) {
		calls++
		return "tok", nil
	}

	// A non-positive ttl means the window already closed; nothing may
	// be cached.
	_, err := cache.GetOrIssue(id, -time.Second, issue)
	require.NoError(t, err)
	_, err = cache.GetOrIssue(id, 0, issue)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func flipLastChar(s string) string {
	repl := "A"
	if strings.HasSuffix(s, "A") {
		repl = "B"
	}
	return s[:len(s)-1] + repl
}
