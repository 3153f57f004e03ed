// Package token turns a session into an opaque, time-boxed bearer
// string suitable for embedding in a QR code, and back.
//
// The wire format is base64url(nonce || AES-256-GCM(JSON claim)). The
// claim is JSON rather than any delimiter-joined encoding so field
// values containing commas, colons or quotes survive the round trip.
package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/course"
	"rollcall/internal/session"
	"rollcall/internal/user"
)

// ErrInvalidToken covers every structural decode failure: bad base64,
// truncated ciphertext, failed authentication, malformed JSON. The
// stages are deliberately indistinguishable to the caller so the token
// surface cannot be used as a decryption oracle.
var ErrInvalidToken = errors.New("invalid token")

// Claim is the decrypted payload of a bearer token. It is ephemeral
// and never persisted.
type Claim struct {
	SessionID   uuid.UUID `json:"sid"`
	CourseCode  string    `json:"course_code"`
	CourseName  string    `json:"course_name"`
	Classroom   string    `json:"classroom"`
	TeacherID   uuid.UUID `json:"teacher_id"`
	TeacherName string    `json:"teacher_name"`

	IssuedAt time.Time `json:"iat"`
	// ExpiresAt is the scheduled session start plus the validity window,
	// fixed at issuance. Re-issuing a token never extends it.
	ExpiresAt time.Time `json:"exp"`
	Nonce     string    `json:"nonce"`

	LocationRequired bool    `json:"location_required"`
	CampusLat        float64 `json:"campus_lat,omitempty"`
	CampusLon        float64 `json:"campus_lon,omitempty"`
	CampusRadiusM    float64 `json:"campus_radius_m,omitempty"`
}

// Expired reports whether the claim's fixed expiry has passed.
func (c Claim) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// TTL returns how long the claim remains redeemable from now.
func (c Claim) TTL(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

// NewClaim builds the claim for a session. Geofence parameters are
// copied in at issuance so the client can pre-check its position.
func NewClaim(sess *session.Session, crs *course.Course, teacher *user.User, now time.Time) Claim {
	cl := Claim{
		SessionID:        sess.ID,
		CourseCode:       crs.Code,
		CourseName:       crs.Name,
		Classroom:        sess.Classroom,
		TeacherID:        teacher.ID,
		TeacherName:      teacher.FullName(),
		IssuedAt:         now,
		ExpiresAt:        sess.LateThreshold(),
		Nonce:            uuid.NewString(),
		LocationRequired: sess.LocationRequired,
	}
	if sess.LocationRequired && sess.CampusLat != nil && sess.CampusLon != nil && sess.CampusRadiusM != nil {
		cl.CampusLat = *sess.CampusLat
		cl.CampusLon = *sess.CampusLon
		cl.CampusRadiusM = *sess.CampusRadiusM
	}
	return cl
}

// Codec encrypts and decrypts claims under a process-wide key. The key
// is fixed for the process lifetime; rotation is out of scope.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives a 256-bit key from the configured secret and builds
// an AES-GCM codec.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// Issue serializes and encrypts a claim into an opaque bearer string.
func (c *Codec) Issue(cl Claim) (string, error) {
	plaintext, err := json.Marshal(cl)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Redeem reverses Issue. Any failure yields ErrInvalidToken; expiry is
// not checked here, callers compare Claim.ExpiresAt against their own
// clock.
func (c *Codec) Redeem(tok string) (Claim, error) {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return Claim{}, ErrInvalidToken
	}
	if len(raw) < c.aead.NonceSize() {
		return Claim{}, ErrInvalidToken
	}
	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Claim{}, ErrInvalidToken
	}
	var cl Claim
	if err := json.Unmarshal(plaintext, &cl); err != nil {
		return Claim{}, ErrInvalidToken
	}
	return cl, nil
}
