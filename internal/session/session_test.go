package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)
	return signed
}

func TestNewFallsBackToAnonymous(t *testing.T) {
	sess := New(uuid.New(), "", "tok")
	assert.Equal(t, FallbackName, sess.FullName)

	sess = New(uuid.New(), "Sam Lee", "tok")
	assert.Equal(t, "Sam Lee", sess.FullName)
}

func TestCheckMissingToken(t *testing.T) {
	sess := New(uuid.New(), "Sam Lee", "")
	assert.ErrorIs(t, sess.Check(time.Now()), ErrNoToken)
}

func TestCheckOpaqueTokenAccepted(t *testing.T) {
	sess := New(uuid.New(), "Sam Lee", "not-a-jwt")
	assert.NoError(t, sess.Check(time.Now()))
}

func TestCheckExpiredJWT(t *testing.T) {
	now := time.Now().UTC()
	sess := New(uuid.New(), "Sam Lee", signedToken(t, now.Add(-time.Minute)))
	assert.ErrorIs(t, sess.Check(now), ErrTokenExpired)
}

func TestCheckLiveJWT(t *testing.T) {
	now := time.Now().UTC()
	sess := New(uuid.New(), "Sam Lee", signedToken(t, now.Add(time.Hour)))
	assert.NoError(t, sess.Check(now))
}

func TestFromEnv(t *testing.T) {
	userID := uuid.New()
	t.Setenv("CHAT_TOKEN", "tok")
	t.Setenv("CHAT_USER_ID", userID.String())
	t.Setenv("CHAT_FULL_NAME", "Sam Lee")

	sess, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, userID, sess.UserID)
	assert.Equal(t, "Sam Lee", sess.FullName)
	assert.Equal(t, "tok", sess.Token)
}

func TestFromEnvMissingToken(t *testing.T) {
	t.Setenv("CHAT_TOKEN", "")
	_, err := FromEnv()
	assert.ErrorIs(t, err, ErrNoToken)
}
