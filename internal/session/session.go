// Package session carries the authenticated user's identity through the
// chat client. Identity is passed in explicitly at construction instead of
// being read from ambient storage, so every component sees the same view.
package session

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// FallbackName is used when no display name is known for the current user.
const FallbackName = "Anonymous"

var (
	ErrNoToken      = errors.New("internal/session: no bearer token")
	ErrTokenExpired = errors.New("internal/session: bearer token expired")
)

// Session identifies the current user to the REST and WebSocket layers.
type Session struct {
	UserID   uuid.UUID
	FullName string
	Token    string
}

// New builds a session, substituting FallbackName for an empty display name.
func New(userID uuid.UUID, fullName, token string) Session {
	if fullName == "" {
		fullName = FallbackName
	}
	return Session{
		UserID:   userID,
		FullName: fullName,
		Token:    token,
	}
}

// FromEnv assembles a session from CHAT_TOKEN, CHAT_USER_ID and
// CHAT_FULL_NAME.
func FromEnv() (Session, error) {
	token := os.Getenv("CHAT_TOKEN")
	if token == "" {
		return Session{}, ErrNoToken
	}

	userID, err := uuid.Parse(os.Getenv("CHAT_USER_ID"))
	if err != nil {
		return Session{}, fmt.Errorf("internal/session: invalid CHAT_USER_ID: %w", err)
	}

	return New(userID, os.Getenv("CHAT_FULL_NAME"), token), nil
}

// Check reports whether the session can plausibly authenticate a request.
// The token is parsed without signature verification; verification is the
// backend's job, we only want to fail locally on a token that is missing
// or already expired instead of issuing a doomed request.
func (s Session) Check(now time.Time) error {
	if s.Token == "" {
		return ErrNoToken
	}

	claims := &jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(s.Token, claims)
	if err != nil {
		// Opaque (non-JWT) tokens are accepted as-is.
		return nil
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(now) {
		return ErrTokenExpired
	}

	return nil
}
