// Package model defines data structure.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a seeker/listener connection.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusAccepted Status = "Accepted"
	StatusRejected Status = "Rejected"
)

// Role distinguishes the two sides of a connection.
type Role string

const (
	RoleSeeker   Role = "seeker"
	RoleListener Role = "listener"
)

// Connection is a relationship between a seeker and a listener, as returned
// by the roster endpoint. It is read-only input to the chat client; accept
// and reject requests mutate it server-side.
type Connection struct {
	ID            int64     `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	FullName      string    `json:"full_name"`
	Role          Role      `json:"role"`
	Status        Status    `json:"status"`
	Specialty     string    `json:"specialty,omitempty"`
	AvatarInitial string    `json:"avatar,omitempty"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastActive    time.Time `json:"last_active,omitempty"`
}

// ChatEligible reports whether a chat may be opened with this peer.
func (c Connection) ChatEligible() bool {
	return c.Status == StatusAccepted
}
