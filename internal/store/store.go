// Package store defines persistence for relay users and call history.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// User is a relay account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// CallRecord is a finished call as reported by a client kit.
type CallRecord struct {
	ID           string
	ChannelID    string
	Media        string
	Multi        bool
	InviterID    string
	Reason       string
	CreatedAt    time.Time
	StartedAt    *time.Time
	EndedAt      *time.Time
	Participants []CallParticipant
}

// CallParticipant is one roster member's final status in a call record.
type CallParticipant struct {
	UserID string
	Status string
}

// Store is the persistence surface used by the relay server.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// SaveCall upserts a call record with its participants. Re-reporting
	// the same call id replaces the previous record.
	SaveCall(ctx context.Context, rec *CallRecord) error
	ListCallsForUser(ctx context.Context, userID string, limit int) ([]*CallRecord, error)

	Close() error
}
