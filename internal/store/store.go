// ABOUTME: Store interface and errors for tracked cloud-worker sessions
// ABOUTME: Implemented by MemoryStore and SQLiteStore

package store

import (
	"context"
	"errors"

	"github.com/2389/coven-cloudworker/internal/session"
)

// ErrNotFound is returned when a requested session does not exist
var ErrNotFound = errors.New("session not found")

// ErrDuplicateSession is returned when inserting a session whose ID is taken
var ErrDuplicateSession = errors.New("session already exists")

// ErrInvalidStatus is returned when a write carries a status outside the enum
var ErrInvalidStatus = errors.New("invalid session status")

// Store is the registry of tracked sessions. All returned records are copies;
// mutating them does not affect the store.
type Store interface {
	// AddSession inserts a new session. Returns ErrDuplicateSession if the ID exists.
	AddSession(ctx context.Context, s *session.TrackedSession) error

	// GetSession returns ErrNotFound for unknown IDs.
	GetSession(ctx context.Context, id string) (*session.TrackedSession, error)

	// UpdateSession merges p into the session and returns the record as it was
	// immediately before and after the merge. Returns ErrNotFound for unknown IDs.
	UpdateSession(ctx context.Context, id string, p session.Patch) (before, after *session.TrackedSession, err error)

	// ListSessions returns every session, most recently created first.
	ListSessions(ctx context.Context) ([]*session.TrackedSession, error)

	// GetPendingSessions returns non-terminal sessions, oldest first.
	GetPendingSessions(ctx context.Context) ([]*session.TrackedSession, error)

	Close() error
}

// validateNew checks the invariants of a session about to be inserted.
func validateNew(s *session.TrackedSession) error {
	if s == nil || s.ID == "" {
		return errors.New("session id is required")
	}
	if s.RemoteSessionID == "" {
		return errors.New("remote session id is required")
	}
	if !s.Status.Valid() {
		return ErrInvalidStatus
	}
	if s.UpdatedAt.Before(s.CreatedAt) {
		return errors.New("updated_at precedes created_at")
	}
	return nil
}

func validatePatch(p session.Patch) error {
	if p.Status != nil && !p.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}
