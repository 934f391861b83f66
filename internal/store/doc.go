// Package store persists tracked cloud-worker sessions.
//
// # Implementations
//
//   - MemoryStore: map guarded by a sync.RWMutex; used by tests and the
//     "memory" store driver.
//   - SQLiteStore: modernc.org/sqlite in WAL mode with a single connection,
//     so every UpdateSession is a serialized read-merge-write transaction.
//
// Both implementations merge updates through session.TrackedSession.Apply and
// return copies, so callers never share mutable state with the store.
//
// # Pending sessions
//
// GetPendingSessions returns every session whose status is not terminal
// (completed, failed, cancelled). Terminal sessions stay in the store and are
// returned by ListSessions, but are never handed to the reconciliation loop.
//
// # Errors
//
//   - ErrNotFound: unknown session ID
//   - ErrDuplicateSession: AddSession with an ID already present
//   - ErrInvalidStatus: status outside the canonical enum
//
// # Testing
//
// Use NewMemoryStore() for unit tests, or NewSQLiteStore(":memory:") for
// integration tests against real SQLite.
package store
