// ABOUTME: Tests specific to the SQLite store
// ABOUTME: Covers file creation, persistence across reopen, and migration idempotence

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-cloudworker/internal/session"
)

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "sessions.db")

	st, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer st.Close()

	_, err = os.Stat(dbPath)
	assert.False(t, os.IsNotExist(err), "database file was not created in nested directory")
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	st, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.AddSession(ctx, newSession("s1", 0, session.StatusQueued)))
	got, err := st.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	st, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.AddSession(ctx, newSession("s1", 0, session.StatusQueued)))
	_, _, err = st.UpdateSession(ctx, "s1", session.Patch{
		Status:     session.Ptr(session.StatusFailed),
		Error:      &session.ErrorInfo{Code: "FAILED", Message: "agent gave up"},
		ObservedAt: baseTime.Add(123456789),
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "agent gave up", got.Error.Message)
	assert.True(t, got.RemoteUpdatedAt.Equal(baseTime.Add(123456789)), "nanosecond precision is preserved")

	pending, err := reopened.GetPendingSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLiteStore_MigrationsIdempotent(t *testing.T) {
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.runMigrations())
	require.NoError(t, st.runMigrations())
}

func TestFormatTime_SortsLexically(t *testing.T) {
	a := formatTime(baseTime)
	b := formatTime(baseTime.Add(500 * time.Millisecond))
	c := formatTime(baseTime.Add(time.Second))
	assert.Less(t, a, b)
	assert.Less(t, b, c)
	assert.Equal(t, "", formatTime(time.Time{}))
}
