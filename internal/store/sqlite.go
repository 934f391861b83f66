// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists tracked sessions with automatic schema creation and column migrations

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/coven-cloudworker/internal/session"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const sessionColumns = `
	id, provider, remote_session_id, repo, branch, prompt, title,
	status, status_message, console_url, error_code, error_message,
	review_round, max_review_rounds, auto_review, auto_merge, merged, watching, in_flight,
	created_at, updated_at, remote_updated_at`

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection serializes read-merge-write updates and keeps
	// :memory: databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the sessions table if it doesn't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id                TEXT PRIMARY KEY,
			provider          TEXT NOT NULL,
			remote_session_id TEXT NOT NULL,
			repo              TEXT NOT NULL,
			branch            TEXT NOT NULL,
			prompt            TEXT NOT NULL,
			title             TEXT NOT NULL DEFAULT '',
			status            TEXT NOT NULL,
			status_message    TEXT NOT NULL DEFAULT '',
			console_url       TEXT NOT NULL DEFAULT '',
			error_code        TEXT,
			error_message     TEXT,
			review_round      INTEGER NOT NULL DEFAULT 0,
			max_review_rounds INTEGER NOT NULL DEFAULT 0,
			auto_review       INTEGER NOT NULL DEFAULT 0,
			auto_merge        INTEGER NOT NULL DEFAULT 0,
			merged            INTEGER NOT NULL DEFAULT 0,
			watching          INTEGER NOT NULL DEFAULT 0,
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
		CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
		CREATE INDEX IF NOT EXISTS idx_sessions_remote ON sessions(provider, remote_session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations adds columns introduced after the first schema.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	migrations := []struct {
		column string
		apply  string
	}{
		{
			column: "in_flight",
			apply:  `ALTER TABLE sessions ADD COLUMN in_flight INTEGER NOT NULL DEFAULT 0`,
		},
		{
			column: "remote_updated_at",
			apply:  `ALTER TABLE sessions ADD COLUMN remote_updated_at TEXT NOT NULL DEFAULT ''`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info('sessions') WHERE name = ?`, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking %s column: %w", m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to sessions: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", "sessions")
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// AddSession inserts a new session.
// Returns ErrDuplicateSession if the ID is already present.
func (s *SQLiteStore) AddSession(ctx context.Context, sess *session.TrackedSession) error {
	if err := validateNew(sess); err != nil {
		return err
	}

	query := `INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	code, msg := errorColumns(sess.Error)
	_, err := s.db.ExecContext(ctx, query,
		sess.ID,
		sess.Provider,
		sess.RemoteSessionID,
		sess.Repo,
		sess.Branch,
		sess.Prompt,
		sess.Title,
		string(sess.Status),
		sess.StatusMessage,
		sess.ConsoleURL,
		code,
		msg,
		sess.ReviewRound,
		sess.MaxReviewRounds,
		sess.AutoReview,
		sess.AutoMerge,
		sess.Merged,
		sess.Watching,
		sess.InFlight,
		formatTime(sess.CreatedAt),
		formatTime(sess.UpdatedAt),
		formatTime(sess.RemoteUpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateSession
		}
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Debug("created session", "id", sess.ID, "remote_id", sess.RemoteSessionID)
	return nil
}

// GetSession retrieves a session by local ID.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*session.TrackedSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return sess, nil
}

// UpdateSession reads, merges, and writes the session in one transaction.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) UpdateSession(ctx context.Context, id string, p session.Patch) (*session.TrackedSession, *session.TrackedSession, error) {
	if err := validatePatch(p); err != nil {
		return nil, nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	current, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("querying session: %w", err)
	}

	before := current.Clone()
	if !current.Apply(p, s.now()) {
		return before, current, nil
	}

	code, msg := errorColumns(current.Error)
	_, err = tx.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, status_message = ?, console_url = ?, error_code = ?, error_message = ?,
			review_round = ?, auto_merge = ?, merged = ?, watching = ?, in_flight = ?,
			updated_at = ?, remote_updated_at = ?
		WHERE id = ?`,
		string(current.Status),
		current.StatusMessage,
		current.ConsoleURL,
		code,
		msg,
		current.ReviewRound,
		current.AutoMerge,
		current.Merged,
		current.Watching,
		current.InFlight,
		formatTime(current.UpdatedAt),
		formatTime(current.RemoteUpdatedAt),
		id,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("updating session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing update: %w", err)
	}

	s.logger.Debug("updated session", "id", id, "status", current.Status)
	return before, current, nil
}

// ListSessions returns all sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*session.TrackedSession, error) {
	return s.query(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC, id DESC`)
}

// GetPendingSessions returns non-terminal sessions, oldest first.
func (s *SQLiteStore) GetPendingSessions(ctx context.Context) ([]*session.TrackedSession, error) {
	return s.query(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE status NOT IN (?, ?, ?)
		ORDER BY created_at ASC, id ASC`,
		string(session.StatusCompleted),
		string(session.StatusFailed),
		string(session.StatusCancelled),
	)
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]*session.TrackedSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.TrackedSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return out, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*session.TrackedSession, error) {
	var (
		sess                           session.TrackedSession
		status                         string
		errCode, errMsg                sql.NullString
		createdAt, updatedAt, remoteAt string
	)

	err := row.Scan(
		&sess.ID,
		&sess.Provider,
		&sess.RemoteSessionID,
		&sess.Repo,
		&sess.Branch,
		&sess.Prompt,
		&sess.Title,
		&status,
		&sess.StatusMessage,
		&sess.ConsoleURL,
		&errCode,
		&errMsg,
		&sess.ReviewRound,
		&sess.MaxReviewRounds,
		&sess.AutoReview,
		&sess.AutoMerge,
		&sess.Merged,
		&sess.Watching,
		&sess.InFlight,
		&createdAt,
		&updatedAt,
		&remoteAt,
	)
	if err != nil {
		return nil, err
	}

	if sess.Status, err = session.ParseStatus(status); err != nil {
		return nil, err
	}
	if errCode.Valid {
		sess.Error = &session.ErrorInfo{Code: errCode.String, Message: errMsg.String}
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if sess.RemoteUpdatedAt, err = parseTime(remoteAt); err != nil {
		return nil, fmt.Errorf("parsing remote_updated_at: %w", err)
	}
	return &sess, nil
}

func errorColumns(e *session.ErrorInfo) (any, any) {
	if e == nil {
		return nil, nil
	}
	return e.Code, e.Message
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeFormat, v)
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}
