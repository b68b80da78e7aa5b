// Package sqlite implements store.Store over a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wirecall/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS calls (
	id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	media TEXT NOT NULL,
	multi INTEGER NOT NULL DEFAULT 0,
	inviter_id TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	started_at DATETIME,
	ended_at DATETIME
);

CREATE TABLE IF NOT EXISTS call_participants (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	call_id TEXT NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_calls_inviter ON calls(inviter_id);
CREATE INDEX IF NOT EXISTS idx_call_participants_user ON call_participants(user_id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (and if necessary initializes) a SQLite database.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateUser creates a new relay account with a hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`,
		username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username))
}

// GetUserByID retrieves a user by id.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// SaveCall upserts a call record and replaces its participant rows.
func (s *SQLiteStore) SaveCall(ctx context.Context, rec *store.CallRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO calls (id, channel_id, media, multi, inviter_id, reason, created_at, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			reason = excluded.reason,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at`,
		rec.ID, rec.ChannelID, rec.Media, boolToInt(rec.Multi), rec.InviterID, rec.Reason,
		rec.CreatedAt, rec.StartedAt, rec.EndedAt)
	if err != nil {
		return fmt.Errorf("upsert call: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM call_participants WHERE call_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("clear participants: %w", err)
	}
	for _, p := range rec.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO call_participants (call_id, user_id, status) VALUES (?, ?, ?)`,
			rec.ID, p.UserID, p.Status); err != nil {
			return fmt.Errorf("insert participant %s: %w", p.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListCallsForUser returns the most recent calls the user initiated or took
// part in, newest first.
func (s *SQLiteStore) ListCallsForUser(ctx context.Context, userID string, limit int) ([]*store.CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT c.id, c.channel_id, c.media, c.multi, c.inviter_id, c.reason, c.created_at, c.started_at, c.ended_at
		FROM calls c
		LEFT JOIN call_participants p ON p.call_id = c.id
		WHERE c.inviter_id = ? OR p.user_id = ?
		ORDER BY c.created_at DESC
		LIMIT ?`, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var records []*store.CallRecord
	for rows.Next() {
		var rec store.CallRecord
		var multi int
		var started, ended sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.ChannelID, &rec.Media, &multi, &rec.InviterID,
			&rec.Reason, &rec.CreatedAt, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		rec.Multi = multi != 0
		if started.Valid {
			rec.StartedAt = &started.Time
		}
		if ended.Valid {
			rec.EndedAt = &ended.Time
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}

	for _, rec := range records {
		if err := s.loadParticipants(ctx, rec); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *SQLiteStore) loadParticipants(ctx context.Context, rec *store.CallRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, status FROM call_participants WHERE call_id = ? ORDER BY user_id`, rec.ID)
	if err != nil {
		return fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p store.CallParticipant
		if err := rows.Scan(&p.UserID, &p.Status); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		rec.Participants = append(rec.Participants, p)
	}
	return rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ store.Store = (*SQLiteStore)(nil)
