package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var (
	// ErrSessionNotFound is returned by CommitTurn when no session row
	// exists for the user. Provisioning must happen first.
	ErrSessionNotFound = errors.New("session not found")

	// ErrCreditsExhausted is returned by CommitTurn when the session has no
	// credits left. Two requests racing past the admission check with one
	// credit end up here: exactly one of them commits.
	ErrCreditsExhausted = errors.New("credits exhausted")

	// ErrStorageUnavailable wraps driver-level failures so callers can
	// distinguish "the store said no" from "the store is down".
	ErrStorageUnavailable = errors.New("storage unavailable")
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	// Busy timeout + WAL so concurrent webhook requests serialize at the
	// database instead of failing with SQLITE_BUSY.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", dataSourceName)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS sessions (
        user_id INTEGER PRIMARY KEY,
        credits INTEGER NOT NULL CHECK (credits >= 0),
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS turns (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        seq INTEGER NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'model')),
        content TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE (user_id, seq),
        FOREIGN KEY (user_id) REFERENCES sessions (user_id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// GetSession returns the session for userID, or (nil, nil) when the user
// has never been provisioned. The history is ordered by insertion.
func (s *SQLiteStore) GetSession(ctx context.Context, userID int64) (*UserSession, error) {
	var session UserSession
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, credits, created_at FROM sessions WHERE user_id = ?", userID).
		Scan(&session.UserID, &session.Credits, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // not provisioned yet
		}
		return nil, fmt.Errorf("failed to query session: %w: %w", ErrStorageUnavailable, err)
	}

	history, err := s.getHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	session.History = history
	return &session, nil
}

func (s *SQLiteStore) getHistory(ctx context.Context, userID int64) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content FROM turns WHERE user_id = ? ORDER BY seq ASC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w: %w", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var history []Turn
	for rows.Next() {
		var turn Turn
		if err := rows.Scan(&turn.Role, &turn.Content); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		history = append(history, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turn rows: %w: %w", ErrStorageUnavailable, err)
	}
	return history, nil
}

// CreateIfAbsent provisions a session with the initial credit grant. It is
// safe under concurrent calls for the same user: the insert is a no-op when
// the row already exists, and every caller reads back the single surviving
// record. The bool reports whether this call created the session.
func (s *SQLiteStore) CreateIfAbsent(ctx context.Context, userID int64, initialCredits int) (*UserSession, bool, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (user_id, credits) VALUES (?, ?) ON CONFLICT(user_id) DO NOTHING",
		userID, initialCredits)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert session: %w: %w", ErrStorageUnavailable, err)
	}
	inserted, _ := res.RowsAffected()

	session, err := s.GetSession(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if session == nil {
		// Row vanished between insert and read; this store never deletes,
		// so treat it as a storage fault.
		return nil, false, fmt.Errorf("session disappeared after create: %w", ErrStorageUnavailable)
	}
	return session, inserted == 1, nil
}

// CommitTurn spends one credit and appends the (user, model) pair to the
// history, all inside a single transaction. Nothing is written when the
// session is missing or out of credits, so a failed commit leaves the
// record exactly as it was.
func (s *SQLiteStore) CommitTurn(ctx context.Context, userID int64, userText, modelText string) (*UserSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w: %w", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE sessions SET credits = credits - 1 WHERE user_id = ? AND credits > 0", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrement credits: %w: %w", ErrStorageUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w: %w", ErrStorageUnavailable, err)
	}
	if affected == 0 {
		var exists bool
		err = tx.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM sessions WHERE user_id = ?)", userID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to check session existence: %w: %w", ErrStorageUnavailable, err)
		}
		if !exists {
			return nil, fmt.Errorf("commit turn for user %d: %w", userID, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("commit turn for user %d: %w", userID, ErrCreditsExhausted)
	}

	var lastSeq int64
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM turns WHERE user_id = ?", userID).Scan(&lastSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to read last turn seq: %w: %w", ErrStorageUnavailable, err)
	}

	insert := "INSERT INTO turns (id, user_id, seq, role, content) VALUES (?, ?, ?, ?, ?)"
	if _, err = tx.ExecContext(ctx, insert, uuid.NewString(), userID, lastSeq+1, RoleUser, userText); err != nil {
		return nil, fmt.Errorf("failed to insert user turn: %w: %w", ErrStorageUnavailable, err)
	}
	if _, err = tx.ExecContext(ctx, insert, uuid.NewString(), userID, lastSeq+2, RoleModel, modelText); err != nil {
		return nil, fmt.Errorf("failed to insert model turn: %w: %w", ErrStorageUnavailable, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit turn: %w: %w", ErrStorageUnavailable, err)
	}

	return s.GetSession(ctx, userID)
}
