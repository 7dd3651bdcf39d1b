package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS gateway_sessions (
	session_key TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	sequence    INTEGER NOT NULL,
	resume_url  TEXT NOT NULL DEFAULT '',
	updated_at  INTEGER NOT NULL
)`

// SQLite stores snapshots in a single table of a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at dsn.
func NewSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(ctx context.Context, key string) (*Snapshot, error) {
	var snap Snapshot
	var updated int64

	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, sequence, resume_url, updated_at FROM gateway_sessions WHERE session_key = ?`,
		key,
	).Scan(&snap.SessionID, &snap.Sequence, &snap.ResumeURL, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	snap.UpdatedAt = time.UnixMilli(updated).UTC()
	return &snap, nil
}

func (s *SQLite) Save(ctx context.Context, key string, snap Snapshot) error {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gateway_sessions (session_key, session_id, sequence, resume_url, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_key) DO UPDATE SET
			session_id = excluded.session_id,
			sequence   = excluded.sequence,
			resume_url = excluded.resume_url,
			updated_at = excluded.updated_at`,
		key, snap.SessionID, snap.Sequence, snap.ResumeURL, snap.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM gateway_sessions WHERE session_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
