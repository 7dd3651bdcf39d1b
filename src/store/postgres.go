package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS gateway_sessions (
	session_key TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	sequence    BIGINT NOT NULL,
	resume_url  TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL
)`

// Postgres stores snapshots in PostgreSQL through a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Load(ctx context.Context, key string) (*Snapshot, error) {
	var snap Snapshot

	err := p.pool.QueryRow(ctx,
		`SELECT session_id, sequence, resume_url, updated_at FROM gateway_sessions WHERE session_key = $1`,
		key,
	).Scan(&snap.SessionID, &snap.Sequence, &snap.ResumeURL, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	snap.UpdatedAt = snap.UpdatedAt.UTC()
	return &snap, nil
}

func (p *Postgres) Save(ctx context.Context, key string, snap Snapshot) error {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO gateway_sessions (session_key, session_id, sequence, resume_url, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_key) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			sequence   = EXCLUDED.sequence,
			resume_url = EXCLUDED.resume_url,
			updated_at = EXCLUDED.updated_at`,
		key, snap.SessionID, snap.Sequence, snap.ResumeURL, snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM gateway_sessions WHERE session_key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
