// Package store persists gateway session snapshots so a restarted process can
// RESUME instead of starting a new session.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Load when no snapshot exists for the key.
var ErrNotFound = errors.New("session snapshot not found")

// Snapshot is the resumable part of a gateway session.
type Snapshot struct {
	SessionID string
	Sequence  int64
	ResumeURL string
	UpdatedAt time.Time
}

// Store keeps at most one snapshot per session key.
type Store interface {
	// Load returns the snapshot for key or ErrNotFound.
	Load(ctx context.Context, key string) (*Snapshot, error)

	// Save stores or replaces the snapshot for key.
	Save(ctx context.Context, key string, snap Snapshot) error

	// Delete removes the snapshot for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend.
	Close() error
}

const (
	TypeMemory   = "memory"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Type string
	DSN  string
}

// New creates the backend named by cfg.Type.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", TypeMemory:
		return NewMemory(), nil
	case TypeSQLite:
		s, err := NewSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case TypePostgres:
		s, err := NewPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// SupportedTypes lists the backends New accepts.
func SupportedTypes() []string {
	return []string{TypeMemory, TypeSQLite, TypePostgres}
}
