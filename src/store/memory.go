package store

import (
	"context"
	"sync"
	"time"
)

// Memory keeps snapshots for the lifetime of the process.
type Memory struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

func NewMemory() *Memory {
	return &Memory{snaps: make(map[string]Snapshot)}
}

func (m *Memory) Load(ctx context.Context, key string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snaps[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &snap, nil
}

func (m *Memory) Save(ctx context.Context, key string, snap Snapshot) error {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[key] = snap
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, key)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
