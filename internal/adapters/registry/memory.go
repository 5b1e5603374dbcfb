package registry

import (
	"context"
	"sync"
	"time"

	"github.com/stokerbuild/stoker/internal/domain"
	"github.com/stokerbuild/stoker/internal/domain/ports"
)

// Memory is a map-backed registry. Nothing survives the process; the first
// refresh after a restart re-flags the whole tree. Used for ephemeral runs
// (registry driver "memory") and as the registry double in tests.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]domain.Entry
	watermarks map[string]time.Time
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{
		entries:    make(map[string]domain.Entry),
		watermarks: make(map[string]time.Time),
	}
}

// AllEntries returns a copy of every entry keyed by path.
func (m *Memory) AllEntries(ctx context.Context) (map[string]domain.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make(map[string]domain.Entry, len(m.entries))
	for path, entry := range m.entries {
		entries[path] = entry
	}
	return entries, nil
}

// MergeEntry inserts the entry, replacing any existing entry at its path.
func (m *Memory) MergeEntry(ctx context.Context, entry domain.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Path] = entry
	return nil
}

// RemoveEntry deletes the entry at the same path, if present.
func (m *Memory) RemoveEntry(ctx context.Context, entry domain.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, entry.Path)
	return nil
}

// Watermark returns the stored watermark for root, or the zero time.
func (m *Memory) Watermark(ctx context.Context, root string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.watermarks[root], nil
}

// SetWatermark records the watermark for root.
func (m *Memory) SetWatermark(ctx context.Context, root string, mark time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watermarks[root] = mark
	return nil
}

// Ensure Memory implements the registry ports.
var (
	_ ports.SourceRegistry = (*Memory)(nil)
	_ ports.ScanStateStore = (*Memory)(nil)
)
