package ports

import (
	"context"
	"time"

	"github.com/stokerbuild/stoker/internal/domain"
)

// SourceRegistry is the persistent collection of build-input entries. It is
// the single source of truth for which paths previous scans have seen: the
// detector derives its added/deleted sets from the difference between the
// registry's keys and the current snapshot.
//
// During a refresh the registry is exclusively owned by the detector; no
// other actor may mutate it concurrently.
type SourceRegistry interface {
	// AllEntries returns every entry keyed by path.
	AllEntries(ctx context.Context) (map[string]domain.Entry, error)

	// MergeEntry inserts the entry, replacing any existing entry at the
	// same path.
	MergeEntry(ctx context.Context, entry domain.Entry) error

	// RemoveEntry deletes the entry with the same path, if present.
	RemoveEntry(ctx context.Context, entry domain.Entry) error
}

// ScanStateStore persists the watermark between process runs so a restarted
// daemon does not re-flag an unchanged tree. A root with no stored state
// yields the zero time, which the detector treats as "never scanned".
type ScanStateStore interface {
	// Watermark returns the persisted watermark for root.
	Watermark(ctx context.Context, root string) (time.Time, error)

	// SetWatermark records the watermark for root.
	SetWatermark(ctx context.Context, root string, mark time.Time) error
}
