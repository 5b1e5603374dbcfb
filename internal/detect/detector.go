// Package detect implements the change detector at the core of stoker. A
// Detector compares a fresh filesystem snapshot against a modification-time
// watermark and the source registry, producing the added, changed, deleted,
// and excluded sets for the cycle and applying the invalidation policy to
// the registry entries.
package detect

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stokerbuild/stoker/internal/domain"
	"github.com/stokerbuild/stoker/internal/domain/ports"
)

// DefaultGranularity is the watermark comparison resolution. Modification
// times are only reliable to whole seconds across filesystems, so the
// watermark and every mtime are truncated to this unit before comparison.
const DefaultGranularity = time.Second

// Detector owns the scan watermark for one source root and drives refresh
// cycles against it.
//
// A Detector is not safe for concurrent use: Refresh mutates the watermark
// and the registry without internal locking. The calling pipeline runs one
// refresh per build cycle and serializes invocations itself.
type Detector struct {
	root        string
	classifier  ports.PathClassifier
	scanner     ports.TreeScanner
	registry    ports.SourceRegistry
	granularity time.Duration
	watermark   time.Time
	now         func() time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithGranularity sets the watermark comparison resolution.
func WithGranularity(unit time.Duration) Option {
	return func(d *Detector) {
		if unit > 0 {
			d.granularity = unit
		}
	}
}

// WithWatermark seeds the watermark, typically from persisted scan state.
// A zero mark is ignored and the detector keeps its epoch default, under
// which the first refresh reports every file as changed.
func WithWatermark(mark time.Time) Option {
	return func(d *Detector) {
		if !mark.IsZero() {
			d.watermark = mark
		}
	}
}

// WithClock overrides the time source so tests can drive the watermark
// deterministically instead of waiting on the wall clock.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates a Detector for root. The classifier, scanner, and registry
// are required collaborators; wiring defaults is the composition root's
// job, not this package's.
func New(root string, classifier ports.PathClassifier, scanner ports.TreeScanner, registry ports.SourceRegistry, opts ...Option) *Detector {
	d := &Detector{
		root:        root,
		classifier:  classifier,
		scanner:     scanner,
		registry:    registry,
		granularity: DefaultGranularity,
		watermark:   time.Unix(0, 0).UTC(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Watermark returns the current watermark. After a successful Refresh it
// holds the time the cycle started; after a failed one it is unchanged.
func (d *Detector) Watermark() time.Time {
	return d.watermark
}

// Refresh runs one detection cycle: scan the tree, diff it against the
// registry, merge changed entries, remove deleted ones, and apply the
// invalidation policy.
//
// The watermark advances to the cycle's start time before the scan runs. A
// file written while the walk is in progress may be missed by this cycle,
// but its mtime lands on or after the new watermark, so the next cycle
// picks it up; advancing after the scan would lose such writes entirely.
// On any error the watermark rolls back to its previous value and the
// error is returned; registry mutations already applied are not undone,
// which is safe because merges are idempotent and a retry converges.
func (d *Detector) Refresh(ctx context.Context) (*Result, error) {
	started := d.now()
	previous := d.watermark
	d.watermark = d.truncate(started)

	result := &Result{
		CycleID:           uuid.New().String(),
		Root:              d.root,
		PreviousWatermark: previous,
		Watermark:         d.watermark,
	}

	records, err := d.scanner.ListFiles(ctx, d.root)
	if err != nil {
		d.watermark = previous
		return nil, fmt.Errorf("scan %s: %w", d.root, err)
	}
	result.ScannedFiles = len(records)

	// Ignored paths are invisible to every step below: they never reach
	// the diff sets, the registry, or the invalidation policy.
	nonExcluded := make(map[string]domain.FileRecord)
	excluded := make(map[string]domain.FileRecord)
	for _, rec := range records {
		switch {
		case d.classifier.IsIgnored(rec.Rel):
		case d.classifier.IsExcluded(rec.Rel):
			excluded[rec.Rel] = rec
		default:
			rec.Raw = d.classifier.IsRaw(rec.Rel)
			nonExcluded[rec.Rel] = rec
		}
	}

	entries, err := d.registry.AllEntries(ctx)
	if err != nil {
		d.watermark = previous
		return nil, fmt.Errorf("load registry: %w", err)
	}

	for rel := range nonExcluded {
		if _, known := entries[rel]; !known {
			result.Added = append(result.Added, rel)
		}
	}
	for rel := range entries {
		if _, present := nonExcluded[rel]; !present {
			result.Deleted = append(result.Deleted, rel)
		}
	}
	// The changed set is keyed on mtime alone, with an inclusive bound: a
	// write landing in the same granularity unit as the watermark must
	// count, at the cost of occasionally re-flagging a file on the next
	// cycle. Two writes inside one unit straddling a scan can still be
	// missed; that resolution gap is inherent to mtime comparison.
	for rel, rec := range nonExcluded {
		if d.onOrAfter(rec.ModTime, previous) {
			result.Changed = append(result.Changed, rel)
		}
	}
	for rel, rec := range excluded {
		result.Excluded = append(result.Excluded, rel)
		if d.onOrAfter(rec.ModTime, previous) {
			result.ExcludedChanged = true
		}
	}

	sort.Strings(result.Added)
	sort.Strings(result.Changed)
	sort.Strings(result.Deleted)
	sort.Strings(result.Excluded)

	// Merging is driven by the changed set, not the added set: a new file
	// carrying an old mtime (copied with timestamps preserved) stays out
	// of the registry until a real write or a global invalidation.
	for _, rel := range result.Changed {
		entry := domain.Entry{Path: rel, Raw: nonExcluded[rel].Raw, Changed: true}
		if err := d.registry.MergeEntry(ctx, entry); err != nil {
			d.watermark = previous
			return nil, fmt.Errorf("merge entry %s: %w", rel, err)
		}
		entries[rel] = entry
	}
	for _, rel := range result.Deleted {
		if err := d.registry.RemoveEntry(ctx, entries[rel]); err != nil {
			d.watermark = previous
			return nil, fmt.Errorf("remove entry %s: %w", rel, err)
		}
		delete(entries, rel)
	}

	result.InvalidateAll = Invalidate(result.ExcludedChanged, len(result.Deleted))
	if result.InvalidateAll {
		for rel, entry := range entries {
			if entry.Changed {
				continue
			}
			entry.Changed = true
			if err := d.registry.MergeEntry(ctx, entry); err != nil {
				d.watermark = previous
				return nil, fmt.Errorf("invalidate entry %s: %w", rel, err)
			}
		}
	}

	result.Duration = d.now().Sub(started)

	log.Debug().
		Str("cycle_id", result.CycleID).
		Str("root", d.root).
		Int("scanned", result.ScannedFiles).
		Int("added", len(result.Added)).
		Int("changed", len(result.Changed)).
		Int("deleted", len(result.Deleted)).
		Int("excluded", len(result.Excluded)).
		Bool("invalidate_all", result.InvalidateAll).
		Dur("duration", result.Duration).
		Msg("Refresh cycle completed")

	return result, nil
}

func (d *Detector) truncate(t time.Time) time.Time {
	return t.UTC().Truncate(d.granularity)
}

func (d *Detector) onOrAfter(mtime, mark time.Time) bool {
	return !d.truncate(mtime).Before(d.truncate(mark))
}
