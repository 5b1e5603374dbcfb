package detect

import "time"

// Result captures everything a single refresh cycle computed. The path
// slices hold slash-normalized paths relative to the source root, sorted
// lexicographically so output and event payloads are deterministic.
//
// Changed subsumes Added: a brand-new file's modification time necessarily
// falls on or after the watermark that predates its creation, so every
// added path with a current mtime also appears in Changed. Added and
// Deleted are reported separately for diagnostics and downstream tooling.
type Result struct {
	CycleID string `json:"cycle_id"`
	Root    string `json:"root"`

	Added    []string `json:"added,omitempty"`
	Changed  []string `json:"changed,omitempty"`
	Deleted  []string `json:"deleted,omitempty"`
	Excluded []string `json:"excluded,omitempty"`

	ExcludedChanged bool `json:"excluded_changed"`
	InvalidateAll   bool `json:"invalidate_all"`

	ScannedFiles      int           `json:"scanned_files"`
	PreviousWatermark time.Time     `json:"previous_watermark"`
	Watermark         time.Time     `json:"watermark"`
	Duration          time.Duration `json:"duration_ns"`
}

// Dirty reports whether the cycle produced any work for a downstream build.
func (r *Result) Dirty() bool {
	return r.InvalidateAll || len(r.Added) > 0 || len(r.Changed) > 0 || len(r.Deleted) > 0
}
