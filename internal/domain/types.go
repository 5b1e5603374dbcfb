// Package domain defines the core data model and errors shared across
// stoker's components.
package domain

import "time"

// Entry is a single build input tracked by the source registry.
//
// Entries are keyed by their root-relative path. The changed flag tells the
// downstream build which inputs need re-processing; the raw flag marks inputs
// that bypass content processing and are copied through verbatim.
type Entry struct {
	Path    string `json:"path"`
	Raw     bool   `json:"raw"`
	Changed bool   `json:"changed"`
}

// FileRecord describes one regular file observed during a snapshot scan.
//
// Records are ephemeral: a fresh set is produced on every scan and discarded
// once the refresh cycle completes. Rel is the slash-normalized path relative
// to the scan root and is the form every pattern is matched against. Raw is
// not a property of the file itself; the detector assigns it from the raw
// patterns during classification.
type FileRecord struct {
	Path    string
	Rel     string
	ModTime time.Time
	Raw     bool
}
