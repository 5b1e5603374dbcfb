// Package classify implements path classification against the configured
// exclude, ignore, and raw pattern lists.
package classify

import (
	"github.com/stokerbuild/stoker/internal/domain/ports"
	"github.com/stokerbuild/stoker/internal/pathutil"
)

// Classifier evaluates a root-relative path against three independent
// ordered pattern lists. Each list is scanned in configured order and the
// first match wins; a path matching no pattern is simply not in that
// category. Malformed patterns are skipped during evaluation, so one bad
// glob cannot block a scan.
//
// The pattern lists are fixed at construction. Classification is pure:
// identical (path, pattern set) inputs always produce identical results.
type Classifier struct {
	matcher ports.PatternMatcher
	exclude []string
	ignore  []string
	raw     []string
}

// New creates a Classifier. Patterns keep their configured order; each is
// separator-normalized once up front and blank entries are dropped.
func New(matcher ports.PatternMatcher, exclude, ignore, raw []string) *Classifier {
	return &Classifier{
		matcher: matcher,
		exclude: normalizePatterns(exclude),
		ignore:  normalizePatterns(ignore),
		raw:     normalizePatterns(raw),
	}
}

// IsExcluded reports whether path matches an exclude pattern.
func (c *Classifier) IsExcluded(path string) bool {
	return c.matchAny(c.exclude, path)
}

// IsIgnored reports whether path matches an ignore pattern.
func (c *Classifier) IsIgnored(path string) bool {
	return c.matchAny(c.ignore, path)
}

// IsRaw reports whether path matches a raw pattern.
func (c *Classifier) IsRaw(path string) bool {
	return c.matchAny(c.raw, path)
}

// InvalidPatterns returns the configured patterns the matcher rejects as
// malformed, across all three lists. Useful for warning once at startup;
// the classifier itself silently skips them.
func (c *Classifier) InvalidPatterns() []string {
	var invalid []string
	for _, list := range [][]string{c.exclude, c.ignore, c.raw} {
		for _, p := range list {
			if !c.matcher.IsValid(p) {
				invalid = append(invalid, p)
			}
		}
	}
	return invalid
}

func (c *Classifier) matchAny(patterns []string, path string) bool {
	normalized := pathutil.Normalize(path)
	for _, p := range patterns {
		if !c.matcher.IsValid(p) {
			continue
		}
		if c.matcher.Matches(p, normalized) {
			return true
		}
	}
	return false
}

func normalizePatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if n := pathutil.NormalizePattern(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Ensure Classifier implements ports.PathClassifier.
var _ ports.PathClassifier = (*Classifier)(nil)
