// Package match implements the pattern-matching port on doublestar globs.
package match

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/stokerbuild/stoker/internal/domain/ports"
)

// Matcher evaluates Ant-style glob patterns (*, **, ?) against
// slash-normalized paths.
type Matcher struct{}

// New creates a new Matcher.
func New() *Matcher {
	return &Matcher{}
}

// IsValid reports whether pattern is a well-formed glob.
func (*Matcher) IsValid(pattern string) bool {
	return doublestar.ValidatePattern(pattern)
}

// Matches reports whether the normalized path matches pattern. A malformed
// pattern never matches.
func (*Matcher) Matches(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}

// Ensure Matcher implements ports.PatternMatcher.
var _ ports.PatternMatcher = (*Matcher)(nil)
