// Package ports defines the contract surface between stoker's core and its
// adapters. The composition root wires concrete implementations; nothing in
// this package depends on one.
package ports

// PatternMatcher is the glob-matching capability consumed by the path
// classifier. Patterns use Ant-style wildcards (*, **, ?) and are matched
// against slash-normalized relative paths.
type PatternMatcher interface {
	// IsValid reports whether the pattern is well-formed.
	IsValid(pattern string) bool

	// Matches reports whether the normalized path matches the pattern.
	// Malformed patterns never match.
	Matches(pattern, path string) bool
}
