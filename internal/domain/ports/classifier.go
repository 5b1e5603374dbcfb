package ports

// PathClassifier classifies root-relative paths against the configured
// pattern lists. The three classifications are independent: a path may match
// more than one category, and the caller decides precedence (ignore wins over
// everything else).
//
// Implementations must be pure: no side effects, and deterministic results
// for a fixed (path, pattern set) input.
type PathClassifier interface {
	// IsExcluded reports whether the path matches an exclude pattern.
	IsExcluded(path string) bool

	// IsIgnored reports whether the path matches an ignore pattern.
	IsIgnored(path string) bool

	// IsRaw reports whether the path matches a raw pattern.
	IsRaw(path string) bool
}
