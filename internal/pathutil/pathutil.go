// Package pathutil provides the path normalization helpers shared by the
// scanner, the classifier, and the configuration layer.
package pathutil

import (
	"path/filepath"
	"strings"
)

// Normalize converts a path to the slash-separated form patterns are matched
// against. Backslashes are treated as separators regardless of platform so
// Windows-style input normalizes identically everywhere.
func Normalize(path string) string {
	return strings.ReplaceAll(filepath.ToSlash(path), "\\", "/")
}

// Rel returns path relative to root, normalized for pattern matching.
func Rel(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return Normalize(rel), nil
}

// NormalizePattern prepares a configured glob for matching: trims whitespace,
// normalizes separators, and collapses duplicate slashes. An empty result
// means the pattern was blank and should be dropped.
func NormalizePattern(pattern string) string {
	p := Normalize(strings.TrimSpace(pattern))
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}
