// Package config provides centralized default configuration values.
package config

// DefaultIgnorePatterns is the canonical list of glob patterns for paths
// the detector never tracks: the state directory, editor droppings, and OS
// noise. Version-control directories are pruned by the scanner itself and
// need no pattern here.
//
// Users can override via config.yaml: source.ignore_patterns.
var DefaultIgnorePatterns = []string{
	".stoker/**",
	"**/*.tmp",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
	"**/Thumbs.db",
}
