// Package scan implements the snapshot walker that feeds the change
// detector. A scan is a plain recursive listing: one record per regular
// file, no pattern filtering, no mutation of filesystem state.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stokerbuild/stoker/internal/domain"
	"github.com/stokerbuild/stoker/internal/domain/ports"
	"github.com/stokerbuild/stoker/internal/pathutil"
)

// vcsDirectories are version-control metadata directories that never appear
// in a snapshot.
var vcsDirectories = map[string]struct{}{
	".git": {},
	".svn": {},
	".hg":  {},
	".bzr": {},
	"CVS":  {},
}

// Scanner walks a source tree and lists its regular files.
//
// The walk includes dotfiles, follows symbolic links (file links are
// reported under the link path with the target's mtime; directory links are
// descended, with resolved-path tracking to break link cycles), and skips
// version-control metadata directories. Any filesystem access failure aborts
// the walk; only dangling symlinks are tolerated, since they resolve to no
// regular file.
type Scanner struct{}

// New creates a new Scanner.
func New() *Scanner {
	return &Scanner{}
}

// ListFiles returns one FileRecord per regular file under root. Record order
// follows directory iteration and carries no meaning; callers re-key by
// path. Cancellation is checked between directory reads.
func (s *Scanner) ListFiles(ctx context.Context, root string) ([]domain.FileRecord, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRootNotFound, root)
		}
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", domain.ErrRootNotDirectory, root)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	// Seed the visited set with the root so a link pointing back up the
	// tree terminates instead of recursing forever.
	visited := make(map[string]struct{})
	if resolved, err := filepath.EvalSymlinks(absRoot); err == nil {
		visited[resolved] = struct{}{}
	}

	var records []domain.FileRecord
	if err := s.walk(ctx, absRoot, absRoot, visited, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Scanner) walk(ctx context.Context, root, dir string, visited map[string]struct{}, records *[]domain.FileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		switch {
		case entry.IsDir():
			if _, skip := vcsDirectories[entry.Name()]; skip {
				continue
			}
			if err := s.walk(ctx, root, path, visited, records); err != nil {
				return err
			}

		case entry.Type()&fs.ModeSymlink != 0:
			if err := s.followSymlink(ctx, root, path, visited, records); err != nil {
				return err
			}

		case entry.Type().IsRegular():
			info, err := entry.Info()
			if err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			if err := appendRecord(root, path, info.ModTime(), records); err != nil {
				return err
			}

		default:
			// Sockets, fifos, devices: not build inputs.
		}
	}
	return nil
}

// followSymlink resolves a link and reports or descends its target. The
// record path stays the link's own path: downstream consumers address build
// inputs by where they sit in the tree, not where the link points.
func (s *Scanner) followSymlink(ctx context.Context, root, path string, visited map[string]struct{}, records *[]domain.FileRecord) error {
	info, err := os.Stat(path)
	if err != nil {
		log.Debug().Str("path", path).Msg("skipping unresolvable symlink")
		return nil
	}

	if info.IsDir() {
		if _, skip := vcsDirectories[filepath.Base(path)]; skip {
			return nil
		}
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			log.Debug().Str("path", path).Msg("skipping unresolvable symlink")
			return nil
		}
		if _, seen := visited[resolved]; seen {
			return nil
		}
		visited[resolved] = struct{}{}
		return s.walk(ctx, root, path, visited, records)
	}

	if !info.Mode().IsRegular() {
		return nil
	}
	return appendRecord(root, path, info.ModTime(), records)
}

func appendRecord(root, path string, modTime time.Time, records *[]domain.FileRecord) error {
	rel, err := pathutil.Rel(root, path)
	if err != nil {
		return fmt.Errorf("relativize %s: %w", path, err)
	}
	*records = append(*records, domain.FileRecord{
		Path:    path,
		Rel:     rel,
		ModTime: modTime,
	})
	return nil
}

// Ensure Scanner implements ports.TreeScanner.
var _ ports.TreeScanner = (*Scanner)(nil)
