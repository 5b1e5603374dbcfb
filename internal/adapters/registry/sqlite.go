// Package registry provides the source registry implementations: a
// SQLite-backed store for persistent daemons and an in-memory store for
// ephemeral runs and tests. Both also persist the scan watermark so a
// restarted process resumes where the previous one stopped.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stokerbuild/stoker/internal/domain"
	"github.com/stokerbuild/stoker/internal/domain/ports"
)

// SQLite persists registry entries in a SQLite database, normally under the
// state directory (.stoker/registry.db) of the source root.
type SQLite struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// OpenSQLite initializes (or reuses) the registry database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("registry path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database resources.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLite) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrRegistryClosed
	}
	return s.db, nil
}

func (s *SQLite) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS source_entries (
	path TEXT PRIMARY KEY,
	raw INTEGER NOT NULL DEFAULT 0,
	changed INTEGER NOT NULL DEFAULT 0,
	merged_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_state (
	root_path TEXT PRIMARY KEY,
	watermark INTEGER NOT NULL DEFAULT 0
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize registry schema: %w", err)
	}
	return nil
}

// AllEntries returns every entry keyed by path.
func (s *SQLite) AllEntries(ctx context.Context) (map[string]domain.Entry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT path, raw, changed FROM source_entries`)
	if err != nil {
		return nil, domain.NewRegistryError("query", "", err)
	}
	defer rows.Close()

	entries := make(map[string]domain.Entry)
	for rows.Next() {
		var (
			path    string
			raw     int
			changed int
		)
		if scanErr := rows.Scan(&path, &raw, &changed); scanErr != nil {
			return nil, domain.NewRegistryError("scan", "", scanErr)
		}
		entries[path] = domain.Entry{
			Path:    path,
			Raw:     raw != 0,
			Changed: changed != 0,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewRegistryError("iterate", "", err)
	}
	return entries, nil
}

// MergeEntry inserts the entry, replacing any existing entry at its path.
func (s *SQLite) MergeEntry(ctx context.Context, entry domain.Entry) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
INSERT INTO source_entries(path, raw, changed, merged_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
	raw=excluded.raw,
	changed=excluded.changed,
	merged_at=excluded.merged_at
`, entry.Path, boolToInt(entry.Raw), boolToInt(entry.Changed), time.Now().UnixNano())
	if err != nil {
		return domain.NewRegistryError("merge", entry.Path, err)
	}
	return nil
}

// RemoveEntry deletes the entry at the same path, if present.
func (s *SQLite) RemoveEntry(ctx context.Context, entry domain.Entry) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM source_entries WHERE path = ?`, entry.Path); err != nil {
		return domain.NewRegistryError("remove", entry.Path, err)
	}
	return nil
}

// Watermark returns the persisted watermark for root, or the zero time when
// the root has never been scanned.
func (s *SQLite) Watermark(ctx context.Context, root string) (time.Time, error) {
	db, err := s.conn()
	if err != nil {
		return time.Time{}, err
	}

	var nanos int64
	err = db.QueryRowContext(ctx,
		`SELECT watermark FROM scan_state WHERE root_path = ?`, root).Scan(&nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, domain.NewRegistryError("watermark", root, err)
	}
	if nanos == 0 {
		return time.Time{}, nil
	}
	return time.Unix(0, nanos), nil
}

// SetWatermark records the watermark for root.
func (s *SQLite) SetWatermark(ctx context.Context, root string, mark time.Time) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
INSERT INTO scan_state(root_path, watermark)
VALUES(?, ?)
ON CONFLICT(root_path) DO UPDATE SET
	watermark=excluded.watermark
`, root, mark.UnixNano())
	if err != nil {
		return domain.NewRegistryError("set watermark", root, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure SQLite implements the registry ports.
var (
	_ ports.SourceRegistry = (*SQLite)(nil)
	_ ports.ScanStateStore = (*SQLite)(nil)
)
