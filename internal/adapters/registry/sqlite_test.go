package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stokerbuild/stoker/internal/domain"
)

func openTestRegistry(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".stoker", "registry.db")
	reg, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return reg, path
}

func TestSQLite_MergeAndAllEntries(t *testing.T) {
	reg, _ := openTestRegistry(t)
	ctx := context.Background()

	want := []domain.Entry{
		{Path: "posts/a.md", Raw: false, Changed: true},
		{Path: "static/logo.png", Raw: true, Changed: true},
	}
	for _, e := range want {
		if err := reg.MergeEntry(ctx, e); err != nil {
			t.Fatalf("MergeEntry(%s) error = %v", e.Path, err)
		}
	}

	entries, err := reg.AllEntries(ctx)
	if err != nil {
		t.Fatalf("AllEntries() error = %v", err)
	}
	if len(entries) != len(want) {
		t.Fatalf("AllEntries() returned %d entries, want %d", len(entries), len(want))
	}
	for _, e := range want {
		got, ok := entries[e.Path]
		if !ok {
			t.Fatalf("AllEntries() missing %s", e.Path)
		}
		if got != e {
			t.Errorf("entry %s = %+v, want %+v", e.Path, got, e)
		}
	}
}

func TestSQLite_MergeReplacesEntry(t *testing.T) {
	reg, _ := openTestRegistry(t)
	ctx := context.Background()

	entry := domain.Entry{Path: "posts/a.md", Raw: false, Changed: true}
	if err := reg.MergeEntry(ctx, entry); err != nil {
		t.Fatalf("MergeEntry() error = %v", err)
	}

	entry.Changed = false
	if err := reg.MergeEntry(ctx, entry); err != nil {
		t.Fatalf("MergeEntry() replace error = %v", err)
	}

	entries, err := reg.AllEntries(ctx)
	if err != nil {
		t.Fatalf("AllEntries() error = %v", err)
	}
	if got := entries["posts/a.md"]; got.Changed {
		t.Errorf("entry changed = true after replacing merge, want false")
	}
}

func TestSQLite_RemoveEntry(t *testing.T) {
	reg, _ := openTestRegistry(t)
	ctx := context.Background()

	entry := domain.Entry{Path: "posts/a.md", Changed: true}
	if err := reg.MergeEntry(ctx, entry); err != nil {
		t.Fatalf("MergeEntry() error = %v", err)
	}
	if err := reg.RemoveEntry(ctx, entry); err != nil {
		t.Fatalf("RemoveEntry() error = %v", err)
	}
	// Removing an absent entry is not an error.
	if err := reg.RemoveEntry(ctx, entry); err != nil {
		t.Fatalf("RemoveEntry() on absent entry error = %v", err)
	}

	entries, err := reg.AllEntries(ctx)
	if err != nil {
		t.Fatalf("AllEntries() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("AllEntries() returned %d entries after removal, want 0", len(entries))
	}
}

func TestSQLite_Watermark(t *testing.T) {
	reg, _ := openTestRegistry(t)
	ctx := context.Background()

	mark, err := reg.Watermark(ctx, "/srv/site")
	if err != nil {
		t.Fatalf("Watermark() error = %v", err)
	}
	if !mark.IsZero() {
		t.Errorf("Watermark() for unseen root = %v, want zero time", mark)
	}

	want := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	if err := reg.SetWatermark(ctx, "/srv/site", want); err != nil {
		t.Fatalf("SetWatermark() error = %v", err)
	}

	mark, err = reg.Watermark(ctx, "/srv/site")
	if err != nil {
		t.Fatalf("Watermark() error = %v", err)
	}
	if !mark.Equal(want) {
		t.Errorf("Watermark() = %v, want %v", mark, want)
	}
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	ctx := context.Background()

	reg, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	if err := reg.MergeEntry(ctx, domain.Entry{Path: "a.md", Changed: true}); err != nil {
		t.Fatalf("MergeEntry() error = %v", err)
	}
	mark := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := reg.SetWatermark(ctx, "/srv/site", mark); err != nil {
		t.Fatalf("SetWatermark() error = %v", err)
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() reopen error = %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.AllEntries(ctx)
	if err != nil {
		t.Fatalf("AllEntries() error = %v", err)
	}
	if _, ok := entries["a.md"]; !ok {
		t.Error("entry a.md did not survive reopen")
	}

	got, err := reopened.Watermark(ctx, "/srv/site")
	if err != nil {
		t.Fatalf("Watermark() error = %v", err)
	}
	if !got.Equal(mark) {
		t.Errorf("Watermark() after reopen = %v, want %v", got, mark)
	}
}

func TestSQLite_ClosedRegistry(t *testing.T) {
	reg, _ := openTestRegistry(t)
	ctx := context.Background()

	if err := reg.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// Close is idempotent.
	if err := reg.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if _, err := reg.AllEntries(ctx); !errors.Is(err, domain.ErrRegistryClosed) {
		t.Errorf("AllEntries() after close error = %v, want ErrRegistryClosed", err)
	}
	if err := reg.MergeEntry(ctx, domain.Entry{Path: "x"}); !errors.Is(err, domain.ErrRegistryClosed) {
		t.Errorf("MergeEntry() after close error = %v, want ErrRegistryClosed", err)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite("   "); err == nil {
		t.Fatal("OpenSQLite(blank) error = nil, want error")
	}
}
