package ports

import (
	"context"

	"github.com/stokerbuild/stoker/internal/domain"
)

// TreeScanner produces the filesystem snapshot a refresh cycle works from.
type TreeScanner interface {
	// ListFiles walks the tree under root and returns one record per regular
	// file. The walk follows symbolic links, includes dotfiles, and skips
	// version-control metadata directories. It applies no other filtering;
	// classification happens downstream. Any filesystem access failure aborts
	// the walk and is returned to the caller.
	ListFiles(ctx context.Context, root string) ([]domain.FileRecord, error)
}
