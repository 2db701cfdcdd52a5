package blob

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"btocore/internal/infra/blob/fs"
	memorystore "btocore/internal/infra/blob/memory"
)

// DefaultFSRoot is the filesystem root used when none is configured.
const DefaultFSRoot = "./blobdata"

// NewFilesystem keeps record files under root, creating the directory when
// it is missing. An empty root means DefaultFSRoot.
func NewFilesystem(root string) (Store, error) {
	if root == "" {
		root = DefaultFSRoot
	}
	store, err := fs.New(filepath.Clean(root))
	if err != nil {
		return nil, fmt.Errorf("filesystem blob root %s: %w", root, err)
	}
	return store, nil
}

// NewMemory returns an empty process-local store.
func NewMemory() Store { return memorystore.New() }

// NewMemoryWith returns a process-local store preloaded with files keyed by
// blob key. Keys ending in .csv are stored as text/csv.
func NewMemoryWith(ctx context.Context, files map[string]string) (Store, error) {
	store := memorystore.New()
	for _, key := range slices.Sorted(maps.Keys(files)) {
		opts := PutOptions{ContentType: "text/plain"}
		if strings.HasSuffix(key, ".csv") {
			opts.ContentType = "text/csv"
		}
		if _, err := store.Put(ctx, key, strings.NewReader(files[key]), opts); err != nil {
			return nil, fmt.Errorf("seed %s: %w", key, err)
		}
	}
	return store, nil
}
