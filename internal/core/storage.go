package core

import (
	"context"
	"fmt"

	"btocore/internal/blob"
	"btocore/internal/infra/persistence/memory"
	"btocore/internal/infra/persistence/postgres"
	"btocore/internal/infra/persistence/records"
	"btocore/internal/infra/persistence/sqlite"
	"btocore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageRecords  StorageDriver = "records"  // CSV record files on a blob store
)

// StorageOptions selects and configures the entity store backend.
type StorageOptions struct {
	Driver        StorageDriver
	SQLitePath    string
	PostgresDSN   string
	RecordsPrefix string
	// Blob configures the object store used by the records driver.
	Blob blob.Config
}

// OpenPersistentStore opens the configured backend and loads its state.
// An empty driver selects sqlite.
func OpenPersistentStore(ctx context.Context, opts StorageOptions, engine *RulesEngine) (PersistentStore, error) {
	var (
		store PersistentStore
		err   error
	)
	switch driver := opts.Driver; driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite, "":
		var s *sqlite.Store
		s, err = sqlite.NewStore(opts.SQLitePath, engine)
		store = s
	case StoragePostgres:
		var s *postgres.Store
		s, err = postgres.NewStore(ctx, opts.PostgresDSN, engine)
		store = s
	case StorageRecords:
		blobs, berr := blob.Open(ctx, opts.Blob)
		if berr != nil {
			return nil, &domain.PersistenceError{Backend: string(StorageRecords), Op: "open", Err: berr}
		}
		var s *records.Store
		s, err = records.NewStore(ctx, blobs, opts.RecordsPrefix, engine)
		store = s
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

type snapshotter interface {
	ExportState() memory.Snapshot
}

type snapshotImporter interface {
	ImportState(memory.Snapshot)
}

// CopyState replaces dst's state with src's current state and flushes dst.
// Both stores must be snapshot based.
func CopyState(ctx context.Context, dst, src PersistentStore) error {
	from, ok := src.(snapshotter)
	if !ok {
		return fmt.Errorf("store %T does not export snapshots", src)
	}
	to, ok := dst.(snapshotImporter)
	if !ok {
		return fmt.Errorf("store %T does not import snapshots", dst)
	}
	to.ImportState(from.ExportState())
	return dst.Flush(ctx)
}
