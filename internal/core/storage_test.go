package core

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"btocore/internal/blob"
	"btocore/internal/infra/persistence/memory"
	"btocore/internal/infra/persistence/postgres"
	"btocore/internal/infra/persistence/postgres/testutil"
	"btocore/internal/infra/persistence/records"
	"btocore/internal/infra/persistence/sqlite"
	"btocore/pkg/domain"
)

func TestOpenPersistentStoreDrivers(t *testing.T) {
	ctx := context.Background()
	engine := NewDefaultRulesEngine()

	mem, err := OpenPersistentStore(ctx, StorageOptions{Driver: StorageMemory}, engine)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := mem.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", mem)
	}

	path := filepath.Join(t.TempDir(), "data", "bto.db")
	lite, err := OpenPersistentStore(ctx, StorageOptions{SQLitePath: path}, engine)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer func() { _ = lite.Close() }()
	if s, ok := lite.(*sqlite.Store); !ok || s.Path() != path {
		t.Fatalf("expected sqlite store at %s, got %T", path, lite)
	}

	rec, err := OpenPersistentStore(ctx, StorageOptions{Driver: StorageRecords, RecordsPrefix: "bto", Blob: blob.Config{Driver: blob.DriverMemory}}, engine)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if s, ok := rec.(*records.Store); !ok || s.Prefix() != "bto/" {
		t.Fatalf("expected records store under bto/, got %T", rec)
	}

	db, _ := testutil.NewStateDB()
	restore := postgres.OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	pg, err := OpenPersistentStore(ctx, StorageOptions{Driver: StoragePostgres, PostgresDSN: "postgres://stub"}, engine)
	if err != nil {
		t.Fatalf("postgres: %v", err)
	}
	if _, ok := pg.(*postgres.Store); !ok {
		t.Fatalf("expected postgres store, got %T", pg)
	}
}

func TestOpenPersistentStoreErrors(t *testing.T) {
	ctx := context.Background()
	store, err := OpenPersistentStore(ctx, StorageOptions{Driver: "mongo"}, nil)
	if err == nil || store != nil {
		t.Fatalf("expected unknown driver error, got %v %v", store, err)
	}

	store, err = OpenPersistentStore(ctx, StorageOptions{Driver: StorageRecords, Blob: blob.Config{Driver: "ftp"}}, nil)
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) || perr.Backend != "records" || perr.Op != "open" {
		t.Fatalf("expected records open error, got %v", err)
	}
	if store != nil {
		t.Fatalf("expected nil store on error, got %T", store)
	}

	restore := postgres.OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("refused") })
	defer restore()
	store, err = OpenPersistentStore(ctx, StorageOptions{Driver: StoragePostgres}, nil)
	if err == nil || store != nil {
		t.Fatalf("expected postgres open failure, got %v %v", store, err)
	}
}

func TestCopyStateFlushesDestination(t *testing.T) {
	ctx := context.Background()
	src := memory.NewStore(nil)
	src.ImportState(memory.Snapshot{
		Users:     []domain.User{testApplicant, testManager},
		Projects:  []domain.Project{testProject("Acacia Breeze")},
		Enquiries: []domain.Enquiry{{ID: 3, ApplicantNRIC: testApplicant.NRIC, ProjectName: "Acacia Breeze", Text: "Lift?"}},
	})
	blobs := blob.NewMemory()
	dst, err := records.NewStore(ctx, blobs, "export", nil)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if err := CopyState(ctx, dst, src); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if dst.Generation() != 1 {
		t.Fatalf("expected one flushed generation, got %d", dst.Generation())
	}
	reloaded, err := records.NewStore(ctx, blobs, "export", nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	snap := reloaded.ExportState()
	if len(snap.Users) != 2 || len(snap.Projects) != 1 || len(snap.Enquiries) != 1 || reloaded.NextEnquiryID() != 4 {
		t.Fatalf("unexpected reloaded state %+v", snap)
	}

	if err := CopyState(ctx, dst, opaqueStore{}); err == nil {
		t.Fatalf("expected error for non-snapshot source")
	}
	if err := CopyState(ctx, opaqueStore{}, src); err == nil {
		t.Fatalf("expected error for non-snapshot destination")
	}
}

type opaqueStore struct{ domain.PersistentStore }
