package sqlite

import (
	"btocore/pkg/domain"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func sampleProject() domain.Project {
	return domain.Project{
		Name:         "Acacia",
		Neighborhood: "Yishun",
		TwoRoom:      domain.FlatSupply{Units: 2, Price: 350000},
		ThreeRoom:    domain.FlatSupply{Units: 1, Price: 450000},
		OpenDate:     domain.MustParseDate("2025-02-01"),
		CloseDate:    domain.MustParseDate("2025-03-01"),
		ManagerNRIC:  "T8765432F",
		OfficerSlots: 3,
		OfficerNRICs: []string{"T2109876H"},
		Visible:      true,
	}
}

func TestFlushThenReopenRestoresState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bto.db")
	ctx := context.Background()
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Path() != path || store.DB() == nil {
		t.Fatalf("unexpected accessors")
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateProject(sampleProject()); err != nil {
			return err
		}
		_, err := tx.CreateEnquiry(domain.Enquiry{ApplicantNRIC: "S1234567A", ProjectName: "Acacia", Text: "parking?"})
		return err
	}); err != nil {
		t.Fatalf("tx: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	p, ok := reopened.GetProject("Acacia")
	if !ok || p.TwoRoom.Units != 2 || len(p.OfficerNRICs) != 1 {
		t.Fatalf("unexpected project after reload: %+v", p)
	}
	if reopened.NextEnquiryID() != 2 {
		t.Fatalf("expected enquiry sequence to resume at 2, got %d", reopened.NextEnquiryID())
	}
}

func TestUnflushedChangesAreDiscardedOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bto.db")
	ctx := context.Background()
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateProject(sampleProject())
		return err
	}); err != nil {
		t.Fatalf("tx: %v", err)
	}
	_ = store.Close()

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if len(reopened.ListProjects()) != 0 {
		t.Fatalf("unflushed project must not persist")
	}
}

func TestCorruptBucketIsPersistenceError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bto.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES('projects', 'nope')`); err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}
	_ = store.Close()

	_, err = NewStore(path, nil)
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) || perr.Backend != "sqlite" || perr.Op != "load" {
		t.Fatalf("expected sqlite load persistence error, got %v", err)
	}
}

func TestFlushOnClosedDatabaseFails(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "bto.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = store.DB().Close()
	var perr *domain.PersistenceError
	if err := store.Flush(context.Background()); !errors.As(err, &perr) || perr.Op != "flush" {
		t.Fatalf("expected flush persistence error, got %v", err)
	}
}

func TestNewStoreDefaultPath(t *testing.T) {
	t.Chdir(t.TempDir())
	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()
	if store.Path() != defaultPath {
		t.Fatalf("expected default path, got %s", store.Path())
	}
}
