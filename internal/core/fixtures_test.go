package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"btocore/internal/core"
	"btocore/internal/infra/persistence/memory"
	"btocore/pkg/domain"
)

var (
	today = time.Date(2025, 2, 20, 9, 30, 0, 0, time.UTC)

	manager      = domain.User{NRIC: "T8765432F", Name: "Michael", Age: 36, MaritalStatus: domain.MaritalSingle, Role: domain.RoleManager}
	otherManager = domain.User{NRIC: "S5678901G", Name: "Jessica", Age: 26, MaritalStatus: domain.MaritalMarried, Role: domain.RoleManager}
	single35     = domain.User{NRIC: "S1234567A", Name: "John", Age: 35, MaritalStatus: domain.MaritalSingle, Role: domain.RoleApplicant}
	single30     = domain.User{NRIC: "T7654321B", Name: "Sarah", Age: 30, MaritalStatus: domain.MaritalSingle, Role: domain.RoleApplicant}
	married25    = domain.User{NRIC: "S9876543C", Name: "Grace", Age: 25, MaritalStatus: domain.MaritalMarried, Role: domain.RoleApplicant}
	married40    = domain.User{NRIC: "T2345678D", Name: "James", Age: 40, MaritalStatus: domain.MaritalMarried, Role: domain.RoleApplicant}
	officer      = domain.User{NRIC: "T2109876H", Name: "Daniel", Age: 36, MaritalStatus: domain.MaritalSingle, Role: domain.RoleOfficer}
	officer2     = domain.User{NRIC: "S6543210I", Name: "Emily", Age: 28, MaritalStatus: domain.MaritalMarried, Role: domain.RoleOfficer}
)

func fixedClock() core.Clock {
	return core.ClockFunc(func() time.Time { return today })
}

func allUsers() []domain.User {
	return []domain.User{manager, otherManager, single35, single30, married25, married40, officer, officer2}
}

// openProject is visible, open on today and owned by manager.
func openProject(name string) domain.Project {
	return domain.Project{
		Name:         name,
		Neighborhood: "Yishun",
		TwoRoom:      domain.FlatSupply{Units: 2, Price: 350000},
		ThreeRoom:    domain.FlatSupply{Units: 3, Price: 450000},
		OpenDate:     domain.MustParseDate("2025-02-01"),
		CloseDate:    domain.MustParseDate("2025-03-31"),
		ManagerNRIC:  manager.NRIC,
		OfficerSlots: 2,
		Visible:      true,
	}
}

func newService(t *testing.T, snap memory.Snapshot, opts ...core.Option) (*core.Service, *memory.Store) {
	t.Helper()
	if snap.Users == nil {
		snap.Users = allUsers()
	}
	store := memory.NewStore(core.NewDefaultRulesEngine())
	store.ImportState(snap)
	opts = append([]core.Option{core.WithClock(fixedClock())}, opts...)
	return core.NewService(store, opts...), store
}

func appKey(u domain.User, project string) domain.ApplicationKey {
	return domain.ApplicationKey{ApplicantNRIC: u.NRIC, ProjectName: project}
}

func regKey(u domain.User, project string) domain.RegistrationKey {
	return domain.RegistrationKey{OfficerNRIC: u.NRIC, ProjectName: project}
}

func mustProject(t *testing.T, store *memory.Store, name string) domain.Project {
	t.Helper()
	p, ok := store.GetProject(name)
	if !ok {
		t.Fatalf("project %s missing", name)
	}
	return p
}

func findApplication(t *testing.T, store *memory.Store, key domain.ApplicationKey) domain.Application {
	t.Helper()
	for _, a := range store.ListApplications() {
		if a.Key() == key {
			return a
		}
	}
	t.Fatalf("application %s missing", key)
	return domain.Application{}
}

func findRegistration(t *testing.T, store *memory.Store, key domain.RegistrationKey) domain.Registration {
	t.Helper()
	for _, r := range store.ListRegistrations() {
		if r.Key() == key {
			return r
		}
	}
	t.Fatalf("registration %s missing", key)
	return domain.Registration{}
}

func expectErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

func expectOperationError(t *testing.T, err, target error) {
	t.Helper()
	var opErr *domain.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T %v", err, err)
	}
	expectErr(t, err, target)
}

func assertInvariants(t *testing.T, svc *core.Service) {
	t.Helper()
	res, err := svc.CheckInvariants(context.Background())
	if err != nil {
		t.Fatalf("check invariants: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("unexpected violations: %+v", res.Violations)
	}
}

// faultyStore injects write failures into the transactions it hands out.
// failAfter maps a Transaction method name to the number of calls that
// succeed before every further call fails. inspect, when set, sees the
// transaction's view after fn returns and before it is committed or dropped.
type faultyStore struct {
	domain.PersistentStore
	failAfter map[string]int
	inspect   func(domain.TransactionView)
}

var errInjected = errors.New("injected write failure")

func (f faultyStore) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	return f.PersistentStore.RunInTransaction(ctx, func(tx domain.Transaction) error {
		err := fn(&faultyTx{Transaction: tx, failAfter: f.failAfter, calls: map[string]int{}})
		if f.inspect != nil {
			f.inspect(tx.Snapshot())
		}
		return err
	})
}

type faultyTx struct {
	domain.Transaction
	failAfter map[string]int
	calls     map[string]int
}

func (f *faultyTx) fail(method string) bool {
	limit, ok := f.failAfter[method]
	if !ok {
		return false
	}
	f.calls[method]++
	return f.calls[method] > limit
}

func (f *faultyTx) UpdateProject(name string, mutator func(*domain.Project) error) (domain.Project, error) {
	if f.fail("UpdateProject") {
		return domain.Project{}, errInjected
	}
	return f.Transaction.UpdateProject(name, mutator)
}

func (f *faultyTx) UpdateApplication(key domain.ApplicationKey, mutator func(*domain.Application) error) (domain.Application, error) {
	if f.fail("UpdateApplication") {
		return domain.Application{}, errInjected
	}
	return f.Transaction.UpdateApplication(key, mutator)
}

func (f *faultyTx) UpdateRegistration(key domain.RegistrationKey, mutator func(*domain.Registration) error) (domain.Registration, error) {
	if f.fail("UpdateRegistration") {
		return domain.Registration{}, errInjected
	}
	return f.Transaction.UpdateRegistration(key, mutator)
}
