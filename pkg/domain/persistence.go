package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateUser(User) (User, error)
	UpdateUser(nric string, mutator func(*User) error) (User, error)
	CreateProject(Project) (Project, error)
	// UpdateProject re-keys the project when the mutator changes its name and
	// carries the new name onto dependent applications, registrations and enquiries.
	UpdateProject(name string, mutator func(*Project) error) (Project, error)
	// DeleteProject removes the project together with its registrations,
	// applications and enquiries.
	DeleteProject(name string) error
	CreateApplication(Application) (Application, error)
	UpdateApplication(key ApplicationKey, mutator func(*Application) error) (Application, error)
	CreateRegistration(Registration) (Registration, error)
	UpdateRegistration(key RegistrationKey, mutator func(*Registration) error) (Registration, error)
	// CreateEnquiry assigns the next id from the store's sequence.
	CreateEnquiry(Enquiry) (Enquiry, error)
	UpdateEnquiry(id int, mutator func(*Enquiry) error) (Enquiry, error)
	DeleteEnquiry(id int) error
}

// TransactionView provides read-only access to snapshot data for rules and queries.
type TransactionView interface {
	ListUsers() []User
	FindUser(nric string) (User, bool)
	ListProjects() []Project
	FindProject(name string) (Project, bool)
	ListApplications() []Application
	FindApplication(key ApplicationKey) (Application, bool)
	ListRegistrations() []Registration
	FindRegistration(key RegistrationKey) (Registration, bool)
	ListEnquiries() []Enquiry
	FindEnquiry(id int) (Enquiry, bool)
}

// PersistentStore is the entity store contract used by higher layers. Mutations
// never persist implicitly; callers flush explicitly.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	// Flush writes the current state to the backing source. A failed flush
	// leaves the previously flushed data intact.
	Flush(ctx context.Context) error
	Close() error
}
