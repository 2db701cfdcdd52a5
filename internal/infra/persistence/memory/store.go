// Package memory provides the in-memory entity store. Every other backend
// wraps it and only adds load and flush.
package memory

import (
	"btocore/pkg/domain"
	"context"
	"fmt"
	"sort"
	"sync"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// User aliases domain.User.
	User = domain.User
	// Project aliases domain.Project.
	Project = domain.Project
	// Application aliases domain.Application.
	Application = domain.Application
	// Registration aliases domain.Registration.
	Registration = domain.Registration
	// Enquiry aliases domain.Enquiry.
	Enquiry = domain.Enquiry
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	users         map[string]User
	projects      map[string]Project
	applications  map[domain.ApplicationKey]Application
	registrations map[domain.RegistrationKey]Registration
	enquiries     map[int]Enquiry
	nextEnquiryID int
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Users         []User         `json:"users"`
	Projects      []Project      `json:"projects"`
	Applications  []Application  `json:"applications"`
	Registrations []Registration `json:"registrations"`
	Enquiries     []Enquiry      `json:"enquiries"`
}

func newMemoryState() memoryState {
	return memoryState{
		users:         make(map[string]User),
		projects:      make(map[string]Project),
		applications:  make(map[domain.ApplicationKey]Application),
		registrations: make(map[domain.RegistrationKey]Registration),
		enquiries:     make(map[int]Enquiry),
		nextEnquiryID: 1,
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.users {
		cloned.users[k] = v
	}
	for k, v := range s.projects {
		cloned.projects[k] = cloneProject(v)
	}
	for k, v := range s.applications {
		cloned.applications[k] = v
	}
	for k, v := range s.registrations {
		cloned.registrations[k] = v
	}
	for k, v := range s.enquiries {
		cloned.enquiries[k] = cloneEnquiry(v)
	}
	cloned.nextEnquiryID = s.nextEnquiryID
	return cloned
}

func cloneProject(p Project) Project {
	cp := p
	cp.OfficerNRICs = append([]string(nil), p.OfficerNRICs...)
	return cp
}

func cloneEnquiry(e Enquiry) Enquiry {
	cp := e
	if e.Reply != nil {
		reply := *e.Reply
		cp.Reply = &reply
	}
	return cp
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	v := newTransactionView(&state)
	return Snapshot{
		Users:         v.ListUsers(),
		Projects:      v.ListProjects(),
		Applications:  v.ListApplications(),
		Registrations: v.ListRegistrations(),
		Enquiries:     v.ListEnquiries(),
	}
}

// memoryStateFromSnapshot rebuilds keyed state. Duplicate keys keep the last
// record; rosters are de-duplicated; the enquiry sequence resumes at max(id)+1.
func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for _, u := range s.Users {
		state.users[u.NRIC] = u
	}
	for _, p := range s.Projects {
		p.OfficerNRICs = dedupeStrings(p.OfficerNRICs)
		state.projects[p.Name] = p
	}
	for _, a := range s.Applications {
		state.applications[a.Key()] = a
	}
	for _, r := range s.Registrations {
		state.registrations[r.Key()] = r
	}
	for _, e := range s.Enquiries {
		state.enquiries[e.ID] = cloneEnquiry(e)
		if e.ID >= state.nextEnquiryID {
			state.nextEnquiryID = e.ID + 1
		}
	}
	return state
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NextEnquiryID returns the id the next created enquiry will receive.
func (s *Store) NextEnquiryID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.nextEnquiryID
}

// Flush is a no-op; the memory store has no backing source.
func (s *Store) Flush(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn succeeds and no blocking rule
// violation is found.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{state: s.state.clone()}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

// Evaluate runs the configured rules over the current state without a change set.
func (s *Store) Evaluate(ctx context.Context) (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.engine == nil {
		return Result{}, nil
	}
	snapshot := s.state.clone()
	return s.engine.Evaluate(ctx, newTransactionView(&snapshot), nil)
}

// transactionView exposes a read-only snapshot of the transactional state.
// Lists are sorted by key so callers see a stable order.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListUsers() []User {
	out := make([]User, 0, len(v.state.users))
	for _, u := range v.state.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NRIC < out[j].NRIC })
	return out
}

func (v transactionView) FindUser(nric string) (User, bool) {
	u, ok := v.state.users[nric]
	return u, ok
}

func (v transactionView) ListProjects() []Project {
	out := make([]Project, 0, len(v.state.projects))
	for _, p := range v.state.projects {
		out = append(out, cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (v transactionView) FindProject(name string) (Project, bool) {
	p, ok := v.state.projects[name]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

func (v transactionView) ListApplications() []Application {
	out := make([]Application, 0, len(v.state.applications))
	for _, a := range v.state.applications {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out
}

func (v transactionView) FindApplication(key domain.ApplicationKey) (Application, bool) {
	a, ok := v.state.applications[key]
	return a, ok
}

func (v transactionView) ListRegistrations() []Registration {
	out := make([]Registration, 0, len(v.state.registrations))
	for _, r := range v.state.registrations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out
}

func (v transactionView) FindRegistration(key domain.RegistrationKey) (Registration, bool) {
	r, ok := v.state.registrations[key]
	return r, ok
}

func (v transactionView) ListEnquiries() []Enquiry {
	out := make([]Enquiry, 0, len(v.state.enquiries))
	for _, e := range v.state.enquiries {
		out = append(out, cloneEnquiry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) FindEnquiry(id int) (Enquiry, bool) {
	e, ok := v.state.enquiries[id]
	if !ok {
		return Enquiry{}, false
	}
	return cloneEnquiry(e), true
}

// transaction represents a mutation set applied to a private copy of the store state.
type transaction struct {
	state   memoryState
	changes []Change
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateUser stores a new account.
func (tx *transaction) CreateUser(u User) (User, error) {
	if err := u.Validate(); err != nil {
		return User{}, err
	}
	if _, exists := tx.state.users[u.NRIC]; exists {
		return User{}, domain.Duplicate(domain.EntityUser, u.NRIC)
	}
	tx.state.users[u.NRIC] = u
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionCreate, After: u})
	return u, nil
}

// UpdateUser mutates an account. The NRIC cannot change.
func (tx *transaction) UpdateUser(nric string, mutator func(*User) error) (User, error) {
	current, ok := tx.state.users[nric]
	if !ok {
		return User{}, domain.NotFound(domain.EntityUser, nric)
	}
	before := current
	if err := mutator(&current); err != nil {
		return User{}, err
	}
	current.NRIC = nric
	if current.Role != before.Role {
		return User{}, domain.ValidationError{Field: "role", Reason: "role is fixed at creation"}
	}
	if err := current.Validate(); err != nil {
		return User{}, err
	}
	tx.state.users[nric] = current
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// CreateProject stores a new project.
func (tx *transaction) CreateProject(p Project) (Project, error) {
	p = cloneProject(p)
	p.OfficerNRICs = dedupeStrings(p.OfficerNRICs)
	if err := p.Validate(); err != nil {
		return Project{}, err
	}
	if _, exists := tx.state.projects[p.Name]; exists {
		return Project{}, domain.Duplicate(domain.EntityProject, p.Name)
	}
	tx.state.projects[p.Name] = p
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionCreate, After: cloneProject(p)})
	return cloneProject(p), nil
}

// UpdateProject mutates a project, re-keying it and its dependents on rename.
func (tx *transaction) UpdateProject(name string, mutator func(*Project) error) (Project, error) {
	current, ok := tx.state.projects[name]
	if !ok {
		return Project{}, domain.NotFound(domain.EntityProject, name)
	}
	before := cloneProject(current)
	current = cloneProject(current)
	if err := mutator(&current); err != nil {
		return Project{}, err
	}
	current.OfficerNRICs = dedupeStrings(current.OfficerNRICs)
	if err := current.Validate(); err != nil {
		return Project{}, err
	}
	if current.Name != name {
		if _, taken := tx.state.projects[current.Name]; taken {
			return Project{}, domain.Duplicate(domain.EntityProject, current.Name)
		}
		delete(tx.state.projects, name)
		tx.renameDependents(name, current.Name)
	}
	tx.state.projects[current.Name] = current
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: before, After: cloneProject(current)})
	return cloneProject(current), nil
}

func (tx *transaction) renameDependents(from, to string) {
	for key, a := range tx.state.applications {
		if a.ProjectName != from {
			continue
		}
		delete(tx.state.applications, key)
		a.ProjectName = to
		tx.state.applications[a.Key()] = a
	}
	for key, r := range tx.state.registrations {
		if r.ProjectName != from {
			continue
		}
		delete(tx.state.registrations, key)
		r.ProjectName = to
		tx.state.registrations[r.Key()] = r
	}
	for id, e := range tx.state.enquiries {
		if e.ProjectName == from {
			e.ProjectName = to
			tx.state.enquiries[id] = e
		}
	}
}

// DeleteProject removes a project and cascades to its dependents.
func (tx *transaction) DeleteProject(name string) error {
	current, ok := tx.state.projects[name]
	if !ok {
		return domain.NotFound(domain.EntityProject, name)
	}
	for key, a := range tx.state.applications {
		if a.ProjectName == name {
			delete(tx.state.applications, key)
			tx.recordChange(Change{Entity: domain.EntityApplication, Action: domain.ActionDelete, Before: a})
		}
	}
	for key, r := range tx.state.registrations {
		if r.ProjectName == name {
			delete(tx.state.registrations, key)
			tx.recordChange(Change{Entity: domain.EntityRegistration, Action: domain.ActionDelete, Before: r})
		}
	}
	for id, e := range tx.state.enquiries {
		if e.ProjectName == name {
			delete(tx.state.enquiries, id)
			tx.recordChange(Change{Entity: domain.EntityEnquiry, Action: domain.ActionDelete, Before: cloneEnquiry(e)})
		}
	}
	delete(tx.state.projects, name)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionDelete, Before: cloneProject(current)})
	return nil
}

// CreateApplication stores a new application.
func (tx *transaction) CreateApplication(a Application) (Application, error) {
	if err := a.Validate(); err != nil {
		return Application{}, err
	}
	if _, ok := tx.state.projects[a.ProjectName]; !ok {
		return Application{}, domain.NotFound(domain.EntityProject, a.ProjectName)
	}
	if _, exists := tx.state.applications[a.Key()]; exists {
		return Application{}, domain.Duplicate(domain.EntityApplication, a.Key().String())
	}
	tx.state.applications[a.Key()] = a
	tx.recordChange(Change{Entity: domain.EntityApplication, Action: domain.ActionCreate, After: a})
	return a, nil
}

// UpdateApplication mutates an application. The key fields cannot change.
func (tx *transaction) UpdateApplication(key domain.ApplicationKey, mutator func(*Application) error) (Application, error) {
	current, ok := tx.state.applications[key]
	if !ok {
		return Application{}, domain.NotFound(domain.EntityApplication, key.String())
	}
	before := current
	if err := mutator(&current); err != nil {
		return Application{}, err
	}
	current.ApplicantNRIC, current.ProjectName = key.ApplicantNRIC, key.ProjectName
	if err := current.Validate(); err != nil {
		return Application{}, err
	}
	tx.state.applications[key] = current
	tx.recordChange(Change{Entity: domain.EntityApplication, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// CreateRegistration stores a new registration.
func (tx *transaction) CreateRegistration(r Registration) (Registration, error) {
	if err := r.Validate(); err != nil {
		return Registration{}, err
	}
	if _, ok := tx.state.projects[r.ProjectName]; !ok {
		return Registration{}, domain.NotFound(domain.EntityProject, r.ProjectName)
	}
	if _, exists := tx.state.registrations[r.Key()]; exists {
		return Registration{}, domain.Duplicate(domain.EntityRegistration, r.Key().String())
	}
	tx.state.registrations[r.Key()] = r
	tx.recordChange(Change{Entity: domain.EntityRegistration, Action: domain.ActionCreate, After: r})
	return r, nil
}

// UpdateRegistration mutates a registration. The key fields cannot change.
func (tx *transaction) UpdateRegistration(key domain.RegistrationKey, mutator func(*Registration) error) (Registration, error) {
	current, ok := tx.state.registrations[key]
	if !ok {
		return Registration{}, domain.NotFound(domain.EntityRegistration, key.String())
	}
	before := current
	if err := mutator(&current); err != nil {
		return Registration{}, err
	}
	current.OfficerNRIC, current.ProjectName = key.OfficerNRIC, key.ProjectName
	if err := current.Validate(); err != nil {
		return Registration{}, err
	}
	tx.state.registrations[key] = current
	tx.recordChange(Change{Entity: domain.EntityRegistration, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// CreateEnquiry assigns the next sequence id and stores the enquiry.
func (tx *transaction) CreateEnquiry(e Enquiry) (Enquiry, error) {
	if err := e.Validate(); err != nil {
		return Enquiry{}, err
	}
	if _, ok := tx.state.projects[e.ProjectName]; !ok {
		return Enquiry{}, domain.NotFound(domain.EntityProject, e.ProjectName)
	}
	e.ID = tx.state.nextEnquiryID
	if _, exists := tx.state.enquiries[e.ID]; exists {
		return Enquiry{}, domain.Duplicate(domain.EntityEnquiry, fmt.Sprint(e.ID))
	}
	tx.state.nextEnquiryID++
	tx.state.enquiries[e.ID] = cloneEnquiry(e)
	tx.recordChange(Change{Entity: domain.EntityEnquiry, Action: domain.ActionCreate, After: cloneEnquiry(e)})
	return cloneEnquiry(e), nil
}

// UpdateEnquiry mutates an enquiry. The id, author and project cannot change.
func (tx *transaction) UpdateEnquiry(id int, mutator func(*Enquiry) error) (Enquiry, error) {
	current, ok := tx.state.enquiries[id]
	if !ok {
		return Enquiry{}, domain.NotFound(domain.EntityEnquiry, fmt.Sprint(id))
	}
	before := cloneEnquiry(current)
	current = cloneEnquiry(current)
	if err := mutator(&current); err != nil {
		return Enquiry{}, err
	}
	current.ID, current.ApplicantNRIC, current.ProjectName = id, before.ApplicantNRIC, before.ProjectName
	if err := current.Validate(); err != nil {
		return Enquiry{}, err
	}
	tx.state.enquiries[id] = current
	tx.recordChange(Change{Entity: domain.EntityEnquiry, Action: domain.ActionUpdate, Before: before, After: cloneEnquiry(current)})
	return cloneEnquiry(current), nil
}

// DeleteEnquiry removes an enquiry. Its id is never reused.
func (tx *transaction) DeleteEnquiry(id int) error {
	current, ok := tx.state.enquiries[id]
	if !ok {
		return domain.NotFound(domain.EntityEnquiry, fmt.Sprint(id))
	}
	delete(tx.state.enquiries, id)
	tx.recordChange(Change{Entity: domain.EntityEnquiry, Action: domain.ActionDelete, Before: cloneEnquiry(current)})
	return nil
}

// --- Direct read accessors on the live state ---

// GetUser retrieves an account by NRIC.
func (s *Store) GetUser(nric string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.users[nric]
	return u, ok
}

// GetProject retrieves a project by name.
func (s *Store) GetProject(name string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.projects[name]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// ListProjects returns all projects ordered by name.
func (s *Store) ListProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListProjects()
}

// ListApplications returns all applications ordered by key.
func (s *Store) ListApplications() []Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListApplications()
}

// ListRegistrations returns all registrations ordered by key.
func (s *Store) ListRegistrations() []Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListRegistrations()
}
