// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by btocore.
package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityUser identifies an applicant, officer or manager account.
	EntityUser EntityType = "user"
	// EntityProject identifies a housing project.
	EntityProject EntityType = "project"
	// EntityApplication identifies an applicant's flat application.
	EntityApplication EntityType = "application"
	// EntityRegistration identifies an officer's project registration.
	EntityRegistration EntityType = "registration"
	// EntityEnquiry identifies an applicant enquiry.
	EntityEnquiry EntityType = "enquiry"
)

// MaxOfficerSlots bounds Project.OfficerSlots.
const MaxOfficerSlots = 10

// Role is the tagged variant that decides what a user may do. It is fixed at
// creation.
type Role string

// Supported roles.
const (
	RoleApplicant Role = "applicant"
	RoleOfficer   Role = "officer"
	RoleManager   Role = "manager"
)

// IsValid reports whether the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleApplicant, RoleOfficer, RoleManager:
		return true
	default:
		return false
	}
}

// CanApply reports whether the role carries applicant capabilities. Officers
// are a superset of applicants.
func (r Role) CanApply() bool { return r == RoleApplicant || r == RoleOfficer }

// CanHandleProjects reports whether the role may register for and book units of a project.
func (r Role) CanHandleProjects() bool { return r == RoleOfficer }

// CanManageProjects reports whether the role may own projects.
func (r Role) CanManageProjects() bool { return r == RoleManager }

// ParseRole accepts the canonical lower-case names case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", s)}
	}
	return r, nil
}

// MaritalStatus determines an applicant's eligibility class.
type MaritalStatus string

// Supported marital statuses.
const (
	MaritalSingle  MaritalStatus = "single"
	MaritalMarried MaritalStatus = "married"
)

// IsValid reports whether the marital status is known.
func (m MaritalStatus) IsValid() bool {
	return m == MaritalSingle || m == MaritalMarried
}

// ParseMaritalStatus accepts "single" or "married" case-insensitively.
func ParseMaritalStatus(s string) (MaritalStatus, error) {
	m := MaritalStatus(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", ValidationError{Field: "marital_status", Reason: fmt.Sprintf("unknown marital status %q", s)}
	}
	return m, nil
}

var nricPattern = regexp.MustCompile(`^[ST]\d{7}[A-Z]$`)

// ValidNRIC reports whether s has the fixed NRIC shape (S/T, seven digits, check letter).
func ValidNRIC(s string) bool { return nricPattern.MatchString(s) }

// User is an account holder. NRIC is the primary key.
type User struct {
	NRIC          string        `json:"nric"`
	Name          string        `json:"name"`
	Age           int           `json:"age"`
	MaritalStatus MaritalStatus `json:"marital_status"`
	PasswordHash  string        `json:"password_hash"`
	Role          Role          `json:"role"`
}

// Validate checks constructor invariants.
func (u User) Validate() error {
	if !ValidNRIC(u.NRIC) {
		return ValidationError{Field: "nric", Reason: fmt.Sprintf("%q does not match the NRIC format", u.NRIC)}
	}
	if strings.TrimSpace(u.Name) == "" {
		return ValidationError{Field: "name", Reason: "name is required"}
	}
	if u.Age < 0 {
		return ValidationError{Field: "age", Reason: "age must not be negative"}
	}
	if !u.MaritalStatus.IsValid() {
		return ValidationError{Field: "marital_status", Reason: fmt.Sprintf("unknown marital status %q", u.MaritalStatus)}
	}
	if !u.Role.IsValid() {
		return ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", u.Role)}
	}
	return nil
}

// FlatType is a unit category. Only 2-room and 3-room units exist.
type FlatType int

// Supported flat types.
const (
	FlatTwoRoom   FlatType = 2
	FlatThreeRoom FlatType = 3
)

// IsValid reports whether the flat type is 2-room or 3-room.
func (f FlatType) IsValid() bool { return f == FlatTwoRoom || f == FlatThreeRoom }

func (f FlatType) String() string {
	switch f {
	case FlatTwoRoom:
		return "2-Room"
	case FlatThreeRoom:
		return "3-Room"
	default:
		return fmt.Sprintf("FlatType(%d)", int(f))
	}
}

// ParseFlatType accepts "2-Room", "3-Room", "2" or "3".
func ParseFlatType(s string) (FlatType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "2-room", "2":
		return FlatTwoRoom, nil
	case "3-room", "3":
		return FlatThreeRoom, nil
	default:
		return 0, ValidationError{Field: "flat_type", Reason: fmt.Sprintf("unknown flat type %q", s)}
	}
}

// FlatSupply holds the remaining unit count and the selling price of one flat type.
type FlatSupply struct {
	Units int `json:"units"`
	Price int `json:"price"`
}

// Project is a housing project. Name is the primary key.
type Project struct {
	Name         string     `json:"name"`
	Neighborhood string     `json:"neighborhood"`
	TwoRoom      FlatSupply `json:"two_room"`
	ThreeRoom    FlatSupply `json:"three_room"`
	OpenDate     Date       `json:"open_date"`
	CloseDate    Date       `json:"close_date"`
	ManagerNRIC  string     `json:"manager_nric"`
	OfficerSlots int        `json:"officer_slots"`
	OfficerNRICs []string   `json:"officer_nrics"`
	Visible      bool       `json:"visible"`
}

// Validate checks constructor invariants.
func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ValidationError{Field: "name", Reason: "project name is required"}
	}
	if strings.TrimSpace(p.Neighborhood) == "" {
		return ValidationError{Field: "neighborhood", Reason: "neighborhood is required"}
	}
	if p.TwoRoom.Units < 0 || p.ThreeRoom.Units < 0 {
		return ValidationError{Field: "units", Reason: "unit counts must not be negative"}
	}
	if p.TwoRoom.Price < 0 || p.ThreeRoom.Price < 0 {
		return ValidationError{Field: "price", Reason: "prices must not be negative"}
	}
	if p.OpenDate.IsZero() || p.CloseDate.IsZero() {
		return ValidationError{Field: "dates", Reason: "open and close dates are required"}
	}
	if p.CloseDate.Before(p.OpenDate) {
		return ValidationError{Field: "close_date", Reason: fmt.Sprintf("close date %s is before open date %s", p.CloseDate, p.OpenDate)}
	}
	if !ValidNRIC(p.ManagerNRIC) {
		return ValidationError{Field: "manager_nric", Reason: fmt.Sprintf("%q does not match the NRIC format", p.ManagerNRIC)}
	}
	if p.OfficerSlots < 0 || p.OfficerSlots > MaxOfficerSlots {
		return ValidationError{Field: "officer_slots", Reason: fmt.Sprintf("officer slots must be within [0,%d]", MaxOfficerSlots)}
	}
	if len(p.OfficerNRICs) > p.OfficerSlots {
		return ValidationError{Field: "officer_nrics", Reason: fmt.Sprintf("%d officers assigned but only %d slots", len(p.OfficerNRICs), p.OfficerSlots)}
	}
	return nil
}

// Window returns the project's application window.
func (p Project) Window() Window { return Window{Start: p.OpenDate, End: p.CloseDate} }

// Supply returns the supply record for the flat type.
func (p Project) Supply(ft FlatType) FlatSupply {
	switch ft {
	case FlatTwoRoom:
		return p.TwoRoom
	case FlatThreeRoom:
		return p.ThreeRoom
	default:
		return FlatSupply{}
	}
}

// Units returns the remaining unit count for the flat type.
func (p Project) Units(ft FlatType) int { return p.Supply(ft).Units }

// OpenOn reports whether the project is visible and day falls inside its window.
func (p Project) OpenOn(day Date) bool {
	return p.Visible && p.Window().Contains(day)
}

// HasOfficer reports whether nric is on the officer roster.
func (p Project) HasOfficer(nric string) bool {
	for _, existing := range p.OfficerNRICs {
		if existing == nric {
			return true
		}
	}
	return false
}

// FreeOfficerSlots returns the number of unassigned officer slots.
func (p Project) FreeOfficerSlots() int {
	free := p.OfficerSlots - len(p.OfficerNRICs)
	if free < 0 {
		return 0
	}
	return free
}

// ReserveUnit decrements the unit count for the flat type.
func (p *Project) ReserveUnit(ft FlatType) error {
	supply, err := p.supplyRef(ft)
	if err != nil {
		return err
	}
	if supply.Units <= 0 {
		return fmt.Errorf("project %s has no %s units left: %w", p.Name, ft, ErrUnitsExhausted)
	}
	supply.Units--
	return nil
}

// ReleaseUnit increments the unit count for the flat type.
func (p *Project) ReleaseUnit(ft FlatType) error {
	supply, err := p.supplyRef(ft)
	if err != nil {
		return err
	}
	supply.Units++
	return nil
}

func (p *Project) supplyRef(ft FlatType) (*FlatSupply, error) {
	switch ft {
	case FlatTwoRoom:
		return &p.TwoRoom, nil
	case FlatThreeRoom:
		return &p.ThreeRoom, nil
	default:
		return nil, ValidationError{Field: "flat_type", Reason: fmt.Sprintf("unknown flat type %d", int(ft))}
	}
}

// AddOfficer appends nric to the roster when a slot is free.
func (p *Project) AddOfficer(nric string) error {
	if p.HasOfficer(nric) {
		return fmt.Errorf("officer %s already assigned to %s", nric, p.Name)
	}
	if p.FreeOfficerSlots() == 0 {
		return fmt.Errorf("project %s: %w", p.Name, ErrNoOfficerSlots)
	}
	p.OfficerNRICs = append(p.OfficerNRICs, nric)
	return nil
}

// RemoveOfficer drops nric from the roster.
func (p *Project) RemoveOfficer(nric string) error {
	for i, existing := range p.OfficerNRICs {
		if existing == nric {
			p.OfficerNRICs = append(p.OfficerNRICs[:i:i], p.OfficerNRICs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("officer %s not assigned to %s", nric, p.Name)
}

// ApplicationStatus is the application state machine's state.
type ApplicationStatus string

// Application statuses.
const (
	ApplicationPending      ApplicationStatus = "PENDING"
	ApplicationSuccessful   ApplicationStatus = "SUCCESSFUL"
	ApplicationUnsuccessful ApplicationStatus = "UNSUCCESSFUL"
	ApplicationBooked       ApplicationStatus = "BOOKED"
)

// IsValid returns true if the status is a known application status.
func (s ApplicationStatus) IsValid() bool {
	switch s {
	case ApplicationPending, ApplicationSuccessful, ApplicationUnsuccessful, ApplicationBooked:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s ApplicationStatus) IsTerminal() bool { return s == ApplicationUnsuccessful }

// IsActive reports whether the application still counts towards the
// one-active-application limit.
func (s ApplicationStatus) IsActive() bool { return s.IsValid() && !s.IsTerminal() }

// CanTransitionTo returns true if the status can transition to the target status.
func (s ApplicationStatus) CanTransitionTo(target ApplicationStatus) bool {
	switch s {
	case ApplicationPending:
		return target == ApplicationSuccessful || target == ApplicationUnsuccessful
	case ApplicationSuccessful:
		return target == ApplicationBooked || target == ApplicationUnsuccessful
	case ApplicationBooked:
		// withdrawal only
		return target == ApplicationUnsuccessful
	default:
		return false
	}
}

// ApplicationKey is the composite key of an Application.
type ApplicationKey struct {
	ApplicantNRIC string `json:"applicant_nric"`
	ProjectName   string `json:"project_name"`
}

func (k ApplicationKey) String() string { return k.ApplicantNRIC + "|" + k.ProjectName }

// Application is an applicant's request for a unit in a project.
type Application struct {
	ApplicantNRIC       string            `json:"applicant_nric"`
	ProjectName         string            `json:"project_name"`
	FlatType            FlatType          `json:"flat_type"`
	Status              ApplicationStatus `json:"status"`
	WithdrawalRequested bool              `json:"withdrawal_requested"`
}

// Key returns the composite key.
func (a Application) Key() ApplicationKey {
	return ApplicationKey{ApplicantNRIC: a.ApplicantNRIC, ProjectName: a.ProjectName}
}

// Validate checks constructor invariants.
func (a Application) Validate() error {
	if !ValidNRIC(a.ApplicantNRIC) {
		return ValidationError{Field: "applicant_nric", Reason: fmt.Sprintf("%q does not match the NRIC format", a.ApplicantNRIC)}
	}
	if strings.TrimSpace(a.ProjectName) == "" {
		return ValidationError{Field: "project_name", Reason: "project name is required"}
	}
	if !a.FlatType.IsValid() {
		return ValidationError{Field: "flat_type", Reason: fmt.Sprintf("flat type must be 2 or 3, got %d", int(a.FlatType))}
	}
	if !a.Status.IsValid() {
		return ValidationError{Field: "status", Reason: fmt.Sprintf("unknown application status %q", a.Status)}
	}
	return nil
}

// RegistrationStatus is the registration state machine's state.
type RegistrationStatus string

// Registration statuses.
const (
	RegistrationPending  RegistrationStatus = "PENDING"
	RegistrationApproved RegistrationStatus = "APPROVED"
	RegistrationRejected RegistrationStatus = "REJECTED"
)

// IsValid returns true if the status is a known registration status.
func (s RegistrationStatus) IsValid() bool {
	switch s {
	case RegistrationPending, RegistrationApproved, RegistrationRejected:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if the status can transition to the target status.
func (s RegistrationStatus) CanTransitionTo(target RegistrationStatus) bool {
	if s != RegistrationPending {
		return false
	}
	return target == RegistrationApproved || target == RegistrationRejected
}

// RegistrationKey is the composite key of a Registration.
type RegistrationKey struct {
	OfficerNRIC string `json:"officer_nric"`
	ProjectName string `json:"project_name"`
}

func (k RegistrationKey) String() string { return k.OfficerNRIC + "|" + k.ProjectName }

// Registration is an officer's request to administer a project.
type Registration struct {
	OfficerNRIC string             `json:"officer_nric"`
	ProjectName string             `json:"project_name"`
	Status      RegistrationStatus `json:"status"`
}

// Key returns the composite key.
func (r Registration) Key() RegistrationKey {
	return RegistrationKey{OfficerNRIC: r.OfficerNRIC, ProjectName: r.ProjectName}
}

// Validate checks constructor invariants.
func (r Registration) Validate() error {
	if !ValidNRIC(r.OfficerNRIC) {
		return ValidationError{Field: "officer_nric", Reason: fmt.Sprintf("%q does not match the NRIC format", r.OfficerNRIC)}
	}
	if strings.TrimSpace(r.ProjectName) == "" {
		return ValidationError{Field: "project_name", Reason: "project name is required"}
	}
	if !r.Status.IsValid() {
		return ValidationError{Field: "status", Reason: fmt.Sprintf("unknown registration status %q", r.Status)}
	}
	return nil
}

// Enquiry is a free-text question about a project. Reply is nil until answered.
type Enquiry struct {
	ID            int     `json:"id"`
	ApplicantNRIC string  `json:"applicant_nric"`
	ProjectName   string  `json:"project_name"`
	Text          string  `json:"text"`
	Reply         *string `json:"reply"`
}

// Replied reports whether the enquiry has been answered.
func (e Enquiry) Replied() bool { return e.Reply != nil }

// Validate checks constructor invariants.
func (e Enquiry) Validate() error {
	if !ValidNRIC(e.ApplicantNRIC) {
		return ValidationError{Field: "applicant_nric", Reason: fmt.Sprintf("%q does not match the NRIC format", e.ApplicantNRIC)}
	}
	if strings.TrimSpace(e.ProjectName) == "" {
		return ValidationError{Field: "project_name", Reason: "project name is required"}
	}
	if strings.TrimSpace(e.Text) == "" {
		return ValidationError{Field: "text", Reason: "enquiry text is required"}
	}
	return nil
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)
