package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"btocore/pkg/domain"
)

// ProjectFilter narrows project listings. Zero fields match everything.
type ProjectFilter struct {
	Neighborhood string
	// FlatType keeps projects with at least one unit of this type left.
	FlatType domain.FlatType
}

func (f ProjectFilter) match(p domain.Project) bool {
	if f.Neighborhood != "" && !strings.EqualFold(strings.TrimSpace(f.Neighborhood), p.Neighborhood) {
		return false
	}
	if f.FlatType != 0 && p.Units(f.FlatType) <= 0 {
		return false
	}
	return true
}

// ProjectUpdate carries the fields an edit changes. Nil fields are kept.
type ProjectUpdate struct {
	Name           *string
	Neighborhood   *string
	TwoRoomUnits   *int
	TwoRoomPrice   *int
	ThreeRoomUnits *int
	ThreeRoomPrice *int
	OpenDate       *domain.Date
	CloseDate      *domain.Date
	OfficerSlots   *int
	Visible        *bool
}

func (u ProjectUpdate) apply(p domain.Project) domain.Project {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&p.Name, u.Name)
	setString(&p.Neighborhood, u.Neighborhood)
	setInt(&p.TwoRoom.Units, u.TwoRoomUnits)
	setInt(&p.TwoRoom.Price, u.TwoRoomPrice)
	setInt(&p.ThreeRoom.Units, u.ThreeRoomUnits)
	setInt(&p.ThreeRoom.Price, u.ThreeRoomPrice)
	setInt(&p.OfficerSlots, u.OfficerSlots)
	if u.OpenDate != nil {
		p.OpenDate = *u.OpenDate
	}
	if u.CloseDate != nil {
		p.CloseDate = *u.CloseDate
	}
	if u.Visible != nil {
		p.Visible = *u.Visible
	}
	return p
}

func findProject(view domain.TransactionView, name string) (domain.Project, error) {
	p, ok := view.FindProject(name)
	if !ok {
		return domain.Project{}, domain.NotFound(domain.EntityProject, name)
	}
	return p, nil
}

func requireManager(op string, u domain.User) error {
	if !u.Role.CanManageProjects() {
		return domain.Rejected(op, domain.ErrNotAuthorized, "only managers may %s", strings.ReplaceAll(op, "_", " "))
	}
	return nil
}

func requireOwner(op string, manager domain.User, p domain.Project) error {
	if err := requireManager(op, manager); err != nil {
		return err
	}
	if p.ManagerNRIC != manager.NRIC {
		return domain.Rejected(op, domain.ErrNotOwner, "manager %s does not own project %s", manager.NRIC, p.Name)
	}
	return nil
}

// managerOverlap returns a project owned by manager, other than exclude,
// whose window overlaps w.
func managerOverlap(view domain.TransactionView, manager string, w domain.Window, exclude string) (domain.Project, bool) {
	for _, p := range view.ListProjects() {
		if p.ManagerNRIC != manager || p.Name == exclude {
			continue
		}
		if p.Window().Overlaps(w) {
			return p, true
		}
	}
	return domain.Project{}, false
}

// handledProjects returns the names of projects the officer administers:
// the project rosters plus APPROVED registrations.
func handledProjects(view domain.TransactionView, officer string) map[string]bool {
	handled := make(map[string]bool)
	for _, p := range view.ListProjects() {
		if p.HasOfficer(officer) {
			handled[p.Name] = true
		}
	}
	for _, r := range view.ListRegistrations() {
		if r.OfficerNRIC == officer && r.Status == domain.RegistrationApproved {
			if _, ok := view.FindProject(r.ProjectName); ok {
				handled[r.ProjectName] = true
			}
		}
	}
	return handled
}

// activeApplication returns the applicant's non-terminal application.
func activeApplication(view domain.TransactionView, applicant string) (domain.Application, bool) {
	for _, a := range view.ListApplications() {
		if a.ApplicantNRIC == applicant && a.Status.IsActive() {
			return a, true
		}
	}
	return domain.Application{}, false
}

// FindProject returns the named project.
func (s *Service) FindProject(ctx context.Context, name string) (Project, error) {
	var out Project
	err := s.view(ctx, func(view domain.TransactionView) error {
		var err error
		out, err = findProject(view, name)
		return err
	})
	return out, err
}

// ListProjects returns every project matching filter in name order.
func (s *Service) ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error) {
	var out []Project
	err := s.view(ctx, func(view domain.TransactionView) error {
		for _, p := range view.ListProjects() {
			if filter.match(p) {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

// ListProjectsByManager returns the projects owned by the manager.
func (s *Service) ListProjectsByManager(ctx context.Context, managerNRIC string) ([]Project, error) {
	var out []Project
	err := s.view(ctx, func(view domain.TransactionView) error {
		for _, p := range view.ListProjects() {
			if p.ManagerNRIC == managerNRIC {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

// ListHandledProjectNames returns, sorted, the projects the officer handles
// through the roster or an APPROVED registration.
func (s *Service) ListHandledProjectNames(ctx context.Context, officerNRIC string) ([]string, error) {
	var out []string
	err := s.view(ctx, func(view domain.TransactionView) error {
		for name := range handledProjects(view, officerNRIC) {
			out = append(out, name)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// ListViewableProjects returns the projects the applicant may see.
//
// A project holding the applicant's active application is always viewable.
// Any other project must be visible, open today, and carry at least one unit
// of a flat type the applicant's marital status allows.
func (s *Service) ListViewableProjects(ctx context.Context, applicant User, filter ProjectFilter) ([]Project, error) {
	today := s.Today()
	var out []Project
	err := s.view(ctx, func(view domain.TransactionView) error {
		for _, p := range view.ListProjects() {
			if s.viewable(view, applicant, p, today) && filter.match(p) {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func (s *Service) viewable(view domain.TransactionView, applicant domain.User, p domain.Project, today domain.Date) bool {
	if active, ok := activeApplication(view, applicant.NRIC); ok && active.ProjectName == p.Name {
		return true
	}
	return p.OpenOn(today) && s.policy.hasEligibleUnits(applicant, p)
}

// CreateProject stores a new project owned by manager. The roster starts empty.
func (s *Service) CreateProject(ctx context.Context, manager User, project Project) (Project, error) {
	project.Name = strings.TrimSpace(project.Name)
	project.Neighborhood = strings.TrimSpace(project.Neighborhood)
	project.ManagerNRIC = manager.NRIC
	project.OfficerNRICs = nil
	var created Project
	_, err := s.run(ctx, opCreateProject, manager, project.Name, func(tx domain.Transaction) error {
		if err := requireManager(opCreateProject, manager); err != nil {
			return err
		}
		if err := s.validateProject(project); err != nil {
			return err
		}
		view := tx.Snapshot()
		if _, exists := view.FindProject(project.Name); exists {
			return domain.Duplicate(domain.EntityProject, project.Name)
		}
		if clash, ok := managerOverlap(view, manager.NRIC, project.Window(), ""); ok {
			return domain.Rejected(opCreateProject, domain.ErrWindowOverlap,
				"project window %s..%s overlaps managed project %s (%s..%s)", project.OpenDate, project.CloseDate, clash.Name, clash.OpenDate, clash.CloseDate)
		}
		var err error
		created, err = tx.CreateProject(project)
		return err
	})
	return created, err
}

func (s *Service) validateProject(p domain.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.OfficerSlots > s.policy.MaxOfficerSlots {
		return domain.ValidationError{Field: "officer_slots", Reason: fmt.Sprintf("officer slots must be within [0,%d]", s.policy.MaxOfficerSlots)}
	}
	return nil
}

// EditProject applies upd to the manager's project. Renames carry over to
// the project's applications, registrations and enquiries.
func (s *Service) EditProject(ctx context.Context, manager User, name string, upd ProjectUpdate) (Project, error) {
	var updated Project
	_, err := s.run(ctx, opEditProject, manager, name, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		current, err := findProject(view, name)
		if err != nil {
			return err
		}
		if err := requireOwner(opEditProject, manager, current); err != nil {
			return err
		}
		next := upd.apply(current)
		if next.OfficerSlots < len(current.OfficerNRICs) {
			return domain.Rejected(opEditProject, domain.ErrNoOfficerSlots,
				"officer slots cannot drop below the %d assigned officers", len(current.OfficerNRICs))
		}
		if err := s.validateProject(next); err != nil {
			return err
		}
		if next.Name != name {
			if _, taken := view.FindProject(next.Name); taken {
				return domain.Rejected(opEditProject, domain.ErrDuplicateKey, "project name %q is already in use", next.Name)
			}
		}
		if clash, ok := managerOverlap(view, manager.NRIC, next.Window(), name); ok {
			return domain.Rejected(opEditProject, domain.ErrWindowOverlap,
				"project window %s..%s overlaps managed project %s (%s..%s)", next.OpenDate, next.CloseDate, clash.Name, clash.OpenDate, clash.CloseDate)
		}
		updated, err = tx.UpdateProject(name, func(p *domain.Project) error {
			*p = next
			return nil
		})
		return err
	})
	return updated, err
}

// DeleteProject removes the manager's project with its registrations,
// enquiries and terminal applications. Projects with active applications
// are refused.
func (s *Service) DeleteProject(ctx context.Context, manager User, name string) error {
	_, err := s.run(ctx, opDeleteProject, manager, name, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		current, err := findProject(view, name)
		if err != nil {
			return err
		}
		if err := requireOwner(opDeleteProject, manager, current); err != nil {
			return err
		}
		for _, a := range view.ListApplications() {
			if a.ProjectName == name && a.Status.IsActive() {
				return domain.Rejected(opDeleteProject, domain.ErrProjectInUse,
					"project %s still has active applications (%s is %s)", name, a.ApplicantNRIC, a.Status)
			}
		}
		return tx.DeleteProject(name)
	})
	return err
}

// ToggleVisibility flips the project's visibility flag.
func (s *Service) ToggleVisibility(ctx context.Context, manager User, name string) (Project, error) {
	var updated Project
	_, err := s.run(ctx, opToggleVisibility, manager, name, func(tx domain.Transaction) error {
		current, err := findProject(tx.Snapshot(), name)
		if err != nil {
			return err
		}
		if err := requireOwner(opToggleVisibility, manager, current); err != nil {
			return err
		}
		updated, err = tx.UpdateProject(name, func(p *domain.Project) error {
			p.Visible = !p.Visible
			return nil
		})
		return err
	})
	return updated, err
}
