package core

import (
	"context"
	"sort"

	"btocore/pkg/domain"
)

// officerOverlap returns a project other than exclude for which the officer
// holds an APPROVED registration and whose window overlaps w.
func officerOverlap(view domain.TransactionView, officer string, w domain.Window, exclude string) (domain.Project, bool) {
	for _, r := range view.ListRegistrations() {
		if r.OfficerNRIC != officer || r.Status != domain.RegistrationApproved || r.ProjectName == exclude {
			continue
		}
		p, ok := view.FindProject(r.ProjectName)
		if ok && p.Window().Overlaps(w) {
			return p, true
		}
	}
	return domain.Project{}, false
}

// RegisterOfficer files a PENDING registration for the officer to handle the
// project.
func (s *Service) RegisterOfficer(ctx context.Context, officer User, projectName string) (Registration, error) {
	key := domain.RegistrationKey{OfficerNRIC: officer.NRIC, ProjectName: projectName}
	var created Registration
	_, err := s.run(ctx, opRegisterOfficer, officer, key.String(), func(tx domain.Transaction) error {
		if !officer.Role.CanHandleProjects() {
			return domain.Rejected(opRegisterOfficer, domain.ErrNotAuthorized, "only officers may register to handle projects")
		}
		view := tx.Snapshot()
		project, err := findProject(view, projectName)
		if err != nil {
			return err
		}
		if existing, ok := view.FindRegistration(key); ok {
			return domain.Rejected(opRegisterOfficer, domain.ErrRegistrationExists,
				"officer %s already registered for %s (%s)", officer.NRIC, projectName, existing.Status)
		}
		if project.ManagerNRIC == officer.NRIC {
			return domain.Rejected(opRegisterOfficer, domain.ErrNotAuthorized, "the project's manager cannot register as its officer")
		}
		if app, ok := view.FindApplication(domain.ApplicationKey{ApplicantNRIC: officer.NRIC, ProjectName: projectName}); ok {
			return domain.Rejected(opRegisterOfficer, domain.ErrRegistrationConflict,
				"officer %s has applied for %s (%s)", officer.NRIC, projectName, app.Status)
		}
		if clash, ok := officerOverlap(view, officer.NRIC, project.Window(), projectName); ok {
			return domain.Rejected(opRegisterOfficer, domain.ErrWindowOverlap,
				"officer %s already handles %s (%s..%s) during this window", officer.NRIC, clash.Name, clash.OpenDate, clash.CloseDate)
		}
		created, err = tx.CreateRegistration(domain.Registration{
			OfficerNRIC: officer.NRIC,
			ProjectName: projectName,
			Status:      domain.RegistrationPending,
		})
		return err
	})
	return created, err
}

// ApproveRegistration adds the officer to the project roster and marks the
// registration APPROVED. If the status write fails after the roster write,
// the officer is removed from the roster again and a CompensationError is
// returned.
func (s *Service) ApproveRegistration(ctx context.Context, manager User, key RegistrationKey) (Registration, error) {
	var approved Registration
	_, err := s.run(ctx, opApproveRegistration, manager, key.String(), func(tx domain.Transaction) error {
		view := tx.Snapshot()
		reg, project, err := s.pendingRegistration(view, opApproveRegistration, manager, key)
		if err != nil {
			return err
		}
		alreadyOnRoster := project.HasOfficer(reg.OfficerNRIC)
		if !alreadyOnRoster && project.FreeOfficerSlots() == 0 {
			return domain.Rejected(opApproveRegistration, domain.ErrNoOfficerSlots,
				"no available officer slots on %s (%d/%d)", project.Name, len(project.OfficerNRICs), project.OfficerSlots)
		}
		if clash, ok := officerOverlap(view, reg.OfficerNRIC, project.Window(), project.Name); ok {
			return domain.Rejected(opApproveRegistration, domain.ErrWindowOverlap,
				"officer %s already handles %s (%s..%s) during this window", reg.OfficerNRIC, clash.Name, clash.OpenDate, clash.CloseDate)
		}

		if !alreadyOnRoster {
			if _, err := tx.UpdateProject(project.Name, func(p *domain.Project) error {
				return p.AddOfficer(reg.OfficerNRIC)
			}); err != nil {
				return err
			}
		}
		approved, err = tx.UpdateRegistration(key, func(r *domain.Registration) error {
			r.Status = domain.RegistrationApproved
			return nil
		})
		if err == nil || alreadyOnRoster {
			return err
		}
		_, undoErr := tx.UpdateProject(project.Name, func(p *domain.Project) error {
			return p.RemoveOfficer(reg.OfficerNRIC)
		})
		return &domain.CompensationError{
			Op:              opApproveRegistration,
			Compensation:    "remove officer " + reg.OfficerNRIC + " from the roster of " + project.Name,
			Cause:           err,
			CompensationErr: undoErr,
		}
	})
	return approved, err
}

// RejectRegistration marks a PENDING registration REJECTED. The roster is
// not touched.
func (s *Service) RejectRegistration(ctx context.Context, manager User, key RegistrationKey) (Registration, error) {
	var rejected Registration
	_, err := s.run(ctx, opRejectRegistration, manager, key.String(), func(tx domain.Transaction) error {
		if _, _, err := s.pendingRegistration(tx.Snapshot(), opRejectRegistration, manager, key); err != nil {
			return err
		}
		var err error
		rejected, err = tx.UpdateRegistration(key, func(r *domain.Registration) error {
			r.Status = domain.RegistrationRejected
			return nil
		})
		return err
	})
	return rejected, err
}

func (s *Service) pendingRegistration(view domain.TransactionView, op string, manager domain.User, key domain.RegistrationKey) (domain.Registration, domain.Project, error) {
	reg, ok := view.FindRegistration(key)
	if !ok {
		return domain.Registration{}, domain.Project{}, domain.NotFound(domain.EntityRegistration, key.String())
	}
	project, err := findProject(view, key.ProjectName)
	if err != nil {
		return domain.Registration{}, domain.Project{}, err
	}
	if err := requireOwner(op, manager, project); err != nil {
		return domain.Registration{}, domain.Project{}, err
	}
	if reg.Status != domain.RegistrationPending {
		return domain.Registration{}, domain.Project{}, domain.Rejected(op, domain.ErrInvalidTransition,
			"registration %s is %s, not %s", key, reg.Status, domain.RegistrationPending)
	}
	return reg, project, nil
}

// FindRegistration returns the officer's registration for the project.
func (s *Service) FindRegistration(ctx context.Context, officerNRIC, projectName string) (Registration, error) {
	key := domain.RegistrationKey{OfficerNRIC: officerNRIC, ProjectName: projectName}
	var out Registration
	err := s.view(ctx, func(view domain.TransactionView) error {
		r, ok := view.FindRegistration(key)
		if !ok {
			return domain.NotFound(domain.EntityRegistration, key.String())
		}
		out = r
		return nil
	})
	return out, err
}

// ListRegistrationsForProject returns the project's registrations, limited to
// the given statuses when any are passed.
func (s *Service) ListRegistrationsForProject(ctx context.Context, projectName string, statuses ...RegistrationStatus) ([]Registration, error) {
	var out []Registration
	err := s.view(ctx, func(view domain.TransactionView) error {
		if _, err := findProject(view, projectName); err != nil {
			return err
		}
		for _, r := range view.ListRegistrations() {
			if r.ProjectName == projectName && statusIn(r.Status, statuses) {
				out = append(out, r)
			}
		}
		return nil
	})
	return out, err
}

// ListRegistrationsForOfficer returns every registration the officer filed,
// ordered by project name.
func (s *Service) ListRegistrationsForOfficer(ctx context.Context, officerNRIC string) ([]Registration, error) {
	var out []Registration
	err := s.view(ctx, func(view domain.TransactionView) error {
		for _, r := range view.ListRegistrations() {
			if r.OfficerNRIC == officerNRIC {
				out = append(out, r)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectName < out[j].ProjectName })
	return out, err
}

func statusIn[S comparable](status S, filter []S) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == status {
			return true
		}
	}
	return false
}
