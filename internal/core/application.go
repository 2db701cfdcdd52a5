package core

import (
	"context"
	"errors"

	"btocore/pkg/domain"
)

// Apply files a PENDING application by applicant for a unit of flatType.
//
// The project must be open today, the applicant must hold no active
// application, meet the eligibility rules for flatType, and an officer may
// not apply for a project they have registered for or handle.
func (s *Service) Apply(ctx context.Context, applicant User, projectName string, flatType FlatType) (Application, error) {
	key := domain.ApplicationKey{ApplicantNRIC: applicant.NRIC, ProjectName: projectName}
	today := s.Today()
	var created Application
	_, err := s.run(ctx, opApply, applicant, key.String(), func(tx domain.Transaction) error {
		if applicant.Role.CanManageProjects() {
			return domain.Rejected(opApply, domain.ErrNotAuthorized, "managers cannot apply for flats")
		}
		view := tx.Snapshot()
		project, err := findProject(view, projectName)
		if err != nil {
			return err
		}
		if !project.OpenOn(today) {
			return domain.Rejected(opApply, domain.ErrProjectClosed,
				"project %s is not open for application on %s", projectName, today)
		}
		if active, ok := activeApplication(view, applicant.NRIC); ok {
			return domain.Rejected(opApply, domain.ErrActiveApplication,
				"applicant %s already has a %s application for %s", applicant.NRIC, active.Status, active.ProjectName)
		}
		if applicant.Role.CanHandleProjects() {
			if reg, ok := view.FindRegistration(domain.RegistrationKey{OfficerNRIC: applicant.NRIC, ProjectName: projectName}); ok {
				return domain.Rejected(opApply, domain.ErrRegistrationConflict,
					"officer %s has a %s registration for %s", applicant.NRIC, reg.Status, projectName)
			}
			if project.HasOfficer(applicant.NRIC) {
				return domain.Rejected(opApply, domain.ErrRegistrationConflict,
					"officer %s handles %s", applicant.NRIC, projectName)
			}
		}
		if err := s.policy.CheckEligibility(opApply, applicant, flatType); err != nil {
			return err
		}
		if project.Units(flatType) <= 0 {
			return domain.Rejected(opApply, domain.ErrUnitsExhausted, "project %s has no %s units left", projectName, flatType)
		}
		if prior, ok := view.FindApplication(key); ok {
			return domain.Rejected(opApply, domain.ErrNotEligible,
				"applicant %s already applied for %s; the %s application is kept", applicant.NRIC, projectName, prior.Status)
		}
		created, err = tx.CreateApplication(domain.Application{
			ApplicantNRIC: applicant.NRIC,
			ProjectName:   projectName,
			FlatType:      flatType,
			Status:        domain.ApplicationPending,
		})
		return err
	})
	return created, err
}

// RequestWithdrawal flags the applicant's application for withdrawal. A
// second request is rejected with ErrWithdrawalAlreadyRequested.
func (s *Service) RequestWithdrawal(ctx context.Context, applicant User, projectName string) (Application, error) {
	key := domain.ApplicationKey{ApplicantNRIC: applicant.NRIC, ProjectName: projectName}
	var updated Application
	_, err := s.run(ctx, opRequestWithdrawal, applicant, key.String(), func(tx domain.Transaction) error {
		app, ok := tx.Snapshot().FindApplication(key)
		if !ok {
			return domain.NotFound(domain.EntityApplication, key.String())
		}
		if !app.Status.IsActive() {
			return domain.Rejected(opRequestWithdrawal, domain.ErrInvalidTransition,
				"application %s is %s and cannot be withdrawn", key, app.Status)
		}
		if app.WithdrawalRequested {
			return domain.Rejected(opRequestWithdrawal, domain.ErrWithdrawalAlreadyRequested,
				"withdrawal already requested for application %s", key)
		}
		var err error
		updated, err = tx.UpdateApplication(key, func(a *domain.Application) error {
			a.WithdrawalRequested = true
			return nil
		})
		return err
	})
	return updated, err
}

// ApproveApplication moves a PENDING application to SUCCESSFUL. When the
// requested flat type has no units left the application is moved to
// UNSUCCESSFUL instead; that change is committed and an OperationError
// wrapping ErrUnitsExhausted is returned with the updated application.
func (s *Service) ApproveApplication(ctx context.Context, manager User, key ApplicationKey) (Application, error) {
	var updated Application
	_, err := s.run(ctx, opApproveApplication, manager, key.String(), func(tx domain.Transaction) error {
		app, project, err := s.ownedApplication(tx.Snapshot(), opApproveApplication, manager, key)
		if err != nil {
			return err
		}
		if app.Status != domain.ApplicationPending {
			return domain.Rejected(opApproveApplication, domain.ErrInvalidTransition,
				"application %s is %s, not %s", key, app.Status, domain.ApplicationPending)
		}
		if app.WithdrawalRequested {
			return domain.Rejected(opApproveApplication, domain.ErrWithdrawalPending,
				"application %s has a pending withdrawal request", key)
		}
		if project.Units(app.FlatType) <= 0 {
			updated, err = setApplicationStatus(tx, key, domain.ApplicationUnsuccessful)
			if err != nil {
				return err
			}
			return commitAnyway{domain.Rejected(opApproveApplication, domain.ErrUnitsExhausted,
				"no %s units left on %s; application %s marked %s", app.FlatType, project.Name, key, domain.ApplicationUnsuccessful)}
		}
		updated, err = setApplicationStatus(tx, key, domain.ApplicationSuccessful)
		return err
	})
	return updated, err
}

// RejectApplication moves a PENDING application to UNSUCCESSFUL. A pending
// withdrawal request is dropped with it.
func (s *Service) RejectApplication(ctx context.Context, manager User, key ApplicationKey) (Application, error) {
	var updated Application
	_, err := s.run(ctx, opRejectApplication, manager, key.String(), func(tx domain.Transaction) error {
		app, _, err := s.ownedApplication(tx.Snapshot(), opRejectApplication, manager, key)
		if err != nil {
			return err
		}
		if app.Status != domain.ApplicationPending {
			return domain.Rejected(opRejectApplication, domain.ErrInvalidTransition,
				"application %s is %s, not %s", key, app.Status, domain.ApplicationPending)
		}
		updated, err = tx.UpdateApplication(key, func(a *domain.Application) error {
			a.Status = domain.ApplicationUnsuccessful
			a.WithdrawalRequested = false
			return nil
		})
		return err
	})
	return updated, err
}

// ApproveWithdrawal moves a withdrawal-flagged application to UNSUCCESSFUL
// and clears the flag. A BOOKED application also returns its unit to the
// project; if that write fails the application is restored and a
// CompensationError is returned.
func (s *Service) ApproveWithdrawal(ctx context.Context, manager User, key ApplicationKey) (Application, error) {
	var updated Application
	_, err := s.run(ctx, opApproveWithdrawal, manager, key.String(), func(tx domain.Transaction) error {
		app, project, err := s.ownedApplication(tx.Snapshot(), opApproveWithdrawal, manager, key)
		if err != nil {
			return err
		}
		if !app.WithdrawalRequested {
			return domain.Rejected(opApproveWithdrawal, domain.ErrWithdrawalNotRequested,
				"application %s has no pending withdrawal request", key)
		}
		if !app.Status.CanTransitionTo(domain.ApplicationUnsuccessful) {
			return domain.Rejected(opApproveWithdrawal, domain.ErrInvalidTransition,
				"application %s is %s and cannot be withdrawn", key, app.Status)
		}
		updated, err = tx.UpdateApplication(key, func(a *domain.Application) error {
			a.Status = domain.ApplicationUnsuccessful
			a.WithdrawalRequested = false
			return nil
		})
		if err != nil || app.Status != domain.ApplicationBooked {
			return err
		}
		if _, err := tx.UpdateProject(project.Name, func(p *domain.Project) error {
			return p.ReleaseUnit(app.FlatType)
		}); err != nil {
			_, undoErr := tx.UpdateApplication(key, func(a *domain.Application) error {
				*a = app
				return nil
			})
			return &domain.CompensationError{
				Op:              opApproveWithdrawal,
				Compensation:    "restore application " + key.String() + " to " + string(app.Status),
				Cause:           err,
				CompensationErr: undoErr,
			}
		}
		return nil
	})
	return updated, err
}

// RejectWithdrawal clears the withdrawal flag and leaves the status unchanged.
func (s *Service) RejectWithdrawal(ctx context.Context, manager User, key ApplicationKey) (Application, error) {
	var updated Application
	_, err := s.run(ctx, opRejectWithdrawal, manager, key.String(), func(tx domain.Transaction) error {
		app, _, err := s.ownedApplication(tx.Snapshot(), opRejectWithdrawal, manager, key)
		if err != nil {
			return err
		}
		if !app.WithdrawalRequested {
			return domain.Rejected(opRejectWithdrawal, domain.ErrWithdrawalNotRequested,
				"application %s has no pending withdrawal request", key)
		}
		updated, err = tx.UpdateApplication(key, func(a *domain.Application) error {
			a.WithdrawalRequested = false
			return nil
		})
		return err
	})
	return updated, err
}

// BookFlat reserves a unit for a SUCCESSFUL application handled by officer.
//
// The unit count is decremented first and the application then set to
// BOOKED. When no unit is left the application is committed as UNSUCCESSFUL
// and an OperationError wrapping ErrUnitsExhausted is returned. When the
// status write fails after the decrement, the unit is released again and a
// CompensationError is returned.
func (s *Service) BookFlat(ctx context.Context, officer User, key ApplicationKey) (Application, error) {
	var booked Application
	_, err := s.run(ctx, opBookFlat, officer, key.String(), func(tx domain.Transaction) error {
		view := tx.Snapshot()
		if !officer.Role.CanHandleProjects() {
			return domain.Rejected(opBookFlat, domain.ErrNotAuthorized, "only officers may book flats")
		}
		app, ok := view.FindApplication(key)
		if !ok {
			return domain.NotFound(domain.EntityApplication, key.String())
		}
		if !handledProjects(view, officer.NRIC)[key.ProjectName] {
			return domain.Rejected(opBookFlat, domain.ErrNotAuthorized,
				"officer %s does not handle project %s", officer.NRIC, key.ProjectName)
		}
		if app.Status != domain.ApplicationSuccessful {
			return domain.Rejected(opBookFlat, domain.ErrInvalidTransition,
				"application %s is %s, not %s", key, app.Status, domain.ApplicationSuccessful)
		}

		_, err := tx.UpdateProject(key.ProjectName, func(p *domain.Project) error {
			return p.ReserveUnit(app.FlatType)
		})
		if errors.Is(err, domain.ErrUnitsExhausted) {
			booked, err = setApplicationStatus(tx, key, domain.ApplicationUnsuccessful)
			if err != nil {
				return err
			}
			return commitAnyway{domain.Rejected(opBookFlat, domain.ErrUnitsExhausted,
				"no %s units left on %s; application %s marked %s", app.FlatType, key.ProjectName, key, domain.ApplicationUnsuccessful)}
		}
		if err != nil {
			return err
		}

		booked, err = setApplicationStatus(tx, key, domain.ApplicationBooked)
		if err == nil {
			return nil
		}
		_, undoErr := tx.UpdateProject(key.ProjectName, func(p *domain.Project) error {
			return p.ReleaseUnit(app.FlatType)
		})
		return &domain.CompensationError{
			Op:              opBookFlat,
			Compensation:    "release the reserved " + app.FlatType.String() + " unit of " + key.ProjectName,
			Cause:           err,
			CompensationErr: undoErr,
		}
	})
	return booked, err
}

func setApplicationStatus(tx domain.Transaction, key domain.ApplicationKey, status domain.ApplicationStatus) (domain.Application, error) {
	return tx.UpdateApplication(key, func(a *domain.Application) error {
		a.Status = status
		return nil
	})
}

func (s *Service) ownedApplication(view domain.TransactionView, op string, manager domain.User, key domain.ApplicationKey) (domain.Application, domain.Project, error) {
	app, ok := view.FindApplication(key)
	if !ok {
		return domain.Application{}, domain.Project{}, domain.NotFound(domain.EntityApplication, key.String())
	}
	project, err := findProject(view, key.ProjectName)
	if err != nil {
		return domain.Application{}, domain.Project{}, err
	}
	if err := requireOwner(op, manager, project); err != nil {
		return domain.Application{}, domain.Project{}, err
	}
	return app, project, nil
}

// FindApplicationByApplicant returns the applicant's active application or,
// when none is active, the historical one whose project name sorts last.
func (s *Service) FindApplicationByApplicant(ctx context.Context, applicantNRIC string) (Application, error) {
	var out Application
	err := s.view(ctx, func(view domain.TransactionView) error {
		if active, ok := activeApplication(view, applicantNRIC); ok {
			out = active
			return nil
		}
		found := false
		for _, a := range view.ListApplications() {
			if a.ApplicantNRIC == applicantNRIC {
				out, found = a, true
			}
		}
		if !found {
			return domain.NotFound(domain.EntityApplication, applicantNRIC)
		}
		return nil
	})
	return out, err
}

// ListApplicationsByApplicant returns every application the applicant filed.
func (s *Service) ListApplicationsByApplicant(ctx context.Context, applicantNRIC string) ([]Application, error) {
	var out []Application
	err := s.view(ctx, func(view domain.TransactionView) error {
		for _, a := range view.ListApplications() {
			if a.ApplicantNRIC == applicantNRIC {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

// ListApplicationsForProject returns the manager's project applications,
// limited to the given statuses when any are passed.
func (s *Service) ListApplicationsForProject(ctx context.Context, manager User, projectName string, statuses ...ApplicationStatus) ([]Application, error) {
	var out []Application
	err := s.view(ctx, func(view domain.TransactionView) error {
		project, err := findProject(view, projectName)
		if err != nil {
			return err
		}
		if err := requireOwner("list_applications", manager, project); err != nil {
			return err
		}
		for _, a := range view.ListApplications() {
			if a.ProjectName == projectName && statusIn(a.Status, statuses) {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

// ListWithdrawalRequests returns flagged applications across the manager's projects.
func (s *Service) ListWithdrawalRequests(ctx context.Context, manager User) ([]Application, error) {
	if err := requireManager("list_withdrawals", manager); err != nil {
		return nil, err
	}
	var out []Application
	err := s.view(ctx, func(view domain.TransactionView) error {
		for _, a := range view.ListApplications() {
			if !a.WithdrawalRequested || !a.Status.IsActive() {
				continue
			}
			if p, ok := view.FindProject(a.ProjectName); ok && p.ManagerNRIC == manager.NRIC {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}
