package core

import (
	"context"
	"fmt"
	"strconv"

	"btocore/pkg/domain"
)

const ruleDanglingReference = "dangling_reference"

// DanglingReferences reports records that name a project or user the store
// does not hold. Loading never rejects such rows, so they surface here as
// warnings instead.
func (s *Service) DanglingReferences(ctx context.Context) (Result, error) {
	res := Result{}
	err := s.view(ctx, func(v domain.TransactionView) error {
		users := make(map[string]domain.User)
		for _, u := range v.ListUsers() {
			users[u.NRIC] = u
		}
		projects := make(map[string]bool)
		for _, p := range v.ListProjects() {
			projects[p.Name] = true
		}
		add := func(entity domain.EntityType, id, format string, args ...any) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     ruleDanglingReference,
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf(format, args...),
				Entity:   entity,
				EntityID: id,
			})
		}
		for _, p := range v.ListProjects() {
			if m, ok := users[p.ManagerNRIC]; !ok || m.Role != domain.RoleManager {
				add(domain.EntityProject, p.Name, "project %s names unknown manager %s", p.Name, p.ManagerNRIC)
			}
			for _, nric := range p.OfficerNRICs {
				if o, ok := users[nric]; !ok || o.Role != domain.RoleOfficer {
					add(domain.EntityProject, p.Name, "project %s rosters unknown officer %s", p.Name, nric)
				}
			}
		}
		for _, a := range v.ListApplications() {
			id := a.Key().String()
			if _, ok := users[a.ApplicantNRIC]; !ok {
				add(domain.EntityApplication, id, "application %s names unknown applicant", id)
			}
			if !projects[a.ProjectName] {
				add(domain.EntityApplication, id, "application %s names unknown project", id)
			}
		}
		for _, r := range v.ListRegistrations() {
			id := r.Key().String()
			if _, ok := users[r.OfficerNRIC]; !ok {
				add(domain.EntityRegistration, id, "registration %s names unknown officer", id)
			}
			if !projects[r.ProjectName] {
				add(domain.EntityRegistration, id, "registration %s names unknown project", id)
			}
		}
		for _, e := range v.ListEnquiries() {
			id := strconv.Itoa(e.ID)
			if _, ok := users[e.ApplicantNRIC]; !ok {
				add(domain.EntityEnquiry, id, "enquiry %d names unknown applicant %s", e.ID, e.ApplicantNRIC)
			}
			if !projects[e.ProjectName] {
				add(domain.EntityEnquiry, id, "enquiry %d names unknown project %s", e.ID, e.ProjectName)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if n := len(res.Violations); n > 0 {
		s.logger.Warn("dangling references found", "count", n)
	}
	return res, nil
}
