package core

import (
	"context"
	"fmt"

	"btocore/pkg/domain"
)

// NewManagerWindowOverlapRule blocks a manager owning two projects whose
// application windows overlap.
func NewManagerWindowOverlapRule() domain.Rule {
	return managerWindowOverlapRule{}
}

type managerWindowOverlapRule struct{}

func (managerWindowOverlapRule) Name() string { return "manager_window_overlap" }

func (managerWindowOverlapRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	scope := newRuleScope(changes)
	owned := make(map[string][]domain.Project)
	var managers []string
	for _, p := range view.ListProjects() {
		if !scope.manager(p.ManagerNRIC) {
			continue
		}
		if _, seen := owned[p.ManagerNRIC]; !seen {
			managers = append(managers, p.ManagerNRIC)
		}
		owned[p.ManagerNRIC] = append(owned[p.ManagerNRIC], p)
	}
	res := domain.Result{}
	for _, nric := range managers {
		for _, pair := range overlappingPairs(owned[nric]) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "manager_window_overlap",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("manager %s owns overlapping projects %s and %s", nric, pair[0].Name, pair[1].Name),
				Entity:   domain.EntityProject,
				EntityID: pair[1].Name,
			})
		}
	}
	return res, nil
}

// NewOfficerWindowOverlapRule blocks an officer holding APPROVED
// registrations for projects whose windows overlap.
func NewOfficerWindowOverlapRule() domain.Rule {
	return officerWindowOverlapRule{}
}

type officerWindowOverlapRule struct{}

func (officerWindowOverlapRule) Name() string { return "officer_window_overlap" }

func (officerWindowOverlapRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	scope := newRuleScope(changes)
	handled := make(map[string][]domain.Project)
	var officers []string
	for _, r := range view.ListRegistrations() {
		if r.Status != domain.RegistrationApproved {
			continue
		}
		if !scope.officer(r.OfficerNRIC) && !scope.project(r.ProjectName) {
			continue
		}
		p, ok := view.FindProject(r.ProjectName)
		if !ok {
			continue
		}
		if _, seen := handled[r.OfficerNRIC]; !seen {
			officers = append(officers, r.OfficerNRIC)
		}
		handled[r.OfficerNRIC] = append(handled[r.OfficerNRIC], p)
	}
	res := domain.Result{}
	for _, nric := range officers {
		for _, pair := range overlappingPairs(handled[nric]) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "officer_window_overlap",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("officer %s is approved for overlapping projects %s and %s", nric, pair[0].Name, pair[1].Name),
				Entity:   domain.EntityRegistration,
				EntityID: domain.RegistrationKey{OfficerNRIC: nric, ProjectName: pair[1].Name}.String(),
			})
		}
	}
	return res, nil
}

func overlappingPairs(projects []domain.Project) [][2]domain.Project {
	var out [][2]domain.Project
	for i := 0; i < len(projects); i++ {
		for j := i + 1; j < len(projects); j++ {
			if projects[i].Window().Overlaps(projects[j].Window()) {
				out = append(out, [2]domain.Project{projects[i], projects[j]})
			}
		}
	}
	return out
}
