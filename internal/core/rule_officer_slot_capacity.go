package core

import (
	"context"
	"fmt"

	"btocore/pkg/domain"
)

// NewOfficerSlotCapacityRule blocks rosters larger than the project's slot count.
func NewOfficerSlotCapacityRule() domain.Rule {
	return officerSlotCapacityRule{}
}

type officerSlotCapacityRule struct{}

func (officerSlotCapacityRule) Name() string { return "officer_slot_capacity" }

func (officerSlotCapacityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	scope := newRuleScope(changes)
	res := domain.Result{}
	for _, project := range view.ListProjects() {
		if !scope.project(project.Name) {
			continue
		}
		assigned := len(project.OfficerNRICs)
		if project.OfficerSlots <= domain.MaxOfficerSlots && assigned <= project.OfficerSlots {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "officer_slot_capacity",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("project %s roster over capacity: %d/%d officers", project.Name, assigned, project.OfficerSlots),
			Entity:   domain.EntityProject,
			EntityID: project.Name,
		})
	}
	return res, nil
}
