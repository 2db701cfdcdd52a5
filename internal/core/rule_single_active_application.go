package core

import (
	"context"
	"fmt"
	"strings"

	"btocore/pkg/domain"
)

// NewSingleActiveApplicationRule blocks a second non-terminal application
// for the same applicant.
func NewSingleActiveApplicationRule() domain.Rule {
	return singleActiveApplicationRule{}
}

type singleActiveApplicationRule struct{}

func (singleActiveApplicationRule) Name() string { return "single_active_application" }

func (singleActiveApplicationRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	scope := newRuleScope(changes)
	active := make(map[string][]string)
	var order []string
	for _, app := range view.ListApplications() {
		if !app.Status.IsActive() || !scope.applicant(app.ApplicantNRIC) {
			continue
		}
		if _, seen := active[app.ApplicantNRIC]; !seen {
			order = append(order, app.ApplicantNRIC)
		}
		active[app.ApplicantNRIC] = append(active[app.ApplicantNRIC], app.ProjectName)
	}
	res := domain.Result{}
	for _, nric := range order {
		projects := active[nric]
		if len(projects) <= 1 {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "single_active_application",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("applicant %s holds %d active applications (%s)", nric, len(projects), strings.Join(projects, ", ")),
			Entity:   domain.EntityApplication,
			EntityID: nric,
		})
	}
	return res, nil
}
