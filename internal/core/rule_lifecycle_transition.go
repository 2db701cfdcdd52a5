package core

import (
	"context"
	"fmt"

	"btocore/pkg/domain"
)

// LifecycleTransitionRule blocks status changes the application and
// registration state machines do not allow.
func LifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

func (lifecycleTransitionRule) Name() string { return "lifecycle_transition" }

func (lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityApplication:
			if v, ok := applicationTransition(change); ok {
				res.Violations = append(res.Violations, v)
			}
		case domain.EntityRegistration:
			if v, ok := registrationTransition(change); ok {
				res.Violations = append(res.Violations, v)
			}
		}
	}
	return res, nil
}

func applicationTransition(change domain.Change) (domain.Violation, bool) {
	after, ok := change.After.(domain.Application)
	if !ok {
		return domain.Violation{}, false
	}
	violation := func(msg string) (domain.Violation, bool) {
		return domain.Violation{
			Rule:     "lifecycle_transition",
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityApplication,
			EntityID: after.Key().String(),
		}, true
	}
	if change.Action == domain.ActionCreate {
		if after.Status != domain.ApplicationPending {
			return violation(fmt.Sprintf("application %s created in state %s", after.Key(), after.Status))
		}
		return domain.Violation{}, false
	}
	before, ok := change.Before.(domain.Application)
	if !ok || before.Status == after.Status {
		return domain.Violation{}, false
	}
	if !before.Status.CanTransitionTo(after.Status) {
		return violation(fmt.Sprintf("cannot move application %s from %s to %s", after.Key(), before.Status, after.Status))
	}
	if before.Status == domain.ApplicationBooked && before.WithdrawalRequested == after.WithdrawalRequested {
		return violation(fmt.Sprintf("booked application %s may only leave %s through a withdrawal", after.Key(), before.Status))
	}
	return domain.Violation{}, false
}

func registrationTransition(change domain.Change) (domain.Violation, bool) {
	after, ok := change.After.(domain.Registration)
	if !ok {
		return domain.Violation{}, false
	}
	var msg string
	switch before, hasBefore := change.Before.(domain.Registration); {
	case change.Action == domain.ActionCreate && after.Status != domain.RegistrationPending:
		msg = fmt.Sprintf("registration %s created in state %s", after.Key(), after.Status)
	case hasBefore && before.Status != after.Status && !before.Status.CanTransitionTo(after.Status):
		msg = fmt.Sprintf("cannot move registration %s from %s to %s", after.Key(), before.Status, after.Status)
	default:
		return domain.Violation{}, false
	}
	return domain.Violation{
		Rule:     "lifecycle_transition",
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityRegistration,
		EntityID: after.Key().String(),
	}, true
}
