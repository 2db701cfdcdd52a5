package core

import (
	"fmt"

	"btocore/pkg/domain"
)

// Policy holds the tunable eligibility thresholds.
type Policy struct {
	SingleMinAge    int
	MarriedMinAge   int
	MaxOfficerSlots int
}

// DefaultPolicy returns the scheme's standard thresholds.
func DefaultPolicy() Policy {
	return Policy{SingleMinAge: 35, MarriedMinAge: 21, MaxOfficerSlots: domain.MaxOfficerSlots}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.SingleMinAge <= 0 {
		p.SingleMinAge = def.SingleMinAge
	}
	if p.MarriedMinAge <= 0 {
		p.MarriedMinAge = def.MarriedMinAge
	}
	if p.MaxOfficerSlots <= 0 || p.MaxOfficerSlots > domain.MaxOfficerSlots {
		p.MaxOfficerSlots = def.MaxOfficerSlots
	}
	return p
}

// EligibleFlatTypes returns the flat types the user's marital status allows.
func (p Policy) EligibleFlatTypes(u domain.User) []domain.FlatType {
	if u.MaritalStatus == domain.MaritalMarried {
		return []domain.FlatType{domain.FlatTwoRoom, domain.FlatThreeRoom}
	}
	return []domain.FlatType{domain.FlatTwoRoom}
}

// CheckEligibility returns an OperationError wrapping domain.ErrNotEligible
// when u may not apply for ft. It works for any user whose role can apply.
func (p Policy) CheckEligibility(op string, u domain.User, ft domain.FlatType) error {
	if !u.Role.CanApply() {
		return domain.Rejected(op, domain.ErrNotAuthorized, "%s users cannot apply for flats", u.Role)
	}
	if !ft.IsValid() {
		return domain.ValidationError{Field: "flat_type", Reason: fmt.Sprintf("flat type must be 2 or 3, got %d", int(ft))}
	}
	switch u.MaritalStatus {
	case domain.MaritalSingle:
		if u.Age < p.SingleMinAge {
			return domain.Rejected(op, domain.ErrNotEligible, "single applicants must be at least %d", p.SingleMinAge)
		}
		if ft != domain.FlatTwoRoom {
			return domain.Rejected(op, domain.ErrNotEligible, "single applicants may only apply for %s flats", domain.FlatTwoRoom)
		}
	case domain.MaritalMarried:
		if u.Age < p.MarriedMinAge {
			return domain.Rejected(op, domain.ErrNotEligible, "married applicants must be at least %d", p.MarriedMinAge)
		}
	default:
		return domain.Rejected(op, domain.ErrNotEligible, "unknown marital status %q", u.MaritalStatus)
	}
	return nil
}

// hasEligibleUnits reports whether the project has at least one unit of a
// flat type the user may apply for.
func (p Policy) hasEligibleUnits(u domain.User, project domain.Project) bool {
	for _, ft := range p.EligibleFlatTypes(u) {
		if project.Units(ft) > 0 {
			return true
		}
	}
	return false
}
