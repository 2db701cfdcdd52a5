package core

import (
	"context"
	"errors"
	"testing"

	"btocore/pkg/domain"
)

func TestCheckEligibility(t *testing.T) {
	p := DefaultPolicy()
	user := func(age int, marital domain.MaritalStatus, role domain.Role) domain.User {
		return domain.User{NRIC: "S1234567A", Name: "X", Age: age, MaritalStatus: marital, Role: role}
	}
	cases := []struct {
		name string
		u    domain.User
		ft   domain.FlatType
		want error
	}{
		{"single 35 two room", user(35, domain.MaritalSingle, domain.RoleApplicant), domain.FlatTwoRoom, nil},
		{"single 34", user(34, domain.MaritalSingle, domain.RoleApplicant), domain.FlatTwoRoom, domain.ErrNotEligible},
		{"single three room", user(50, domain.MaritalSingle, domain.RoleApplicant), domain.FlatThreeRoom, domain.ErrNotEligible},
		{"married 21 three room", user(21, domain.MaritalMarried, domain.RoleApplicant), domain.FlatThreeRoom, nil},
		{"married 20", user(20, domain.MaritalMarried, domain.RoleApplicant), domain.FlatTwoRoom, domain.ErrNotEligible},
		{"officer applies", user(40, domain.MaritalMarried, domain.RoleOfficer), domain.FlatThreeRoom, nil},
		{"manager", user(40, domain.MaritalMarried, domain.RoleManager), domain.FlatTwoRoom, domain.ErrNotAuthorized},
	}
	for _, tc := range cases {
		err := p.CheckEligibility(opApply, tc.u, tc.ft)
		if tc.want == nil && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	var valErr domain.ValidationError
	if err := p.CheckEligibility(opApply, user(40, domain.MaritalMarried, domain.RoleApplicant), 4); !errors.As(err, &valErr) {
		t.Fatalf("expected validation error for unknown flat type, got %v", err)
	}
}

func TestPolicyOverrides(t *testing.T) {
	p := Policy{SingleMinAge: 30, MaxOfficerSlots: 99}.normalized()
	if p.SingleMinAge != 30 || p.MarriedMinAge != 21 || p.MaxOfficerSlots != domain.MaxOfficerSlots {
		t.Fatalf("unexpected normalized policy %+v", p)
	}
	single := domain.User{NRIC: "S1234567A", Age: 31, MaritalStatus: domain.MaritalSingle, Role: domain.RoleApplicant}
	if err := p.CheckEligibility(opApply, single, domain.FlatTwoRoom); err != nil {
		t.Fatalf("lowered threshold: %v", err)
	}
	if got := p.EligibleFlatTypes(single); len(got) != 1 || got[0] != domain.FlatTwoRoom {
		t.Fatalf("unexpected flat types %v", got)
	}
	project := testProject("Acacia Breeze")
	project.TwoRoom.Units = 0
	if p.hasEligibleUnits(single, project) {
		t.Fatalf("single applicant must not see 3-room only supply")
	}
	married := single
	married.MaritalStatus = domain.MaritalMarried
	if !p.hasEligibleUnits(married, project) {
		t.Fatalf("married applicant should see 3-room supply")
	}
}

func TestCreateProjectHonoursPolicySlotLimit(t *testing.T) {
	svc := NewInMemoryService(NewDefaultRulesEngine(), WithPolicy(Policy{MaxOfficerSlots: 3}))
	p := testProject("Acacia Breeze")
	p.OfficerSlots = 4
	var valErr domain.ValidationError
	if _, err := svc.CreateProject(context.Background(), testManager, p); !errors.As(err, &valErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
