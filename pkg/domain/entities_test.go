package domain

import (
	"errors"
	"testing"
)

func TestApplicationStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to ApplicationStatus
		want     bool
	}{
		{ApplicationPending, ApplicationSuccessful, true},
		{ApplicationPending, ApplicationUnsuccessful, true},
		{ApplicationPending, ApplicationBooked, false},
		{ApplicationSuccessful, ApplicationBooked, true},
		{ApplicationSuccessful, ApplicationUnsuccessful, true},
		{ApplicationSuccessful, ApplicationPending, false},
		{ApplicationBooked, ApplicationUnsuccessful, true},
		{ApplicationBooked, ApplicationSuccessful, false},
		{ApplicationUnsuccessful, ApplicationPending, false},
		{ApplicationUnsuccessful, ApplicationBooked, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("ApplicationStatus(%q).CanTransitionTo(%q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	if !ApplicationUnsuccessful.IsTerminal() || ApplicationBooked.IsTerminal() {
		t.Fatalf("only UNSUCCESSFUL is terminal")
	}
}

func TestRegistrationStatusTransitions(t *testing.T) {
	if !RegistrationPending.CanTransitionTo(RegistrationApproved) || !RegistrationPending.CanTransitionTo(RegistrationRejected) {
		t.Fatalf("pending must advance to approved or rejected")
	}
	for _, from := range []RegistrationStatus{RegistrationApproved, RegistrationRejected} {
		for _, to := range []RegistrationStatus{RegistrationPending, RegistrationApproved, RegistrationRejected} {
			if from.CanTransitionTo(to) {
				t.Errorf("%s is terminal but allows %s", from, to)
			}
		}
	}
}

func TestRoleCapabilities(t *testing.T) {
	if !RoleApplicant.CanApply() || !RoleOfficer.CanApply() || RoleManager.CanApply() {
		t.Fatalf("unexpected apply capability set")
	}
	if !RoleOfficer.CanHandleProjects() || RoleApplicant.CanHandleProjects() {
		t.Fatalf("only officers handle projects")
	}
	if _, err := ParseRole("Officer"); err != nil {
		t.Fatalf("parse role: %v", err)
	}
	if _, err := ParseRole("admin"); err == nil {
		t.Fatalf("expected unknown role error")
	}
}

func validProject() Project {
	return Project{
		Name:         "Acacia Breeze",
		Neighborhood: "Yishun",
		TwoRoom:      FlatSupply{Units: 1, Price: 350000},
		ThreeRoom:    FlatSupply{Units: 2, Price: 450000},
		OpenDate:     MustParseDate("2024-01-01"),
		CloseDate:    MustParseDate("2024-01-31"),
		ManagerNRIC:  "T8765432F",
		OfficerSlots: 1,
	}
}

func TestProjectValidate(t *testing.T) {
	if err := validProject().Validate(); err != nil {
		t.Fatalf("valid project rejected: %v", err)
	}
	mutations := map[string]func(*Project){
		"negative units":  func(p *Project) { p.TwoRoom.Units = -1 },
		"negative price":  func(p *Project) { p.ThreeRoom.Price = -5 },
		"reversed dates":  func(p *Project) { p.CloseDate = MustParseDate("2023-12-31") },
		"too many slots":  func(p *Project) { p.OfficerSlots = MaxOfficerSlots + 1 },
		"roster overflow": func(p *Project) { p.OfficerNRICs = []string{"T1111111A", "T2222222B"} },
		"bad manager":     func(p *Project) { p.ManagerNRIC = "X123" },
	}
	for name, mutate := range mutations {
		p := validProject()
		mutate(&p)
		var ve ValidationError
		if err := p.Validate(); !errors.As(err, &ve) {
			t.Errorf("%s: expected ValidationError, got %v", name, err)
		}
	}
}

func TestProjectUnitsAndRoster(t *testing.T) {
	p := validProject()
	if err := p.ReserveUnit(FlatTwoRoom); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := p.ReserveUnit(FlatTwoRoom); !errors.Is(err, ErrUnitsExhausted) {
		t.Fatalf("expected ErrUnitsExhausted, got %v", err)
	}
	if err := p.ReleaseUnit(FlatTwoRoom); err != nil || p.Units(FlatTwoRoom) != 1 {
		t.Fatalf("release: %v units=%d", err, p.Units(FlatTwoRoom))
	}
	if err := p.AddOfficer("S1234567A"); err != nil {
		t.Fatalf("add officer: %v", err)
	}
	if err := p.AddOfficer("S7654321B"); !errors.Is(err, ErrNoOfficerSlots) {
		t.Fatalf("expected ErrNoOfficerSlots, got %v", err)
	}
	roster := p.OfficerNRICs
	if err := p.RemoveOfficer("S1234567A"); err != nil {
		t.Fatalf("remove officer: %v", err)
	}
	if len(p.OfficerNRICs) != 0 || len(roster) != 1 {
		t.Fatalf("remove must not alias the previous roster: now=%v before=%v", p.OfficerNRICs, roster)
	}
}

func TestProjectOpenOn(t *testing.T) {
	p := validProject()
	day := MustParseDate("2024-01-10")
	if p.OpenOn(day) {
		t.Fatalf("hidden project must not be open")
	}
	p.Visible = true
	if !p.OpenOn(day) || p.OpenOn(MustParseDate("2024-02-01")) {
		t.Fatalf("open window not respected")
	}
}

func TestUserValidateAndNRIC(t *testing.T) {
	if !ValidNRIC("S1234567A") || ValidNRIC("A1234567A") || ValidNRIC("S123456A") {
		t.Fatalf("NRIC pattern mismatch")
	}
	u := User{NRIC: "S1234567A", Name: "John", Age: 35, MaritalStatus: MaritalSingle, Role: RoleApplicant}
	if err := u.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	u.Age = -1
	if err := u.Validate(); err == nil {
		t.Fatalf("expected negative age to fail")
	}
}

func TestNewUserHashesPassword(t *testing.T) {
	u, err := NewUser("s1234567a", "John", 35, MaritalSingle, RoleApplicant, "password")
	if err != nil {
		t.Fatalf("new user: %v", err)
	}
	if u.NRIC != "S1234567A" || u.PasswordHash == "password" {
		t.Fatalf("unexpected user %+v", u)
	}
	if !u.VerifyPassword("password") || u.VerifyPassword("wrong") {
		t.Fatalf("password verification mismatch")
	}
}

func TestParseFlatType(t *testing.T) {
	for in, want := range map[string]FlatType{"2-Room": FlatTwoRoom, "3": FlatThreeRoom, "3-room": FlatThreeRoom} {
		got, err := ParseFlatType(in)
		if err != nil || got != want {
			t.Fatalf("ParseFlatType(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFlatType("4-Room"); err == nil {
		t.Fatalf("expected error for 4-Room")
	}
}
