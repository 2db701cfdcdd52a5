package core

import "btocore/pkg/domain"

// ruleScope narrows evaluation to the records a change set touched, so that
// a legacy inconsistency elsewhere does not block unrelated writes. A nil
// change set puts everything in scope.
type ruleScope struct {
	all        bool
	projects   map[string]bool
	managers   map[string]bool
	applicants map[string]bool
	officers   map[string]bool
}

func newRuleScope(changes []domain.Change) ruleScope {
	s := ruleScope{
		all:        changes == nil,
		projects:   make(map[string]bool),
		managers:   make(map[string]bool),
		applicants: make(map[string]bool),
		officers:   make(map[string]bool),
	}
	for _, c := range changes {
		for _, payload := range []any{c.Before, c.After} {
			switch v := payload.(type) {
			case domain.Project:
				s.projects[v.Name] = true
				s.managers[v.ManagerNRIC] = true
				for _, nric := range v.OfficerNRICs {
					s.officers[nric] = true
				}
			case domain.Application:
				s.applicants[v.ApplicantNRIC] = true
			case domain.Registration:
				s.officers[v.OfficerNRIC] = true
			}
		}
	}
	return s
}

func (s ruleScope) project(name string) bool { return s.all || s.projects[name] }
func (s ruleScope) manager(nric string) bool { return s.all || s.managers[nric] }
func (s ruleScope) applicant(nric string) bool { return s.all || s.applicants[nric] }
func (s ruleScope) officer(nric string) bool { return s.all || s.officers[nric] }
