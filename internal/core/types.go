package core

import "btocore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	User               = domain.User
	Role               = domain.Role
	Project            = domain.Project
	FlatType           = domain.FlatType
	Application        = domain.Application
	ApplicationKey     = domain.ApplicationKey
	ApplicationStatus  = domain.ApplicationStatus
	Registration       = domain.Registration
	RegistrationKey    = domain.RegistrationKey
	RegistrationStatus = domain.RegistrationStatus
	Enquiry            = domain.Enquiry
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityUser         = domain.EntityUser
	EntityProject      = domain.EntityProject
	EntityApplication  = domain.EntityApplication
	EntityRegistration = domain.EntityRegistration
	EntityEnquiry      = domain.EntityEnquiry
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
