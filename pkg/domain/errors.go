package domain

import (
	"errors"
	"fmt"
)

// Business-rule reasons wrapped by OperationError so callers can branch with errors.Is.
var (
	ErrNotAuthorized              = errors.New("not authorized")
	ErrNotOwner                   = errors.New("manager does not own this project")
	ErrInvalidTransition          = errors.New("invalid status transition")
	ErrNotEligible                = errors.New("not eligible")
	ErrActiveApplication          = errors.New("applicant already holds an active application")
	ErrProjectClosed              = errors.New("project is not open for application")
	ErrUnitsExhausted             = errors.New("no units left for the requested flat type")
	ErrNoOfficerSlots             = errors.New("no available officer slots")
	ErrWindowOverlap              = errors.New("application windows overlap")
	ErrRegistrationExists         = errors.New("registration already exists")
	ErrRegistrationConflict       = errors.New("officer has applied for this project")
	ErrWithdrawalAlreadyRequested = errors.New("withdrawal already requested")
	ErrWithdrawalNotRequested     = errors.New("no withdrawal requested")
	ErrWithdrawalPending          = errors.New("withdrawal request pending")
	ErrEnquiryReplied             = errors.New("enquiry already replied")
	ErrProjectInUse               = errors.New("project has active applications")
	ErrInvalidCredentials         = errors.New("invalid credentials")
)

// ErrNotFound is wrapped by IntegrityError when a key does not resolve.
var ErrNotFound = errors.New("not found")

// ErrDuplicateKey is wrapped by IntegrityError when a key is already taken.
var ErrDuplicateKey = errors.New("duplicate key")

// ValidationError reports malformed constructor input. It is raised before
// the entity enters the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// OperationError reports a business-rule violation. Reason is the
// human-readable message; Err carries a sentinel for errors.Is.
type OperationError struct {
	Op     string
	Reason string
	Err    error
}

func (e *OperationError) Error() string {
	if e.Reason == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *OperationError) Unwrap() error { return e.Err }

// Rejected builds an OperationError.
func Rejected(op string, err error, format string, args ...any) *OperationError {
	return &OperationError{Op: op, Reason: fmt.Sprintf(format, args...), Err: err}
}

// IntegrityError reports a key collision or a key that does not resolve on
// update or delete.
type IntegrityError struct {
	Entity EntityType
	Key    string
	Err    error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Entity, e.Key, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// NotFound builds an IntegrityError wrapping ErrNotFound.
func NotFound(entity EntityType, key string) *IntegrityError {
	return &IntegrityError{Entity: entity, Key: key, Err: ErrNotFound}
}

// Duplicate builds an IntegrityError wrapping ErrDuplicateKey.
func Duplicate(entity EntityType, key string) *IntegrityError {
	return &IntegrityError{Entity: entity, Key: key, Err: ErrDuplicateKey}
}

// PersistenceError reports an I/O or schema failure at a load or flush boundary.
type PersistenceError struct {
	Backend string
	Op      string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CompensationError reports that the second write of a coupled pair failed.
// Compensation names the inverse write that was attempted and
// CompensationErr is non-nil when that inverse write failed too.
type CompensationError struct {
	Op              string
	Compensation    string
	Cause           error
	CompensationErr error
}

func (e *CompensationError) Error() string {
	if e.CompensationErr != nil {
		return fmt.Sprintf("%s: %v; compensation %q failed: %v", e.Op, e.Cause, e.Compensation, e.CompensationErr)
	}
	return fmt.Sprintf("%s: %v; compensated by %q", e.Op, e.Cause, e.Compensation)
}

func (e *CompensationError) Unwrap() []error {
	if e.CompensationErr != nil {
		return []error{e.Cause, e.CompensationErr}
	}
	return []error{e.Cause}
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
