package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"btocore/internal/infra/persistence/memory"
	"btocore/pkg/domain"

	"github.com/google/uuid"
)

// Service exposes the catalog and workflow operations over a persistent store.
// Each mutation runs in a single store transaction; none of them flushes.
type Service struct {
	store   domain.PersistentStore
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	policy  Policy
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for "today".
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(a AuditRecorder) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithPolicy overrides the eligibility thresholds. Zero fields keep defaults.
func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p.normalized() }
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	svc := &Service{
		store:   store,
		clock:   ClockFunc(nil),
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		audit:   noopAudit{},
		policy:  DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Policy returns the active eligibility thresholds.
func (s *Service) Policy() Policy { return s.policy }

// Today returns the current calendar day according to the service clock.
func (s *Service) Today() domain.Date { return domain.DateOf(s.clock.Now()) }

// Flush writes the store to its backing source.
func (s *Service) Flush(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, opFlush)
	start := time.Now()
	err := s.store.Flush(ctx)
	s.metrics.Observe(ctx, opFlush, err == nil, time.Since(start))
	span.End(err)
	if err != nil {
		s.logger.Error("flush failed", "error", err)
		return err
	}
	s.logger.Info("store flushed")
	return nil
}

type rulesEngineProvider interface {
	RulesEngine() *domain.RulesEngine
}

func extractRulesEngine(store domain.PersistentStore) *domain.RulesEngine {
	if p, ok := store.(rulesEngineProvider); ok {
		return p.RulesEngine()
	}
	return nil
}

type stateEvaluator interface {
	Evaluate(ctx context.Context) (domain.Result, error)
}

// CheckInvariants evaluates every registered rule over the current state.
func (s *Service) CheckInvariants(ctx context.Context) (Result, error) {
	ev, ok := s.store.(stateEvaluator)
	if !ok {
		return Result{}, fmt.Errorf("store %T cannot evaluate rules outside a transaction", s.store)
	}
	if extractRulesEngine(s.store) == nil {
		return Result{}, nil
	}
	return ev.Evaluate(ctx)
}

// commitAnyway marks an error raised after an automatic transition that must
// still be committed, such as an approval downgraded to UNSUCCESSFUL.
type commitAnyway struct{ err error }

func (c commitAnyway) Error() string { return c.err.Error() }
func (c commitAnyway) Unwrap() error { return c.err }

// run executes fn in a store transaction and records logs, metrics, traces
// and an audit entry for the operation.
func (s *Service) run(ctx context.Context, op string, actor domain.User, key string, fn func(domain.Transaction) error) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	s.logger.Debug("operation started", "operation", op, "actor", actor.NRIC, "key", key)

	var deferred error
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		deferred = nil
		ferr := fn(tx)
		var keep commitAnyway
		if errors.As(ferr, &keep) {
			deferred = keep.err
			return nil
		}
		return ferr
	})
	committed := err == nil
	if err == nil {
		err = deferred
	}
	duration := time.Since(start)

	switch {
	case err == nil:
		s.logger.Info("operation succeeded", "operation", op, "actor", actor.NRIC, "key", key)
	case isRejection(err):
		s.logger.Warn("operation rejected", "operation", op, "actor", actor.NRIC, "key", key, "committed", committed, "error", err)
	default:
		s.logger.Error("operation failed", "operation", op, "actor", actor.NRIC, "key", key, "error", err)
	}
	for _, v := range res.Violations {
		if v.Severity != domain.SeverityBlock {
			s.logger.Warn("rule violation", "rule", v.Rule, "severity", v.Severity, "message", v.Message)
		}
	}
	s.metrics.Observe(ctx, op, err == nil, duration)
	s.recordAudit(ctx, op, actor, key, committed, err, duration)
	span.End(err)
	return res, err
}

func isRejection(err error) bool {
	var opErr *domain.OperationError
	var valErr domain.ValidationError
	return errors.As(err, &opErr) || errors.As(err, &valErr)
}

func (s *Service) recordAudit(ctx context.Context, op string, actor domain.User, key string, committed bool, err error, duration time.Duration) {
	meta, ok := operations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		ID:        uuid.NewString(),
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  key,
		Actor:     actor.NRIC,
		Status:    AuditStatusSuccess,
		Committed: committed,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// view runs fn against a read-only snapshot.
func (s *Service) view(ctx context.Context, fn func(domain.TransactionView) error) error {
	return s.store.View(ctx, fn)
}
