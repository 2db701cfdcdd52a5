package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"btocore/internal/infra/persistence/memory"
	"btocore/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type logCall struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	calls []logCall
}

func (c *captureLogger) Debug(msg string, args ...any) { c.add("debug", msg, args) }
func (c *captureLogger) Info(msg string, args ...any)  { c.add("info", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.add("warn", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.add("error", msg, args) }

func (c *captureLogger) add(level, msg string, args []any) {
	c.calls = append(c.calls, logCall{level: level, msg: msg, args: args})
}

func (c *captureLogger) has(level, msg string) bool {
	for _, call := range c.calls {
		if call.level == level && call.msg == msg {
			return true
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, d time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: d})
}

var (
	testManager   = domain.User{NRIC: "T8765432F", Name: "Michael", Age: 36, MaritalStatus: domain.MaritalSingle, Role: domain.RoleManager}
	testApplicant = domain.User{NRIC: "S1234567A", Name: "John", Age: 35, MaritalStatus: domain.MaritalSingle, Role: domain.RoleApplicant}
	testDay       = time.Date(2025, 2, 20, 8, 0, 0, 0, time.UTC)
)

func testProject(name string) domain.Project {
	return domain.Project{
		Name:         name,
		Neighborhood: "Yishun",
		TwoRoom:      domain.FlatSupply{Units: 1, Price: 350000},
		ThreeRoom:    domain.FlatSupply{Units: 1, Price: 450000},
		OpenDate:     domain.MustParseDate("2025-02-01"),
		CloseDate:    domain.MustParseDate("2025-03-31"),
		ManagerNRIC:  testManager.NRIC,
		OfficerSlots: 2,
		Visible:      true,
	}
}

func newObservedService(t *testing.T, snap memory.Snapshot, opts ...Option) *Service {
	t.Helper()
	store := memory.NewStore(NewDefaultRulesEngine())
	store.ImportState(snap)
	opts = append([]Option{WithClock(ClockFunc(func() time.Time { return testDay }))}, opts...)
	return NewService(store, opts...)
}

func TestRunRecordsObservability(t *testing.T) {
	ctx := context.Background()
	logger := &captureLogger{}
	metrics := &captureMetricsRecorder{}
	audit := NewMemoryAuditRecorder()
	var traces bytes.Buffer
	tracer := NewJSONTracer(&traces)
	svc := newObservedService(t, memory.Snapshot{Projects: []domain.Project{testProject("Acacia Breeze")}},
		WithLogger(logger), WithMetricsRecorder(metrics), WithAuditRecorder(audit), WithTracer(tracer))

	if _, err := svc.Apply(ctx, testApplicant, "Acacia Breeze", domain.FlatTwoRoom); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := svc.Apply(ctx, testApplicant, "Acacia Breeze", domain.FlatTwoRoom); !errors.Is(err, domain.ErrActiveApplication) {
		t.Fatalf("expected active application, got %v", err)
	}
	if _, err := svc.Apply(ctx, testApplicant, "Missing", domain.FlatTwoRoom); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if !logger.has("debug", "operation started") || !logger.has("info", "operation succeeded") {
		t.Fatalf("missing start/success logs: %+v", logger.calls)
	}
	if !logger.has("warn", "operation rejected") {
		t.Fatalf("business rejection must log at warn: %+v", logger.calls)
	}
	if !logger.has("error", "operation failed") {
		t.Fatalf("integrity failure must log at error: %+v", logger.calls)
	}

	if len(metrics.calls) != 3 {
		t.Fatalf("expected 3 metric observations, got %d", len(metrics.calls))
	}
	if !metrics.calls[0].success || metrics.calls[1].success || metrics.calls[0].op != opApply {
		t.Fatalf("unexpected metrics %+v", metrics.calls)
	}

	entries := audit.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(entries))
	}
	first := entries[0]
	if first.ID == "" || first.Operation != opApply || first.Entity != domain.EntityApplication ||
		first.Action != domain.ActionCreate || first.Actor != testApplicant.NRIC ||
		first.EntityID != "S1234567A|Acacia Breeze" || !first.Committed || first.Status != AuditStatusSuccess {
		t.Fatalf("unexpected audit entry %+v", first)
	}
	if !first.Timestamp.Equal(testDay) {
		t.Fatalf("audit timestamp should come from the service clock, got %v", first.Timestamp)
	}
	if entries[1].Committed || entries[1].Status != AuditStatusError || entries[1].Error == "" {
		t.Fatalf("unexpected rejected entry %+v", entries[1])
	}
	if entries[0].ID == entries[1].ID {
		t.Fatalf("audit ids must be unique")
	}

	spans := tracer.Entries()
	if len(spans) != 3 || spans[0].Status != "success" || spans[1].Status != "error" || spans[0].SpanID == "" {
		t.Fatalf("unexpected spans %+v", spans)
	}
	lines := strings.Split(strings.TrimSpace(traces.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 JSON lines, got %d", len(lines))
	}
	var decoded JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil {
		t.Fatalf("decode span: %v", err)
	}
	if decoded.Operation != opApply || decoded.Error == "" {
		t.Fatalf("unexpected decoded span %+v", decoded)
	}
}

func TestCommitAnywayIsAuditedAsCommittedError(t *testing.T) {
	project := testProject("Acacia Breeze")
	project.TwoRoom.Units = 0
	audit := NewMemoryAuditRecorder()
	logger := &captureLogger{}
	svc := newObservedService(t, memory.Snapshot{
		Projects: []domain.Project{project},
		Applications: []domain.Application{
			{ApplicantNRIC: testApplicant.NRIC, ProjectName: "Acacia Breeze", FlatType: domain.FlatTwoRoom, Status: domain.ApplicationPending},
		},
	}, WithAuditRecorder(audit), WithLogger(logger))

	key := domain.ApplicationKey{ApplicantNRIC: testApplicant.NRIC, ProjectName: "Acacia Breeze"}
	if _, err := svc.ApproveApplication(context.Background(), testManager, key); !errors.Is(err, domain.ErrUnitsExhausted) {
		t.Fatalf("expected exhausted supply, got %v", err)
	}
	entries := audit.Entries()
	if len(entries) != 1 || !entries[0].Committed || entries[0].Status != AuditStatusError {
		t.Fatalf("unexpected audit %+v", entries)
	}
	if !logger.has("warn", "operation rejected") {
		t.Fatalf("expected warn log, got %+v", logger.calls)
	}
}

func TestFlushObserved(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := &captureLogger{}
	svc := newObservedService(t, memory.Snapshot{}, WithMetricsRecorder(metrics), WithLogger(logger))
	if err := svc.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(metrics.calls) != 1 || metrics.calls[0].op != opFlush || !metrics.calls[0].success {
		t.Fatalf("unexpected metrics %+v", metrics.calls)
	}
	if !logger.has("info", "store flushed") {
		t.Fatalf("missing flush log")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg, "")
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, opApply, true, 20*time.Millisecond)
	rec.Observe(ctx, opApply, false, 5*time.Millisecond)
	rec.Observe(ctx, opApply, true, time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	counts := map[string]float64{}
	var observations uint64
	for _, mf := range families {
		switch mf.GetName() {
		case "btocore_operations_total":
			for _, m := range mf.GetMetric() {
				labels := map[string]string{}
				for _, lp := range m.GetLabel() {
					labels[lp.GetName()] = lp.GetValue()
				}
				counts[labels["operation"]+"/"+labels["status"]] = m.GetCounter().GetValue()
			}
		case "btocore_operation_duration_seconds":
			for _, m := range mf.GetMetric() {
				observations += m.GetHistogram().GetSampleCount()
			}
		}
	}
	if counts["apply/success"] != 2 || counts["apply/error"] != 1 || len(counts) != 2 {
		t.Fatalf("unexpected counters %v", counts)
	}
	if observations != 3 {
		t.Fatalf("expected 3 latency observations, got %d", observations)
	}

	if _, err := NewPrometheusMetricsRecorder(reg, ""); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if _, err := NewPrometheusMetricsRecorder(nil, "other"); err != nil {
		t.Fatalf("private registry: %v", err)
	}
}

func TestZapLoggerAdapter(t *testing.T) {
	observed, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(observed))
	logger.Debug("d", "k", 1)
	logger.Info("i")
	logger.Warn("w", "operation", opApply)
	logger.Error("e", "error", errors.New("boom"))

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if entries[2].Level != zapcore.WarnLevel || entries[2].ContextMap()["operation"] != opApply {
		t.Fatalf("unexpected warn entry %+v", entries[2])
	}
	if _, ok := NewZapLogger(nil).(noopLogger); !ok {
		t.Fatalf("nil zap logger should yield the no-op logger")
	}
	var n noopLogger
	n.Debug("x")
	n.Info("x")
	n.Warn("x")
	n.Error("x")
}

func TestClockFunc(t *testing.T) {
	local := time.Date(2025, 2, 20, 23, 30, 0, 0, time.FixedZone("SGT", 8*3600))
	got := ClockFunc(func() time.Time { return local }).Now()
	if got.Location() != local.Location() || !got.Equal(local) {
		t.Fatalf("expected the clock's own location, got %v", got)
	}
	svc := NewService(memory.NewStore(nil), WithClock(ClockFunc(func() time.Time { return local })))
	if want := domain.NewDate(2025, time.February, 20); !svc.Today().Equal(want) {
		t.Fatalf("expected local day %s, got %s", want, svc.Today())
	}
	var nilClock ClockFunc
	if nilClock.Now().IsZero() {
		t.Fatalf("nil clock should read the system clock")
	}
}

func TestOptionsIgnoreNil(t *testing.T) {
	svc := NewService(memory.NewStore(nil), WithClock(nil), WithLogger(nil), WithMetricsRecorder(nil),
		WithTracer(nil), WithAuditRecorder(nil), WithPolicy(Policy{SingleMinAge: 40}))
	if _, ok := svc.logger.(noopLogger); !ok {
		t.Fatalf("expected no-op logger")
	}
	if svc.Policy().SingleMinAge != 40 || svc.Policy().MarriedMinAge != 21 {
		t.Fatalf("unexpected policy %+v", svc.Policy())
	}
	if svc.Store() == nil {
		t.Fatalf("store not set")
	}
	res, err := svc.CheckInvariants(context.Background())
	if err != nil || len(res.Violations) != 0 {
		t.Fatalf("empty store invariants: %+v %v", res, err)
	}
	if NewInMemoryService(nil).Store() == nil {
		t.Fatalf("in-memory service without store")
	}
}

func TestEveryMutationIsAudited(t *testing.T) {
	for op, meta := range operations {
		if meta.entity == "" || meta.action == "" {
			t.Fatalf("operation %s lacks audit metadata", op)
		}
	}
}
