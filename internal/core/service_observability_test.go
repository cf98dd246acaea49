package core

import (
	"bytes"
	"context"
	"encoding/json"
	"expvar"
	"strings"
	"sync"
	"testing"
	"time"

	"tracechain/pkg/domain"
)

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
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

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type logLine struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if line.level == level && line.msg == msg {
			return true
		}
	}
	return false
}

func TestServiceObservabilityHooks(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	logger := &captureLogger{}
	svc, _ := newTestService(t,
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithLogger(logger),
	)

	if _, _, err := svc.Register(ctx, testOwner, testLot, "n", "o", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !audit.has(opRegister, AuditStatusSuccess, func(e AuditEntry) bool {
		return e.EntityID == testLot && e.Entity == EntityProduct && e.Action == ActionCreate && e.Caller == testOwner
	}) {
		t.Fatalf("expected register audit entry, got %+v", audit.entries)
	}
	if !metrics.has(opRegister, true) || !tracer.has(opRegister, true) {
		t.Fatalf("expected register metrics and span")
	}

	_, err := svc.UpdateStage(ctx, testStranger, testLot, domain.StageVendor)
	expectKind(t, err, domain.ErrUnauthorized)
	if !audit.has(opUpdateStage, AuditStatusError, func(e AuditEntry) bool {
		return e.Kind == "UNAUTHORIZED" && strings.Contains(e.Error, testStranger)
	}) {
		t.Fatalf("expected failed stage audit entry, got %+v", audit.entries)
	}
	if !metrics.has(opUpdateStage, false) || !tracer.has(opUpdateStage, false) {
		t.Fatalf("expected failure metrics and span")
	}
	if !logger.has("warn", "ledger operation rejected") {
		t.Fatalf("expected rejection to be logged")
	}

	before := len(audit.entries)
	if _, err := svc.Analytics(ctx, testLot); err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if len(audit.entries) != before {
		t.Fatalf("reads must not be audited")
	}
	if !metrics.has(opAnalytics, true) {
		t.Fatalf("reads are still measured")
	}
}

func TestRecordAuditUsesClockAndIgnoresUnknownOperation(t *testing.T) {
	fixed := time.Date(2024, 10, 1, 8, 30, 0, 0, time.UTC)
	recorder := &captureAuditRecorder{}
	svc := NewInMemoryService(NewRulesEngine(),
		WithAuditRecorder(recorder),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)
	svc.recordAudit(context.Background(), opGenerateToken, testLot, testOwner, AuditStatusSuccess, nil, 42*time.Millisecond)
	svc.recordAudit(context.Background(), "unknown_operation", "x", "", AuditStatusSuccess, nil, time.Second)

	if len(recorder.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.Entity != EntityToken || entry.Action != ActionCreate || entry.Duration != 42*time.Millisecond {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if !entry.Timestamp.Equal(fixed) {
		t.Fatalf("expected timestamp %v, got %v", fixed, entry.Timestamp)
	}
}

func TestInternalErrorsLogAtErrorLevel(t *testing.T) {
	logger := &captureLogger{}
	svc, _ := staffedService(t, "", WithLogger(logger), WithTokenGenerator(failingTokens{}))
	if _, _, err := svc.GenerateToken(context.Background(), testOwner, testLot); err == nil {
		t.Fatalf("expected failure")
	}
	if !logger.has("error", "ledger operation failed") {
		t.Fatalf("expected error log for internal failure")
	}
}

func TestDefaultServiceOptionsAreComplete(t *testing.T) {
	opts := defaultServiceOptions()
	if opts.clock == nil || opts.logger == nil || opts.audit == nil || opts.metrics == nil ||
		opts.tracer == nil || opts.events == nil || opts.tokens == nil || opts.owner != DefaultOwner {
		t.Fatalf("incomplete defaults %+v", opts)
	}
	// nil collaborators leave defaults in place
	for _, opt := range []ServiceOption{WithClock(nil), WithLogger(nil), WithAuditRecorder(nil),
		WithMetricsRecorder(nil), WithTracer(nil), WithEventSink(nil), WithTokenGenerator(nil), WithOwner(""), WithPolicy(nil)} {
		opt(&opts)
	}
	if opts.logger == nil || opts.owner != DefaultOwner || opts.tokens == nil {
		t.Fatalf("nil options overrode defaults")
	}
	noopLogger{}.Debug("d", "k", "v")
	noopLogger{}.Info("i")
	noopLogger{}.Warn("w")
	noopLogger{}.Error("e")
}

func TestClockFunc(t *testing.T) {
	if got := ClockFunc(nil).Now(); got.IsZero() || got.Location() != time.UTC {
		t.Fatalf("nil ClockFunc must report UTC now, got %v", got)
	}
	expected := time.Date(2024, 7, 4, 12, 34, 56, 0, time.FixedZone("offset", -5*3600))
	if got := ClockFunc(func() time.Time { return expected }).Now(); !got.Equal(expected) || got.Location() != time.UTC {
		t.Fatalf("expected %s in UTC, got %s", expected, got)
	}
}

func TestSelectNowFunc(t *testing.T) {
	storeTime := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	clockTime := time.Date(2030, 5, 6, 7, 8, 9, 0, time.UTC)
	svc := NewInMemoryService(nil, WithClock(ClockFunc(func() time.Time { return clockTime })))
	if got := selectNowFunc(svc.Store(), nil)(); !got.Equal(clockTime) {
		t.Fatalf("expected store clock to follow service clock, got %v", got)
	}
	store := NewInMemoryService(nil, WithClock(ClockFunc(func() time.Time { return storeTime }))).Store()
	if got := selectNowFunc(store, ClockFunc(func() time.Time { return clockTime }))(); !got.Equal(clockTime) {
		t.Fatalf("explicit clock must win, got %v", got)
	}
	if got := selectNowFunc(store, nil)(); !got.Equal(storeTime) {
		t.Fatalf("expected store clock fallback, got %v", got)
	}
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if expvar.Get(rec.Name()) == nil {
		t.Fatalf("expected recorder to be published as %s", rec.Name())
	}
	svc, _ := staffedService(t, "", WithMetricsRecorder(rec), WithAuditRecorder(rec))
	ctx := context.Background()
	if _, err := svc.CaptureObservation(ctx, testCarrier, testLot, 1, ""); err != nil {
		t.Fatalf("capture: %v", err)
	}
	_, _ = svc.CaptureObservation(ctx, testStranger, testLot, 1, "")
	rec.Observe(ctx, "", true, time.Second)

	snap := rec.Snapshot()
	if snap.Results[opCaptureObservation]["success"] != 1 || snap.Results[opCaptureObservation]["error"] != 1 {
		t.Fatalf("unexpected results %+v", snap.Results)
	}
	if snap.Rejected["UNAUTHORIZED"] != 1 || snap.Mutations["product"] != 2 || snap.Mutations["role"] != 4 {
		t.Fatalf("unexpected audit counters %+v %+v", snap.Rejected, snap.Mutations)
	}
	if _, ok := snap.Results[""]; ok {
		t.Fatalf("empty operation must be ignored")
	}
	var decoded ExpvarMetricsSnapshot
	if err := json.Unmarshal([]byte(expvar.Get(rec.Name()).String()), &decoded); err != nil {
		t.Fatalf("expvar output is not json: %v", err)
	}
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	svc, _ := newTestService(t, WithTracer(tracer))
	ctx := context.Background()
	if _, _, err := svc.Register(ctx, testOwner, testLot, "n", "o", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, _, _ = svc.Register(ctx, testOwner, testLot, "n", "o", "")

	entries := tracer.Entries()
	if len(entries) != 2 || entries[0].Status != "success" || entries[1].Status != "error" {
		t.Fatalf("unexpected spans %+v", entries)
	}
	if !strings.Contains(entries[1].Error, "duplicate lot") {
		t.Fatalf("expected error text in span, got %q", entries[1].Error)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Fatalf("expected 2 json lines, got %d", lines)
	}

	bounded := NewJSONTracer(nil)
	bounded.limit = 3
	for i := 0; i < 5; i++ {
		_, span := bounded.Start(ctx, "op")
		span.End(nil)
	}
	if len(bounded.Entries()) != 3 {
		t.Fatalf("expected retention limit to apply")
	}
}
