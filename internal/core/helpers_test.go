package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tracechain/pkg/domain"
)

const (
	testOwner      = "owner"
	testVendor     = "vendor-1"
	testMaker      = "maker-1"
	testCarrier    = "carrier-1"
	testRetailer   = "retailer-1"
	testStranger   = "stranger"
	testLot        = "LOT-A"
	testCertsGreen = "Organic;Sustainable"
)

// stepClock returns a strictly increasing clock starting at base.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC), step: time.Second}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

type eventCapture struct {
	mu     sync.Mutex
	events []Event
}

func (c *eventCapture) Publish(_ context.Context, e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *eventCapture) types() []domain.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.EventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

func (c *eventCapture) reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *eventCapture) {
	t.Helper()
	sink := &eventCapture{}
	base := []ServiceOption{WithClock(newStepClock()), WithEventSink(sink), WithOwner(testOwner)}
	return NewInMemoryService(NewDefaultRulesEngine(), append(base, opts...)...), sink
}

// staffedService returns a service with every supply-chain role assigned and
// testLot registered by the owner.
func staffedService(t *testing.T, certifications string, opts ...ServiceOption) (*Service, *eventCapture) {
	t.Helper()
	svc, sink := newTestService(t, opts...)
	ctx := context.Background()
	for identity, role := range map[string]Role{
		testVendor:   domain.RoleVendor,
		testMaker:    domain.RoleManufacturer,
		testCarrier:  domain.RoleLogistics,
		testRetailer: domain.RoleRetailer,
	} {
		if _, err := svc.AssignRole(ctx, testOwner, identity, role); err != nil {
			t.Fatalf("assign %s: %v", identity, err)
		}
	}
	if _, _, err := svc.Register(ctx, testOwner, testLot, "Frozen Peas", "Lincolnshire", certifications); err != nil {
		t.Fatalf("register: %v", err)
	}
	sink.reset()
	return svc, sink
}

func expectKind(t *testing.T, err error, kind error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", kind)
	}
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}

func mustChangePayload[T any](t *testing.T, value T) domain.ChangePayload {
	t.Helper()
	payload, err := domain.NewChangePayloadFromValue(value)
	if err != nil {
		t.Fatalf("build change payload: %v", err)
	}
	return payload
}
