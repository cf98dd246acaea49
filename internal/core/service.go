package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tracechain/internal/authz"
	"tracechain/internal/infra/persistence/memory"
	"tracechain/pkg/domain"
)

// Service exposes the ledger operations over a transactional store. Every
// mutation runs inside a single store transaction and publishes its
// notifications only after that transaction commits.
type Service struct {
	store PersistentStore
	opts  serviceOptions
	now   func() time.Time

	// commitMu is held from transaction start until the last notification
	// is delivered, so sinks observe mutations in commit order. Sinks must
	// not call mutating operations synchronously.
	commitMu sync.Mutex
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.policy == nil {
		policy, err := authz.NewPolicy()
		if err != nil {
			panic(fmt.Errorf("core: build default policy: %w", err))
		}
		options.policy = policy
	}
	return &Service{
		store: store,
		opts:  options,
		now:   selectNowFunc(store, optionClock(opts)),
	}
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine. The store shares the service clock.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	clock := optionClock(opts)
	if clock == nil {
		clock = ClockFunc(nil)
	}
	store := memory.NewStore(engine, memory.WithNowFunc(clock.Now))
	return NewService(store, opts...)
}

// optionClock returns the clock configured through WithClock, if any.
func optionClock(opts []ServiceOption) Clock {
	var configured serviceOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&configured)
		}
	}
	return configured.clock
}

type nowFuncProvider interface {
	NowFunc() func() time.Time
}

type rulesEngineProvider interface {
	RulesEngine() *RulesEngine
}

// selectNowFunc prefers an explicitly configured clock, then the store's own
// clock, then system UTC time.
func selectNowFunc(store PersistentStore, clock Clock) func() time.Time {
	if clock != nil {
		return func() time.Time { return clock.Now().UTC() }
	}
	if provider, ok := store.(nowFuncProvider); ok {
		if fn := provider.NowFunc(); fn != nil {
			return func() time.Time { return fn().UTC() }
		}
	}
	return func() time.Time { return time.Now().UTC() }
}

func extractRulesEngine(store PersistentStore) *RulesEngine {
	if provider, ok := store.(rulesEngineProvider); ok {
		return provider.RulesEngine()
	}
	return nil
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Owner returns the identity holding owner rights.
func (s *Service) Owner() string {
	return s.opts.owner
}

// RuleNames lists the commit-time rules evaluated by the store, if exposed.
func (s *Service) RuleNames() []string {
	if engine := extractRulesEngine(s.store); engine != nil {
		return engine.Rules()
	}
	return nil
}

func (s *Service) isOwner(identity string) bool {
	return identity == s.opts.owner
}

type operationMeta struct {
	entity EntityType
	action Action
}

// auditedOperations lists the mutating operations and the record they touch.
var auditedOperations = map[string]operationMeta{
	opAssignRole:         {entity: EntityRole, action: ActionUpdate},
	opRegister:           {entity: EntityProduct, action: ActionCreate},
	opSetThresholds:      {entity: EntityProduct, action: ActionUpdate},
	opUpdateStage:        {entity: EntityProduct, action: ActionUpdate},
	opCaptureObservation: {entity: EntityProduct, action: ActionUpdate},
	opAwardBadge:         {entity: EntityProduct, action: ActionUpdate},
	opGenerateToken:      {entity: EntityToken, action: ActionCreate},
}

const (
	opAssignRole         = "assign_role"
	opGetRole            = "get_role"
	opListRoles          = "list_roles"
	opRegister           = "register"
	opSetThresholds      = "set_thresholds"
	opUpdateStage        = "update_stage"
	opLookupLot          = "consumer_lookup_lot"
	opLookupToken        = "consumer_lookup_token"
	opExists             = "exists"
	opListLots           = "list_lots"
	opGetProduct         = "get_product"
	opCaptureObservation = "capture_observation"
	opGetObservations    = "get_observations"
	opIsCompliant        = "is_compliant"
	opAnalytics          = "analytics"
	opAwardBadge         = "award_badge"
	opHasBadge           = "has_badge"
	opGetBadges          = "get_badges"
	opLeaderboard        = "leaderboard"
	opGenerateToken      = "generate_token"
	opResolveToken       = "resolve_token"
	opPublishPassport    = "publish_passport"
	opListPassports      = "list_passports"
	opReadPassport       = "read_passport"
)

// run wraps an operation with tracing, metrics, audit and logging. subject is
// the lot or identity the operation addresses.
func (s *Service) run(ctx context.Context, op, subject, caller string, fn func(context.Context) error) error {
	ctx, span := s.opts.tracer.Start(ctx, op)
	started := time.Now()
	var err error
	if err = ctx.Err(); err == nil {
		err = fn(ctx)
	}
	duration := time.Since(started)
	span.End(err)
	s.opts.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		if domain.KindOf(err) != nil {
			s.opts.logger.Warn("ledger operation rejected", "op", op, "subject", subject, "caller", caller, "kind", domain.KindName(err), "error", err)
		} else {
			s.opts.logger.Error("ledger operation failed", "op", op, "subject", subject, "caller", caller, "error", err)
		}
		s.recordAudit(ctx, op, subject, caller, AuditStatusError, err, duration)
		return err
	}
	s.opts.logger.Debug("ledger operation", "op", op, "subject", subject, "caller", caller, "duration", duration)
	s.recordAudit(ctx, op, subject, caller, AuditStatusSuccess, nil, duration)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, op, subject, caller string, status AuditStatus, err error, duration time.Duration) {
	meta, ok := auditedOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  subject,
		Caller:    caller,
		Status:    status,
		Duration:  duration,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Kind = domain.KindName(err)
		entry.Error = err.Error()
	}
	s.opts.audit.Record(ctx, entry)
}

// emitter buffers notifications raised inside a transaction.
type emitter struct {
	pending []Event
}

func (e *emitter) emit(event Event) {
	e.pending = append(e.pending, event)
}

// mutate runs fn in a store transaction. Buffered notifications are
// published once the commit succeeds and warnings are logged.
func (s *Service) mutate(ctx context.Context, op string, fn func(tx Transaction, out *emitter) error) (Result, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	var out emitter
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		out.pending = out.pending[:0]
		return fn(tx, &out)
	})
	if err != nil {
		return res, err
	}
	for _, w := range res.Warnings() {
		s.opts.logger.Warn("rule warning", "op", op, "rule", w.Rule, "lot", w.EntityID, "message", w.Message)
	}
	now := s.now()
	for _, event := range out.pending {
		if event.OccurredAt.IsZero() {
			event.OccurredAt = now
		}
		s.opts.events.Publish(ctx, event)
	}
	return res, nil
}

// view runs fn against a read-only snapshot of the ledger.
func (s *Service) view(ctx context.Context, fn func(TransactionView) error) error {
	return s.store.View(ctx, fn)
}

// findProduct loads lot or fails with UnknownLot.
func findProduct(lookup func(string) (Product, bool), op, lot string) (Product, error) {
	p, ok := lookup(lot)
	if !ok {
		return Product{}, domain.NewLedgerError(domain.ErrUnknownLot, op, lot, "")
	}
	return p, nil
}
