// Package memory provides an in-memory implementation of the ledger
// persistence store used for tests, ephemeral environments and as the
// transactional core of the durable backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tracechain/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Product aliases domain.Product for in-memory persistence operations.
	Product = domain.Product
	// RoleAssignment aliases domain.RoleAssignment.
	RoleAssignment = domain.RoleAssignment
	// TokenRecord aliases domain.TokenRecord.
	TokenRecord = domain.TokenRecord
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

func mustApply(label string, err error) {
	if err != nil {
		panic(fmt.Errorf("memory store %s: %w", label, err))
	}
}

func payloadOf[T any](value T) domain.ChangePayload {
	payload, err := domain.NewChangePayloadFromValue(value)
	mustApply("encode change payload", err)
	return payload
}

type memoryState struct {
	products map[string]Product
	roles    map[string]RoleAssignment
	tokens   map[string]TokenRecord
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Products map[string]Product        `json:"products"`
	Roles    map[string]RoleAssignment `json:"roles"`
	Tokens   map[string]TokenRecord    `json:"tokens"`
}

// CommitHook runs after rules pass and before the new state becomes visible.
// A non-nil error aborts the commit and leaves the previous state in place.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// Option configures a Store.
type Option func(*Store)

// WithCommitHook installs hook so durable backends can persist each commit.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.commitHook = hook }
}

// WithNowFunc overrides the clock used to stamp records.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

func newMemoryState() memoryState {
	return memoryState{
		products: make(map[string]Product),
		roles:    make(map[string]RoleAssignment),
		tokens:   make(map[string]TokenRecord),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Products: make(map[string]Product, len(state.products)),
		Roles:    make(map[string]RoleAssignment, len(state.roles)),
		Tokens:   make(map[string]TokenRecord, len(state.tokens)),
	}
	for k, v := range state.products {
		s.Products[k] = domain.CloneProduct(v)
	}
	for k, v := range state.roles {
		s.Roles[k] = v
	}
	for k, v := range state.tokens {
		s.Tokens[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Products {
		state.products[k] = domain.CloneProduct(v)
	}
	for k, v := range s.Roles {
		state.roles[k] = v
	}
	for k, v := range s.Tokens {
		state.tokens[k] = v
	}
	return state
}

func (s memoryState) clone() memoryState {
	return memoryStateFromSnapshot(snapshotFromMemoryState(s))
}

// Store is an in-memory transactional store that satisfies domain.PersistentStore.
type Store struct {
	mu         sync.RWMutex
	state      memoryState
	engine     *RulesEngine
	nowFn      func() time.Time
	commitHook CommitHook
}

// NewStore constructs an empty store. A nil engine evaluates no rules.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState returns a deep copy of the current state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RunInTransaction executes fn against a private copy of the state. The copy
// replaces the live state only when fn succeeds, no blocking rule fires and
// the commit hook (if any) accepts it. Transactions are serialized.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil && len(tx.changes) > 0 {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.commitHook != nil && len(tx.changes) > 0 {
		if err := s.commitHook(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return result, err
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

// GetProduct returns the product stored under lot.
func (s *Store) GetProduct(lot string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.products[lot]
	if !ok {
		return Product{}, false
	}
	return domain.CloneProduct(p), true
}

// ListProducts returns all products ordered by lot.
func (s *Store) ListProducts() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listProducts(&s.state)
}

// ListRoles returns every identity holding a role other than none, ordered by identity.
func (s *Store) ListRoles() []RoleAssignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRoles(&s.state)
}

func listProducts(state *memoryState) []Product {
	out := make([]Product, 0, len(state.products))
	for _, p := range state.products {
		out = append(out, domain.CloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lot < out[j].Lot })
	return out
}

func listRoles(state *memoryState) []RoleAssignment {
	out := make([]RoleAssignment, 0, len(state.roles))
	for _, r := range state.roles {
		if r.Role == domain.RoleNone {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListProducts() []Product { return listProducts(v.state) }

func (v transactionView) ListRoles() []RoleAssignment { return listRoles(v.state) }

func (v transactionView) FindProduct(lot string) (Product, bool) {
	p, ok := v.state.products[lot]
	if !ok {
		return Product{}, false
	}
	return domain.CloneProduct(p), true
}

func (v transactionView) RoleOf(identity string) domain.Role {
	return v.state.roles[identity].Role
}

func (v transactionView) FindToken(token string) (TokenRecord, bool) {
	rec, ok := v.state.tokens[token]
	return rec, ok
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

func (tx *transaction) FindProduct(lot string) (Product, bool) {
	return newTransactionView(&tx.state).FindProduct(lot)
}

func (tx *transaction) RoleOf(identity string) domain.Role {
	return tx.state.roles[identity].Role
}

func (tx *transaction) FindToken(token string) (TokenRecord, bool) {
	rec, ok := tx.state.tokens[token]
	return rec, ok
}

// CreateProduct stores a new product within the transaction.
func (tx *transaction) CreateProduct(p Product) (Product, error) {
	if p.Lot == "" {
		return Product{}, fmt.Errorf("create product: %w", domain.ErrInvalidKey)
	}
	if _, exists := tx.state.products[p.Lot]; exists {
		return Product{}, fmt.Errorf("product %q: %w", p.Lot, domain.ErrDuplicateLot)
	}
	if p.RegisteredAt.IsZero() {
		p.RegisteredAt = tx.now
	}
	p.UpdatedAt = tx.now
	tx.state.products[p.Lot] = domain.CloneProduct(p)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionCreate, After: payloadOf(p)})
	return domain.CloneProduct(p), nil
}

// UpdateProduct mutates a product using the provided mutator function. The
// lot key cannot be changed by the mutator.
func (tx *transaction) UpdateProduct(lot string, mutator func(*Product) error) (Product, error) {
	current, ok := tx.state.products[lot]
	if !ok {
		return Product{}, fmt.Errorf("product %q: %w", lot, domain.ErrUnknownLot)
	}
	before := domain.CloneProduct(current)
	current = domain.CloneProduct(current)
	if err := mutator(&current); err != nil {
		return Product{}, err
	}
	current.Lot = lot
	current.UpdatedAt = tx.now
	tx.state.products[lot] = domain.CloneProduct(current)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionUpdate, Before: payloadOf(before), After: payloadOf(current)})
	return domain.CloneProduct(current), nil
}

// AssignRole upserts the role held by an identity. Assigning RoleNone revokes.
func (tx *transaction) AssignRole(a RoleAssignment) (RoleAssignment, error) {
	if a.Identity == "" {
		return RoleAssignment{}, fmt.Errorf("assign role: %w", domain.ErrInvalidKey)
	}
	if !a.Role.Valid() {
		return RoleAssignment{}, fmt.Errorf("assign role %s: %w", a.Role, domain.ErrInvalidRole)
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = tx.now
	}
	change := Change{Entity: domain.EntityRole, Action: domain.ActionCreate, After: payloadOf(a)}
	if prev, ok := tx.state.roles[a.Identity]; ok {
		change.Action = domain.ActionUpdate
		change.Before = payloadOf(prev)
	}
	tx.state.roles[a.Identity] = a
	tx.recordChange(change)
	return a, nil
}

// IssueToken records a token mapping. Tokens are never overwritten.
func (tx *transaction) IssueToken(rec TokenRecord) (TokenRecord, error) {
	if rec.Token == "" || rec.Lot == "" {
		return TokenRecord{}, fmt.Errorf("issue token: %w", domain.ErrInvalidKey)
	}
	if _, exists := tx.state.tokens[rec.Token]; exists {
		return TokenRecord{}, fmt.Errorf("token %q already issued", rec.Token)
	}
	if rec.IssuedAt.IsZero() {
		rec.IssuedAt = tx.now
	}
	tx.state.tokens[rec.Token] = rec
	tx.recordChange(Change{Entity: domain.EntityToken, Action: domain.ActionCreate, After: payloadOf(rec)})
	return rec, nil
}
