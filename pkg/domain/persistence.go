package domain

import "context"

// Transaction exposes the ledger operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateProduct(Product) (Product, error)
	UpdateProduct(lot string, mutator func(*Product) error) (Product, error)
	FindProduct(lot string) (Product, bool)
	AssignRole(RoleAssignment) (RoleAssignment, error)
	RoleOf(identity string) Role
	IssueToken(TokenRecord) (TokenRecord, error)
	FindToken(token string) (TokenRecord, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	ListRoles() []RoleAssignment
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetProduct(lot string) (Product, bool)
	ListProducts() []Product
	ListRoles() []RoleAssignment
}
