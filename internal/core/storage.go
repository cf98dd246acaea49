package core

import (
	"context"

	"github.com/rotisserie/eris"

	"tracechain/internal/infra/persistence/memory"
	"tracechain/internal/infra/persistence/postgres"
	"tracechain/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and parameterizes a backend. It is populated from the
// store.* configuration keys.
type StorageConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// OpenPersistentStore opens the backend named by cfg.Driver, memory when
// empty, and returns it with a function releasing its resources. clock stamps
// records written by the store and may be nil.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *RulesEngine, clock Clock) (PersistentStore, func() error, error) {
	var opts []memory.Option
	if clock != nil {
		opts = append(opts, memory.WithNowFunc(clock.Now))
	}
	driver := StorageDriver(cfg.Driver)
	if driver == "" {
		driver = StorageMemory
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine, opts...), func() error { return nil }, nil
	case StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath, engine, opts...)
		if err != nil {
			return nil, nil, eris.Wrap(err, "open sqlite store")
		}
		return store, store.Close, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, engine, opts...)
		if err != nil {
			return nil, nil, eris.Wrap(err, "open postgres store")
		}
		return store, func() error { store.Close(); return nil }, nil
	default:
		return nil, nil, eris.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
