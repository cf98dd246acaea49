// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics while snapshotting ledger state into a JSONB table.
package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"tracechain/internal/infra/persistence/memory"
	"tracechain/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const defaultDSN = "postgres://localhost/tracechain?sslmode=disable"

// Pool is the subset of pgxpool.Pool used by the store. pgxmock pools satisfy it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var postgresBuckets = []string{"products", "roles", "tokens"}

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	pool Pool
}

// NewStore opens a pgx pool for dsn (falls back to a local default) and
// hydrates the store from any existing snapshot.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open pool")
	}
	store, err := NewStoreWithPool(ctx, pool, engine, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewStoreWithPool builds a store on an existing pool. It ensures the
// snapshot table exists and loads the latest snapshot.
func NewStoreWithPool(ctx context.Context, pool Pool, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: ping")
	}
	if err := ensureStateTable(ctx, pool); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, pool)
	if err != nil {
		return nil, err
	}
	s := &Store{pool: pool}
	opts = append(opts, memory.WithCommitHook(s.persist))
	s.Store = memory.NewStore(engine, opts...)
	s.ImportState(snapshot)
	return s, nil
}

// Pool exposes the underlying connection pool for integration testing hooks.
func (s *Store) Pool() Pool { return s.pool }

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

func ensureStateTable(ctx context.Context, pool Pool) error {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return eris.Wrap(err, "postgres: ensure state table")
	}
	return nil
}

func bucketTargets(snapshot *memory.Snapshot) map[string]any {
	return map[string]any{
		"products": &snapshot.Products,
		"roles":    &snapshot.Roles,
		"tokens":   &snapshot.Tokens,
	}
}

func loadSnapshot(ctx context.Context, pool Pool) (memory.Snapshot, error) {
	var snapshot memory.Snapshot
	rows, err := pool.Query(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return snapshot, eris.Wrap(err, "postgres: select state")
	}
	defer rows.Close()

	targets := bucketTargets(&snapshot)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, eris.Wrap(err, "postgres: scan state")
		}
		target, ok := targets[bucket]
		if !ok || len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return memory.Snapshot{}, eris.Wrapf(err, "postgres: decode %s", bucket)
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, eris.Wrap(err, "postgres: iterate state")
	}
	return snapshot, nil
}

// persist upserts every bucket in one transaction; it is the memory store's
// commit hook, so an error leaves the ledger unchanged.
func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	targets := bucketTargets(&snapshot)
	for _, bucket := range postgresBuckets {
		data, err := json.Marshal(targets[bucket])
		if err != nil {
			return eris.Wrapf(err, "postgres: encode %s", bucket)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
			return eris.Wrapf(err, "postgres: upsert %s", bucket)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit")
	}
	return nil
}
