// Package sqlite provides a SQLite-backed persistent store. Ledger state lives
// in the in-memory transactional store and is snapshotted into a single table
// of JSON buckets on every commit.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"tracechain/internal/infra/persistence/memory"
	"tracechain/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "tracechain.db"

var sqliteBuckets = []string{"products", "roles", "tokens"}

// Store persists the in-memory state to SQLite as JSON blobs.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path and hydrates the ledger
// from any previously persisted snapshot.
func NewStore(path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, eris.Wrap(err, "sqlite: create dirs")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sqlite: create state table")
	}
	s := &Store{db: db, path: path}
	snapshot, err := s.load()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	opts = append(opts, memory.WithCommitHook(s.persist))
	s.Store = memory.NewStore(engine, opts...)
	s.ImportState(snapshot)
	return s, nil
}

func bucketTargets(snapshot *memory.Snapshot) map[string]any {
	return map[string]any{
		"products": &snapshot.Products,
		"roles":    &snapshot.Roles,
		"tokens":   &snapshot.Tokens,
	}
}

func (s *Store) load() (memory.Snapshot, error) {
	var snapshot memory.Snapshot
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return snapshot, eris.Wrap(err, "sqlite: select state")
	}
	defer func() { _ = rows.Close() }()
	targets := bucketTargets(&snapshot)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return snapshot, eris.Wrap(err, "sqlite: scan")
		}
		target, ok := targets[bucket]
		if !ok || len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return snapshot, eris.Wrapf(err, "sqlite: decode %s", bucket)
		}
	}
	if err := rows.Err(); err != nil {
		return snapshot, eris.Wrap(err, "sqlite: iterate state")
	}
	return snapshot, nil
}

// persist writes every bucket inside one SQL transaction. It runs as the
// memory store's commit hook, so a failure here aborts the ledger commit.
func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	targets := bucketTargets(&snapshot)
	for _, bucket := range sqliteBuckets {
		data, err := json.Marshal(targets[bucket])
		if err != nil {
			return eris.Wrapf(err, "sqlite: encode %s", bucket)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return eris.Wrapf(err, "sqlite: upsert %s", bucket)
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit")
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
