// Package sqlitestore provides a durable CommitKVStore backed by a
// single-table sqlite database. A cache wrap taken from the store
// flushes through a batch that is applied inside one SQL transaction,
// so an operation either fully commits its writes or commits none.
package sqlitestore

import (
	"database/sql"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/umoja-network/umoja"
	"github.com/umoja-network/umoja/errors"
	"github.com/umoja-network/umoja/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   BLOB PRIMARY KEY,
	value BLOB NOT NULL
)`

// Store is a CommitKVStore over a sqlite database. All writes that go
// through a single cache wrap are committed in one transaction. A
// mutex serializes commits, providing the single-writer discipline
// that keyed entities require.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

var _ umoja.CommitKVStore = (*Store)(nil)

// Open opens (or creates) a sqlite database at the given path and
// ensures the kv table exists. Pass ":memory:" for a throwaway store.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns nil iff key doesn't exist.
func (s *Store) Get(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return value, nil
}

// Has checks if a key exists.
func (s *Store) Has(key []byte) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM kv WHERE key = ?`, key).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return true, nil
}

// Set writes a single key outside of any batch.
func (s *Store) Set(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return errors.Wrap(err, "set")
}

// Delete removes a single key outside of any batch.
func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return errors.Wrap(err, "delete")
}

// CacheWrap returns a scratch layer whose Write applies all recorded
// operations in one sqlite transaction.
func (s *Store) CacheWrap() umoja.KVCacheWrap {
	return store.NewBTreeCacheWrap(s, &txBatch{store: s}, nil)
}

// txBatch piles up operations and applies them within a single
// transaction on Write.
type txBatch struct {
	store *Store
	ops   []store.Op
}

var _ umoja.Batch = (*txBatch)(nil)

func (b *txBatch) Set(key, value []byte) error {
	b.ops = append(b.ops, store.SetOp(key, value))
	return nil
}

func (b *txBatch) Delete(key []byte) error {
	b.ops = append(b.ops, store.DelOp(key))
	return nil
}

func (b *txBatch) Write() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	tx, err := b.store.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	for _, op := range b.ops {
		if op.IsSetOp() {
			_, err = tx.Exec(
				`INSERT INTO kv (key, value) VALUES (?, ?)
				 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
				op.Key(), op.Value())
		} else {
			_, err = tx.Exec(`DELETE FROM kv WHERE key = ?`, op.Key())
		}
		if err != nil {
			tx.Rollback()
			return errors.Wrap(errors.ErrDatabase, err.Error())
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	b.ops = nil
	return nil
}
