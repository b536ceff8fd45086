// Package sqlitestore persists index clusters in a sqlite database.
//
// Each cluster lives in one row keyed by its device offset, and a full-image
// save runs inside a single transaction bracketed by the save hooks, so a
// crashed save never leaves a half-written image behind.
package sqlitestore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS clusters (
	dev_offset INTEGER PRIMARY KEY,
	data       BLOB NOT NULL
);`

// Store is a sqlite-backed cluster store implementing the index's storage
// hooks.
type Store struct {
	db *sqlx.DB
	tx *sqlx.Tx
}

// Open opens or creates the cluster database at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// StartFullSave opens the transaction covering a full-image save.
func (s *Store) StartFullSave() error {
	if s.tx != nil {
		return errors.New("sqlitestore: full save already in progress")
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	s.tx = tx
	return nil
}

// FinishFullSave commits the save transaction.
func (s *Store) FinishFullSave() error {
	if s.tx == nil {
		return errors.New("sqlitestore: no full save in progress")
	}

	err := s.tx.Commit()
	s.tx = nil
	return err
}

// WriteClusterData upserts one cluster row.
func (s *Store) WriteClusterData(devOffset uint64, buf []byte) error {
	q := `INSERT OR REPLACE INTO clusters (dev_offset, data) VALUES (?, ?)`

	if s.tx != nil {
		_, err := s.tx.Exec(q, int64(devOffset), buf)
		return err
	}
	_, err := s.db.Exec(q, int64(devOffset), buf)
	return err
}

// ReadClusterData copies the cluster at the given offset into buf.
func (s *Store) ReadClusterData(devOffset uint64, buf []byte) (int, error) {
	var data []byte
	err := s.db.Get(&data, `SELECT data FROM clusters WHERE dev_offset = ?`, int64(devOffset))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("sqlitestore: no cluster at %#x", devOffset)
		}
		return 0, err
	}

	return copy(buf, data), nil
}

// Close rolls back any unfinished save and closes the database.
func (s *Store) Close() error {
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	return s.db.Close()
}
