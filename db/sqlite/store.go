// Package sqlite implements the monitor's Database interface on a local
// SQLite file through the pure-Go modernc.org/sqlite driver. The store is
// single-writer; connections are capped at one so every statement is
// serialized and per-operation atomicity holds without explicit
// transactions.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/lendwatch/lendwatch/db"
)

var log = logrus.WithField("prefix", "store")

const databaseFileName = "lendwatch.db"

// Store is the SQLite-backed implementation of db.Database.
type Store struct {
	db           *sql.DB
	databasePath string
}

var _ db.Database = (*Store)(nil)

// NewStore opens (creating if needed) the database under dirPath and
// applies the schema.
func NewStore(dirPath string) (*Store, error) {
	if err := os.MkdirAll(dirPath, 0700); err != nil {
		return nil, err
	}
	datafile := filepath.Join(dirPath, databaseFileName)
	handle, err := sql.Open("sqlite", datafile+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, errors.Wrap(err, "could not open database")
	}
	handle.SetMaxOpenConns(1)
	s := &Store{db: handle, databasePath: dirPath}
	if err := s.migrate(context.Background()); err != nil {
		_ = handle.Close()
		return nil, errors.Wrap(err, "could not apply schema")
	}
	log.WithField("path", datafile).Debug("Opened database")
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DatabasePath returns the directory the database file lives in.
func (s *Store) DatabasePath() string {
	return s.databasePath
}

// ClearDB closes the handle and removes the database file.
func (s *Store) ClearDB() error {
	if err := s.db.Close(); err != nil {
		return err
	}
	return os.Remove(filepath.Join(s.databasePath, databaseFileName))
}
