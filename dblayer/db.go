package dblayer

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/lib/pq"
)

// Store wraps the Postgres connection. Mutations that must be consistent
// together (debit + transaction row + deployment row) run inside a single
// SQL transaction here; callers never get a half-applied ledger.
type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connection err: %s", err.Error())
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &Store{db: db}

	// Create tables if they don't exist
	if err := s.createTables(); err != nil {
		return nil, err
	}
	return s, nil
}

// createTables creates all necessary database tables
func (s *Store) createTables() error {
	sqlBytes, err := os.ReadFile("scripts/init.sql")
	if err != nil {
		return err
	}

	_, err = s.db.Exec(string(sqlBytes))
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// pqConstraint returns the violated constraint name when err is a Postgres
// unique violation, or "" otherwise.
func pqConstraint(err error) string {
	pqErr, ok := err.(*pq.Error)
	if !ok || pqErr.Code != "23505" {
		return ""
	}
	return pqErr.Constraint
}
