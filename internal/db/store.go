package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

var ErrNotConnected = errors.New("store is not connected")

// Store owns the process-wide database handle. It is constructed once in main
// and passed to whatever needs the database.
type Store struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Connect opens the database if it is not already open. Calling it on a
// healthy store is a no-op; a handle that no longer answers a ping is
// replaced.
func (s *Store) Connect(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err == nil {
			return s.db, nil
		}
		_ = s.db.Close()
		s.db = nil
	}

	database, err := Open(s.path)
	if err != nil {
		return nil, err
	}
	s.db = database
	return s.db, nil
}

// DB returns the open handle or ErrNotConnected.
func (s *Store) DB() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, ErrNotConnected
	}
	return s.db, nil
}

// Ping reports whether the store is connected and reachable.
func (s *Store) Ping(ctx context.Context) error {
	database, err := s.DB()
	if err != nil {
		return err
	}
	return database.PingContext(ctx)
}

// Close closes the handle. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
