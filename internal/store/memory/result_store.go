// Package memory provides an in-memory ResultStore for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/vastio/vastfetch/internal/vast"
)

// ResultStore keeps fetch result rows in memory.
type ResultStore struct {
	mu      sync.Mutex
	records []vast.ResultRecord
}

// NewResultStore builds an empty in-memory store.
func NewResultStore() *ResultStore {
	return &ResultStore{}
}

// SaveResult appends a record.
func (s *ResultStore) SaveResult(_ context.Context, record vast.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Records returns a copy of everything saved so far.
func (s *ResultStore) Records() []vast.ResultRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]vast.ResultRecord(nil), s.records...)
}

// Close is a no-op for the in-memory store.
func (s *ResultStore) Close() {}
