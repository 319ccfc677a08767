package storage

import (
	"bytes"
	"context"
	"sync"
)

// MemoryStore keeps the cached document for the lifetime of the process.
type MemoryStore struct {
	mu   sync.Mutex
	body []byte
}

var _ DocumentStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// LoadDocument returns a copy of the cached body.
func (s *MemoryStore) LoadDocument(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.body == nil {
		return nil, ErrNoDocument
	}
	return bytes.Clone(s.body), nil
}

func (s *MemoryStore) SaveDocument(_ context.Context, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = bytes.Clone(body)
	if s.body == nil {
		s.body = []byte{}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
