package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/objectstore"
)

// Store is an in-memory objectstore.Store.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewStore returns a new memory store.
func NewStore() *Store {
	return &Store{objects: map[string][]byte{}}
}

// Put stores an object.
func (s *Store) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
}

// Fetch satisfies objectstore.Store interface.
func (s *Store) Fetch(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, model.ErrNotFound)
	}
	return data, nil
}

// URL satisfies objectstore.Store interface.
func (s *Store) URL(_ context.Context, key string) (string, error) {
	return "memory://" + key, nil
}

var _ objectstore.Store = &Store{}
