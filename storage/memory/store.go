// memory based implementation for testing and single-process deployments
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ball-and-four/newwons/storage"
	"github.com/google/uuid"
)

type record struct {
	fields storage.Fields
	seq    uint64
}

// Store implements storage.DocumentStore interface using in-memory maps
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]*record // key: collection, then handle
	seq         uint64
}

// New creates a new in-memory storage
func New() *Store {
	return &Store{
		collections: make(map[string]map[string]*record),
	}
}

func (s *Store) collection(name string) map[string]*record {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]*record)
		s.collections[name] = c
	}
	return c
}

func notFound(collection, handle string) error {
	return fmt.Errorf("%w: %s/%s", storage.ErrNotFound, collection, handle)
}

func (s *Store) put(collection, handle string, fields storage.Fields) {
	s.seq++
	s.collection(collection)[handle] = &record{
		fields: fields.Clone(),
		seq:    s.seq,
	}
}

func (s *Store) Add(_ context.Context, collection string, fields storage.Fields) (string, error) {
	if collection == "" {
		return "", storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	handle := uuid.NewString()
	s.put(collection, handle, fields)
	return handle, nil
}

// List returns records in insertion order.
func (s *Store) List(_ context.Context, collection string) ([]storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.collections[collection]
	handles := make([]string, 0, len(recs))
	for h := range recs {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool {
		return recs[handles[i]].seq < recs[handles[j]].seq
	})

	docs := make([]storage.Document, 0, len(handles))
	for _, h := range handles {
		docs = append(docs, storage.Document{Handle: h, Fields: recs[h].fields.Clone()})
	}
	return docs, nil
}

func (s *Store) Get(_ context.Context, collection, handle string) (*storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.collections[collection][handle]
	if !ok {
		return nil, notFound(collection, handle)
	}
	return &storage.Document{Handle: handle, Fields: rec.fields.Clone()}, nil
}

func (s *Store) Update(_ context.Context, collection, handle string, fields storage.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.collections[collection][handle]
	if !ok {
		return notFound(collection, handle)
	}
	for k, v := range fields {
		rec.fields[k] = v
	}
	return nil
}

func (s *Store) Set(_ context.Context, collection, handle string, fields storage.Fields, merge bool) error {
	if collection == "" || handle == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.collections[collection][handle]
	if !ok || !merge {
		s.put(collection, handle, fields)
		return nil
	}
	for k, v := range fields {
		rec.fields[k] = v
	}
	return nil
}

func (s *Store) Delete(_ context.Context, collection, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.collections[collection]
	if _, ok := recs[handle]; !ok {
		return notFound(collection, handle)
	}
	delete(recs, handle)
	return nil
}
