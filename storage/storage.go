package storage

import (
	"context"
	"errors"
	"maps"
)

// DocumentStore connects the scheduler with a document-collection backend (e.g. a database).
// Every record lives in a named collection and is addressed by a storage-level
// handle that is independent of any identifier stored inside the record.
// Please use the error types provided.
type DocumentStore interface {
	// Add creates a new record in collection and returns its generated handle.
	Add(ctx context.Context, collection string, fields Fields) (handle string, err error)
	// List returns every record in collection. An unknown collection is empty, not an error.
	List(ctx context.Context, collection string) ([]Document, error)
	// Get reads a single record. Returns ErrNotFound if the handle does not exist.
	Get(ctx context.Context, collection, handle string) (*Document, error)
	// Update merges fields into an existing record. Returns ErrNotFound if the handle does not exist.
	Update(ctx context.Context, collection, handle string, fields Fields) error
	// Set writes a record under a caller-chosen handle, creating it if missing.
	// With merge the given fields are merged into the existing record, otherwise they replace it.
	Set(ctx context.Context, collection, handle string, fields Fields, merge bool) error
	// Delete removes a record. Returns ErrNotFound if the handle does not exist.
	Delete(ctx context.Context, collection, handle string) error
}

// Fields holds the free-form key/value content of a record.
type Fields map[string]any

// Clone returns a shallow copy of f. A nil receiver yields an empty map.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	maps.Copy(out, f)
	return out
}

// String returns the string value stored under key, or "" if missing or not a string.
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// Bool returns the boolean value stored under key.
func (f Fields) Bool(key string) bool {
	b, _ := f[key].(bool)
	return b
}

// Document is a single record read back from a collection.
type Document struct {
	// Handle is the storage-level identifier of the record.
	//
	// NOTE: This has nothing to do with any "id" field inside Fields.
	Handle string
	Fields Fields
}

var (
	// ErrNotFound is returned when a requested record doesn't exist
	ErrNotFound = errors.New("record not found")
	// ErrInvalidInput is returned when the input parameters are invalid
	ErrInvalidInput = errors.New("invalid input parameters")
	// ErrStorageUnavailable is returned when the storage backend is unavailable
	ErrStorageUnavailable = errors.New("storage unavailable")
)
