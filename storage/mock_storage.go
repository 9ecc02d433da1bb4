package storage

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockDocumentStore implements the DocumentStore interface for testing
type MockDocumentStore struct {
	mock.Mock
}

// Add implements the DocumentStore interface
func (m *MockDocumentStore) Add(ctx context.Context, collection string, fields Fields) (string, error) {
	args := m.Called(ctx, collection, fields)
	return args.String(0), args.Error(1)
}

// List implements the DocumentStore interface
func (m *MockDocumentStore) List(ctx context.Context, collection string) ([]Document, error) {
	args := m.Called(ctx, collection)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Document), args.Error(1)
}

func (m *MockDocumentStore) Get(ctx context.Context, collection, handle string) (*Document, error) {
	args := m.Called(ctx, collection, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	doc := args.Get(0).(*Document)
	if doc == nil {
		return nil, args.Error(1)
	}
	return doc, args.Error(1)
}

func (m *MockDocumentStore) Update(ctx context.Context, collection, handle string, fields Fields) error {
	args := m.Called(ctx, collection, handle, fields)
	return args.Error(0)
}

func (m *MockDocumentStore) Set(ctx context.Context, collection, handle string, fields Fields, merge bool) error {
	args := m.Called(ctx, collection, handle, fields, merge)
	return args.Error(0)
}

func (m *MockDocumentStore) Delete(ctx context.Context, collection, handle string) error {
	args := m.Called(ctx, collection, handle)
	return args.Error(0)
}

// --- Helper methods for creating test data ---

// NewMockEventDocument creates a calendar record the way the scheduler stores it
func NewMockEventDocument(handle, id, title, start, end, authorEmail string) Document {
	fields := Fields{
		"id":     id,
		"title":  title,
		"start":  start,
		"end":    end,
		"allDay": false,
	}
	if authorEmail != "" {
		fields["authorEmail"] = authorEmail
	}
	return Document{Handle: handle, Fields: fields}
}

// --- Convenience methods for setting up common test scenarios ---

// SetupCollection makes List on collection return docs, replacing earlier expectations
func (m *MockDocumentStore) SetupCollection(collection string, docs []Document) {
	m.ExpectedCalls = removeMatchingCalls(m.ExpectedCalls, "List", collection)
	m.On("List", mock.Anything, collection).Return(docs, nil)
}

// Helper to remove existing mock calls that match a method and collection argument
func removeMatchingCalls(calls []*mock.Call, method string, collection string) []*mock.Call {
	result := make([]*mock.Call, 0, len(calls))
	for _, call := range calls {
		if call.Method == method && len(call.Arguments) > 1 && call.Arguments[1] == collection {
			continue
		}
		result = append(result, call)
	}
	return result
}
