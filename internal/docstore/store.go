// Package docstore exposes the schemaless document persistence used for
// profiles and compliance records. Collections are untyped key/document
// pairs; callers own the document shape.
package docstore

import (
	"context"
	"errors"
)

// Document is a single schemaless record.
type Document map[string]any

var (
	// ErrNotFound indicates no document exists for the given key.
	ErrNotFound = errors.New("docstore: not found")
	// ErrDuplicateKey indicates an insert hit an existing key or a
	// unique-field constraint.
	ErrDuplicateKey = errors.New("docstore: duplicate key")
)

// Store is the persistence boundary for document collections.
type Store interface {
	// Get returns the document stored under key, or ErrNotFound.
	Get(ctx context.Context, collection, key string) (Document, error)
	// Set writes the document under key, overwriting any prior value.
	Set(ctx context.Context, collection, key string, doc Document) error
	// Insert writes the document only if the key is absent. Returns
	// ErrDuplicateKey when the key or a unique field already exists.
	Insert(ctx context.Context, collection, key string, doc Document) error
	// QueryByField returns every document whose top-level field equals
	// value. Missing matches yield an empty slice, not an error.
	QueryByField(ctx context.Context, collection, field, value string) ([]Document, error)
	// Delete removes the document under key, or ErrNotFound. Profiles
	// are only deleted by key migrations, never by normal operation.
	Delete(ctx context.Context, collection, key string) error
}
