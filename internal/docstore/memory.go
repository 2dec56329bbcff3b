package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-process Store used in tests and single-node
// development deployments. Unique-field constraints mirror the partial
// indexes the PostgreSQL store carries.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	unique      map[string]string // collection -> field with uniqueness
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]Document),
		unique:      make(map[string]string),
	}
}

// Unique registers a unique-field constraint for a collection.
func (m *Memory) Unique(collection, field string) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unique[collection] = field
	return m
}

// Get fetches a document copy by key.
func (m *Memory) Get(ctx context.Context, collection, key string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.collections[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDocument(doc)
}

// Set upserts a document.
func (m *Memory) Set(ctx context.Context, collection, key string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUnique(collection, key, doc); err != nil {
		return err
	}
	return m.put(collection, key, doc)
}

// Insert writes a document only when the key is absent.
func (m *Memory) Insert(ctx context.Context, collection, key string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection][key]; ok {
		return ErrDuplicateKey
	}
	if err := m.checkUnique(collection, key, doc); err != nil {
		return err
	}
	return m.put(collection, key, doc)
}

// QueryByField matches documents on a top-level field rendered as a string.
func (m *Memory) QueryByField(ctx context.Context, collection, field, value string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var docs []Document
	for _, doc := range m.collections[collection] {
		if fieldString(doc, field) == value {
			copied, err := copyDocument(doc)
			if err != nil {
				return nil, err
			}
			docs = append(docs, copied)
		}
	}
	return docs, nil
}

// Delete removes a document by key.
func (m *Memory) Delete(ctx context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection][key]; !ok {
		return ErrNotFound
	}
	delete(m.collections[collection], key)
	return nil
}

// Len reports the number of documents in a collection.
func (m *Memory) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

func (m *Memory) put(collection, key string, doc Document) error {
	copied, err := copyDocument(doc)
	if err != nil {
		return err
	}
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]Document)
	}
	m.collections[collection][key] = copied
	return nil
}

func (m *Memory) checkUnique(collection, key string, doc Document) error {
	field, ok := m.unique[collection]
	if !ok {
		return nil
	}
	value := fieldString(doc, field)
	if value == "" {
		return nil
	}
	for existingKey, existing := range m.collections[collection] {
		if existingKey != key && fieldString(existing, field) == value {
			return ErrDuplicateKey
		}
	}
	return nil
}

func fieldString(doc Document, field string) string {
	value, ok := doc[field]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

// copyDocument round-trips through JSON so callers never share mutable
// nested state with the store.
func copyDocument(doc Document) (Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var copied Document
	if err := json.Unmarshal(raw, &copied); err != nil {
		return nil, err
	}
	return copied, nil
}

var _ Store = (*Memory)(nil)
