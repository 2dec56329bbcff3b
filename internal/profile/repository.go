package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/caremesh/caremesh/internal/docstore"
)

// Collection is the document collection holding profiles.
const Collection = "profiles"

var (
	// ErrNotFound indicates no profile exists for the key.
	ErrNotFound = errors.New("profile: not found")
	// ErrDuplicateEmail indicates a profile already holds the email.
	ErrDuplicateEmail = errors.New("profile: email already registered")
)

// Repository persists profiles in the document store.
type Repository struct {
	store docstore.Store
}

// NewRepository constructs a Repository.
func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// Get fetches a profile by its document key.
func (r *Repository) Get(ctx context.Context, key string) (*Profile, error) {
	doc, err := r.store.Get(ctx, Collection, key)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fromDocument(doc)
}

// FindByEmail fetches a profile by its email field.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*Profile, error) {
	docs, err := r.store.QueryByField(ctx, Collection, "email", NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return fromDocument(docs[0])
}

// Create inserts a new profile. The store's unique constraints reject a
// duplicate key or email.
func (r *Repository) Create(ctx context.Context, p *Profile) error {
	doc, err := toDocument(p)
	if err != nil {
		return err
	}
	if err := r.store.Insert(ctx, Collection, p.SubjectID, doc); err != nil {
		if errors.Is(err, docstore.ErrDuplicateKey) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// Save overwrites an existing profile.
func (r *Repository) Save(ctx context.Context, p *Profile) error {
	doc, err := toDocument(p)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, Collection, p.SubjectID, doc)
}

// Rekey migrates a profile from an email-derived key to the subject id
// issued once the owner completes credential setup. The old document is
// removed in the same call so the email uniqueness index stays clean.
func (r *Repository) Rekey(ctx context.Context, oldKey, subjectID string) (*Profile, error) {
	p, err := r.Get(ctx, oldKey)
	if err != nil {
		return nil, err
	}
	if err := r.store.Delete(ctx, Collection, oldKey); err != nil {
		return nil, err
	}
	p.SubjectID = subjectID
	p.UpdatedAt = time.Now().UTC()
	if err := r.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("profile: rekey %s: %w", oldKey, err)
	}
	return p, nil
}

func toDocument(p *Profile) (docstore.Document, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var doc docstore.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func fromDocument(doc docstore.Document) (*Profile, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("profile: decode: %w", err)
	}
	return &p, nil
}
