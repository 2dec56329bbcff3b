// Package identity wraps the credential provider that owns email/secret
// pairs. The rest of the system references accounts only by the opaque
// subject id the provider issues.
package identity

import (
	"context"
	"errors"
)

var (
	// ErrInvalidCredentials indicates the email/secret pair was rejected.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrDuplicateEmail indicates an account already exists for the email.
	ErrDuplicateEmail = errors.New("identity: email already in use")
	// ErrWeakSecret indicates the provider rejected the secret.
	ErrWeakSecret = errors.New("identity: secret rejected as too weak")
	// ErrNotFound indicates no account exists for the subject id.
	ErrNotFound = errors.New("identity: account not found")
)

// Claims are provider-side custom attributes mirrored onto tokens so
// relying parties can skip a profile lookup. They are an optimisation,
// never the source of truth.
type Claims map[string]any

// Provider is the external identity boundary.
type Provider interface {
	// VerifyPassword checks credentials and returns the subject id.
	VerifyPassword(ctx context.Context, email, secret string) (string, error)
	// CreateUser provisions a credential pair and returns the new
	// subject id. Fails with ErrDuplicateEmail or ErrWeakSecret.
	CreateUser(ctx context.Context, email, secret string) (string, error)
	// DeleteUser removes an account. Used as the compensating action
	// when profile persistence fails after account creation.
	DeleteUser(ctx context.Context, subjectID string) error
	// SetClaims replaces the custom claims for an account.
	SetClaims(ctx context.Context, subjectID string, claims Claims) error
}
