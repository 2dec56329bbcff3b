package provision

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/caremesh/caremesh/internal/profile"
)

// ErrLeaseHeld indicates another registration for the same email is in
// flight.
var ErrLeaseHeld = errors.New("provision: registration already in progress for this email")

const leaseTTL = 30 * time.Second

// EmailLease serialises concurrent registrations for the same email.
// The check-then-create sequence is still a race without it; the lease
// narrows the window and the store's unique email index remains the
// durable backstop.
type EmailLease struct {
	client *redis.Client
}

// NewEmailLease constructs an EmailLease. A nil client disables the
// lease entirely, leaving only the store constraint.
func NewEmailLease(client *redis.Client) *EmailLease {
	return &EmailLease{client: client}
}

// Acquire takes the lease for an email and returns a release function.
func (l *EmailLease) Acquire(ctx context.Context, email string) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	key := "provision:lease:" + profile.DeriveKey(email)
	ok, err := l.client.SetNX(ctx, key, "1", leaseTTL).Result()
	if err != nil {
		// Redis being down must not block registrations; the store
		// constraint still holds.
		return func() {}, nil
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		l.client.Del(releaseCtx, key)
	}
	return release, nil
}
