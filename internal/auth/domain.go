// Package auth verifies credentials against the identity provider and
// gates sign-in on account status. Every attempt, successful or not, is
// recorded through the audit layer.
package auth

import "errors"

// Authentication failures. Handlers map these to generic, non-leaky
// user-facing messages; the audit trail keeps the detailed reason.
var (
	// ErrInvalidCredentials covers bad input and provider rejection.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrEmailNotVerified is returned in strict mode for accounts that
	// have not completed email verification.
	ErrEmailNotVerified = errors.New("auth: email verification required")
	// ErrAccountInactive covers suspended and deactivated accounts.
	ErrAccountInactive = errors.New("auth: account inactive or suspended")
	// ErrProfileIntegrity indicates the provider verified credentials
	// but no profile exists for the subject id. The identity and
	// profile stores are out of sync; this is an operator-level fault,
	// not a wrong password.
	ErrProfileIntegrity = errors.New("auth: no profile for verified subject")
)

// ClientContext carries request metadata recorded with sign-in events.
type ClientContext struct {
	IP        string
	UserAgent string
}
