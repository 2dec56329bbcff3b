package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/caremesh/caremesh/internal/audit"
	"github.com/caremesh/caremesh/internal/identity"
	"github.com/caremesh/caremesh/internal/profile"
)

// ProfileReader loads profiles for authenticated subjects.
type ProfileReader interface {
	Get(ctx context.Context, key string) (*profile.Profile, error)
}

// Recorder is the audit write path consumed by the gateway.
type Recorder interface {
	Record(ctx context.Context, event audit.Event) error
}

// Config holds gateway behaviour resolved once at startup.
type Config struct {
	// RequireEmailVerification selects the strict compliance mode: only
	// fully verified, active accounts may sign in. When false the
	// frictionless onboarding mode also admits pending accounts.
	RequireEmailVerification bool
}

// Gateway authenticates credentials and projects profiles into session
// claims.
type Gateway struct {
	provider identity.Provider
	profiles ProfileReader
	recorder Recorder
	logger   *slog.Logger
	cfg      Config
}

// NewGateway constructs a Gateway.
func NewGateway(provider identity.Provider, profiles ProfileReader, recorder Recorder, logger *slog.Logger, cfg Config) *Gateway {
	return &Gateway{provider: provider, profiles: profiles, recorder: recorder, logger: logger, cfg: cfg}
}

// Authenticate runs the full sign-in flow: input check, provider
// verification, profile load, status gate, audit. On success it returns
// the session-claim projection of the profile.
func (g *Gateway) Authenticate(ctx context.Context, email, secret string, client ClientContext) (*profile.Claims, error) {
	if email == "" || secret == "" {
		g.recordFailure(ctx, email, client, "missing email or password")
		return nil, ErrInvalidCredentials
	}

	subjectID, err := g.provider.VerifyPassword(ctx, email, secret)
	if err != nil {
		g.recordFailure(ctx, email, client, "provider rejected credentials")
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	p, err := g.profiles.Get(ctx, subjectID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			g.recordFailure(ctx, email, client, "no profile for verified subject "+subjectID)
			return nil, ErrProfileIntegrity
		}
		g.recordFailure(ctx, email, client, "profile load failed")
		return nil, err
	}

	if err := g.gateStatus(p); err != nil {
		g.recordFailure(ctx, email, client, "status gate: "+err.Error())
		return nil, err
	}

	claims := p.SessionClaims()
	event := audit.Event{
		Action:       audit.ActionLoginSuccess,
		ActorID:      p.SubjectID,
		ResourceType: "profile",
		ResourceID:   p.SubjectID,
		Details: map[string]any{
			"email":      p.Email,
			"role":       string(p.Role),
			"department": p.Department,
			"clientIp":   client.IP,
		},
	}
	if err := g.recorder.Record(ctx, event); err != nil {
		// The sign-in itself succeeded. Losing the success entry is a
		// compliance gap that operations must see.
		g.logger.Error("login succeeded but audit write failed",
			slog.String("subject_id", p.SubjectID),
			slog.Any("error", err),
		)
	}
	return &claims, nil
}

// gateStatus applies the dual-mode account-status predicate.
func (g *Gateway) gateStatus(p *profile.Profile) error {
	if g.cfg.RequireEmailVerification {
		if !p.Active {
			return ErrEmailNotVerified
		}
		if p.Status != profile.StatusActive {
			return ErrAccountInactive
		}
		return nil
	}
	if p.Status == profile.StatusActive || p.Status == profile.StatusPendingVerification {
		return nil
	}
	return ErrAccountInactive
}

func (g *Gateway) recordFailure(ctx context.Context, email string, client ClientContext, reason string) {
	err := g.recorder.Record(ctx, audit.Event{
		Action: audit.ActionLoginFailed,
		Details: map[string]any{
			"attemptedEmail": email,
			"reason":         reason,
			"clientIp":       client.IP,
		},
	})
	if err != nil {
		// A failed audit write must not block the caller from retrying
		// a legitimate sign-in.
		g.logger.Warn("audit write failed for login failure", slog.Any("error", err))
	}
}
