// Package provision creates identity/profile pairs: self-service
// registration with compensating rollback, and admin-initiated resident
// provisioning with deferred credential setup.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caremesh/caremesh/internal/audit"
	"github.com/caremesh/caremesh/internal/identity"
	"github.com/caremesh/caremesh/internal/profile"
	"github.com/caremesh/caremesh/internal/rbac"
)

var (
	// ErrEmailInUse maps to a conflict-style result.
	ErrEmailInUse = errors.New("provision: email already in use")
	// ErrUnauthorized indicates the acting profile lacks CanCreateUsers.
	ErrUnauthorized = errors.New("provision: acting profile may not create users")
	// ErrNotProvisioned indicates activation was requested for an
	// account that was never admin-provisioned.
	ErrNotProvisioned = errors.New("provision: no provisioned resident for this email")
)

// Registration stages recorded with failure audits.
const (
	stageDuplicateCheck     = "duplicate-check"
	stageCredentialCreation = "credential-creation"
	stageProfilePersistence = "profile-persistence"
)

// ProfileRepo is the profile persistence surface the provisioner needs.
type ProfileRepo interface {
	Get(ctx context.Context, key string) (*profile.Profile, error)
	FindByEmail(ctx context.Context, email string) (*profile.Profile, error)
	Create(ctx context.Context, p *profile.Profile) error
	Save(ctx context.Context, p *profile.Profile) error
	Rekey(ctx context.Context, oldKey, subjectID string) (*profile.Profile, error)
}

// Recorder is the audit write path consumed by the provisioner.
type Recorder interface {
	Record(ctx context.Context, event audit.Event) error
}

// VerificationMailer enqueues verification emails for new accounts.
type VerificationMailer interface {
	EnqueueVerification(ctx context.Context, email, displayName string) error
}

// Config holds provisioning behaviour resolved once at startup.
type Config struct {
	// RequireEmailVerification selects the strict compliance mode: new
	// accounts start pending/inactive and receive a verification email.
	RequireEmailVerification bool
}

// Result is the outcome of a successful registration.
type Result struct {
	Profile *profile.Profile
	Message string
}

// Provisioner creates accounts across the identity provider and the
// profile store.
type Provisioner struct {
	provider  identity.Provider
	profiles  ProfileRepo
	recorder  Recorder
	lease     *EmailLease
	mailer    VerificationMailer
	validator *Validator
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

// NewProvisioner constructs a Provisioner. mailer may be nil when no
// verification emails are sent (lenient mode deployments).
func NewProvisioner(provider identity.Provider, profiles ProfileRepo, recorder Recorder, lease *EmailLease, mailer VerificationMailer, validator *Validator, logger *slog.Logger, cfg Config) *Provisioner {
	return &Provisioner{
		provider:  provider,
		profiles:  profiles,
		recorder:  recorder,
		lease:     lease,
		mailer:    mailer,
		validator: validator,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Register performs self-service registration: validate, create the
// identity, persist the profile keyed by the new subject id, mirror
// claims, audit. A profile-persistence failure deletes the just-created
// identity so no orphaned credential remains.
func (p *Provisioner) Register(ctx context.Context, in RegistrationInput) (*Result, error) {
	// Validation failures are local and side-effect free; no external
	// call and no audit entry happens for them.
	if err := p.validator.ValidateRegistration(in); err != nil {
		return nil, err
	}

	release, err := p.lease.Acquire(ctx, in.Email)
	if err != nil {
		return nil, ErrEmailInUse
	}
	defer release()

	if _, err := p.profiles.FindByEmail(ctx, in.Email); err == nil {
		p.recordRegistrationFailure(ctx, in.Email, stageDuplicateCheck, "profile already exists")
		return nil, ErrEmailInUse
	} else if !errors.Is(err, profile.ErrNotFound) {
		return nil, err
	}

	subjectID, err := p.provider.CreateUser(ctx, in.Email, in.Password)
	if err != nil {
		p.recordRegistrationFailure(ctx, in.Email, stageCredentialCreation, err.Error())
		switch {
		case errors.Is(err, identity.ErrDuplicateEmail):
			return nil, ErrEmailInUse
		case errors.Is(err, identity.ErrWeakSecret):
			return nil, &ValidationError{Field: "password", Message: "rejected by identity provider"}
		}
		return nil, fmt.Errorf("provision: create identity: %w", err)
	}

	// The profile key is the provider's subject id, never derived from
	// the email.
	now := p.now().UTC()
	newProfile := &profile.Profile{
		SubjectID:     subjectID,
		Email:         normalizeEmail(in.Email),
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Role:          in.Role,
		Department:    in.Department,
		PGYLevel:      pgyFor(in.Role, in.PGYLevel),
		LicenseNumber: in.LicenseNumber,
		PhoneNumber:   in.PhoneNumber,
		InstitutionID: in.InstitutionID,
		Permissions:   rbac.PermissionsFor(in.Role),
		CreatedBy:     subjectID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	p.applyVerificationMode(newProfile)

	if err := p.profiles.Create(ctx, newProfile); err != nil {
		p.compensateIdentity(ctx, subjectID, in.Email)
		p.recordRegistrationFailure(ctx, in.Email, stageProfilePersistence, err.Error())
		if errors.Is(err, profile.ErrDuplicateEmail) {
			return nil, ErrEmailInUse
		}
		// Surface the original persistence failure, not the
		// compensation outcome.
		return nil, fmt.Errorf("provision: persist profile: %w", err)
	}

	p.mirrorClaims(ctx, newProfile)

	if p.cfg.RequireEmailVerification && p.mailer != nil {
		name := newProfile.FirstName + " " + newProfile.LastName
		if err := p.mailer.EnqueueVerification(ctx, newProfile.Email, name); err != nil {
			p.logger.Warn("enqueue verification email", slog.Any("error", err))
		}
	}

	p.recordSuccess(ctx, audit.Event{
		Action:       audit.ActionUserRegistrationSuccess,
		ActorID:      subjectID,
		ResourceType: "profile",
		ResourceID:   subjectID,
		Details: map[string]any{
			"email": newProfile.Email,
			"role":  string(newProfile.Role),
		},
	})

	message := "Your account is ready. You can sign in now."
	if p.cfg.RequireEmailVerification {
		message = "Check your email to verify your account before signing in."
	}
	return &Result{Profile: newProfile, Message: message}, nil
}

// ProvisionResident creates a resident profile on behalf of an admin.
// No credential step happens here; the resident completes credential
// setup later through ActivateResident.
func (p *Provisioner) ProvisionResident(ctx context.Context, in ResidentInput, actingAdminID string) (*profile.Profile, error) {
	actor, err := p.profiles.Get(ctx, actingAdminID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !actor.Permissions.CanCreateUsers {
		return nil, ErrUnauthorized
	}

	if err := p.validator.ValidateResident(in); err != nil {
		return nil, err
	}

	if _, err := p.profiles.FindByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailInUse
	} else if !errors.Is(err, profile.ErrNotFound) {
		return nil, err
	}

	// No identity exists yet, so the document key is derived from the
	// email. Credential setup later rekeys the profile to the subject
	// id the provider issues.
	now := p.now().UTC()
	resident := &profile.Profile{
		SubjectID:     profile.DeriveKey(in.Email),
		Email:         normalizeEmail(in.Email),
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Role:          rbac.RoleResident,
		Status:        profile.StatusPendingVerification,
		Active:        false,
		EmailVerified: false,
		Department:    in.Department,
		PGYLevel:      in.PGYLevel,
		Position:      profile.PositionResidentPhysician,
		PhoneNumber:   in.PhoneNumber,
		InstitutionID: in.InstitutionID,
		Permissions:   rbac.PermissionsFor(rbac.RoleResident),
		CreatedBy:     actingAdminID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := p.profiles.Create(ctx, resident); err != nil {
		if errors.Is(err, profile.ErrDuplicateEmail) {
			return nil, ErrEmailInUse
		}
		return nil, err
	}

	p.recordSuccess(ctx, audit.Event{
		Action:       audit.ActionResidentPhysicianCreated,
		ActorID:      actingAdminID,
		ResourceType: "profile",
		ResourceID:   resident.SubjectID,
		Details: map[string]any{
			"email":      resident.Email,
			"department": resident.Department,
			"pgyLevel":   resident.PGYLevel,
		},
	})
	return resident, nil
}

// ActivateResident completes credential setup for an admin-provisioned
// resident: the provider issues a subject id, the profile migrates from
// its email-derived key to that id, and status follows the verification
// mode.
func (p *Provisioner) ActivateResident(ctx context.Context, email, secret string) (*profile.Profile, error) {
	if err := checkPasswordStrength(secret); err != nil {
		return nil, err
	}
	existing, err := p.profiles.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, ErrNotProvisioned
		}
		return nil, err
	}
	if existing.Position != profile.PositionResidentPhysician ||
		existing.SubjectID != profile.DeriveKey(existing.Email) {
		return nil, ErrNotProvisioned
	}

	subjectID, err := p.provider.CreateUser(ctx, email, secret)
	if err != nil {
		if errors.Is(err, identity.ErrDuplicateEmail) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("provision: create identity: %w", err)
	}

	activated, err := p.profiles.Rekey(ctx, existing.SubjectID, subjectID)
	if err != nil {
		p.compensateIdentity(ctx, subjectID, email)
		return nil, fmt.Errorf("provision: rekey profile: %w", err)
	}
	p.applyVerificationMode(activated)
	activated.UpdatedAt = p.now().UTC()
	if err := p.profiles.Save(ctx, activated); err != nil {
		return nil, err
	}
	p.mirrorClaims(ctx, activated)

	p.recordSuccess(ctx, audit.Event{
		Action:       audit.ActionUserUpdated,
		ActorID:      subjectID,
		ResourceType: "profile",
		ResourceID:   subjectID,
		Details: map[string]any{
			"email":      activated.Email,
			"transition": "credential-setup",
		},
	})
	return activated, nil
}

// applyVerificationMode stamps status, active flag, and email-verified
// flag from the single configuration toggle.
func (p *Provisioner) applyVerificationMode(pr *profile.Profile) {
	if p.cfg.RequireEmailVerification {
		pr.Status = profile.StatusPendingVerification
		pr.Active = false
		pr.EmailVerified = false
		return
	}
	pr.Status = profile.StatusActive
	pr.Active = true
	pr.EmailVerified = true
}

// compensateIdentity deletes an identity created moments ago whose
// profile could not be persisted. The outcome is logged either way; a
// failed compensation never masks the original error.
func (p *Provisioner) compensateIdentity(ctx context.Context, subjectID, email string) {
	if err := p.provider.DeleteUser(ctx, subjectID); err != nil {
		p.logger.Error("compensating identity deletion failed, orphaned credential remains",
			slog.String("subject_id", subjectID),
			slog.Any("error", err),
		)
		return
	}
	p.logger.Info("compensating identity deletion succeeded",
		slog.String("subject_id", subjectID),
		slog.String("email", email),
	)
}

// mirrorClaims copies role/department/institution/status onto the
// provider's own token claims. This is an optimisation for relying
// parties; failures are logged, never fatal.
func (p *Provisioner) mirrorClaims(ctx context.Context, pr *profile.Profile) {
	claims := identity.Claims{
		"role":          string(pr.Role),
		"department":    pr.Department,
		"institutionId": pr.InstitutionID,
		"emailVerified": pr.EmailVerified,
		"active":        pr.Active,
	}
	if err := p.provider.SetClaims(ctx, pr.SubjectID, claims); err != nil {
		p.logger.Warn("mirror provider claims", slog.String("subject_id", pr.SubjectID), slog.Any("error", err))
	}
}

func (p *Provisioner) recordRegistrationFailure(ctx context.Context, email, stage, reason string) {
	err := p.recorder.Record(ctx, audit.Event{
		Action: audit.ActionUserRegistrationFailed,
		Details: map[string]any{
			"attemptedEmail": email,
			"stage":          stage,
			"reason":         reason,
		},
	})
	if err != nil {
		p.logger.Warn("audit write failed for registration failure", slog.Any("error", err))
	}
}

// recordSuccess writes the success entry for a mutation that already
// happened. A cascade failure here is escalated to operational logging
// rather than rolling back a fully created account; the emergency tier
// and the critical log give operators the signal to reconcile.
func (p *Provisioner) recordSuccess(ctx context.Context, event audit.Event) {
	if err := p.recorder.Record(ctx, event); err != nil {
		p.logger.Error("mutation succeeded but audit write failed",
			slog.String("action", string(event.Action)),
			slog.String("resource_id", event.ResourceID),
			slog.Any("error", err),
		)
	}
}

func pgyFor(role rbac.Role, level int) int {
	if role != rbac.RoleResident {
		return 0
	}
	return level
}

func normalizeEmail(email string) string {
	return profile.NormalizeEmail(email)
}
