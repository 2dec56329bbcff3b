package auth

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/caremesh/caremesh/internal/audit"
	"github.com/caremesh/caremesh/internal/docstore"
	"github.com/caremesh/caremesh/internal/identity"
	"github.com/caremesh/caremesh/internal/profile"
	"github.com/caremesh/caremesh/internal/rbac"
)

type fakeProvider struct {
	subjects map[string]string // email -> subject id
	secret   string
	calls    int
}

func (p *fakeProvider) VerifyPassword(ctx context.Context, email, secret string) (string, error) {
	p.calls++
	subject, ok := p.subjects[email]
	if !ok || secret != p.secret {
		return "", identity.ErrInvalidCredentials
	}
	return subject, nil
}

func (p *fakeProvider) CreateUser(ctx context.Context, email, secret string) (string, error) {
	return "", nil
}

func (p *fakeProvider) DeleteUser(ctx context.Context, subjectID string) error { return nil }

func (p *fakeProvider) SetClaims(ctx context.Context, subjectID string, claims identity.Claims) error {
	return nil
}

type failingRecorder struct{ events []audit.Event }

func (r *failingRecorder) Record(ctx context.Context, event audit.Event) error {
	r.events = append(r.events, event)
	return context.DeadlineExceeded
}

type gatewayFixture struct {
	gateway  *Gateway
	provider *fakeProvider
	profiles *profile.Repository
	store    *docstore.Memory
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func newFixture(t *testing.T, requireVerification bool, p *profile.Profile) *gatewayFixture {
	t.Helper()
	store := docstore.NewMemory().Unique(profile.Collection, "email")
	profiles := profile.NewRepository(store)
	if p != nil {
		require.NoError(t, profiles.Create(context.Background(), p))
	}
	provider := &fakeProvider{subjects: map[string]string{}, secret: "Sup3rSecret"}
	if p != nil {
		provider.subjects[p.Email] = p.SubjectID
	}
	recorder := audit.NewRecorder(store, discardLogger(), audit.RecorderConfig{Enabled: true, Environment: "test"})
	gw := NewGateway(provider, profiles, recorder, discardLogger(), Config{RequireEmailVerification: requireVerification})
	return &gatewayFixture{gateway: gw, provider: provider, profiles: profiles, store: store}
}

func activeProfile() *profile.Profile {
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	return &profile.Profile{
		SubjectID:     "subject-1",
		Email:         "ada@hospital.edu",
		FirstName:     "Ada",
		LastName:      "Nguyen",
		Role:          rbac.RoleFaculty,
		Status:        profile.StatusActive,
		Active:        true,
		EmailVerified: true,
		Department:    "INTERNAL_MEDICINE",
		InstitutionID: "inst-9",
		Permissions:   rbac.PermissionsFor(rbac.RoleFaculty),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func auditedActions(t *testing.T, store *docstore.Memory, action audit.Action) []docstore.Document {
	t.Helper()
	docs, err := store.QueryByField(context.Background(), audit.CollectionPrimary, "action", string(action))
	require.NoError(t, err)
	return docs
}

func TestAuthenticateEmptyInputSkipsProvider(t *testing.T) {
	fx := newFixture(t, true, activeProfile())

	_, err := fx.gateway.Authenticate(context.Background(), "", "secret", ClientContext{})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Zero(t, fx.provider.calls)

	_, err = fx.gateway.Authenticate(context.Background(), "ada@hospital.edu", "", ClientContext{})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Zero(t, fx.provider.calls)

	require.Len(t, auditedActions(t, fx.store, audit.ActionLoginFailed), 2)
}

func TestAuthenticateProviderRejection(t *testing.T) {
	fx := newFixture(t, true, activeProfile())

	_, err := fx.gateway.Authenticate(context.Background(), "ada@hospital.edu", "wrong", ClientContext{IP: "10.0.0.1"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Equal(t, 1, fx.provider.calls)

	failures := auditedActions(t, fx.store, audit.ActionLoginFailed)
	require.Len(t, failures, 1)
	details := failures[0]["details"].(map[string]any)
	require.Equal(t, "ada@hospital.edu", details["attemptedEmail"])
}

func TestAuthenticateMissingProfileIsIntegrityError(t *testing.T) {
	fx := newFixture(t, true, nil)
	fx.provider.subjects["ghost@hospital.edu"] = "subject-ghost"

	_, err := fx.gateway.Authenticate(context.Background(), "ghost@hospital.edu", "Sup3rSecret", ClientContext{})
	require.ErrorIs(t, err, ErrProfileIntegrity)
	require.Len(t, auditedActions(t, fx.store, audit.ActionLoginFailed), 1)
}

func TestAuthenticateStrictModePendingProfile(t *testing.T) {
	p := activeProfile()
	p.Status = profile.StatusPendingVerification
	p.Active = false
	p.EmailVerified = false
	fx := newFixture(t, true, p)

	_, err := fx.gateway.Authenticate(context.Background(), p.Email, "Sup3rSecret", ClientContext{})
	require.ErrorIs(t, err, ErrEmailNotVerified)
}

func TestAuthenticateStrictModeSuspendedProfile(t *testing.T) {
	p := activeProfile()
	p.Status = profile.StatusSuspended
	fx := newFixture(t, true, p)

	_, err := fx.gateway.Authenticate(context.Background(), p.Email, "Sup3rSecret", ClientContext{})
	require.ErrorIs(t, err, ErrAccountInactive)
}

func TestAuthenticateLenientModeAdmitsPending(t *testing.T) {
	p := activeProfile()
	p.Status = profile.StatusPendingVerification
	p.Active = false
	p.EmailVerified = false
	fx := newFixture(t, false, p)

	claims, err := fx.gateway.Authenticate(context.Background(), p.Email, "Sup3rSecret", ClientContext{})
	require.NoError(t, err)
	require.Equal(t, "subject-1", claims.SubjectID)
}

func TestAuthenticateLenientModeStillRejectsSuspended(t *testing.T) {
	p := activeProfile()
	p.Status = profile.StatusSuspended
	fx := newFixture(t, false, p)

	_, err := fx.gateway.Authenticate(context.Background(), p.Email, "Sup3rSecret", ClientContext{})
	require.ErrorIs(t, err, ErrAccountInactive)
}

func TestAuthenticateSuccess(t *testing.T) {
	fx := newFixture(t, true, activeProfile())

	claims, err := fx.gateway.Authenticate(context.Background(), "ada@hospital.edu", "Sup3rSecret", ClientContext{IP: "10.1.2.3"})
	require.NoError(t, err)
	require.Equal(t, "subject-1", claims.SubjectID)
	require.Equal(t, rbac.RoleFaculty, claims.Role)
	require.Equal(t, "Ada Nguyen", claims.DisplayName)
	require.Equal(t, "Internal Medicine", claims.DepartmentLabel)
	require.True(t, claims.Permissions.CanCreateEvaluations)

	successes := auditedActions(t, fx.store, audit.ActionLoginSuccess)
	require.Len(t, successes, 1)
	require.Equal(t, "subject-1", successes[0]["actorId"])
	details := successes[0]["details"].(map[string]any)
	require.Equal(t, "10.1.2.3", details["clientIp"])
	require.Equal(t, "faculty", details["role"])
}

func TestAuthenticateSucceedsWhenSuccessAuditFails(t *testing.T) {
	p := activeProfile()
	store := docstore.NewMemory().Unique(profile.Collection, "email")
	profiles := profile.NewRepository(store)
	require.NoError(t, profiles.Create(context.Background(), p))
	provider := &fakeProvider{subjects: map[string]string{p.Email: p.SubjectID}, secret: "Sup3rSecret"}
	recorder := &failingRecorder{}
	gw := NewGateway(provider, profiles, recorder, discardLogger(), Config{RequireEmailVerification: true})

	claims, err := gw.Authenticate(context.Background(), p.Email, "Sup3rSecret", ClientContext{})
	require.NoError(t, err)
	require.Equal(t, "subject-1", claims.SubjectID)
	require.Len(t, recorder.events, 1)
	require.Equal(t, audit.ActionLoginSuccess, recorder.events[0].Action)
}
