package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/caremesh/caremesh/internal/app"
	"github.com/caremesh/caremesh/internal/audit"
	"github.com/caremesh/caremesh/internal/auth"
	"github.com/caremesh/caremesh/internal/docstore"
	"github.com/caremesh/caremesh/internal/identity"
	"github.com/caremesh/caremesh/internal/observability"
	"github.com/caremesh/caremesh/internal/profile"
	"github.com/caremesh/caremesh/internal/provision"
	_ "github.com/caremesh/caremesh/internal/testing/guard"
)

type memoryProvider struct {
	mu       sync.Mutex
	secrets  map[string]string // email -> secret
	subjects map[string]string // email -> subject id
}

func newMemoryProvider() *memoryProvider {
	return &memoryProvider{secrets: make(map[string]string), subjects: make(map[string]string)}
}

func (p *memoryProvider) VerifyPassword(ctx context.Context, email, secret string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.secrets[email] != secret || secret == "" {
		return "", identity.ErrInvalidCredentials
	}
	return p.subjects[email], nil
}

func (p *memoryProvider) CreateUser(ctx context.Context, email, secret string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subjects[email]; ok {
		return "", identity.ErrDuplicateEmail
	}
	subject := uuid.NewString()
	p.subjects[email] = subject
	p.secrets[email] = secret
	return subject, nil
}

func (p *memoryProvider) DeleteUser(ctx context.Context, subjectID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for email, subject := range p.subjects {
		if subject == subjectID {
			delete(p.subjects, email)
			delete(p.secrets, email)
		}
	}
	return nil
}

func (p *memoryProvider) SetClaims(ctx context.Context, subjectID string, claims identity.Claims) error {
	return nil
}

func newServer(t *testing.T, requireVerification bool) (*httptest.Server, *docstore.Memory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := docstore.NewMemory().Unique(profile.Collection, "email")
	provider := newMemoryProvider()
	recorder := audit.NewRecorder(store, logger, audit.RecorderConfig{Enabled: true, Environment: "test"})
	profiles := profile.NewRepository(store)

	gateway := auth.NewGateway(provider, profiles, recorder, logger, auth.Config{
		RequireEmailVerification: requireVerification,
	})
	provisioner := provision.NewProvisioner(
		provider,
		profiles,
		recorder,
		provision.NewEmailLease(nil),
		nil,
		provision.NewValidator(nil),
		logger,
		provision.Config{RequireEmailVerification: requireVerification},
	)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           &app.Config{AppEnv: "test"},
		AuthHandler:      auth.NewHandler(logger, gateway),
		ProvisionHandler: provision.NewHandler(logger, provisioner),
		Metrics:          observability.NewMetrics(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url string, body map[string]any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func registrationBody() map[string]any {
	return map[string]any{
		"email":              "ada.nguyen@hospital.edu",
		"password":           "Str0ngPass",
		"firstName":          "Ada",
		"lastName":           "Nguyen",
		"role":               "resident",
		"institutionId":      "inst-9",
		"department":         "INTERNAL_MEDICINE",
		"pgyLevel":           2,
		"acceptedTerms":      true,
		"acceptedCompliance": true,
	}
}

func TestRegisterThenLogin(t *testing.T) {
	srv, store := newServer(t, false)

	resp, body := postJSON(t, srv.URL+"/accounts/register", registrationBody(), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Contains(t, body["message"], "sign in now")

	resp, claims := postJSON(t, srv.URL+"/auth/login", map[string]any{
		"email":    "ada.nguyen@hospital.edu",
		"password": "Str0ngPass",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "resident", claims["role"])
	require.Equal(t, "ada.nguyen@hospital.edu", claims["email"])

	// Both actions left compliance entries behind.
	entries, err := store.QueryByField(context.Background(), audit.CollectionPrimary, "action", "LOGIN_SUCCESS")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entries, err = store.QueryByField(context.Background(), audit.CollectionPrimary, "action", "USER_REGISTRATION_SUCCESS")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestStrictModeBlocksLoginUntilVerified(t *testing.T) {
	srv, _ := newServer(t, true)

	resp, _ := postJSON(t, srv.URL+"/accounts/register", registrationBody(), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := postJSON(t, srv.URL+"/auth/login", map[string]any{
		"email":    "ada.nguyen@hospital.edu",
		"password": "Str0ngPass",
	}, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Contains(t, body["detail"], "verify your email")
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	srv, _ := newServer(t, false)

	resp, _ := postJSON(t, srv.URL+"/accounts/register", registrationBody(), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = postJSON(t, srv.URL+"/accounts/register", registrationBody(), nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAdminProvisionsResidentOverHTTP(t *testing.T) {
	srv, store := newServer(t, false)

	// Seed an admin directly in the store.
	profiles := profile.NewRepository(store)
	admin := &profile.Profile{
		SubjectID: "admin-1",
		Email:     "admin@hospital.edu",
		Role:      "admin",
	}
	admin.Permissions.CanCreateUsers = true
	require.NoError(t, profiles.Create(context.Background(), admin))

	resp, created := postJSON(t, srv.URL+"/accounts/residents", map[string]any{
		"email":         "new.res@hospital.org",
		"firstName":     "Lee",
		"lastName":      "Park",
		"institutionId": "inst-9",
		"department":    "SURGERY",
		"pgyLevel":      1,
	}, map[string]string{"X-Actor-Subject": "admin-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "resident", created["role"])

	// Missing actor header is rejected outright.
	resp, _ = postJSON(t, srv.URL+"/accounts/residents", map[string]any{}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
