package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/caremesh/caremesh/internal/docstore"
	"github.com/caremesh/caremesh/internal/rbac"
)

func TestDeriveKey(t *testing.T) {
	require.Equal(t, "drsmithhospitaledu", DeriveKey("Dr.Smith@hospital.edu"))
	require.Equal(t, "j2doeuniorg", DeriveKey("  j2.doe+res@uni.org "))
}

func TestDepartmentLabel(t *testing.T) {
	require.Equal(t, "Internal Medicine", DepartmentLabel("INTERNAL_MEDICINE"))
	require.Equal(t, "Surgery", DepartmentLabel("surgery"))
	require.Equal(t, "", DepartmentLabel(""))
}

func TestSessionClaims(t *testing.T) {
	p := Profile{
		SubjectID:     "subject-1",
		Email:         "res@hospital.edu",
		FirstName:     "Ada",
		LastName:      "Nguyen",
		Role:          rbac.RoleResident,
		Department:    "INTERNAL_MEDICINE",
		PGYLevel:      2,
		InstitutionID: "inst-9",
		EmailVerified: true,
		Permissions:   rbac.PermissionsFor(rbac.RoleResident),
	}
	claims := p.SessionClaims()
	require.Equal(t, "subject-1", claims.SubjectID)
	require.Equal(t, "Ada Nguyen", claims.DisplayName)
	require.Equal(t, "Internal Medicine", claims.DepartmentLabel)
	require.Equal(t, 2, claims.PGYLevel)
	require.Equal(t, rbac.PermissionSet{}, claims.Permissions)
}

func newTestRepo() (*Repository, *docstore.Memory) {
	store := docstore.NewMemory().Unique(Collection, "email")
	return NewRepository(store), store
}

func sampleProfile(subjectID, email string) *Profile {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	return &Profile{
		SubjectID:     subjectID,
		Email:         email,
		FirstName:     "Ada",
		LastName:      "Nguyen",
		Role:          rbac.RoleResident,
		Status:        StatusActive,
		Active:        true,
		EmailVerified: true,
		Department:    "INTERNAL_MEDICINE",
		PGYLevel:      2,
		InstitutionID: "inst-9",
		Permissions:   rbac.PermissionsFor(rbac.RoleResident),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestRepositoryRoundTrip(t *testing.T) {
	repo, _ := newTestRepo()
	ctx := context.Background()

	p := sampleProfile("subject-1", "ada@hospital.edu")
	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.Get(ctx, "subject-1")
	require.NoError(t, err)
	require.Equal(t, p.Email, got.Email)
	require.Equal(t, p.Role, got.Role)
	require.Equal(t, p.Status, got.Status)
	require.Equal(t, p.PGYLevel, got.PGYLevel)
	require.True(t, got.CreatedAt.Equal(p.CreatedAt))

	byEmail, err := repo.FindByEmail(ctx, "ADA@hospital.edu ")
	require.NoError(t, err)
	require.Equal(t, "subject-1", byEmail.SubjectID)
}

func TestRepositoryGetMissing(t *testing.T) {
	repo, _ := newTestRepo()
	_, err := repo.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindByEmail(context.Background(), "nobody@x.edu")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryCreateDuplicateEmail(t *testing.T) {
	repo, _ := newTestRepo()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleProfile("subject-1", "ada@hospital.edu")))
	err := repo.Create(ctx, sampleProfile("subject-2", "ada@hospital.edu"))
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRepositoryRekey(t *testing.T) {
	repo, store := newTestRepo()
	ctx := context.Background()

	derived := DeriveKey("ada@hospital.edu")
	p := sampleProfile(derived, "ada@hospital.edu")
	p.Status = StatusPendingVerification
	p.Active = false
	require.NoError(t, repo.Create(ctx, p))

	moved, err := repo.Rekey(ctx, derived, "subject-77")
	require.NoError(t, err)
	require.Equal(t, "subject-77", moved.SubjectID)

	_, err = repo.Get(ctx, derived)
	require.ErrorIs(t, err, ErrNotFound)
	got, err := repo.Get(ctx, "subject-77")
	require.NoError(t, err)
	require.Equal(t, "ada@hospital.edu", got.Email)
	require.Equal(t, 1, store.Len(Collection))
}
