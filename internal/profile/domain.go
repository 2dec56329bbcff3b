// Package profile holds the system's own record of a user, keyed by the
// identity provider's subject id.
package profile

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/caremesh/caremesh/internal/rbac"
)

// Status describes the account lifecycle stage.
type Status string

// Known statuses.
const (
	StatusActive              Status = "active"
	StatusPendingVerification Status = "pending_verification"
	StatusSuspended           Status = "suspended"
	StatusInactive            Status = "inactive"
)

// PositionResidentPhysician tags profiles created through the resident
// provisioning path. Roster queries filter on this field to distinguish
// true residents from other resident-role accounts.
const PositionResidentPhysician = "Resident Physician"

// Profile is a user record. SubjectID always equals the identity
// provider's subject id for self-registered accounts; admin-provisioned
// residents carry an email-derived key until credential setup rekeys
// them. Permissions are always exactly rbac.PermissionsFor(Role).
type Profile struct {
	SubjectID      string             `json:"subjectId"`
	Email          string             `json:"email"`
	FirstName      string             `json:"firstName"`
	LastName       string             `json:"lastName"`
	Role           rbac.Role          `json:"role"`
	Status         Status             `json:"status"`
	Active         bool               `json:"active"`
	EmailVerified  bool               `json:"emailVerified"`
	Department     string             `json:"department,omitempty"`
	PGYLevel       int                `json:"pgyLevel,omitempty"`
	Position       string             `json:"position,omitempty"`
	LicenseNumber  string             `json:"licenseNumber,omitempty"`
	PhoneNumber    string             `json:"phoneNumber,omitempty"`
	InstitutionID  string             `json:"institutionId"`
	Permissions    rbac.PermissionSet `json:"permissions"`
	CreatedBy      string             `json:"createdBy,omitempty"`
	LastModifiedBy string             `json:"lastModifiedBy,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// Claims is the session-claim projection returned to the API layer on a
// successful sign-in.
type Claims struct {
	SubjectID       string             `json:"subjectId"`
	Email           string             `json:"email"`
	Role            rbac.Role          `json:"role"`
	FirstName       string             `json:"firstName"`
	LastName        string             `json:"lastName"`
	DisplayName     string             `json:"displayName"`
	Department      string             `json:"department,omitempty"`
	DepartmentLabel string             `json:"departmentLabel,omitempty"`
	PGYLevel        int                `json:"pgyLevel,omitempty"`
	Permissions     rbac.PermissionSet `json:"permissions"`
	InstitutionID   string             `json:"institutionId"`
	EmailVerified   bool               `json:"emailVerified"`
}

var titleCaser = cases.Title(language.English)

// SessionClaims projects the profile into the claim shape.
func (p *Profile) SessionClaims() Claims {
	return Claims{
		SubjectID:       p.SubjectID,
		Email:           p.Email,
		Role:            p.Role,
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		DisplayName:     strings.TrimSpace(p.FirstName + " " + p.LastName),
		Department:      p.Department,
		DepartmentLabel: DepartmentLabel(p.Department),
		PGYLevel:        p.PGYLevel,
		Permissions:     p.Permissions,
		InstitutionID:   p.InstitutionID,
		EmailVerified:   p.EmailVerified,
	}
}

// DepartmentLabel renders a department code like INTERNAL_MEDICINE as a
// human-readable "Internal Medicine".
func DepartmentLabel(code string) string {
	if code == "" {
		return ""
	}
	words := strings.ReplaceAll(strings.ToLower(code), "_", " ")
	return titleCaser.String(words)
}

// NormalizeEmail lowercases and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DeriveKey builds the deterministic email-derived document key used by
// admin provisioning, where no subject id exists yet.
func DeriveKey(email string) string {
	var b strings.Builder
	for _, r := range NormalizeEmail(email) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
