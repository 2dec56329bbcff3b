package provision

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/caremesh/caremesh/internal/rbac"
)

// DefaultAllowedTLDs is the default institutional-domain policy. Plain
// consumer email domains are rejected.
var DefaultAllowedTLDs = []string{".edu", ".org", ".gov", ".mil"}

// ValidationError reports a single rejected field. Validation runs
// before any external call, so rejection is side-effect free.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("provision: %s: %s", e.Field, e.Message)
}

// RegistrationInput is the self-service registration payload.
type RegistrationInput struct {
	Email              string    `json:"email" validate:"required,email"`
	Password           string    `json:"password" validate:"required"`
	FirstName          string    `json:"firstName" validate:"required"`
	LastName           string    `json:"lastName" validate:"required"`
	Role               rbac.Role `json:"role" validate:"required"`
	InstitutionID      string    `json:"institutionId" validate:"required"`
	Department         string    `json:"department"`
	PGYLevel           int       `json:"pgyLevel"`
	LicenseNumber      string    `json:"licenseNumber"`
	PhoneNumber        string    `json:"phoneNumber"`
	AcceptedTerms      bool      `json:"acceptedTerms"`
	AcceptedCompliance bool      `json:"acceptedCompliance"`
}

// ResidentInput is the admin-initiated resident payload. No credential
// fields: the resident completes credential setup later.
type ResidentInput struct {
	Email         string `json:"email" validate:"required,email"`
	FirstName     string `json:"firstName" validate:"required"`
	LastName      string `json:"lastName" validate:"required"`
	InstitutionID string `json:"institutionId" validate:"required"`
	Department    string `json:"department" validate:"required"`
	PGYLevel      int    `json:"pgyLevel"`
	PhoneNumber   string `json:"phoneNumber"`
}

var phonePattern = regexp.MustCompile(`^\+?[0-9\s\-().]+$`)

// Validator applies the registration rules that go beyond struct tags.
type Validator struct {
	validate    *validator.Validate
	allowedTLDs []string
}

// NewValidator constructs a Validator with the configured institutional
// domain allowlist. An empty list falls back to the default policy.
func NewValidator(allowedTLDs []string) *Validator {
	if len(allowedTLDs) == 0 {
		allowedTLDs = DefaultAllowedTLDs
	}
	return &Validator{validate: validator.New(), allowedTLDs: allowedTLDs}
}

// ValidateRegistration checks a self-service registration payload.
func (v *Validator) ValidateRegistration(in RegistrationInput) error {
	if err := v.validate.Struct(in); err != nil {
		return firstFieldError(err)
	}
	if !in.Role.Valid() {
		return &ValidationError{Field: "role", Message: "unknown role"}
	}
	if err := v.checkInstitutionalEmail(in.Email); err != nil {
		return err
	}
	if err := checkPasswordStrength(in.Password); err != nil {
		return err
	}
	if err := checkRoleRequirements(in.Role, in.Department, in.PGYLevel); err != nil {
		return err
	}
	if in.Role == rbac.RoleFaculty && in.LicenseNumber != "" && len(in.LicenseNumber) < 5 {
		return &ValidationError{Field: "licenseNumber", Message: "must be at least 5 characters"}
	}
	if err := checkPhone(in.PhoneNumber); err != nil {
		return err
	}
	if !in.AcceptedTerms {
		return &ValidationError{Field: "acceptedTerms", Message: "terms of service must be accepted"}
	}
	if !in.AcceptedCompliance {
		return &ValidationError{Field: "acceptedCompliance", Message: "compliance agreement must be accepted"}
	}
	return nil
}

// ValidateResident checks an admin-provisioned resident payload.
func (v *Validator) ValidateResident(in ResidentInput) error {
	if err := v.validate.Struct(in); err != nil {
		return firstFieldError(err)
	}
	if err := v.checkInstitutionalEmail(in.Email); err != nil {
		return err
	}
	if err := checkRoleRequirements(rbac.RoleResident, in.Department, in.PGYLevel); err != nil {
		return err
	}
	return checkPhone(in.PhoneNumber)
}

func (v *Validator) checkInstitutionalEmail(email string) error {
	lowered := strings.ToLower(strings.TrimSpace(email))
	for _, tld := range v.allowedTLDs {
		if strings.HasSuffix(lowered, tld) {
			return nil
		}
	}
	return &ValidationError{Field: "email", Message: "email domain must belong to an institution"}
}

func checkPasswordStrength(password string) error {
	if len(password) < 8 {
		return &ValidationError{Field: "password", Message: "must be at least 8 characters"}
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return &ValidationError{Field: "password", Message: "must contain an uppercase letter, a lowercase letter, and a digit"}
	}
	return nil
}

func checkRoleRequirements(role rbac.Role, department string, pgyLevel int) error {
	if role == rbac.RoleResident || role == rbac.RoleFaculty {
		if department == "" {
			return &ValidationError{Field: "department", Message: "required for this role"}
		}
	}
	if role == rbac.RoleResident {
		if pgyLevel < 1 || pgyLevel > 7 {
			return &ValidationError{Field: "pgyLevel", Message: "must be between 1 and 7"}
		}
	}
	return nil
}

func checkPhone(phone string) error {
	if phone == "" {
		return nil
	}
	if !phonePattern.MatchString(phone) {
		return &ValidationError{Field: "phoneNumber", Message: "contains invalid characters"}
	}
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 10 {
		return &ValidationError{Field: "phoneNumber", Message: "must contain at least 10 digits"}
	}
	return nil
}

func firstFieldError(err error) error {
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		field := fieldErrs[0].Field()
		return &ValidationError{
			Field:   strings.ToLower(field[:1]) + field[1:],
			Message: "failed " + fieldErrs[0].Tag() + " validation",
		}
	}
	return err
}
