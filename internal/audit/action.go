// Package audit provides the mandatory compliance log write path. Every
// authentication and data-mutation action in the system records an entry
// here; entries are immutable once written and retained per policy.
package audit

// Action names a security-relevant event.
type Action string

// Known audit actions.
const (
	ActionLoginSuccess              Action = "LOGIN_SUCCESS"
	ActionLoginFailed               Action = "LOGIN_FAILED"
	ActionUserCreated               Action = "USER_CREATED"
	ActionUserUpdated               Action = "USER_UPDATED"
	ActionUserRegistrationSuccess   Action = "USER_REGISTRATION_SUCCESS"
	ActionUserRegistrationFailed    Action = "USER_REGISTRATION_FAILED"
	ActionSessionTerminated         Action = "SESSION_TERMINATED"
	ActionResidentPhysicianCreated  Action = "RESIDENT_PHYSICIAN_CREATED"
	ActionResidentPhysicianUpdated  Action = "RESIDENT_PHYSICIAN_UPDATED"
	ActionPermissionDenied          Action = "PERMISSION_DENIED"
	ActionEmergencyWriteUnavailable Action = "EMERGENCY_WRITE_UNAVAILABLE"
)

// Event is the caller-supplied portion of an audit entry. ActorID is
// empty for failed or anonymous actions.
type Event struct {
	Action       Action
	ActorID      string
	ResourceType string
	ResourceID   string
	Details      map[string]any
}
