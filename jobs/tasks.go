package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeVerificationEmail is the task type for account verification emails.
	TaskTypeVerificationEmail = "mail:verification"
	// TaskTypeAuditReconcile is the task type for the emergency-tier sweep.
	TaskTypeAuditReconcile = "audit:reconcile"
)

// VerificationEmailPayload carries the information needed to send a
// verification email to a newly registered account.
type VerificationEmailPayload struct {
	To          string `json:"to"`
	DisplayName string `json:"displayName"`
}

// NewVerificationEmailTask constructs an Asynq task.
func NewVerificationEmailTask(payload VerificationEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeVerificationEmail, data), nil
}

// NewAuditReconcileTask constructs the periodic emergency-tier sweep task.
func NewAuditReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskTypeAuditReconcile, nil)
}
