package audit

import "time"

// Event is emitted from domain logic to capture key lifecycle actions. Keep
// it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	AccountID string    `json:"accountId"`
	Email     string    `json:"email"`
	Action    Action    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	// RequestID correlates the event with the HTTP request that caused it.
	RequestID string `json:"requestId,omitempty"`
}

// Action names a lifecycle audit event.
type Action string

const (
	ActionAccountRegistered      Action = "account_registered"
	ActionAdminAccountCreated    Action = "admin_account_created"
	ActionEmailConfirmed         Action = "email_confirmed"
	ActionLoginSucceeded         Action = "login_succeeded"
	ActionLoginFailed            Action = "login_failed"
	ActionAccountLocked          Action = "account_locked"
	ActionPasswordResetRequested Action = "password_reset_requested"
	ActionPasswordReset          Action = "password_reset"
	ActionPasswordChanged        Action = "password_changed"
	ActionProfileUpdated         Action = "profile_updated"
)
