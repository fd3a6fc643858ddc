// Package db defines persistence models for the auth event log.
package db

// Event kinds recorded by the server and CLI.
const (
	EventLoginSuccess     = "login_success"
	EventLoginFailure     = "login_failure"
	EventLockout          = "lockout"
	EventPasswordSet      = "password_set"
	EventPasswordChanged  = "password_changed"
	EventPasswordReset    = "password_reset"
	EventPasswordRemoved  = "password_removed"
	EventEmergencyIssued  = "emergency_issued"
	EventSessionDestroyed = "session_destroyed"
	EventSecretRotated    = "secret_rotated"
)

// Event is one auth audit record.
type Event struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Detail    string `json:"detail,omitempty"`
	RemoteIP  string `json:"remote_ip,omitempty"`
	CreatedAt int64  `json:"created_at"`
}
