package audit

import "time"

// Event is emitted from domain logic to capture compliance-relevant actions
// on host credentials and guest submissions. Keep it transport-agnostic so
// sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	HostID    string    `json:"host_id"`
	GuestID   string    `json:"guest_id,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Action    Action    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
}

// Action names an auditable operation.
type Action string

const (
	ActionCredentialUploaded  Action = "credential_uploaded"
	ActionCredentialVerified  Action = "credential_verified"
	ActionCredentialDeleted   Action = "credential_deleted"
	ActionSubmissionSent      Action = "submission_sent"
	ActionSubmissionFailed    Action = "submission_failed"
	ActionSubmissionConfirmed Action = "submission_confirmed"
)
