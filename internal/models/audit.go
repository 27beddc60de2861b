package models

import "time"

// Well-known audit actions. Handlers may also record free-form actions.
const (
	AuditPolicyViolation = "POLICY_VIOLATION"
	AuditRetentionSweep  = "RETENTION_SWEEP"
)

type AuditLog struct {
	ID         int       `json:"id"`
	ActorID    int       `json:"actor_id"` // 0 means the system itself
	Action     string    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id,omitempty"`
	Metadata   string    `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
