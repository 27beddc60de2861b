package models

import "time"

// Policy kinds. Governance policies are checked at access time, retention
// policies are applied by the scheduled sweeper.
const (
	PolicyGovernance = "governance"
	PolicyRetention  = "retention"
)

// Rule action types.
const (
	ActionBlock        = "block"
	ActionWarn         = "warn"
	ActionLog          = "log"
	ActionAutoClassify = "auto_classify"
	ActionAutoDelete   = "auto_delete"
)

type Policy struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Priority  int       `json:"priority"`
	Active    bool      `json:"active"`
	Rules     []Rule    `json:"rules"`
	CreatedBy int       `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type Rule struct {
	Conditions Conditions `json:"conditions"`
	Action     RuleAction `json:"action"`
}

// Conditions are AND-ed; a zero value matches everything.
type Conditions struct {
	ResourceType string `json:"resource_type,omitempty"`
	UserRole     string `json:"user_role,omitempty"`
	Sensitivity  string `json:"sensitivity,omitempty"`
	MaxAgeDays   int    `json:"max_age_days,omitempty"`
}

type RuleAction struct {
	Type           string `json:"type"`
	Classification string `json:"classification,omitempty"`
}

// ResourceContext is the metadata a policy rule is evaluated against.
type ResourceContext struct {
	ResourceID   string    `json:"resource_id"`
	ResourceType string    `json:"resource_type"`
	UserRole     string    `json:"user_role,omitempty"`
	Sensitivity  string    `json:"sensitivity,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Resource is a stored platform resource subject to retention sweeps.
type Resource struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	OwnerID     int       `json:"owner_id"`
	Sensitivity string    `json:"sensitivity,omitempty"`
	Trashed     bool      `json:"trashed"`
	CreatedAt   time.Time `json:"created_at"`
}

type Classification struct {
	ResourceID string    `json:"resource_id"`
	Label      string    `json:"label"`
	PolicyID   int       `json:"policy_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}
