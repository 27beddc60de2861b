// Package governance evaluates declarative policy rules against resource
// metadata and applies their actions.
package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"collabhub-go/internal/metrics"
	"collabhub-go/internal/models"
)

// PolicyStore is the slice of the data store the engine needs.
type PolicyStore interface {
	GetPolicies(ctx context.Context, kind string, activeOnly bool) ([]models.Policy, error)
	UpsertClassification(ctx context.Context, c models.Classification) error
	TrashResource(ctx context.Context, id string) error
	InsertAudit(ctx context.Context, actorID int, action, targetType, targetID, metadata string) error
}

// Violation records one matched rule.
type Violation struct {
	PolicyID   int    `json:"policy_id"`
	PolicyName string `json:"policy_name"`
	RuleIndex  int    `json:"rule_index"`
	ActionType string `json:"action_type"`
}

// ActionRecord reports what actually happened for one action. Actions the
// engine cannot enforce itself (block, warn) are surfaced with Enforced=false
// so callers never mistake a flag for an applied effect.
type ActionRecord struct {
	PolicyID int    `json:"policy_id"`
	Type     string `json:"type"`
	Executed bool   `json:"executed"`
	Enforced bool   `json:"enforced"`
	Error    string `json:"error,omitempty"`
}

// Result is the outcome of evaluating one resource context.
type Result struct {
	Violations []Violation    `json:"violations"`
	Actions    []ActionRecord `json:"actions"`
	Blocked    bool           `json:"blocked"`
	Warned     bool           `json:"warned"`
}

type Engine struct {
	store PolicyStore
}

func NewEngine(store PolicyStore) *Engine {
	return &Engine{store: store}
}

// RuleMatches reports whether every present condition holds for the context.
// A rule with no conditions matches every resource; creating one fires the
// policy on everything, which is intentional current behavior.
func RuleMatches(rule models.Rule, rctx models.ResourceContext) bool {
	c := rule.Conditions

	if c.ResourceType != "" && c.ResourceType != rctx.ResourceType {
		return false
	}
	if c.UserRole != "" && c.UserRole != rctx.UserRole {
		return false
	}
	if c.Sensitivity != "" && c.Sensitivity != rctx.Sensitivity {
		return false
	}
	if c.MaxAgeDays > 0 {
		if rctx.CreatedAt.IsZero() {
			return false
		}
		cutoff := time.Now().AddDate(0, 0, -c.MaxAgeDays)
		if rctx.CreatedAt.After(cutoff) {
			return false
		}
	}

	return true
}

// Evaluate checks the context against every active policy of the given kind.
// Policies run highest priority first (ties by id); all matching rules
// accumulate rather than stopping at the first match.
func (e *Engine) Evaluate(ctx context.Context, kind string, rctx models.ResourceContext) (Result, error) {
	var result Result

	policies, err := e.store.GetPolicies(ctx, kind, true)
	if err != nil {
		return result, fmt.Errorf("load policies: %w", err)
	}

	for _, policy := range policies {
		for i, rule := range policy.Rules {
			if !RuleMatches(rule, rctx) {
				continue
			}

			metrics.PolicyViolations.Inc()
			result.Violations = append(result.Violations, Violation{
				PolicyID:   policy.ID,
				PolicyName: policy.Name,
				RuleIndex:  i,
				ActionType: rule.Action.Type,
			})
			result.Actions = append(result.Actions, e.executeAction(ctx, policy, rule, rctx, &result))
		}
	}

	return result, nil
}

// executeAction applies one rule action, best effort. Failures are recorded
// on the action, not returned, so one broken action cannot stop the rest.
func (e *Engine) executeAction(ctx context.Context, policy models.Policy, rule models.Rule, rctx models.ResourceContext, result *Result) ActionRecord {
	record := ActionRecord{PolicyID: policy.ID, Type: rule.Action.Type}

	switch rule.Action.Type {
	case models.ActionLog:
		meta, _ := json.Marshal(map[string]any{
			"policy":        policy.Name,
			"resource_type": rctx.ResourceType,
		})
		if err := e.store.InsertAudit(ctx, 0, models.AuditPolicyViolation, rctx.ResourceType, rctx.ResourceID, string(meta)); err != nil {
			record.Error = err.Error()
			return record
		}
		record.Executed = true
		record.Enforced = true

	case models.ActionAutoClassify:
		if rule.Action.Classification == "" {
			record.Error = "rule has no target classification"
			return record
		}
		err := e.store.UpsertClassification(ctx, models.Classification{
			ResourceID: rctx.ResourceID,
			Label:      rule.Action.Classification,
			PolicyID:   policy.ID,
		})
		if err != nil {
			record.Error = err.Error()
			return record
		}
		record.Executed = true
		record.Enforced = true

	case models.ActionAutoDelete:
		if err := e.store.TrashResource(ctx, rctx.ResourceID); err != nil {
			record.Error = err.Error()
			return record
		}
		record.Executed = true
		record.Enforced = true

	case models.ActionBlock:
		// The engine cannot block access itself; the caller enforces it.
		result.Blocked = true
		record.Executed = true

	case models.ActionWarn:
		result.Warned = true
		record.Executed = true

	default:
		record.Error = fmt.Sprintf("unknown action type %q", rule.Action.Type)
		log.Printf("Policy %d has unknown action type %q", policy.ID, rule.Action.Type)
	}

	return record
}

// ValidateRules rejects rules whose action type is not known, so misconfigured
// policies fail at write time instead of evaluation time.
func ValidateRules(rules []models.Rule) error {
	for i, rule := range rules {
		switch rule.Action.Type {
		case models.ActionBlock, models.ActionWarn, models.ActionLog, models.ActionAutoClassify, models.ActionAutoDelete:
		default:
			return fmt.Errorf("rule %d: unknown action type %q", i, rule.Action.Type)
		}
		if rule.Action.Type == models.ActionAutoClassify && rule.Action.Classification == "" {
			return fmt.Errorf("rule %d: auto_classify requires a classification", i)
		}
	}
	return nil
}
