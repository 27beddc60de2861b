package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"collabhub-go/internal/governance"
	"collabhub-go/internal/models"
)

// PoliciesHandler lists (GET) or creates (POST) policies. Admin only.
func (h *Handler) PoliciesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		kind := r.URL.Query().Get("kind")
		policies, err := h.Data.GetPolicies(r.Context(), kind, false)
		if err != nil {
			http.Error(w, "Failed to get policies", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"policies": policies})

	case http.MethodPost:
		var req struct {
			Name     string        `json:"name"`
			Kind     string        `json:"kind"`
			Priority int           `json:"priority"`
			Active   *bool         `json:"active"`
			Rules    []models.Rule `json:"rules"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		if req.Kind == "" {
			req.Kind = models.PolicyGovernance
		}
		if req.Kind != models.PolicyGovernance && req.Kind != models.PolicyRetention {
			http.Error(w, "Invalid policy kind", http.StatusBadRequest)
			return
		}
		if err := governance.ValidateRules(req.Rules); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		active := true
		if req.Active != nil {
			active = *req.Active
		}

		actorID, _, _ := GetCurrentUser(r)
		policy, err := h.Data.CreatePolicy(r.Context(), models.Policy{
			Name:      req.Name,
			Kind:      req.Kind,
			Priority:  req.Priority,
			Active:    active,
			Rules:     req.Rules,
			CreatedBy: actorID,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		meta, _ := json.Marshal(map[string]any{"name": req.Name, "kind": req.Kind})
		_ = h.Data.InsertAudit(r.Context(), actorID, "create_policy", "policy", strconv.Itoa(policy.ID), string(meta))

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "policy": policy})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// PolicyByIDHandler updates (PUT) or deletes (DELETE) one policy. Admin only.
func (h *Handler) PolicyByIDHandler(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/admin/policies/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	actorID, _, _ := GetCurrentUser(r)

	switch r.Method {
	case http.MethodPut:
		var req struct {
			Name     string        `json:"name"`
			Kind     string        `json:"kind"`
			Priority int           `json:"priority"`
			Active   bool          `json:"active"`
			Rules    []models.Rule `json:"rules"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if err := governance.ValidateRules(req.Rules); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		err := h.Data.UpdatePolicy(r.Context(), models.Policy{
			ID:       id,
			Name:     req.Name,
			Kind:     req.Kind,
			Priority: req.Priority,
			Active:   req.Active,
			Rules:    req.Rules,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		_ = h.Data.InsertAudit(r.Context(), actorID, "update_policy", "policy", idStr, "{}")
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case http.MethodDelete:
		if err := h.Data.DeletePolicy(r.Context(), id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		_ = h.Data.InsertAudit(r.Context(), actorID, "delete_policy", "policy", idStr, "{}")
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GovernanceCheckHandler evaluates a resource context against the active
// governance policies and returns the violations and applied actions.
func (h *Handler) GovernanceCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _, role := GetCurrentUser(r)
	if userID == 0 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var rctx models.ResourceContext
	if err := json.NewDecoder(r.Body).Decode(&rctx); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if rctx.ResourceType == "" {
		http.Error(w, "resource_type is required", http.StatusBadRequest)
		return
	}
	if rctx.UserRole == "" {
		rctx.UserRole = role
	}

	result, err := h.Governance.Evaluate(r.Context(), models.PolicyGovernance, rctx)
	if err != nil {
		log.Println("Policy evaluation failed:", err)
		http.Error(w, "Policy evaluation failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  result,
	})
}
