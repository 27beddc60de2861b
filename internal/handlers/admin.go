package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// === User Management ===

func (h *Handler) GetUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.Data.GetUsers(r.Context())
	if err != nil {
		http.Error(w, "Failed to get users", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Role != "admin" && req.Role != "member" {
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	}

	user, err := h.Data.CreateUser(r.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if actorID, _, _ := GetCurrentUser(r); actorID != 0 {
		meta, _ := json.Marshal(map[string]any{"username": req.Username, "role": req.Role})
		_ = h.Data.InsertAudit(r.Context(), actorID, "create_user", "user", strconv.Itoa(user.ID), string(meta))
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (h *Handler) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/admin/users/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Role != "admin" && req.Role != "member" {
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	}

	if err := h.Data.UpdateUser(r.Context(), id, req.Username, req.Role); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if actorID, _, _ := GetCurrentUser(r); actorID != 0 {
		meta, _ := json.Marshal(map[string]any{"username": req.Username, "role": req.Role})
		_ = h.Data.InsertAudit(r.Context(), actorID, "update_user", "user", idStr, string(meta))
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/admin/users/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	if err := h.Data.DeleteUser(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if actorID, _, _ := GetCurrentUser(r); actorID != 0 {
		_ = h.Data.InsertAudit(r.Context(), actorID, "delete_user", "user", idStr, "{}")
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Audit listing
func (h *Handler) GetAuditLogsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}
	logs, err := h.Data.ListAudit(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to load audit logs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
