package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"collabhub-go/internal/models"
	"collabhub-go/internal/push"
)

// NotificationsHandler lists the caller's feed (GET) or, for admins,
// dispatches a notification to a set of users (POST).
func (h *Handler) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listNotifications(w, r)
	case http.MethodPost:
		h.sendNotification(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := GetCurrentUser(r)
	if userID == 0 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	notifications, err := h.Feed.Notifications(r.Context(), userID)
	if err != nil {
		log.Println("Failed to load feed:", err)
		http.Error(w, "Failed to load notifications", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

func (h *Handler) sendNotification(w http.ResponseWriter, r *http.Request) {
	_, _, role := GetCurrentUser(r)
	if role != "admin" {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req struct {
		UserIDs []int          `json:"user_ids"`
		Type    string         `json:"type"`
		Title   string         `json:"title"`
		Body    string         `json:"body"`
		Link    string         `json:"link"`
		Data    map[string]any `json:"data"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Title == "" || len(req.UserIDs) == 0 {
		http.Error(w, "title and user_ids are required", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = models.NotificationSystem
	}

	created := 0
	for _, userID := range req.UserIDs {
		if _, err := h.Feed.AddNotification(r.Context(), userID, req.Type, req.Title, req.Body, req.Link, req.Data); err != nil {
			log.Printf("Failed to add notification for user %d: %v", userID, err)
			continue
		}
		created++
	}

	payload := push.PayloadFromNotification(models.Notification{
		Type:  req.Type,
		Title: req.Title,
		Body:  req.Body,
		Link:  req.Link,
		Data:  req.Data,
	}, h.AppURL)
	reached := h.Push.SendToMultipleUsers(r.Context(), req.UserIDs, payload)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"created": created,
		"reached": reached,
	})
}
