package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"collabhub-go/internal/models"
	"collabhub-go/internal/push"

	"github.com/SherClockHolmes/webpush-go"
)

// VAPIDKeyHandler returns the public VAPID key browsers subscribe with
func (h *Handler) VAPIDKeyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"publicKey": h.Push.VAPIDPublicKey(),
	})
}

// SubscribeHandler saves or removes a push subscription for the current user
func (h *Handler) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := GetCurrentUser(r)
	if userID == 0 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var sub webpush.Subscription
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil || sub.Endpoint == "" {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		if err := h.Push.SaveSubscription(r.Context(), userID, sub); err != nil {
			log.Printf("Failed to save subscription: %v", err)
			http.Error(w, "Failed to save subscription", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case http.MethodDelete:
		var req struct {
			Endpoint string `json:"endpoint"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		if err := h.Push.RemoveSubscription(r.Context(), userID, req.Endpoint); err != nil {
			log.Printf("Failed to remove subscription: %v", err)
			http.Error(w, "Failed to remove subscription", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// TestPushHandler sends a test notification to the caller's own devices
func (h *Handler) TestPushHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, username, _ := GetCurrentUser(r)
	if userID == 0 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	payload := push.PayloadFromNotification(models.Notification{
		UserID: userID,
		Type:   models.NotificationSystem,
		Title:  "Test notification",
		Body:   "Push delivery works for " + username,
	}, h.AppURL)

	delivered := h.Push.SendToUser(r.Context(), userID, payload)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"delivered": delivered,
	})
}
