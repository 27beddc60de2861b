package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"collabhub-go/internal/models"
	"collabhub-go/internal/modulehost"
	"collabhub-go/internal/push"

	"github.com/gorilla/websocket"
)

// The shim page is same-origin, so the upgrader's default Origin/Host check
// applies as-is; the module iframe never talks to this endpoint directly.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// channelFrame is what the browser shim relays: the iframe message plus the
// origin the browser reported for it.
type channelFrame struct {
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

// ModulesHandler lists modules (GET) or registers one (POST, admin).
func (h *Handler) ModulesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if userID, _, _ := GetCurrentUser(r); userID == 0 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		modules, err := h.Data.GetModules(r.Context())
		if err != nil {
			http.Error(w, "Failed to get modules", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"modules": modules})

	case http.MethodPost:
		actorID, _, role := GetCurrentUser(r)
		if role != "admin" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		var req struct {
			Name        string         `json:"name"`
			Version     string         `json:"version"`
			EntryURL    string         `json:"entry_url"`
			Permissions []string       `json:"permissions"`
			Settings    map[string]any `json:"settings"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if req.Name == "" || req.EntryURL == "" {
			http.Error(w, "name and entry_url are required", http.StatusBadRequest)
			return
		}
		if req.Version == "" {
			req.Version = "1.0.0"
		}
		if req.Permissions == nil {
			req.Permissions = []string{}
		}
		if req.Settings == nil {
			req.Settings = map[string]any{}
		}

		module, err := h.Data.CreateModule(r.Context(), models.Module{
			Name:        req.Name,
			Version:     req.Version,
			EntryURL:    req.EntryURL,
			Permissions: req.Permissions,
			Settings:    req.Settings,
			Enabled:     true,
			CreatedBy:   actorID,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		meta, _ := json.Marshal(map[string]any{"name": req.Name, "entry_url": req.EntryURL})
		_ = h.Data.InsertAudit(r.Context(), actorID, "register_module", "module", strconv.Itoa(module.ID), string(meta))

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "module": module})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ModuleSubHandler routes /api/modules/{id}, /{id}/channel, /{id}/settings
// and /{id}/events.
func (h *Handler) ModuleSubHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/modules/")
	parts := strings.SplitN(rest, "/", 2)

	id, err := strconv.Atoi(parts[0])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	switch sub {
	case "":
		h.moduleByID(w, r, id)
	case "channel":
		h.moduleChannel(w, r, id)
	case "settings":
		h.moduleSettings(w, r, id)
	case "events":
		h.moduleEvents(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) moduleByID(w http.ResponseWriter, r *http.Request, id int) {
	actorID, _, role := GetCurrentUser(r)

	switch r.Method {
	case http.MethodGet:
		if actorID == 0 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		module, err := h.Data.GetModule(r.Context(), id)
		if err != nil {
			http.Error(w, "Module not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"module": module})

	case http.MethodDelete:
		if role != "admin" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if err := h.Data.DeleteModule(r.Context(), id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = h.Data.InsertAudit(r.Context(), actorID, "delete_module", "module", strconv.Itoa(id), "{}")
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) moduleSettings(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actorID, _, role := GetCurrentUser(r)
	if role != "admin" {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req struct {
		Settings map[string]any `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Settings == nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := h.Data.UpdateModuleSettings(r.Context(), id, req.Settings); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	_ = h.Data.InsertAudit(r.Context(), actorID, "update_module_settings", "module", strconv.Itoa(id), "{}")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// moduleChannel upgrades to WebSocket and runs the host session for one
// module instance until the shim disconnects.
func (h *Handler) moduleChannel(w http.ResponseWriter, r *http.Request, id int) {
	userID, _, _ := GetCurrentUser(r)
	if userID == 0 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	module, err := h.Data.GetModule(r.Context(), id)
	if err != nil {
		http.Error(w, "Module not found", http.StatusNotFound)
		return
	}
	if !module.Enabled {
		http.Error(w, "Module is disabled", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("WebSocket upgrade failed:", err)
		return
	}
	defer conn.Close()

	// The init timer and the read loop both write; WriteJSON is not
	// concurrency-safe on its own.
	var writeMu sync.Mutex
	send := func(msg modulehost.Message) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(msg)
	}

	session, err := modulehost.NewSession(module, send)
	if err != nil {
		log.Printf("Bad entry URL for module %d: %v", id, err)
		return
	}
	defer session.Close()

	session.Start()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame channelFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		session.HandleRaw(frame.Origin, frame.Data)
	}
}

// moduleEvents is the server-to-server ingress for module backends. Calls are
// authenticated with an HMAC signature over the body, not a session.
func (h *Handler) moduleEvents(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	module, err := h.Data.GetModule(r.Context(), id)
	if err != nil {
		http.Error(w, "Module not found", http.StatusNotFound)
		return
	}

	if !validateEventSignature(r, module.EventSecret) {
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
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
		req.Type = models.NotificationBusiness
	}

	for _, userID := range req.UserIDs {
		if _, err := h.Feed.AddNotification(r.Context(), userID, req.Type, req.Title, req.Body, req.Link, req.Data); err != nil {
			log.Printf("Failed to add module notification for user %d: %v", userID, err)
		}
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
		"reached": reached,
	})
}
