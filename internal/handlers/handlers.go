package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"collabhub-go/internal/governance"
	"collabhub-go/internal/push"
	"collabhub-go/internal/store"
)

type Handler struct {
	Data       store.DataStore
	Feed       store.FeedStore
	Push       *push.Dispatcher
	Governance *governance.Engine
	AppURL     string
}

func NewHandler(data store.DataStore, feed store.FeedStore, dispatcher *push.Dispatcher, engine *governance.Engine, appURL string) *Handler {
	return &Handler{
		Data:       data,
		Feed:       feed,
		Push:       dispatcher,
		Governance: engine,
		AppURL:     appURL,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("Failed to encode response:", err)
	}
}

func (h *Handler) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// EventsHandler streams the current user's notification feed over SSE.
func (h *Handler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := GetCurrentUser(r)
	if userID == 0 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	pubsub := h.Feed.Subscribe(r.Context(), userID)
	defer pubsub.Close()

	ch := pubsub.Channel()

	fmt.Fprintf(w, "data: %s\n\n", "connected")
	flusher.Flush()

	for {
		select {
		case msg := <-ch:
			fmt.Fprintf(w, "data: %s\n\n", msg.Payload)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
