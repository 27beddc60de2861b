package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"collabhub-go/internal/models"

	"github.com/gorilla/sessions"
)

// resetSessionStore forces the next sessionStore() call to rebuild from the
// current environment.
func resetSessionStore(t *testing.T) {
	t.Helper()
	storeOnce = sync.Once{}
	cookieStore = nil
	t.Cleanup(func() {
		storeOnce = sync.Once{}
		cookieStore = nil
	})
}

func TestSessionSecretLoadedAfterEnv(t *testing.T) {
	const secret = "super-secret-from-env"
	t.Setenv("SESSION_SECRET", secret)
	resetSessionStore(t)

	h, mem, _ := newTestHandler(t)
	if _, err := mem.CreateUser(context.Background(), "alice", "pw", "member"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	cookies := loginAs(t, h, "alice", "pw")

	decode := func(key string) (int, bool) {
		store := sessions.NewCookieStore([]byte(key))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		session, err := store.Get(req, sessionName)
		if err != nil {
			return 0, false
		}
		userID, ok := session.Values["user_id"].(int)
		return userID, ok
	}

	if userID, ok := decode(secret); !ok || userID != 1 {
		t.Errorf("cookie must verify against the env secret, got userID=%d ok=%v", userID, ok)
	}
	if _, ok := decode("secret-key-change-in-production"); ok {
		t.Error("cookie must not verify against the fallback dev key when SESSION_SECRET is set")
	}
}

func TestModuleChannelRejectsCrossOrigin(t *testing.T) {
	h, mem, _ := newTestHandler(t)
	ctx := context.Background()

	if _, err := mem.CreateUser(ctx, "alice", "pw", "member"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	cookies := loginAs(t, h, "alice", "pw")

	module, err := mem.CreateModule(ctx, models.Module{
		Name:     "calendar",
		EntryURL: "https://widgets.example.com/embed.html",
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("CreateModule failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/modules/%d/channel", module.ID), nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	req.Header.Set("Origin", "https://evil.example.com")

	rec := httptest.NewRecorder()
	h.ModuleSubHandler(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("cross-origin handshake should get 403, got %d", rec.Code)
	}
}

// plainWriter is a ResponseWriter that does not implement http.Flusher.
type plainWriter struct {
	header http.Header
	status int
	buf    bytes.Buffer
}

func (w *plainWriter) Header() http.Header {
	if w.header == nil {
		w.header = http.Header{}
	}
	return w.header
}

func (w *plainWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *plainWriter) WriteHeader(status int) { w.status = status }

func TestEventsRequiresFlusher(t *testing.T) {
	h, mem, _ := newTestHandler(t)
	if _, err := mem.CreateUser(context.Background(), "alice", "pw", "member"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	cookies := loginAs(t, h, "alice", "pw")

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := &plainWriter{}
	h.EventsHandler(w, req)

	if w.status != http.StatusInternalServerError {
		t.Errorf("non-flushing writer should get 500, got %d", w.status)
	}
}
