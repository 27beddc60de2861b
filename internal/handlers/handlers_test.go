package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"collabhub-go/internal/governance"
	"collabhub-go/internal/models"
	"collabhub-go/internal/push"
	"collabhub-go/internal/store"

	"github.com/redis/go-redis/v9"
)

// fakeFeed collects notifications without a Redis instance.
type fakeFeed struct {
	added []models.Notification
}

func (f *fakeFeed) AddNotification(ctx context.Context, userID int, ntype, title, body, link string, data map[string]any) (models.Notification, error) {
	n := models.Notification{
		ID:        len(f.added) + 1,
		UserID:    userID,
		Type:      ntype,
		Title:     title,
		Body:      body,
		Link:      link,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	f.added = append(f.added, n)
	return n, nil
}

func (f *fakeFeed) Notifications(ctx context.Context, userID int) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range f.added {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeFeed) ClearFeed(ctx context.Context, userID int) error { return nil }

func (f *fakeFeed) Subscribe(ctx context.Context, userID int) *redis.PubSub { return nil }

func newTestHandler(t *testing.T) (*Handler, *store.MemoryStore, *fakeFeed) {
	t.Helper()
	mem := store.NewMemoryStore()
	feed := &fakeFeed{}
	dispatcher := push.NewDispatcher(mem, push.Config{
		VAPIDPublicKey:  "test-public",
		VAPIDPrivateKey: "test-private",
	})
	h := NewHandler(mem, feed, dispatcher, governance.NewEngine(mem), "https://app.example.com")
	return h, mem, feed
}

func loginAs(t *testing.T, h *Handler, username, password string) []*http.Cookie {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.LoginHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed with status %d", rec.Code)
	}
	return rec.Result().Cookies()
}

func withCookies(req *http.Request, cookies []*http.Cookie) *http.Request {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestLoginRejectsBadPassword(t *testing.T) {
	h, mem, _ := newTestHandler(t)
	if _, err := mem.CreateUser(context.Background(), "alice", "correct", "member"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.LoginHandler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestSubscribeLifecycle(t *testing.T) {
	h, mem, _ := newTestHandler(t)
	user, _ := mem.CreateUser(context.Background(), "alice", "secret", "member")
	cookies := loginAs(t, h, "alice", "secret")

	subscribe := AuthMiddleware(h.SubscribeHandler)

	// Subscribe
	body := []byte(`{"endpoint":"https://push.example.com/dev1","keys":{"p256dh":"pk","auth":"ak"}}`)
	req := withCookies(httptest.NewRequest(http.MethodPost, "/api/push/subscribe", bytes.NewReader(body)), cookies)
	rec := httptest.NewRecorder()
	subscribe(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("subscribe failed with status %d: %s", rec.Code, rec.Body.String())
	}

	subs, _ := mem.PushSubscriptions(context.Background(), user.ID)
	if len(subs) != 1 || subs[0].P256dh != "pk" {
		t.Fatalf("expected 1 stored subscription, got %+v", subs)
	}

	// Unsubscribe
	body = []byte(`{"endpoint":"https://push.example.com/dev1"}`)
	req = withCookies(httptest.NewRequest(http.MethodDelete, "/api/push/subscribe", bytes.NewReader(body)), cookies)
	rec = httptest.NewRecorder()
	subscribe(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unsubscribe failed with status %d", rec.Code)
	}

	subs, _ = mem.PushSubscriptions(context.Background(), user.ID)
	if len(subs) != 0 {
		t.Errorf("expected no subscriptions after unsubscribe, got %d", len(subs))
	}
}

func TestSubscribeRequiresAuth(t *testing.T) {
	h, _, _ := newTestHandler(t)
	subscribe := AuthMiddleware(h.SubscribeHandler)

	req := httptest.NewRequest(http.MethodPost, "/api/push/subscribe", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	subscribe(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a session, got %d", rec.Code)
	}
}

func TestVAPIDKeyHandler(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/push/vapid-key", nil)
	rec := httptest.NewRecorder()
	h.VAPIDKeyHandler(rec, req)

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if resp["publicKey"] != "test-public" {
		t.Errorf("expected public key, got %q", resp["publicKey"])
	}
}

func TestGovernanceCheckEndpoint(t *testing.T) {
	h, mem, _ := newTestHandler(t)
	ctx := context.Background()

	if _, err := mem.CreateUser(ctx, "admin", "secret", "admin"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	cookies := loginAs(t, h, "admin", "secret")

	_, err := mem.CreatePolicy(ctx, models.Policy{
		Name:   "log files",
		Kind:   models.PolicyGovernance,
		Active: true,
		Rules: []models.Rule{{
			Conditions: models.Conditions{ResourceType: "file"},
			Action:     models.RuleAction{Type: models.ActionLog},
		}},
	})
	if err != nil {
		t.Fatalf("CreatePolicy failed: %v", err)
	}

	body, _ := json.Marshal(models.ResourceContext{ResourceID: "doc-1", ResourceType: "file"})
	req := withCookies(httptest.NewRequest(http.MethodPost, "/api/governance/check", bytes.NewReader(body)), cookies)
	rec := httptest.NewRecorder()
	h.GovernanceCheckHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("check failed with status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool              `json:"success"`
		Result  governance.Result `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if len(resp.Result.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(resp.Result.Violations))
	}
	if len(resp.Result.Actions) != 1 || resp.Result.Actions[0].Type != models.ActionLog {
		t.Fatalf("expected 1 log action, got %+v", resp.Result.Actions)
	}

	logs, _ := mem.ListAudit(ctx, 10)
	violations := 0
	for _, entry := range logs {
		if entry.Action == models.AuditPolicyViolation {
			violations++
		}
	}
	if violations != 1 {
		t.Errorf("expected exactly 1 violation audit row, got %d", violations)
	}
}

func TestModuleEventsSignature(t *testing.T) {
	h, mem, feed := newTestHandler(t)
	ctx := context.Background()

	module, err := mem.CreateModule(ctx, models.Module{
		Name:     "tasks",
		EntryURL: "https://tasks.example.com/embed.html",
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("CreateModule failed: %v", err)
	}

	path := fmt.Sprintf("/api/modules/%d/events", module.ID)
	body := []byte(`{"user_ids":[5],"title":"Task assigned","body":"Review Q3 report"}`)

	t.Run("MissingSignature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
		rec := httptest.NewRecorder()
		h.ModuleSubHandler(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401 without a signature, got %d", rec.Code)
		}
	})

	t.Run("ValidSignature", func(t *testing.T) {
		mac := hmac.New(sha256.New, []byte(module.EventSecret))
		mac.Write(body)
		sig := hex.EncodeToString(mac.Sum(nil))

		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
		req.Header.Set("X-Collabhub-Signature", sig)
		rec := httptest.NewRecorder()
		h.ModuleSubHandler(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(feed.added) != 1 || feed.added[0].UserID != 5 {
			t.Errorf("expected one feed notification for user 5, got %+v", feed.added)
		}
		if feed.added[0].Type != models.NotificationBusiness {
			t.Errorf("module events default to business type, got %s", feed.added[0].Type)
		}
	})
}
