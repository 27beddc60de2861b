package modulehost

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"collabhub-go/internal/models"
)

const testOrigin = "https://widgets.example.com"

type recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *recorder) send(msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recorder) byType(msgType string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func newTestSession(t *testing.T) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	session, err := NewSession(models.Module{
		Name:     "calendar",
		EntryURL: testOrigin + "/embed/calendar.html",
		Settings: map[string]any{"theme": "dark"},
	}, rec.send)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return session, rec
}

func TestNewSession_RejectsRelativeEntryURL(t *testing.T) {
	_, err := NewSession(models.Module{Name: "bad", EntryURL: "/embed/x.html"}, func(Message) error { return nil })
	if err == nil {
		t.Error("relative entry URL should be rejected")
	}
}

func TestAllowedOrigin(t *testing.T) {
	session, _ := newTestSession(t)
	if session.AllowedOrigin() != testOrigin {
		t.Errorf("expected origin %s, got %s", testOrigin, session.AllowedOrigin())
	}
}

func TestReadyTriggersSettingsOnce(t *testing.T) {
	session, rec := newTestSession(t)
	defer session.Close()

	session.Handle(testOrigin, Message{Type: TypeModuleReady})

	settings := rec.byType(TypeHostSettings)
	if len(settings) != 1 {
		t.Fatalf("expected exactly one host:settings, got %d", len(settings))
	}

	var payload struct {
		Settings map[string]any `json:"settings"`
	}
	if err := json.Unmarshal(settings[0].Payload, &payload); err != nil {
		t.Fatalf("bad settings payload: %v", err)
	}
	if payload.Settings["theme"] != "dark" {
		t.Errorf("expected theme=dark, got %v", payload.Settings)
	}
}

func TestWrongOriginDropped(t *testing.T) {
	session, rec := newTestSession(t)
	defer session.Close()

	session.Handle("https://evil.example.com", Message{Type: TypeModuleReady})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.messages) != 0 {
		t.Errorf("messages from a foreign origin must get zero replies, got %d", len(rec.messages))
	}
}

func TestRequestSettings(t *testing.T) {
	session, rec := newTestSession(t)
	defer session.Close()

	session.Handle(testOrigin, Message{Type: TypeModuleRequestSettings})

	if len(rec.byType(TypeHostSettings)) != 1 {
		t.Error("module:request:settings should get a host:settings reply")
	}
}

func TestResize(t *testing.T) {
	t.Run("ValidHeight", func(t *testing.T) {
		session, rec := newTestSession(t)
		defer session.Close()

		session.Handle(testOrigin, Message{Type: TypeModuleRequestResize, Payload: json.RawMessage(`{"height":500}`)})

		if session.Height() != 500 {
			t.Errorf("expected height 500, got %d", session.Height())
		}
		if len(rec.byType(TypeHostResize)) != 1 {
			t.Error("expected a host:resize acknowledgment")
		}
	})

	t.Run("NegativeHeightRejected", func(t *testing.T) {
		session, rec := newTestSession(t)
		defer session.Close()

		session.Handle(testOrigin, Message{Type: TypeModuleRequestResize, Payload: json.RawMessage(`{"height":500}`)})
		session.Handle(testOrigin, Message{Type: TypeModuleRequestResize, Payload: json.RawMessage(`{"height":-10}`)})

		if session.Height() != 500 {
			t.Errorf("invalid height must leave the previous value, got %d", session.Height())
		}
		errs := rec.byType(TypeHostError)
		if len(errs) != 1 {
			t.Fatalf("expected one host:error, got %d", len(errs))
		}
		var payload map[string]string
		json.Unmarshal(errs[0].Payload, &payload)
		if payload["code"] != ErrBadHeight {
			t.Errorf("expected code %s, got %s", ErrBadHeight, payload["code"])
		}
	})

	t.Run("OversizeHeightClamped", func(t *testing.T) {
		session, _ := newTestSession(t)
		defer session.Close()

		session.Handle(testOrigin, Message{Type: TypeModuleRequestResize, Payload: json.RawMessage(`{"height":999999}`)})

		if session.Height() != maxFrameHeight {
			t.Errorf("expected clamp to %d, got %d", maxFrameHeight, session.Height())
		}
	})
}

func TestUnknownTypeGetsErrorReply(t *testing.T) {
	session, rec := newTestSession(t)
	defer session.Close()

	session.Handle(testOrigin, Message{Type: "module:launch-missiles"})

	errs := rec.byType(TypeHostError)
	if len(errs) != 1 {
		t.Fatalf("expected one host:error, got %d", len(errs))
	}
	var payload map[string]string
	json.Unmarshal(errs[0].Payload, &payload)
	if payload["code"] != ErrUnknownType {
		t.Errorf("expected code %s, got %s", ErrUnknownType, payload["code"])
	}
}

func TestMalformedFrame(t *testing.T) {
	session, rec := newTestSession(t)
	defer session.Close()

	session.HandleRaw(testOrigin, []byte(`{not json`))

	errs := rec.byType(TypeHostError)
	if len(errs) != 1 {
		t.Fatalf("expected one host:error, got %d", len(errs))
	}

	// Missing type is also malformed
	session.HandleRaw(testOrigin, []byte(`{"payload":{}}`))
	if len(rec.byType(TypeHostError)) != 2 {
		t.Error("frame without a type should be rejected")
	}
}

func TestInitSentExactlyOnce(t *testing.T) {
	session, rec := newTestSession(t)
	defer session.Close()

	session.Start()
	// Ready beats the timer; init must go out now and not again later.
	session.Handle(testOrigin, Message{Type: TypeModuleReady})

	if len(rec.byType(TypeHostInit)) != 1 {
		t.Fatalf("expected host:init immediately after ready, got %d", len(rec.byType(TypeHostInit)))
	}

	time.Sleep(initDelay + 100*time.Millisecond)

	inits := rec.byType(TypeHostInit)
	if len(inits) != 1 {
		t.Fatalf("expected exactly one host:init, got %d", len(inits))
	}
	var payload map[string]string
	json.Unmarshal(inits[0].Payload, &payload)
	if payload["name"] != "calendar" {
		t.Errorf("expected module name in init, got %v", payload)
	}
}

func TestInitTimerFiresWithoutReady(t *testing.T) {
	session, rec := newTestSession(t)
	defer session.Close()

	session.Start()
	time.Sleep(initDelay + 100*time.Millisecond)

	if len(rec.byType(TypeHostInit)) != 1 {
		t.Error("host:init should fire from the timer when the module never signals ready")
	}
}

func TestCloseCancelsInit(t *testing.T) {
	session, rec := newTestSession(t)

	session.Start()
	session.Close()
	time.Sleep(initDelay + 100*time.Millisecond)

	if len(rec.byType(TypeHostInit)) != 0 {
		t.Error("closing the session must cancel the pending init")
	}
}
