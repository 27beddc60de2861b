package modulehost

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/url"
	"sync"
	"time"

	"collabhub-go/internal/metrics"
	"collabhub-go/internal/models"

	"github.com/google/uuid"
)

const (
	// How long the host waits for module:ready before sending host:init
	// anyway. A module that signals ready earlier gets its init immediately.
	initDelay = 300 * time.Millisecond

	maxFrameHeight = 10000 // px
)

// SendFunc delivers a host message to the module. The session engine is
// transport-agnostic; the WebSocket handler injects a connection-bound writer.
type SendFunc func(Message) error

// Session hosts one running module instance. Only messages arriving from the
// module entry URL's origin are handled; everything else is dropped.
type Session struct {
	ID            uuid.UUID
	module        models.Module
	allowedOrigin string
	send          SendFunc

	mu       sync.Mutex
	initSent bool
	closed   bool
	height   int
	timer    *time.Timer
}

func NewSession(module models.Module, send SendFunc) (*Session, error) {
	origin, err := originOf(module.EntryURL)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:            uuid.New(),
		module:        module,
		allowedOrigin: origin,
		send:          send,
	}, nil
}

func originOf(entryURL string) (string, error) {
	u, err := url.Parse(entryURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("module entry url must be absolute")
	}
	return u.Scheme + "://" + u.Host, nil
}

func (s *Session) AllowedOrigin() string { return s.allowedOrigin }

// Height returns the last frame height the module requested, 0 if none.
func (s *Session) Height() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height
}

// Start schedules the host:init greeting. The timer covers modules that never
// signal readiness; a module:ready beats it and cancels the wait.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(initDelay, s.sendInit)
}

// Close stops the pending init timer and marks the session dead.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *Session) sendInit() {
	s.mu.Lock()
	if s.closed || s.initSent {
		s.mu.Unlock()
		return
	}
	s.initSent = true
	s.mu.Unlock()

	s.reply(hostMessage(TypeHostInit, map[string]string{"name": s.module.Name}))
}

func (s *Session) sendSettings() {
	settings := s.module.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	s.reply(hostMessage(TypeHostSettings, map[string]any{"settings": settings}))
}

func (s *Session) reply(msg Message) {
	if err := s.send(msg); err != nil {
		log.Printf("Module session %s: failed to send %s: %v", s.ID, msg.Type, err)
	}
}

// HandleRaw decodes one inbound frame and dispatches it.
func (s *Session) HandleRaw(origin string, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		if origin == s.allowedOrigin {
			metrics.ModuleMessages.WithLabelValues("rejected").Inc()
			s.reply(errorMessage(ErrMalformed))
		}
		return
	}
	s.Handle(origin, msg)
}

// Handle processes one control message. Unknown or malformed messages from the
// allowed origin get an explicit host:error reply instead of a silent drop, so
// protocol drift on the module side is observable.
func (s *Session) Handle(origin string, msg Message) {
	if origin != s.allowedOrigin {
		metrics.ModuleMessages.WithLabelValues("dropped_origin").Inc()
		return
	}

	switch msg.Type {
	case TypeModuleReady:
		// The module's listener is attached; no point waiting out the timer.
		s.sendInit()
		s.sendSettings()

	case TypeModuleRequestSettings:
		s.sendSettings()

	case TypeModuleRequestResize:
		s.handleResize(msg.Payload)

	case "":
		metrics.ModuleMessages.WithLabelValues("rejected").Inc()
		s.reply(errorMessage(ErrMalformed))
		return

	default:
		metrics.ModuleMessages.WithLabelValues("rejected").Inc()
		s.reply(errorMessage(ErrUnknownType))
		return
	}

	metrics.ModuleMessages.WithLabelValues("handled").Inc()
}

func (s *Session) handleResize(payload json.RawMessage) {
	var req resizePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		s.reply(errorMessage(ErrBadHeight))
		return
	}
	if math.IsNaN(req.Height) || math.IsInf(req.Height, 0) || req.Height <= 0 {
		s.reply(errorMessage(ErrBadHeight))
		return
	}

	height := int(req.Height)
	if height > maxFrameHeight {
		height = maxFrameHeight
	}

	s.mu.Lock()
	s.height = height
	s.mu.Unlock()

	s.reply(hostMessage(TypeHostResize, map[string]int{"height": height}))
}
