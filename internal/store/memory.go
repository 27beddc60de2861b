package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"collabhub-go/internal/models"
)

// MemoryStore is an in-memory DataStore used by tests and local development.
type MemoryStore struct {
	mu sync.RWMutex

	nextUserID   int
	nextModuleID int
	nextPolicyID int
	nextAuditID  int

	users           map[int]models.User
	subscriptions   map[int]map[string]models.PushSubscription // userID -> endpoint
	modules         map[int]models.Module
	policies        map[int]models.Policy
	resources       map[string]models.Resource
	classifications map[string]models.Classification
	audit           []models.AuditLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:           make(map[int]models.User),
		subscriptions:   make(map[int]map[string]models.PushSubscription),
		modules:         make(map[int]models.Module),
		policies:        make(map[int]models.Policy),
		resources:       make(map[string]models.Resource),
		classifications: make(map[string]models.Classification),
	}
}

// User methods

func (s *MemoryStore) CreateUser(ctx context.Context, username, password, role string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			return models.User{}, errors.New("username already exists")
		}
	}

	passwordHash, err := models.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}

	s.nextUserID++
	user := models.User{
		ID:           s.nextUserID,
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id int) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, errors.New("user not found")
	}
	return user, nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, errors.New("user not found")
}

func (s *MemoryStore) GetUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, id int, username, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return errors.New("user not found")
	}
	user.Username = username
	user.Role = role
	s.users[id] = user
	return nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.users, id)
	delete(s.subscriptions, id)
	return nil
}

// Push subscription methods

func (s *MemoryStore) SavePushSubscription(ctx context.Context, userID int, endpoint, p256dh, auth string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byEndpoint, ok := s.subscriptions[userID]
	if !ok {
		byEndpoint = make(map[string]models.PushSubscription)
		s.subscriptions[userID] = byEndpoint
	}

	sub, exists := byEndpoint[endpoint]
	if !exists {
		sub = models.PushSubscription{
			UserID:    userID,
			Endpoint:  endpoint,
			CreatedAt: time.Now().UTC(),
		}
	}
	sub.P256dh = p256dh
	sub.Auth = auth
	sub.UpdatedAt = time.Now().UTC()
	byEndpoint[endpoint] = sub
	return nil
}

func (s *MemoryStore) DeletePushSubscription(ctx context.Context, userID int, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if byEndpoint, ok := s.subscriptions[userID]; ok {
		delete(byEndpoint, endpoint)
	}
	return nil
}

func (s *MemoryStore) PushSubscriptions(ctx context.Context, userID int) ([]models.PushSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var subs []models.PushSubscription
	for _, sub := range s.subscriptions[userID] {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Endpoint < subs[j].Endpoint })
	return subs, nil
}

// Module methods

func (s *MemoryStore) CreateModule(ctx context.Context, m models.Module) (models.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.EventSecret == "" {
		secret, err := models.GenerateSecret()
		if err != nil {
			return models.Module{}, err
		}
		m.EventSecret = secret
	}

	s.nextModuleID++
	m.ID = s.nextModuleID
	m.CreatedAt = time.Now().UTC()
	s.modules[m.ID] = m
	return m, nil
}

func (s *MemoryStore) GetModule(ctx context.Context, id int) (models.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.modules[id]
	if !ok {
		return models.Module{}, errors.New("module not found")
	}
	return m, nil
}

func (s *MemoryStore) GetModules(ctx context.Context) ([]models.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	modules := make([]models.Module, 0, len(s.modules))
	for _, m := range s.modules {
		modules = append(modules, m)
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].ID < modules[j].ID })
	return modules, nil
}

func (s *MemoryStore) UpdateModuleSettings(ctx context.Context, id int, settings map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.modules[id]
	if !ok {
		return errors.New("module not found")
	}
	m.Settings = settings
	s.modules[id] = m
	return nil
}

func (s *MemoryStore) DeleteModule(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.modules, id)
	return nil
}

// Policy methods

func (s *MemoryStore) CreatePolicy(ctx context.Context, p models.Policy) (models.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPolicyID++
	p.ID = s.nextPolicyID
	p.CreatedAt = time.Now().UTC()
	s.policies[p.ID] = p
	return p, nil
}

func (s *MemoryStore) GetPolicy(ctx context.Context, id int) (models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[id]
	if !ok {
		return models.Policy{}, errors.New("policy not found")
	}
	return p, nil
}

func (s *MemoryStore) GetPolicies(ctx context.Context, kind string, activeOnly bool) ([]models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var policies []models.Policy
	for _, p := range s.policies {
		if kind != "" && p.Kind != kind {
			continue
		}
		if activeOnly && !p.Active {
			continue
		}
		policies = append(policies, p)
	}
	sort.Slice(policies, func(i, j int) bool {
		if policies[i].Priority != policies[j].Priority {
			return policies[i].Priority > policies[j].Priority
		}
		return policies[i].ID < policies[j].ID
	})
	return policies, nil
}

func (s *MemoryStore) UpdatePolicy(ctx context.Context, p models.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[p.ID]; !ok {
		return errors.New("policy not found")
	}
	s.policies[p.ID] = p
	return nil
}

func (s *MemoryStore) DeletePolicy(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.policies, id)
	return nil
}

// Resource methods

func (s *MemoryStore) CreateResource(ctx context.Context, r models.Resource) (models.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.resources[r.ID] = r
	return r, nil
}

func (s *MemoryStore) GetResource(ctx context.Context, id string) (models.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.resources[id]
	if !ok {
		return models.Resource{}, errors.New("resource not found")
	}
	return r, nil
}

func (s *MemoryStore) GetResources(ctx context.Context, includeTrashed bool) ([]models.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var resources []models.Resource
	for _, r := range s.resources {
		if !includeTrashed && r.Trashed {
			continue
		}
		resources = append(resources, r)
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].ID < resources[j].ID })
	return resources, nil
}

func (s *MemoryStore) TrashResource(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.resources[id]; ok {
		r.Trashed = true
		s.resources[id] = r
	}
	return nil
}

// Classification methods

func (s *MemoryStore) UpsertClassification(ctx context.Context, c models.Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.UpdatedAt = time.Now().UTC()
	s.classifications[c.ResourceID] = c
	return nil
}

func (s *MemoryStore) GetClassification(ctx context.Context, resourceID string) (models.Classification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.classifications[resourceID]
	if !ok {
		return models.Classification{}, errors.New("classification not found")
	}
	return c, nil
}

// Audit methods

func (s *MemoryStore) InsertAudit(ctx context.Context, actorID int, action, targetType, targetID, metadata string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if metadata == "" {
		metadata = "{}"
	}
	s.nextAuditID++
	s.audit = append(s.audit, models.AuditLog{
		ID:         s.nextAuditID,
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	})
	return nil
}

func (s *MemoryStore) ListAudit(ctx context.Context, limit int) ([]models.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.audit) {
		limit = len(s.audit)
	}
	// Newest first
	logs := make([]models.AuditLog, 0, limit)
	for i := len(s.audit) - 1; i >= 0 && len(logs) < limit; i-- {
		logs = append(logs, s.audit[i])
	}
	return logs, nil
}
