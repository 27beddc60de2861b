package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"collabhub-go/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	notificationTTL = 30 * 24 * time.Hour // 30 days
	feedLimit       = 200
)

// FeedStore handles the per-user notification feed (Redis)
type FeedStore interface {
	AddNotification(ctx context.Context, userID int, ntype, title, body, link string, data map[string]any) (models.Notification, error)
	Notifications(ctx context.Context, userID int) ([]models.Notification, error)
	ClearFeed(ctx context.Context, userID int) error
	Subscribe(ctx context.Context, userID int) *redis.PubSub
}

// DataStore handles durable platform data (PostgreSQL)
type DataStore interface {
	// User methods
	CreateUser(ctx context.Context, username, password, role string) (models.User, error)
	GetUser(ctx context.Context, id int) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, id int, username, role string) error
	DeleteUser(ctx context.Context, id int) error

	// Push subscription methods
	SavePushSubscription(ctx context.Context, userID int, endpoint, p256dh, auth string) error
	DeletePushSubscription(ctx context.Context, userID int, endpoint string) error
	PushSubscriptions(ctx context.Context, userID int) ([]models.PushSubscription, error)

	// Module methods
	CreateModule(ctx context.Context, m models.Module) (models.Module, error)
	GetModule(ctx context.Context, id int) (models.Module, error)
	GetModules(ctx context.Context) ([]models.Module, error)
	UpdateModuleSettings(ctx context.Context, id int, settings map[string]any) error
	DeleteModule(ctx context.Context, id int) error

	// Policy methods
	CreatePolicy(ctx context.Context, p models.Policy) (models.Policy, error)
	GetPolicy(ctx context.Context, id int) (models.Policy, error)
	GetPolicies(ctx context.Context, kind string, activeOnly bool) ([]models.Policy, error)
	UpdatePolicy(ctx context.Context, p models.Policy) error
	DeletePolicy(ctx context.Context, id int) error

	// Resource methods
	CreateResource(ctx context.Context, r models.Resource) (models.Resource, error)
	GetResource(ctx context.Context, id string) (models.Resource, error)
	GetResources(ctx context.Context, includeTrashed bool) ([]models.Resource, error)
	TrashResource(ctx context.Context, id string) error

	// Classification methods
	UpsertClassification(ctx context.Context, c models.Classification) error
	GetClassification(ctx context.Context, resourceID string) (models.Classification, error)

	// Audit methods
	InsertAudit(ctx context.Context, actorID int, action, targetType, targetID, metadata string) error
	ListAudit(ctx context.Context, limit int) ([]models.AuditLog, error)
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(opts *redis.Options) *RedisStore {
	rdb := redis.NewClient(opts)
	return &RedisStore{client: rdb}
}

func feedKey(userID int) string { return fmt.Sprintf("feed:%d", userID) }

func eventChannel(userID int) string { return fmt.Sprintf("notify_events:%d", userID) }

func (s *RedisStore) AddNotification(ctx context.Context, userID int, ntype, title, body, link string, data map[string]any) (models.Notification, error) {
	// Generate ID
	id, err := s.client.Incr(ctx, "notification:next_id").Result()
	if err != nil {
		return models.Notification{}, err
	}

	n := models.Notification{
		ID:        int(id),
		UserID:    userID,
		Type:      ntype,
		Title:     title,
		Body:      body,
		Link:      link,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return models.Notification{}, err
	}

	key := fmt.Sprintf("notification:%d", n.ID)

	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, payload, notificationTTL)

	// Per-user timeline sorted set (score = timestamp)
	pipe.ZAdd(ctx, feedKey(userID), redis.Z{
		Score:  float64(n.CreatedAt.Unix()),
		Member: key,
	})
	// Cap the feed so heavy senders don't grow it unbounded
	pipe.ZRemRangeByRank(ctx, feedKey(userID), 0, -(feedLimit + 1))

	if _, err := pipe.Exec(ctx); err != nil {
		return models.Notification{}, err
	}

	// Publish event for the user's SSE stream
	if err := s.client.Publish(ctx, eventChannel(userID), payload).Err(); err != nil {
		log.Println("Failed to publish notification event:", err)
	}

	return n, nil
}

func (s *RedisStore) Notifications(ctx context.Context, userID int) ([]models.Notification, error) {
	// Newest first
	keys, err := s.client.ZRevRange(ctx, feedKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	var notifications []models.Notification
	for _, key := range keys {
		val, err := s.client.Get(ctx, key).Result()
		if err == redis.Nil {
			// Notification expired, drop it from the timeline
			s.client.ZRem(ctx, feedKey(userID), key)
			continue
		} else if err != nil {
			continue
		}

		var n models.Notification
		if err := json.Unmarshal([]byte(val), &n); err == nil {
			notifications = append(notifications, n)
		}
	}
	return notifications, nil
}

func (s *RedisStore) ClearFeed(ctx context.Context, userID int) error {
	return s.client.Del(ctx, feedKey(userID)).Err()
}

func (s *RedisStore) Subscribe(ctx context.Context, userID int) *redis.PubSub {
	return s.client.Subscribe(ctx, eventChannel(userID))
}
