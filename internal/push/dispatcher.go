package push

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"

	"collabhub-go/internal/metrics"
	"collabhub-go/internal/models"

	"github.com/SherClockHolmes/webpush-go"
	"golang.org/x/time/rate"
)

// SubscriptionStore is the slice of the data store the dispatcher needs.
type SubscriptionStore interface {
	SavePushSubscription(ctx context.Context, userID int, endpoint, p256dh, auth string) error
	DeletePushSubscription(ctx context.Context, userID int, endpoint string) error
	PushSubscriptions(ctx context.Context, userID int) ([]models.PushSubscription, error)
}

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string // mailto: contact sent to the push service
	TTL             int    // seconds
	SendsPerSecond  int
	Burst           int
}

type sendFunc func(ctx context.Context, message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)

// Dispatcher delivers notification payloads to every browser endpoint a user
// has registered. It is constructed once in main and handed to the handlers;
// a dispatcher without VAPID keys is disabled and all sends report false.
type Dispatcher struct {
	store   SubscriptionStore
	cfg     Config
	send    sendFunc
	limiter *rate.Limiter
	enabled bool
}

func NewDispatcher(store SubscriptionStore, cfg Config) *Dispatcher {
	if cfg.TTL <= 0 {
		cfg.TTL = 30
	}
	if cfg.Subscriber == "" {
		cfg.Subscriber = "mailto:admin@example.com"
	}
	if cfg.SendsPerSecond <= 0 {
		cfg.SendsPerSecond = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.SendsPerSecond
	}

	d := &Dispatcher{
		store:   store,
		cfg:     cfg,
		send:    webpush.SendNotificationWithContext,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendsPerSecond), cfg.Burst),
		enabled: cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "",
	}
	if !d.enabled {
		log.Println("VAPID keys not configured, push dispatch disabled")
	}
	return d
}

// Enabled reports whether VAPID keys are configured.
func (d *Dispatcher) Enabled() bool {
	return d.enabled
}

// VAPIDPublicKey returns the key browsers use when subscribing.
func (d *Dispatcher) VAPIDPublicKey() string {
	return d.cfg.VAPIDPublicKey
}

// SaveSubscription upserts a subscription keyed on (user, endpoint).
func (d *Dispatcher) SaveSubscription(ctx context.Context, userID int, sub webpush.Subscription) error {
	return d.store.SavePushSubscription(ctx, userID, sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth)
}

// RemoveSubscription deletes a subscription; removing an absent one is not an error.
func (d *Dispatcher) RemoveSubscription(ctx context.Context, userID int, endpoint string) error {
	return d.store.DeletePushSubscription(ctx, userID, endpoint)
}

// Subscriptions returns the user's registered endpoints in wire shape.
// Store errors are logged and reported as an empty list.
func (d *Dispatcher) Subscriptions(ctx context.Context, userID int) []webpush.Subscription {
	rows, err := d.store.PushSubscriptions(ctx, userID)
	if err != nil {
		log.Printf("Failed to load subscriptions for user %d: %v", userID, err)
		return nil
	}

	subs := make([]webpush.Subscription, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, webpush.Subscription{
			Endpoint: row.Endpoint,
			Keys: webpush.Keys{
				P256dh: row.P256dh,
				Auth:   row.Auth,
			},
		})
	}
	return subs
}

// SendToUser fans the payload out to all of the user's endpoints concurrently
// and returns true iff at least one delivery succeeded. Endpoints the push
// service reports as gone (404/410) are pruned; transient failures keep the
// subscription so a flaky network cannot unsubscribe a device.
func (d *Dispatcher) SendToUser(ctx context.Context, userID int, payload Payload) bool {
	if !d.enabled {
		return false
	}

	rows, err := d.store.PushSubscriptions(ctx, userID)
	if err != nil {
		log.Printf("Failed to load subscriptions for user %d: %v", userID, err)
		return false
	}
	if len(rows) == 0 {
		return false
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to encode push payload: %v", err)
		return false
	}

	var succeeded int32
	var wg sync.WaitGroup
	for _, row := range rows {
		wg.Add(1)
		go func(row models.PushSubscription) {
			defer wg.Done()
			if d.deliver(ctx, body, row) {
				atomic.AddInt32(&succeeded, 1)
			}
		}(row)
	}
	wg.Wait()

	return atomic.LoadInt32(&succeeded) > 0
}

func (d *Dispatcher) deliver(ctx context.Context, body []byte, row models.PushSubscription) bool {
	if err := d.limiter.Wait(ctx); err != nil {
		return false
	}

	sub := &webpush.Subscription{
		Endpoint: row.Endpoint,
		Keys: webpush.Keys{
			P256dh: row.P256dh,
			Auth:   row.Auth,
		},
	}

	resp, err := d.send(ctx, body, sub, &webpush.Options{
		Subscriber:      d.cfg.Subscriber,
		VAPIDPublicKey:  d.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: d.cfg.VAPIDPrivateKey,
		TTL:             d.cfg.TTL,
	})
	if err != nil {
		// Transport-level failure; the endpoint may still be valid.
		log.Printf("Failed to send push to %s: %v", row.Endpoint, err)
		metrics.PushSends.WithLabelValues("error").Inc()
		return false
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		metrics.PushSends.WithLabelValues("ok").Inc()
		return true
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// The push service says the subscription no longer exists.
		if err := d.store.DeletePushSubscription(ctx, row.UserID, row.Endpoint); err != nil {
			log.Printf("Failed to prune subscription %s: %v", row.Endpoint, err)
		} else {
			metrics.SubscriptionsPruned.Inc()
		}
		metrics.PushSends.WithLabelValues("gone").Inc()
		return false
	default:
		log.Printf("Push to %s rejected with status %d", row.Endpoint, resp.StatusCode)
		metrics.PushSends.WithLabelValues("rejected").Inc()
		return false
	}
}

// SendToMultipleUsers sends the payload to every user concurrently and returns
// how many users had at least one successful device.
func (d *Dispatcher) SendToMultipleUsers(ctx context.Context, userIDs []int, payload Payload) int {
	if !d.enabled || len(userIDs) == 0 {
		return 0
	}

	var reached int32
	var wg sync.WaitGroup
	for _, userID := range userIDs {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			if d.SendToUser(ctx, userID, payload) {
				atomic.AddInt32(&reached, 1)
			}
		}(userID)
	}
	wg.Wait()

	return int(atomic.LoadInt32(&reached))
}
