package push

import (
	"fmt"
	"time"

	"collabhub-go/internal/models"
)

// PayloadAction is one button on the rendered notification.
type PayloadAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Payload is the JSON document delivered to the service worker.
type Payload struct {
	Title              string          `json:"title"`
	Body               string          `json:"body,omitempty"`
	Icon               string          `json:"icon,omitempty"`
	Badge              string          `json:"badge,omitempty"`
	Image              string          `json:"image,omitempty"`
	Tag                string          `json:"tag,omitempty"`
	Data               map[string]any  `json:"data,omitempty"`
	Actions            []PayloadAction `json:"actions,omitempty"`
	RequireInteraction bool            `json:"requireInteraction,omitempty"`
	Silent             bool            `json:"silent,omitempty"`
	Timestamp          int64           `json:"timestamp"`
}

// PayloadFromNotification maps a feed notification to the push wire shape.
// The action set depends on the notification type; system notifications stay
// on screen until dismissed.
func PayloadFromNotification(n models.Notification, appURL string) Payload {
	p := Payload{
		Title:     n.Title,
		Body:      n.Body,
		Tag:       fmt.Sprintf("%s-%d", n.Type, n.ID),
		Timestamp: time.Now().UnixMilli(),
	}
	if appURL != "" {
		p.Icon = appURL + "/static/icons/icon-192.png"
		p.Badge = appURL + "/static/icons/badge-72.png"
	}

	data := map[string]any{"notification_id": n.ID, "type": n.Type}
	if n.Link != "" {
		data["link"] = n.Link
	}
	for k, v := range n.Data {
		data[k] = v
	}
	p.Data = data

	switch n.Type {
	case models.NotificationChat:
		p.Actions = []PayloadAction{
			{Action: "open", Title: "Open chat"},
			{Action: "reply", Title: "Reply"},
		}
	case models.NotificationDrive:
		p.Actions = []PayloadAction{
			{Action: "open", Title: "Open file"},
		}
	case models.NotificationBusiness:
		p.Actions = []PayloadAction{
			{Action: "view", Title: "View"},
		}
	case models.NotificationSystem:
		p.RequireInteraction = true
	default:
		p.Actions = []PayloadAction{
			{Action: "open", Title: "Open"},
		}
	}

	return p
}
