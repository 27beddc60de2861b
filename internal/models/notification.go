package models

import "time"

// Notification types drive the action set attached to the push payload.
const (
	NotificationChat     = "chat"
	NotificationDrive    = "drive"
	NotificationBusiness = "business"
	NotificationSystem   = "system"
)

type Notification struct {
	ID        int            `json:"id"`
	UserID    int            `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body,omitempty"`
	Link      string         `json:"link,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
