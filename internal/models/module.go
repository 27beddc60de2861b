package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Module is a marketplace module's runtime configuration. It is produced by
// the install flow and read-only while a session is hosted.
type Module struct {
	ID          int            `json:"id"`
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	EntryURL    string         `json:"entry_url"`
	Permissions []string       `json:"permissions"`
	Settings    map[string]any `json:"settings"`
	// EventSecret signs server-to-server event calls from the module backend.
	EventSecret string    `json:"-"`
	Enabled     bool      `json:"enabled"`
	CreatedBy   int       `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// GenerateSecret creates a random module event secret
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
