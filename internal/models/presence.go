package models

import (
	"time"

	"github.com/google/uuid"
)

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusBusy    PresenceStatus = "busy"
	StatusOffline PresenceStatus = "offline"
)

// PresenceRecord is upserted on every connect/disconnect/room change.
// Exactly one row exists per user.
type PresenceRecord struct {
	UserID        uuid.UUID      `json:"user_id"`
	IsOnline      bool           `json:"is_online"`
	LastSeen      time.Time      `json:"last_seen"`
	CurrentRoom   *uuid.UUID     `json:"current_room,omitempty"`
	ConnectionID  string         `json:"connection_id,omitempty"`
	Status        PresenceStatus `json:"status"`
	StatusMessage string         `json:"status_message,omitempty"`
}
