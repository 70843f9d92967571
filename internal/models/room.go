package models

import (
	"time"

	"github.com/google/uuid"
)

type RoomType string

const (
	RoomPublic  RoomType = "public"
	RoomPrivate RoomType = "private"
	RoomDirect  RoomType = "direct"
)

// RoomSettings is stored as a JSONB blob on the room row.
type RoomSettings struct {
	AllowAnonymous    bool `json:"allow_anonymous"`
	RequireModeration bool `json:"require_moderation"`
	AllowFileUpload   bool `json:"allow_file_upload"`
	MaxMessageLength  int  `json:"max_message_length"`
}

// BanRecord entries are unique per user within a room.
type BanRecord struct {
	UserID   uuid.UUID `json:"user_id"`
	Reason   string    `json:"reason"`
	BannedAt time.Time `json:"banned_at"`
}

type Room struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Type         RoomType     `json:"type"`
	IsActive     bool         `json:"is_active"`
	MaxUsers     int          `json:"max_users"`
	CurrentUsers int          `json:"current_users"`
	CreatedBy    uuid.UUID    `json:"created_by"`
	Moderators   []uuid.UUID  `json:"moderators"`
	BannedUsers  []BanRecord  `json:"banned_users"`
	Settings     RoomSettings `json:"settings"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// IsBanned reports whether the user appears in the room's ban list.
func (r *Room) IsBanned(userID uuid.UUID) bool {
	for _, ban := range r.BannedUsers {
		if ban.UserID == userID {
			return true
		}
	}
	return false
}

// IsModerator reports whether the user moderates or created the room.
func (r *Room) IsModerator(userID uuid.UUID) bool {
	if r.CreatedBy == userID {
		return true
	}
	for _, mod := range r.Moderators {
		if mod == userID {
			return true
		}
	}
	return false
}

func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		AllowAnonymous:    false,
		RequireModeration: false,
		AllowFileUpload:   true,
		MaxMessageLength:  2000,
	}
}
