package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	TypeText   MessageType = "text"
	TypeImage  MessageType = "image"
	TypeFile   MessageType = "file"
	TypeSystem MessageType = "system"
)

type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Reaction groups the users who reacted with one emoji.
type Reaction struct {
	Emoji string      `json:"emoji"`
	Users []uuid.UUID `json:"users"`
	Count int         `json:"count"`
}

type ReadReceipt struct {
	UserID uuid.UUID `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

type Message struct {
	ID          uuid.UUID     `json:"id"`
	RoomID      uuid.UUID     `json:"room_id"`
	SenderID    uuid.UUID     `json:"sender_id"`
	SenderName  string        `json:"sender_name"`
	Content     string        `json:"content"`
	Type        MessageType   `json:"type"`
	Attachments []Attachment  `json:"attachments,omitempty"`
	ReplyTo     *uuid.UUID    `json:"reply_to,omitempty"`
	IsEdited    bool          `json:"is_edited"`
	EditedAt    *time.Time    `json:"edited_at,omitempty"`
	IsDeleted   bool          `json:"is_deleted"`
	DeletedAt   *time.Time    `json:"deleted_at,omitempty"`
	DeletedBy   *uuid.UUID    `json:"deleted_by,omitempty"`
	Reactions   []Reaction    `json:"reactions"`
	ReadBy      []ReadReceipt `json:"read_by"`
	CreatedAt   time.Time     `json:"created_at"`
}

// AddReaction records the pair idempotently and reports whether
// the reaction set actually changed.
func (m *Message) AddReaction(userID uuid.UUID, emoji string) bool {
	for i := range m.Reactions {
		if m.Reactions[i].Emoji != emoji {
			continue
		}
		for _, u := range m.Reactions[i].Users {
			if u == userID {
				return false
			}
		}
		m.Reactions[i].Users = append(m.Reactions[i].Users, userID)
		m.Reactions[i].Count = len(m.Reactions[i].Users)
		return true
	}
	m.Reactions = append(m.Reactions, Reaction{
		Emoji: emoji,
		Users: []uuid.UUID{userID},
		Count: 1,
	})
	return true
}

// MarkRead appends a read receipt once per user.
func (m *Message) MarkRead(userID uuid.UUID, at time.Time) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return false
		}
	}
	m.ReadBy = append(m.ReadBy, ReadReceipt{UserID: userID, ReadAt: at})
	return true
}
