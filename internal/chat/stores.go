package chat

import (
	"context"

	"github.com/google/uuid"

	"community-chat/internal/models"
)

// RoomStore is the persisted room directory the membership manager
// validates against. The current_users column is the source of truth for
// capacity; IncrementOccupancy must be conditional so concurrent joins
// cannot push it past max_users.
type RoomStore interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	IncrementOccupancy(ctx context.Context, id uuid.UUID) (bool, error)
	DecrementOccupancy(ctx context.Context, id uuid.UUID) error
	SetOccupancy(ctx context.Context, id uuid.UUID, count int) error
}

// MessageStore persists chat messages. Edits, deletes, reactions and read
// receipts all rewrite the stored row; rows are never removed.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	UpdateMessage(ctx context.Context, msg *models.Message) error
}

// PresenceStore mirrors the in-memory presence state for durability of
// last-seen. Upserts are at-least-once, last-write-wins.
type PresenceStore interface {
	UpsertPresence(ctx context.Context, record *models.PresenceRecord) error
}
