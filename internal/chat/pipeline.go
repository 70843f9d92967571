package chat

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"community-chat/internal/models"
	"community-chat/internal/protocol"
)

// Pipeline validates, persists and fans out chat messages. A message is
// broadcast only after the store accepted it, and both steps happen under
// the room's lock so acceptance order equals broadcast order within a
// room. Validation failures are all-or-nothing: nothing is persisted and
// nothing is broadcast.
type Pipeline struct {
	rooms     *RoomManager
	roomStore RoomStore
	messages  MessageStore
}

func NewPipeline(rooms *RoomManager, roomStore RoomStore, messages MessageStore) *Pipeline {
	return &Pipeline{
		rooms:     rooms,
		roomStore: roomStore,
		messages:  messages,
	}
}

// Send validates in order: room exists and is active, sender not banned,
// content non-empty after trim, content within the room's length limit,
// reply target (when present) lives in the same room.
func (p *Pipeline) Send(ctx context.Context, sender Outbound, req protocol.SendMessage) (*models.Message, error) {
	room, err := p.roomStore.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, ErrNotFound
	}
	if room.IsBanned(sender.ID()) {
		return nil, ErrForbidden
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, newValidationError("content", "must not be empty")
	}
	if max := room.Settings.MaxMessageLength; max > 0 && len(content) > max {
		return nil, newValidationError("content", "exceeds the room's message length limit")
	}

	kind := req.Type
	if kind == "" {
		kind = models.TypeText
	}
	switch kind {
	case models.TypeText, models.TypeImage, models.TypeFile:
	default:
		return nil, newValidationError("type", "must be text, image or file")
	}

	if req.ReplyTo != nil {
		parent, err := p.messages.GetMessage(ctx, *req.ReplyTo)
		if err != nil {
			return nil, newValidationError("reply_to", "references an unknown message")
		}
		if parent.RoomID != req.RoomID {
			return nil, newValidationError("reply_to", "must reference a message in the same room")
		}
	}

	msg := &models.Message{
		ID:          uuid.New(),
		RoomID:      req.RoomID,
		SenderID:    sender.ID(),
		SenderName:  sender.Name(),
		Content:     content,
		Type:        kind,
		Attachments: req.Attachments,
		ReplyTo:     req.ReplyTo,
		Reactions:   []models.Reaction{},
		ReadBy:      []models.ReadReceipt{},
		CreatedAt:   time.Now(),
	}

	rs := p.rooms.state(req.RoomID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err := p.messages.SaveMessage(ctx, msg); err != nil {
		log.Printf("[PIPELINE] Failed to persist message from %s: %v", sender.Name(), err)
		return nil, err
	}

	// The sender's own channel receives the server-confirmed copy too.
	rs.broadcastAllLocked(protocol.NewMessageEvent(msg))
	return msg, nil
}

// AddReaction is idempotent per (message, user, emoji); a duplicate still
// re-broadcasts the current reaction state to the room.
func (p *Pipeline) AddReaction(ctx context.Context, sender Outbound, messageID uuid.UUID, emoji string) (*models.Message, error) {
	if strings.TrimSpace(emoji) == "" {
		return nil, newValidationError("emoji", "must not be empty")
	}

	return p.mutateAndBroadcast(ctx, sender, messageID,
		func(_ *models.Room, msg *models.Message) (bool, error) {
			return msg.AddReaction(sender.ID(), emoji), nil
		},
		protocol.NewReactionAdded,
	)
}

// Edit rewrites a message's content. Only the original sender may edit,
// and deleted messages stay frozen.
func (p *Pipeline) Edit(ctx context.Context, sender Outbound, messageID uuid.UUID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, newValidationError("content", "must not be empty")
	}

	return p.mutateAndBroadcast(ctx, sender, messageID,
		func(room *models.Room, msg *models.Message) (bool, error) {
			if msg.SenderID != sender.ID() {
				return false, ErrForbidden
			}
			if msg.IsDeleted {
				return false, newValidationError("message_id", "message was deleted")
			}
			if max := room.Settings.MaxMessageLength; max > 0 && len(content) > max {
				return false, newValidationError("content", "exceeds the room's message length limit")
			}
			now := time.Now()
			msg.Content = content
			msg.IsEdited = true
			msg.EditedAt = &now
			return true, nil
		},
		protocol.NewMessageEdited,
	)
}

// Delete soft-deletes: the row stays addressable as a reply target but
// renders as removed. The sender or a room moderator may delete.
func (p *Pipeline) Delete(ctx context.Context, sender Outbound, messageID uuid.UUID) (*models.Message, error) {
	return p.mutateAndBroadcast(ctx, sender, messageID,
		func(room *models.Room, msg *models.Message) (bool, error) {
			if msg.IsDeleted {
				return false, nil
			}
			if msg.SenderID != sender.ID() && !room.IsModerator(sender.ID()) {
				return false, ErrForbidden
			}
			now := time.Now()
			deleter := sender.ID()
			msg.IsDeleted = true
			msg.DeletedAt = &now
			msg.DeletedBy = &deleter
			return true, nil
		},
		protocol.NewMessageDeleted,
	)
}

// MarkRead appends a read receipt once per principal.
func (p *Pipeline) MarkRead(ctx context.Context, sender Outbound, messageID uuid.UUID) (*models.Message, error) {
	return p.mutateAndBroadcast(ctx, sender, messageID,
		func(_ *models.Room, msg *models.Message) (bool, error) {
			return msg.MarkRead(sender.ID(), time.Now()), nil
		},
		protocol.NewMessageRead,
	)
}

// mutateAndBroadcast serializes a read-modify-write of one message under
// its room's lock, persists when the mutation changed anything, and
// re-broadcasts the resulting state either way. The same gates as Send
// apply first: the room must be active and the sender not banned.
func (p *Pipeline) mutateAndBroadcast(
	ctx context.Context,
	sender Outbound,
	messageID uuid.UUID,
	mutate func(room *models.Room, msg *models.Message) (persist bool, err error),
	eventFor func(*models.Message) protocol.ServerEvent,
) (*models.Message, error) {
	// First fetch only resolves the room; the authoritative read happens
	// under the room lock below.
	ref, err := p.messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	room, err := p.roomStore.GetRoom(ctx, ref.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, ErrNotFound
	}
	if room.IsBanned(sender.ID()) {
		return nil, ErrForbidden
	}

	rs := p.rooms.state(ref.RoomID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	msg, err := p.messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	persist, err := mutate(room, msg)
	if err != nil {
		return nil, err
	}
	if persist {
		if err := p.messages.UpdateMessage(ctx, msg); err != nil {
			return nil, err
		}
	}

	rs.broadcastAllLocked(eventFor(msg))
	return msg, nil
}
