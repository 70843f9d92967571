package chat

import (
	"github.com/google/uuid"

	"community-chat/internal/protocol"
)

// TypingBroadcaster relays typing signals to a room's subscribers. It
// holds no timers and persists nothing: the sender emits the stop signal
// after its idle window, and receivers expire stale indicators on their
// own when a stop never arrives.
type TypingBroadcaster struct {
	rooms *RoomManager
}

func NewTypingBroadcaster(rooms *RoomManager) *TypingBroadcaster {
	return &TypingBroadcaster{rooms: rooms}
}

func (t *TypingBroadcaster) Start(sender Outbound, roomID uuid.UUID) error {
	if !t.rooms.IsSubscribed(sender.ID(), roomID) {
		return ErrForbidden
	}
	exclude := sender.ID()
	t.rooms.Broadcast(roomID, protocol.NewUserTyping(roomID, sender.ID(), sender.Name()), &exclude)
	return nil
}

func (t *TypingBroadcaster) Stop(sender Outbound, roomID uuid.UUID) error {
	if !t.rooms.IsSubscribed(sender.ID(), roomID) {
		return ErrForbidden
	}
	exclude := sender.ID()
	t.rooms.Broadcast(roomID, protocol.NewUserStoppedTyping(roomID, sender.ID(), sender.Name()), &exclude)
	return nil
}
