package protocol

import (
	"time"

	"github.com/google/uuid"

	"community-chat/internal/models"
)

type EventType string

// Client → server events.
const (
	EventJoinRoom      EventType = "join_room"
	EventLeaveRoom     EventType = "leave_room"
	EventSendMessage   EventType = "send_message"
	EventEditMessage   EventType = "edit_message"
	EventDeleteMessage EventType = "delete_message"
	EventAddReaction   EventType = "add_reaction"
	EventMarkRead      EventType = "mark_read"
	EventTypingStart   EventType = "typing_start"
	EventTypingStop    EventType = "typing_stop"
	EventSetStatus     EventType = "set_status"
)

// Server → client events.
const (
	EventRoomJoined        EventType = "room_joined"
	EventRoomLeft          EventType = "room_left"
	EventNewMessage        EventType = "new_message"
	EventMessageEdited     EventType = "message_edited"
	EventMessageDeleted    EventType = "message_deleted"
	EventReactionAdded     EventType = "reaction_added"
	EventMessageRead       EventType = "message_read"
	EventUserJoined        EventType = "user_joined"
	EventUserLeft          EventType = "user_left"
	EventUserTyping        EventType = "user_typing"
	EventUserStoppedTyping EventType = "user_stopped_typing"
	EventPresenceChanged   EventType = "presence_changed"
	EventError             EventType = "error"
)

// ClientEvent is the closed set of inbound events. Every variant the wire
// can carry has a type here; DecodeClientEvent rejects anything else.
type ClientEvent interface {
	clientEvent()
}

type JoinRoom struct {
	RoomID uuid.UUID `json:"room_id"`
}

type LeaveRoom struct {
	RoomID uuid.UUID `json:"room_id"`
}

type SendMessage struct {
	RoomID      uuid.UUID           `json:"room_id"`
	Content     string              `json:"content"`
	Type        models.MessageType  `json:"type,omitempty"`
	ReplyTo     *uuid.UUID          `json:"reply_to,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

type EditMessage struct {
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
}

type DeleteMessage struct {
	MessageID uuid.UUID `json:"message_id"`
}

type AddReaction struct {
	MessageID uuid.UUID `json:"message_id"`
	Emoji     string    `json:"emoji"`
}

type MarkRead struct {
	MessageID uuid.UUID `json:"message_id"`
}

type TypingStart struct {
	RoomID uuid.UUID `json:"room_id"`
}

type TypingStop struct {
	RoomID uuid.UUID `json:"room_id"`
}

type SetStatus struct {
	Status  models.PresenceStatus `json:"status"`
	Message string                `json:"message,omitempty"`
}

func (JoinRoom) clientEvent()      {}
func (LeaveRoom) clientEvent()     {}
func (SendMessage) clientEvent()   {}
func (EditMessage) clientEvent()   {}
func (DeleteMessage) clientEvent() {}
func (AddReaction) clientEvent()   {}
func (MarkRead) clientEvent()      {}
func (TypingStart) clientEvent()   {}
func (TypingStop) clientEvent()    {}
func (SetStatus) clientEvent()     {}

// Payloads for server → client events.

type RoomEventPayload struct {
	Room *models.Room `json:"room"`
}

type RoomLeftPayload struct {
	RoomID uuid.UUID `json:"room_id"`
}

type UserEventPayload struct {
	RoomID    uuid.UUID `json:"room_id"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

type TypingPayload struct {
	RoomID   uuid.UUID `json:"room_id"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

type PresencePayload struct {
	UserID        uuid.UUID             `json:"user_id"`
	Status        models.PresenceStatus `json:"status"`
	StatusMessage string                `json:"status_message,omitempty"`
	LastSeen      time.Time             `json:"last_seen"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
