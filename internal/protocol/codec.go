package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"community-chat/internal/models"
)

// Envelope wraps every frame on the wire.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerEvent is an outbound frame ready for encoding.
type ServerEvent struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

func (e ServerEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeClientEvent parses one inbound frame into its typed variant.
// The switch is exhaustive over the client event set; unknown types fail.
func DecodeClientEvent(raw []byte) (ClientEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}

	switch env.Type {
	case EventJoinRoom:
		return decodePayload[JoinRoom](env.Payload)
	case EventLeaveRoom:
		return decodePayload[LeaveRoom](env.Payload)
	case EventSendMessage:
		return decodePayload[SendMessage](env.Payload)
	case EventEditMessage:
		return decodePayload[EditMessage](env.Payload)
	case EventDeleteMessage:
		return decodePayload[DeleteMessage](env.Payload)
	case EventAddReaction:
		return decodePayload[AddReaction](env.Payload)
	case EventMarkRead:
		return decodePayload[MarkRead](env.Payload)
	case EventTypingStart:
		return decodePayload[TypingStart](env.Payload)
	case EventTypingStop:
		return decodePayload[TypingStop](env.Payload)
	case EventSetStatus:
		return decodePayload[SetStatus](env.Payload)
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}

func decodePayload[T ClientEvent](raw json.RawMessage) (T, error) {
	var event T
	if len(raw) == 0 {
		return event, fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		return event, fmt.Errorf("malformed payload: %w", err)
	}
	return event, nil
}

// Constructors for the server event set.

func NewRoomJoined(room *models.Room) ServerEvent {
	return ServerEvent{Type: EventRoomJoined, Payload: RoomEventPayload{Room: room}}
}

func NewRoomLeft(roomID uuid.UUID) ServerEvent {
	return ServerEvent{Type: EventRoomLeft, Payload: RoomLeftPayload{RoomID: roomID}}
}

func NewMessageEvent(msg *models.Message) ServerEvent {
	return ServerEvent{Type: EventNewMessage, Payload: msg}
}

func NewMessageEdited(msg *models.Message) ServerEvent {
	return ServerEvent{Type: EventMessageEdited, Payload: msg}
}

func NewMessageDeleted(msg *models.Message) ServerEvent {
	return ServerEvent{Type: EventMessageDeleted, Payload: msg}
}

func NewReactionAdded(msg *models.Message) ServerEvent {
	return ServerEvent{Type: EventReactionAdded, Payload: msg}
}

func NewMessageRead(msg *models.Message) ServerEvent {
	return ServerEvent{Type: EventMessageRead, Payload: msg}
}

func NewUserJoined(roomID, userID uuid.UUID, username string) ServerEvent {
	return ServerEvent{Type: EventUserJoined, Payload: UserEventPayload{
		RoomID: roomID, UserID: userID, Username: username, Timestamp: time.Now(),
	}}
}

func NewUserLeft(roomID, userID uuid.UUID, username string) ServerEvent {
	return ServerEvent{Type: EventUserLeft, Payload: UserEventPayload{
		RoomID: roomID, UserID: userID, Username: username, Timestamp: time.Now(),
	}}
}

func NewUserTyping(roomID, userID uuid.UUID, username string) ServerEvent {
	return ServerEvent{Type: EventUserTyping, Payload: TypingPayload{
		RoomID: roomID, UserID: userID, Username: username,
	}}
}

func NewUserStoppedTyping(roomID, userID uuid.UUID, username string) ServerEvent {
	return ServerEvent{Type: EventUserStoppedTyping, Payload: TypingPayload{
		RoomID: roomID, UserID: userID, Username: username,
	}}
}

func NewPresenceChanged(record *models.PresenceRecord) ServerEvent {
	return ServerEvent{Type: EventPresenceChanged, Payload: PresencePayload{
		UserID:        record.UserID,
		Status:        record.Status,
		StatusMessage: record.StatusMessage,
		LastSeen:      record.LastSeen,
	}}
}

func NewError(code, message string) ServerEvent {
	return ServerEvent{Type: EventError, Payload: ErrorPayload{Code: code, Message: message}}
}
