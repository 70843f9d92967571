package chat

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"community-chat/internal/models"
	"community-chat/internal/protocol"
)

const storeTimeout = 5 * time.Second

// Server owns the chat core's runtime state: registry, presence, room
// membership, message pipeline and typing relay. One instance is built at
// startup and torn down at shutdown.
type Server struct {
	Registry *Registry
	Presence *PresenceTracker
	Rooms    *RoomManager
	Pipeline *Pipeline
	Typing   *TypingBroadcaster
}

func NewServer(roomStore RoomStore, messageStore MessageStore, presenceStore PresenceStore) *Server {
	rooms := NewRoomManager(roomStore)
	return &Server{
		Registry: NewRegistry(),
		Presence: NewPresenceTracker(presenceStore),
		Rooms:    rooms,
		Pipeline: NewPipeline(rooms, roomStore, messageStore),
		Typing:   NewTypingBroadcaster(rooms),
	}
}

// Connect registers an authenticated channel and flips the principal
// online. A previous channel for the same principal is displaced: its
// room memberships are torn down and it is told why before it closes.
func (s *Server) Connect(c Outbound, connectionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	prev := s.Registry.Register(c)
	if prev != nil {
		s.Rooms.LeaveAll(ctx, prev.ID(), prev.Name())
		prev.Send(protocol.NewError("session_replaced", "signed in from another connection"))
		if sc, ok := prev.(slowCloser); ok {
			go sc.CloseSlow()
		}
	}

	s.Presence.SetOnline(ctx, c.ID(), connectionID)
}

// Disconnect cleans up after a channel drops, gracefully or not: every
// room membership is released and the principal goes offline. A stale
// channel that was already replaced by a reconnect is a no-op.
func (s *Server) Disconnect(c Outbound) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if !s.Registry.Unregister(c) {
		return
	}
	s.Rooms.LeaveAll(ctx, c.ID(), c.Name())
	s.Presence.SetOffline(ctx, c.ID())
}

// HandleEvent is the handler boundary: every inbound frame yields exactly
// one terminal outcome to the sender, either the success response or
// broadcast, or a typed error event. Errors never reach other
// subscribers and never take the process down.
func (s *Server) HandleEvent(c Outbound, raw []byte) {
	event, err := protocol.DecodeClientEvent(raw)
	if err != nil {
		log.Printf("[WS] Rejecting frame from %s: %v", c.Name(), err)
		c.Send(protocol.NewError(CodeValidation, err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	switch ev := event.(type) {
	case protocol.JoinRoom:
		room, err := s.Rooms.Join(ctx, c, ev.RoomID)
		if err != nil {
			s.sendError(c, err)
			return
		}
		s.Presence.SetRoom(ctx, c.ID(), &ev.RoomID)
		c.Send(protocol.NewRoomJoined(room))

	case protocol.LeaveRoom:
		s.Rooms.Leave(ctx, c.ID(), c.Name(), ev.RoomID)
		s.Presence.ClearRoom(ctx, c.ID(), ev.RoomID)
		c.Send(protocol.NewRoomLeft(ev.RoomID))

	case protocol.SendMessage:
		// The broadcast includes the sender's channel, so the sender's
		// terminal outcome is the server-confirmed copy.
		if _, err := s.Pipeline.Send(ctx, c, ev); err != nil {
			s.sendError(c, err)
		}

	case protocol.EditMessage:
		if _, err := s.Pipeline.Edit(ctx, c, ev.MessageID, ev.Content); err != nil {
			s.sendError(c, err)
		}

	case protocol.DeleteMessage:
		if _, err := s.Pipeline.Delete(ctx, c, ev.MessageID); err != nil {
			s.sendError(c, err)
		}

	case protocol.AddReaction:
		if _, err := s.Pipeline.AddReaction(ctx, c, ev.MessageID, ev.Emoji); err != nil {
			s.sendError(c, err)
		}

	case protocol.MarkRead:
		if _, err := s.Pipeline.MarkRead(ctx, c, ev.MessageID); err != nil {
			s.sendError(c, err)
		}

	case protocol.TypingStart:
		if err := s.Typing.Start(c, ev.RoomID); err != nil {
			s.sendError(c, err)
		}

	case protocol.TypingStop:
		if err := s.Typing.Stop(c, ev.RoomID); err != nil {
			s.sendError(c, err)
		}

	case protocol.SetStatus:
		record, err := s.Presence.SetStatus(ctx, c.ID(), ev.Status, ev.Message)
		if err != nil {
			s.sendError(c, err)
			return
		}
		s.broadcastPresence(c, record)

	default:
		// DecodeClientEvent owns the closed set; reaching here means a
		// variant was added without a handler.
		log.Printf("[WS] No handler for event %T from %s", event, c.Name())
		c.Send(protocol.NewError(CodeInternal, "event not handled"))
	}
}

// OnlineUsers reports online principals, scoped to one room when roomID
// is set.
func (s *Server) OnlineUsers(roomID *uuid.UUID) []uuid.UUID {
	if roomID == nil {
		return s.Presence.OnlineUsers()
	}

	users := make([]uuid.UUID, 0)
	for _, id := range s.Rooms.Occupants(*roomID) {
		if s.Presence.IsOnline(id) {
			users = append(users, id)
		}
	}
	return users
}

// broadcastPresence echoes a status change to the sender and to every
// room the sender occupies.
func (s *Server) broadcastPresence(c Outbound, record *models.PresenceRecord) {
	event := protocol.NewPresenceChanged(record)
	c.Send(event)

	exclude := c.ID()
	for _, roomID := range s.Rooms.RoomsOf(c.ID()) {
		s.Rooms.Broadcast(roomID, event, &exclude)
	}
}

func (s *Server) sendError(c Outbound, err error) {
	c.Send(protocol.NewError(CodeOf(err), err.Error()))
}
