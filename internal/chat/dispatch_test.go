package chat

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-chat/internal/models"
	"community-chat/internal/protocol"
)

func newTestServer(rooms ...*models.Room) (*Server, *memRoomStore) {
	roomStore := newMemRoomStore(rooms...)
	return NewServer(roomStore, newMemMessageStore(), newMemPresenceStore()), roomStore
}

func frame(t *testing.T, eventType protocol.EventType, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(protocol.Envelope{Type: eventType, Payload: raw})
	require.NoError(t, err)
	return data
}

func errorCode(t *testing.T, ev protocol.ServerEvent) string {
	t.Helper()
	require.Equal(t, protocol.EventError, ev.Type)
	return ev.Payload.(protocol.ErrorPayload).Code
}

func TestConnectDisplacesPreviousSession(t *testing.T) {
	room := testRoom(10)
	server, store := newTestServer(room)

	first := newFakeConn("alice")
	server.Connect(first, "conn-1")
	server.HandleEvent(first, frame(t, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: room.ID}))
	require.True(t, server.Rooms.IsSubscribed(first.ID(), room.ID))

	second := &fakeConn{id: first.id, name: "alice", capacity: 64}
	server.Connect(second, "conn-2")

	// The displaced session lost its memberships and was told why.
	assert.False(t, server.Rooms.IsSubscribed(first.ID(), room.ID))
	assert.Equal(t, 0, store.occupancy(room.ID))

	var sawReplaced bool
	for _, ev := range first.EventsOfType(protocol.EventError) {
		if ev.Payload.(protocol.ErrorPayload).Code == "session_replaced" {
			sawReplaced = true
		}
	}
	assert.True(t, sawReplaced)

	// The stale channel's read pump exits and calls Disconnect; the new
	// session must survive that.
	server.Disconnect(first)
	got, ok := server.Registry.Lookup(first.id)
	require.True(t, ok)
	assert.Same(t, second, got.(*fakeConn))
	assert.True(t, server.Presence.IsOnline(first.id))
}

func TestDisconnectCleansUp(t *testing.T) {
	room := testRoom(10)
	server, store := newTestServer(room)

	conn := newFakeConn("alice")
	other := newFakeConn("bob")
	server.Connect(conn, "conn-1")
	server.Connect(other, "conn-2")
	server.HandleEvent(conn, frame(t, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: room.ID}))
	server.HandleEvent(other, frame(t, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: room.ID}))

	server.Disconnect(conn)

	assert.False(t, server.Presence.IsOnline(conn.ID()))
	assert.False(t, server.Rooms.IsSubscribed(conn.ID(), room.ID))
	assert.Equal(t, 1, store.occupancy(room.ID))

	// The remaining member heard the implicit leave.
	lefts := other.EventsOfType(protocol.EventUserLeft)
	require.Len(t, lefts, 1)
	assert.Equal(t, conn.ID(), lefts[0].Payload.(protocol.UserEventPayload).UserID)
}

func TestHandleEventMalformedFrame(t *testing.T) {
	server, _ := newTestServer()
	conn := newFakeConn("alice")
	server.Connect(conn, "conn-1")

	tests := []struct {
		name string
		raw  []byte
	}{
		{"not json", []byte("{{{")},
		{"unknown type", []byte(`{"type":"teleport","payload":{}}`)},
		{"missing payload", []byte(`{"type":"join_room"}`)},
		{"wrong payload shape", []byte(`{"type":"join_room","payload":{"room_id":12}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(conn.Events())
			server.HandleEvent(conn, tt.raw)

			events := conn.Events()
			require.Len(t, events, before+1, "exactly one terminal outcome per frame")
			assert.Equal(t, CodeValidation, errorCode(t, events[len(events)-1]))
		})
	}
}

func TestHandleEventJoinHappyPath(t *testing.T) {
	room := testRoom(10)
	server, _ := newTestServer(room)
	conn := newFakeConn("alice")
	server.Connect(conn, "conn-1")

	server.HandleEvent(conn, frame(t, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: room.ID}))

	last, ok := conn.LastEvent()
	require.True(t, ok)
	require.Equal(t, protocol.EventRoomJoined, last.Type)
	joined := last.Payload.(protocol.RoomEventPayload).Room
	assert.Equal(t, room.ID, joined.ID)
	assert.Equal(t, 1, joined.CurrentUsers)

	record, _ := server.Presence.Get(conn.ID())
	require.NotNil(t, record.CurrentRoom)
	assert.Equal(t, room.ID, *record.CurrentRoom)
}

func TestHandleEventErrorsStayWithSender(t *testing.T) {
	room := testRoom(1)
	server, _ := newTestServer(room)

	occupant := newFakeConn("alice")
	server.Connect(occupant, "conn-1")
	server.HandleEvent(occupant, frame(t, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: room.ID}))

	late := newFakeConn("bob")
	server.Connect(late, "conn-2")
	server.HandleEvent(late, frame(t, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: room.ID}))

	last, ok := late.LastEvent()
	require.True(t, ok)
	assert.Equal(t, CodeCapacityExceeded, errorCode(t, last))

	// The failed join leaked nothing to the occupant.
	assert.Empty(t, occupant.EventsOfType(protocol.EventError))
	assert.Empty(t, occupant.EventsOfType(protocol.EventUserJoined))
}

func TestHandleEventSendAndTyping(t *testing.T) {
	room := testRoom(10)
	server, _ := newTestServer(room)

	alice := newFakeConn("alice")
	bob := newFakeConn("bob")
	server.Connect(alice, "conn-1")
	server.Connect(bob, "conn-2")
	server.HandleEvent(alice, frame(t, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: room.ID}))
	server.HandleEvent(bob, frame(t, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: room.ID}))

	server.HandleEvent(alice, frame(t, protocol.EventTypingStart, protocol.TypingStart{RoomID: room.ID}))
	server.HandleEvent(alice, frame(t, protocol.EventSendMessage, protocol.SendMessage{RoomID: room.ID, Content: "hi bob"}))
	server.HandleEvent(alice, frame(t, protocol.EventTypingStop, protocol.TypingStop{RoomID: room.ID}))

	assert.Len(t, bob.EventsOfType(protocol.EventUserTyping), 1)
	assert.Len(t, bob.EventsOfType(protocol.EventUserStoppedTyping), 1)

	messages := bob.EventsOfType(protocol.EventNewMessage)
	require.Len(t, messages, 1)
	assert.Equal(t, "hi bob", messages[0].Payload.(*models.Message).Content)

	// Sender's terminal outcome is its own confirmed copy.
	assert.Len(t, alice.EventsOfType(protocol.EventNewMessage), 1)
}

func TestHandleEventSetStatusBroadcasts(t *testing.T) {
	room := testRoom(10)
	server, _ := newTestServer(room)

	alice := newFakeConn("alice")
	bob := newFakeConn("bob")
	server.Connect(alice, "conn-1")
	server.Connect(bob, "conn-2")
	server.HandleEvent(alice, frame(t, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: room.ID}))
	server.HandleEvent(bob, frame(t, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: room.ID}))

	server.HandleEvent(alice, frame(t, protocol.EventSetStatus, protocol.SetStatus{Status: models.StatusAway, Message: "lunch"}))

	for _, conn := range []*fakeConn{alice, bob} {
		events := conn.EventsOfType(protocol.EventPresenceChanged)
		require.Len(t, events, 1, "%s should see the status change", conn.Name())
		payload := events[0].Payload.(protocol.PresencePayload)
		assert.Equal(t, alice.ID(), payload.UserID)
		assert.Equal(t, models.StatusAway, payload.Status)
		assert.Equal(t, "lunch", payload.StatusMessage)
	}
}

func TestOnlineUsersScopedToRoom(t *testing.T) {
	room := testRoom(10)
	otherRoom := testRoom(10)
	roomStore := newMemRoomStore(room, otherRoom)
	server := NewServer(roomStore, newMemMessageStore(), newMemPresenceStore())

	alice := newFakeConn("alice")
	bob := newFakeConn("bob")
	server.Connect(alice, "conn-1")
	server.Connect(bob, "conn-2")
	server.HandleEvent(alice, frame(t, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: room.ID}))
	server.HandleEvent(bob, frame(t, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: otherRoom.ID}))

	assert.ElementsMatch(t, []uuid.UUID{alice.ID(), bob.ID()}, server.OnlineUsers(nil))
	assert.ElementsMatch(t, []uuid.UUID{alice.ID()}, server.OnlineUsers(&room.ID))
	assert.ElementsMatch(t, []uuid.UUID{bob.ID()}, server.OnlineUsers(&otherRoom.ID))
}

func TestEveryClientEventHasHandler(t *testing.T) {
	room := testRoom(10)
	server, _ := newTestServer(room)
	conn := newFakeConn("alice")
	server.Connect(conn, "conn-1")
	server.HandleEvent(conn, frame(t, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: room.ID}))

	// Operations against a fabricated message ID should come back as
	// not_found, never as the internal "event not handled" fallback.
	frames := [][]byte{
		frame(t, protocol.EventEditMessage, protocol.EditMessage{MessageID: uuid.New(), Content: "x"}),
		frame(t, protocol.EventDeleteMessage, protocol.DeleteMessage{MessageID: uuid.New()}),
		frame(t, protocol.EventAddReaction, protocol.AddReaction{MessageID: uuid.New(), Emoji: "👍"}),
		frame(t, protocol.EventMarkRead, protocol.MarkRead{MessageID: uuid.New()}),
	}
	for i, raw := range frames {
		t.Run(fmt.Sprintf("frame_%d", i), func(t *testing.T) {
			server.HandleEvent(conn, raw)
			last, ok := conn.LastEvent()
			require.True(t, ok)
			assert.Equal(t, CodeNotFound, errorCode(t, last))
		})
	}
}
