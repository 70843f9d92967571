package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"community-chat/internal/models"
	"community-chat/internal/protocol"
)

// fakeConn is a buffered Outbound for tests. Set capacity to 0 to
// simulate a consumer whose buffer is permanently full.
type fakeConn struct {
	id       uuid.UUID
	name     string
	capacity int

	mu       sync.Mutex
	events   []protocol.ServerEvent
	evicted  bool
	rejected int
}

func newFakeConn(name string) *fakeConn {
	return &fakeConn{id: uuid.New(), name: name, capacity: 64}
}

func (f *fakeConn) ID() uuid.UUID { return f.id }
func (f *fakeConn) Name() string  { return f.name }

func (f *fakeConn) Send(event protocol.ServerEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.events) >= f.capacity {
		f.rejected++
		return false
	}
	f.events = append(f.events, event)
	return true
}

func (f *fakeConn) CloseSlow() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = true
}

func (f *fakeConn) Events() []protocol.ServerEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.ServerEvent, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeConn) EventsOfType(t protocol.EventType) []protocol.ServerEvent {
	var out []protocol.ServerEvent
	for _, ev := range f.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeConn) LastEvent() (protocol.ServerEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return protocol.ServerEvent{}, false
	}
	return f.events[len(f.events)-1], true
}

func (f *fakeConn) Evicted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.evicted
}

// memRoomStore keeps rooms in memory with the same conditional
// increment semantics the SQL store provides.
type memRoomStore struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*models.Room
}

func newMemRoomStore(rooms ...*models.Room) *memRoomStore {
	s := &memRoomStore{rooms: make(map[uuid.UUID]*models.Room)}
	for _, r := range rooms {
		s.rooms[r.ID] = r
	}
	return s
}

func (s *memRoomStore) GetRoom(_ context.Context, id uuid.UUID) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *room
	return &clone, nil
}

func (s *memRoomStore) IncrementOccupancy(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return false, ErrNotFound
	}
	if room.MaxUsers > 0 && room.CurrentUsers >= room.MaxUsers {
		return false, nil
	}
	room.CurrentUsers++
	return true, nil
}

func (s *memRoomStore) DecrementOccupancy(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.rooms[id]; ok && room.CurrentUsers > 0 {
		room.CurrentUsers--
	}
	return nil
}

func (s *memRoomStore) SetOccupancy(_ context.Context, id uuid.UUID, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.rooms[id]; ok {
		room.CurrentUsers = count
	}
	return nil
}

func (s *memRoomStore) occupancy(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[id]; ok {
		return room.CurrentUsers
	}
	return -1
}

type memMessageStore struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*models.Message
	saved    []uuid.UUID
	saveErr  error
}

func newMemMessageStore() *memMessageStore {
	return &memMessageStore{messages: make(map[uuid.UUID]*models.Message)}
}

func (s *memMessageStore) SaveMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	clone := *msg
	s.messages[msg.ID] = &clone
	s.saved = append(s.saved, msg.ID)
	return nil
}

func (s *memMessageStore) GetMessage(_ context.Context, id uuid.UUID) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *msg
	return &clone, nil
}

func (s *memMessageStore) UpdateMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[msg.ID]; !ok {
		return ErrNotFound
	}
	clone := *msg
	s.messages[msg.ID] = &clone
	return nil
}

func (s *memMessageStore) savedOrder() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, len(s.saved))
	copy(out, s.saved)
	return out
}

type memPresenceStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]models.PresenceRecord
}

func newMemPresenceStore() *memPresenceStore {
	return &memPresenceStore{records: make(map[uuid.UUID]models.PresenceRecord)}
}

func (s *memPresenceStore) UpsertPresence(_ context.Context, record *models.PresenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.UserID] = *record
	return nil
}

func (s *memPresenceStore) get(userID uuid.UUID) (models.PresenceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[userID]
	return record, ok
}

func testRoom(maxUsers int) *models.Room {
	return &models.Room{
		ID:          uuid.New(),
		Name:        "general",
		Type:        models.RoomPublic,
		IsActive:    true,
		MaxUsers:    maxUsers,
		CreatedBy:   uuid.New(),
		Moderators:  []uuid.UUID{},
		BannedUsers: []models.BanRecord{},
		Settings:    models.DefaultRoomSettings(),
		CreatedAt:   time.Now(),
	}
}
