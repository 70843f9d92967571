package chat

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"community-chat/internal/models"
	"community-chat/internal/protocol"
)

// RoomManager tracks which principals subscribe to which rooms and
// enforces the join rules. Each room carries its own lock so activity in
// unrelated rooms never contends; the persisted current_users counter is
// the capacity source of truth and is mutated through conditional store
// updates under that lock.
type RoomManager struct {
	store RoomStore
	mu    sync.RWMutex
	rooms map[uuid.UUID]*roomState
}

type roomState struct {
	mu   sync.Mutex
	subs map[uuid.UUID]Outbound
}

func NewRoomManager(store RoomStore) *RoomManager {
	return &RoomManager{
		store: store,
		rooms: make(map[uuid.UUID]*roomState),
	}
}

// state returns the live state for a room, creating it on first use.
// States persist for the life of the process so a stale pointer can
// never be resurrected by a racing join.
func (m *RoomManager) state(roomID uuid.UUID) *roomState {
	m.mu.RLock()
	rs, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if ok {
		return rs
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rs, ok = m.rooms[roomID]; ok {
		return rs
	}
	rs = &roomState{subs: make(map[uuid.UUID]Outbound)}
	m.rooms[roomID] = rs
	return rs
}

// Join validates in order: room exists and is active, principal is not
// banned, occupancy below capacity, visibility permits. The first failing
// check decides the error. On success the joiner is subscribed, the
// counter is incremented atomically at the store, and user_joined goes to
// the existing subscribers.
func (m *RoomManager) Join(ctx context.Context, joiner Outbound, roomID uuid.UUID) (*models.Room, error) {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, ErrNotFound
	}
	if room.IsBanned(joiner.ID()) {
		return nil, ErrForbidden
	}
	if room.MaxUsers > 0 && room.CurrentUsers >= room.MaxUsers {
		return nil, ErrCapacityExceeded
	}
	if room.Type == models.RoomPrivate && !room.IsModerator(joiner.ID()) {
		return nil, ErrForbidden
	}

	rs := m.state(roomID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, ok := rs.subs[joiner.ID()]; ok {
		// Already a member; re-join is a no-op returning a fresh snapshot.
		return room, nil
	}

	ok, err := m.store.IncrementOccupancy(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCapacityExceeded
	}

	rs.subs[joiner.ID()] = joiner
	room.CurrentUsers++
	log.Printf("[ROOM] %s joined room %s (occupancy: %d)", joiner.Name(), roomID, len(rs.subs))

	rs.broadcastLocked(protocol.NewUserJoined(roomID, joiner.ID(), joiner.Name()), joiner.ID())
	return room, nil
}

// Leave is idempotent: a principal not in the room is a no-op.
func (m *RoomManager) Leave(ctx context.Context, userID uuid.UUID, username string, roomID uuid.UUID) {
	m.mu.RLock()
	rs, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, ok := rs.subs[userID]; !ok {
		return
	}
	delete(rs.subs, userID)

	if err := m.store.DecrementOccupancy(ctx, roomID); err != nil {
		log.Printf("[ROOM] Failed to decrement occupancy for %s: %v", roomID, err)
	}
	log.Printf("[ROOM] %s left room %s (occupancy: %d)", username, roomID, len(rs.subs))

	rs.broadcastLocked(protocol.NewUserLeft(roomID, userID, username), userID)
}

// LeaveAll removes the principal from every room it occupies and returns
// the rooms that were left. Called on disconnect so a dropped channel
// never inflates occupancy past the reconciliation window.
func (m *RoomManager) LeaveAll(ctx context.Context, userID uuid.UUID, username string) []uuid.UUID {
	member := m.RoomsOf(userID)
	for _, roomID := range member {
		m.Leave(ctx, userID, username, roomID)
	}
	return member
}

// RoomsOf lists the rooms a principal currently occupies.
func (m *RoomManager) RoomsOf(userID uuid.UUID) []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var member []uuid.UUID
	for roomID, rs := range m.rooms {
		rs.mu.Lock()
		_, ok := rs.subs[userID]
		rs.mu.Unlock()
		if ok {
			member = append(member, roomID)
		}
	}
	return member
}

func (m *RoomManager) IsSubscribed(userID, roomID uuid.UUID) bool {
	m.mu.RLock()
	rs, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	_, ok = rs.subs[userID]
	return ok
}

// Occupants lists the principals currently subscribed to a room.
func (m *RoomManager) Occupants(roomID uuid.UUID) []uuid.UUID {
	m.mu.RLock()
	rs, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	users := make([]uuid.UUID, 0, len(rs.subs))
	for id := range rs.subs {
		users = append(users, id)
	}
	return users
}

// Snapshot returns the live subscriber count per room, used by the
// occupancy reconciler to recompute persisted counters.
func (m *RoomManager) Snapshot() map[uuid.UUID]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[uuid.UUID]int, len(m.rooms))
	for roomID, rs := range m.rooms {
		rs.mu.Lock()
		counts[roomID] = len(rs.subs)
		rs.mu.Unlock()
	}
	return counts
}

// Broadcast fans an event out to every subscriber of a room. A nil
// exclude delivers to everyone, the sender included.
func (m *RoomManager) Broadcast(roomID uuid.UUID, event protocol.ServerEvent, exclude *uuid.UUID) {
	m.mu.RLock()
	rs, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if exclude != nil {
		rs.broadcastLocked(event, *exclude)
	} else {
		rs.broadcastAllLocked(event)
	}
}

func (rs *roomState) broadcastLocked(event protocol.ServerEvent, exclude uuid.UUID) {
	for id, sub := range rs.subs {
		if id == exclude {
			continue
		}
		rs.deliver(sub, event)
	}
}

func (rs *roomState) broadcastAllLocked(event protocol.ServerEvent) {
	for _, sub := range rs.subs {
		rs.deliver(sub, event)
	}
}

// deliver evicts subscribers whose buffers stay full rather than letting
// one slow consumer stall the room.
func (rs *roomState) deliver(sub Outbound, event protocol.ServerEvent) {
	if sub.Send(event) {
		return
	}
	log.Printf("[ROOM] WARNING: Buffer full for %s. Evicting slow consumer.", sub.Name())
	if sc, ok := sub.(slowCloser); ok {
		go sc.CloseSlow()
	}
}
