package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"community-chat/internal/models"
)

// PresenceTracker keeps the authoritative in-memory presence state and
// mirrors every transition to the store. Away/busy are client-declared
// overlays on top of online; they never affect room membership.
type PresenceTracker struct {
	store   PresenceStore
	mu      sync.RWMutex
	records map[uuid.UUID]*models.PresenceRecord
}

func NewPresenceTracker(store PresenceStore) *PresenceTracker {
	return &PresenceTracker{
		store:   store,
		records: make(map[uuid.UUID]*models.PresenceRecord),
	}
}

func (t *PresenceTracker) SetOnline(ctx context.Context, userID uuid.UUID, connectionID string) {
	t.mu.Lock()
	record, ok := t.records[userID]
	if !ok {
		record = &models.PresenceRecord{UserID: userID}
		t.records[userID] = record
	}
	record.IsOnline = true
	record.Status = models.StatusOnline
	record.ConnectionID = connectionID
	record.LastSeen = time.Now()
	snapshot := *record
	t.mu.Unlock()

	t.persist(ctx, &snapshot)
}

func (t *PresenceTracker) SetOffline(ctx context.Context, userID uuid.UUID) {
	t.mu.Lock()
	record, ok := t.records[userID]
	if !ok {
		record = &models.PresenceRecord{UserID: userID}
		t.records[userID] = record
	}
	record.IsOnline = false
	record.Status = models.StatusOffline
	record.ConnectionID = ""
	record.CurrentRoom = nil
	record.LastSeen = time.Now()
	snapshot := *record
	t.mu.Unlock()

	t.persist(ctx, &snapshot)
}

// SetStatus applies an away/busy/online overlay for a connected user.
func (t *PresenceTracker) SetStatus(ctx context.Context, userID uuid.UUID, status models.PresenceStatus, message string) (*models.PresenceRecord, error) {
	switch status {
	case models.StatusOnline, models.StatusAway, models.StatusBusy:
	default:
		return nil, newValidationError("status", "must be online, away or busy")
	}

	t.mu.Lock()
	record, ok := t.records[userID]
	if !ok || !record.IsOnline {
		t.mu.Unlock()
		return nil, ErrForbidden
	}
	record.Status = status
	record.StatusMessage = message
	record.LastSeen = time.Now()
	snapshot := *record
	t.mu.Unlock()

	t.persist(ctx, &snapshot)
	return &snapshot, nil
}

// SetRoom records the room a user most recently joined, nil on leave.
func (t *PresenceTracker) SetRoom(ctx context.Context, userID uuid.UUID, roomID *uuid.UUID) {
	t.mu.Lock()
	record, ok := t.records[userID]
	if !ok {
		t.mu.Unlock()
		return
	}
	record.CurrentRoom = roomID
	record.LastSeen = time.Now()
	snapshot := *record
	t.mu.Unlock()

	t.persist(ctx, &snapshot)
}

// ClearRoom resets the tracked room only while it still points at
// roomID; leaving one room must not erase a later join elsewhere.
func (t *PresenceTracker) ClearRoom(ctx context.Context, userID, roomID uuid.UUID) {
	t.mu.Lock()
	record, ok := t.records[userID]
	if !ok || record.CurrentRoom == nil || *record.CurrentRoom != roomID {
		t.mu.Unlock()
		return
	}
	record.CurrentRoom = nil
	record.LastSeen = time.Now()
	snapshot := *record
	t.mu.Unlock()

	t.persist(ctx, &snapshot)
}

func (t *PresenceTracker) IsOnline(userID uuid.UUID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	record, ok := t.records[userID]
	return ok && record.IsOnline
}

func (t *PresenceTracker) Get(userID uuid.UUID) (models.PresenceRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	record, ok := t.records[userID]
	if !ok {
		return models.PresenceRecord{}, false
	}
	return *record, true
}

// OnlineUsers returns every currently online principal.
func (t *PresenceTracker) OnlineUsers() []uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	users := make([]uuid.UUID, 0, len(t.records))
	for id, record := range t.records {
		if record.IsOnline {
			users = append(users, id)
		}
	}
	return users
}

// persist is best-effort: a failed upsert costs durability of last-seen,
// never liveness.
func (t *PresenceTracker) persist(ctx context.Context, record *models.PresenceRecord) {
	if t.store == nil {
		return
	}
	if err := t.store.UpsertPresence(ctx, record); err != nil {
		log.Printf("[PRESENCE] Upsert failed for user %s: %v", record.UserID, err)
	}
}
