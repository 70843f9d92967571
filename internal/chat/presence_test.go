package chat

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-chat/internal/models"
)

func TestPresenceOnlineOfflineCycle(t *testing.T) {
	store := newMemPresenceStore()
	tracker := NewPresenceTracker(store)
	ctx := context.Background()
	userID := uuid.New()

	tracker.SetOnline(ctx, userID, "conn-1")
	assert.True(t, tracker.IsOnline(userID))

	record, ok := tracker.Get(userID)
	require.True(t, ok)
	assert.Equal(t, models.StatusOnline, record.Status)
	assert.Equal(t, "conn-1", record.ConnectionID)

	persisted, ok := store.get(userID)
	require.True(t, ok)
	assert.True(t, persisted.IsOnline)

	tracker.SetOffline(ctx, userID)
	assert.False(t, tracker.IsOnline(userID))

	record, _ = tracker.Get(userID)
	assert.Equal(t, models.StatusOffline, record.Status)
	assert.Empty(t, record.ConnectionID)
	assert.Nil(t, record.CurrentRoom)

	persisted, _ = store.get(userID)
	assert.False(t, persisted.IsOnline)
}

func TestPresenceStatusOverlay(t *testing.T) {
	tracker := NewPresenceTracker(newMemPresenceStore())
	ctx := context.Background()
	userID := uuid.New()

	// Offline users cannot declare a status.
	_, err := tracker.SetStatus(ctx, userID, models.StatusAway, "bbl")
	assert.ErrorIs(t, err, ErrForbidden)

	tracker.SetOnline(ctx, userID, "conn-1")

	record, err := tracker.SetStatus(ctx, userID, models.StatusBusy, "in a meeting")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBusy, record.Status)
	assert.Equal(t, "in a meeting", record.StatusMessage)

	// Away/busy are overlays: the user is still online.
	assert.True(t, tracker.IsOnline(userID))

	_, err = tracker.SetStatus(ctx, userID, models.StatusOffline, "")
	require.Error(t, err)
	assert.Equal(t, CodeValidation, CodeOf(err))

	_, err = tracker.SetStatus(ctx, userID, "invisible", "")
	require.Error(t, err)
	assert.Equal(t, CodeValidation, CodeOf(err))
}

func TestPresenceReconnectResetsStatus(t *testing.T) {
	tracker := NewPresenceTracker(newMemPresenceStore())
	ctx := context.Background()
	userID := uuid.New()

	tracker.SetOnline(ctx, userID, "conn-1")
	tracker.SetStatus(ctx, userID, models.StatusAway, "")
	tracker.SetOffline(ctx, userID)

	tracker.SetOnline(ctx, userID, "conn-2")
	record, _ := tracker.Get(userID)
	assert.Equal(t, models.StatusOnline, record.Status)
	assert.Equal(t, "conn-2", record.ConnectionID)
}

func TestPresenceCurrentRoom(t *testing.T) {
	tracker := NewPresenceTracker(newMemPresenceStore())
	ctx := context.Background()
	userID := uuid.New()
	roomID := uuid.New()

	tracker.SetOnline(ctx, userID, "conn-1")
	tracker.SetRoom(ctx, userID, &roomID)

	record, _ := tracker.Get(userID)
	require.NotNil(t, record.CurrentRoom)
	assert.Equal(t, roomID, *record.CurrentRoom)

	tracker.SetRoom(ctx, userID, nil)
	record, _ = tracker.Get(userID)
	assert.Nil(t, record.CurrentRoom)
}

func TestPresenceClearRoomIsScoped(t *testing.T) {
	tracker := NewPresenceTracker(newMemPresenceStore())
	ctx := context.Background()
	userID := uuid.New()
	roomA := uuid.New()
	roomB := uuid.New()

	tracker.SetOnline(ctx, userID, "conn-1")
	tracker.SetRoom(ctx, userID, &roomA)
	tracker.SetRoom(ctx, userID, &roomB)

	// Leaving the earlier room must not erase the later join.
	tracker.ClearRoom(ctx, userID, roomA)
	record, _ := tracker.Get(userID)
	require.NotNil(t, record.CurrentRoom)
	assert.Equal(t, roomB, *record.CurrentRoom)

	tracker.ClearRoom(ctx, userID, roomB)
	record, _ = tracker.Get(userID)
	assert.Nil(t, record.CurrentRoom)

	// Unknown users are a no-op.
	tracker.ClearRoom(ctx, uuid.New(), roomA)
}

func TestOnlineUsers(t *testing.T) {
	tracker := NewPresenceTracker(newMemPresenceStore())
	ctx := context.Background()

	online := uuid.New()
	offline := uuid.New()
	tracker.SetOnline(ctx, online, "c1")
	tracker.SetOnline(ctx, offline, "c2")
	tracker.SetOffline(ctx, offline)

	assert.ElementsMatch(t, []uuid.UUID{online}, tracker.OnlineUsers())
}

func TestPresenceSurvivesNilStore(t *testing.T) {
	tracker := NewPresenceTracker(nil)
	ctx := context.Background()
	userID := uuid.New()

	tracker.SetOnline(ctx, userID, "conn-1")
	assert.True(t, tracker.IsOnline(userID))
}
