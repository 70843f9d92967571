package tasks

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"community-chat/internal/chat"
	"community-chat/internal/repository"
)

// OccupancyReconciler periodically recomputes each room's persisted
// current_users counter from the live subscriber sets, bounding how long
// a crash-interrupted cleanup can leave a counter inflated.
type OccupancyReconciler struct {
	rooms *chat.RoomManager
	store repository.RoomRepository
	spec  string
	cron  *cron.Cron
}

func NewOccupancyReconciler(rooms *chat.RoomManager, store repository.RoomRepository, spec string) *OccupancyReconciler {
	return &OccupancyReconciler{
		rooms: rooms,
		store: store,
		spec:  spec,
		cron:  cron.New(),
	}
}

func (t *OccupancyReconciler) Start() error {
	_, err := t.cron.AddFunc(t.spec, t.Run)
	if err != nil {
		log.Printf("[WORKER] Error scheduling occupancy reconciler: %v", err)
		return err
	}
	t.cron.Start()
	log.Printf("[WORKER] Occupancy reconciler scheduled (%s)", t.spec)
	return nil
}

func (t *OccupancyReconciler) Stop() {
	t.cron.Stop()
}

// Run performs one reconciliation pass. Exposed so shutdown and tests
// can force a pass outside the schedule.
func (t *OccupancyReconciler) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	snapshot := t.rooms.Snapshot()

	live := make([]uuid.UUID, 0, len(snapshot))
	for roomID := range snapshot {
		live = append(live, roomID)
	}
	if err := t.store.ZeroOccupancyExcept(ctx, live); err != nil {
		log.Printf("[WORKER] Occupancy reconciliation failed: %v", err)
		return
	}

	for roomID, count := range snapshot {
		if err := t.store.SetOccupancy(ctx, roomID, count); err != nil {
			log.Printf("[WORKER] Failed to reconcile occupancy for room %s: %v", roomID, err)
		}
	}
}
