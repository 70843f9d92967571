package repository

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"community-chat/internal/models"
)

type PresenceRepository interface {
	UpsertPresence(ctx context.Context, record *models.PresenceRecord) error
}

type PostgresPresenceRepo struct {
	pool *pgxpool.Pool
}

func NewPresenceRepo(pool *pgxpool.Pool) PresenceRepository {
	return &PostgresPresenceRepo{pool: pool}
}

// UpsertPresence keeps exactly one row per user; last write wins.
func (r *PostgresPresenceRepo) UpsertPresence(ctx context.Context, p *models.PresenceRecord) error {
	query := `
		INSERT INTO presence (user_id, is_online, last_seen, current_room, connection_id, status, status_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET is_online = EXCLUDED.is_online,
			last_seen = EXCLUDED.last_seen,
			current_room = EXCLUDED.current_room,
			connection_id = EXCLUDED.connection_id,
			status = EXCLUDED.status,
			status_message = EXCLUDED.status_message`

	_, err := r.pool.Exec(ctx, query,
		p.UserID,
		p.IsOnline,
		p.LastSeen,
		p.CurrentRoom,
		p.ConnectionID,
		p.Status,
		p.StatusMessage,
	)

	if err != nil {
		log.Printf("[REPO ERROR] Failed to upsert presence for %s: %v", p.UserID, err)
	}
	return err
}
