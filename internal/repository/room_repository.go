package repository

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"community-chat/internal/chat"
	"community-chat/internal/models"
)

type RoomRepository interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	CreateRoom(ctx context.Context, room *models.Room) error
	ListPublicRooms(ctx context.Context) ([]*models.Room, error)
	ListRoomsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Room, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	IncrementOccupancy(ctx context.Context, id uuid.UUID) (bool, error)
	DecrementOccupancy(ctx context.Context, id uuid.UUID) error
	SetOccupancy(ctx context.Context, id uuid.UUID, count int) error
	ZeroOccupancyExcept(ctx context.Context, ids []uuid.UUID) error
}

type PostgresRoomRepo struct {
	pool *pgxpool.Pool
}

func NewRoomRepo(pool *pgxpool.Pool) RoomRepository {
	return &PostgresRoomRepo{pool: pool}
}

const roomColumns = `id, name, description, room_type, is_active, max_users, current_users,
	created_by, moderators, banned_users, settings, created_at, updated_at`

func scanRoom(row pgx.Row) (*models.Room, error) {
	room := &models.Room{}
	err := row.Scan(
		&room.ID,
		&room.Name,
		&room.Description,
		&room.Type,
		&room.IsActive,
		&room.MaxUsers,
		&room.CurrentUsers,
		&room.CreatedBy,
		&room.Moderators,
		&room.BannedUsers,
		&room.Settings,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (r *PostgresRoomRepo) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`

	room, err := scanRoom(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, chat.ErrNotFound
		}
		log.Printf("[REPO ERROR] Failed to fetch room %s: %v", id, err)
		return nil, err
	}
	return room, nil
}

func (r *PostgresRoomRepo) CreateRoom(ctx context.Context, room *models.Room) error {
	query := `
		INSERT INTO rooms (id, name, description, room_type, is_active, max_users, current_users,
			created_by, moderators, banned_users, settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		room.ID,
		room.Name,
		room.Description,
		room.Type,
		room.IsActive,
		room.MaxUsers,
		room.CurrentUsers,
		room.CreatedBy,
		room.Moderators,
		room.BannedUsers,
		room.Settings,
	).Scan(&room.CreatedAt, &room.UpdatedAt)

	if err != nil {
		log.Printf("[REPO ERROR] Failed to create room %s: %v", room.Name, err)
		return fmt.Errorf("failed to insert room: %w", err)
	}
	return nil
}

func (r *PostgresRoomRepo) ListPublicRooms(ctx context.Context) ([]*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms
		WHERE room_type = 'public' AND is_active
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		log.Printf("[REPO ERROR] Failed to list public rooms: %v", err)
		return nil, err
	}
	defer rows.Close()

	return collectRooms(rows)
}

func (r *PostgresRoomRepo) ListRoomsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms
		WHERE is_active AND (created_by = $1 OR moderators @> to_jsonb(ARRAY[$1::uuid]))
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		log.Printf("[REPO ERROR] Failed to list rooms for user %s: %v", userID, err)
		return nil, err
	}
	defer rows.Close()

	return collectRooms(rows)
}

func collectRooms(rows pgx.Rows) ([]*models.Room, error) {
	var rooms []*models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			log.Printf("[REPO ERROR] Room scan failed: %v", err)
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (r *PostgresRoomRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `UPDATE rooms SET is_active = $2, updated_at = now() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		log.Printf("[REPO ERROR] Failed to set is_active for room %s: %v", id, err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrNotFound
	}
	return nil
}

// IncrementOccupancy bumps current_users only while below capacity, so
// racing joins can never overshoot max_users. Returns false when the
// room was already full.
func (r *PostgresRoomRepo) IncrementOccupancy(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE rooms
		SET current_users = current_users + 1, updated_at = now()
		WHERE id = $1 AND current_users < max_users`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		log.Printf("[REPO ERROR] Failed to increment occupancy for room %s: %v", id, err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRoomRepo) DecrementOccupancy(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE rooms
		SET current_users = GREATEST(current_users - 1, 0), updated_at = now()
		WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		log.Printf("[REPO ERROR] Failed to decrement occupancy for room %s: %v", id, err)
	}
	return err
}

func (r *PostgresRoomRepo) SetOccupancy(ctx context.Context, id uuid.UUID, count int) error {
	query := `UPDATE rooms SET current_users = $2, updated_at = now() WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id, count)
	if err != nil {
		log.Printf("[REPO ERROR] Failed to set occupancy for room %s: %v", id, err)
	}
	return err
}

// ZeroOccupancyExcept resets the counter for every active room with no
// live subscribers. The reconciler calls it with the rooms it is about
// to set explicitly.
func (r *PostgresRoomRepo) ZeroOccupancyExcept(ctx context.Context, ids []uuid.UUID) error {
	query := `
		UPDATE rooms
		SET current_users = 0, updated_at = now()
		WHERE is_active AND current_users <> 0 AND NOT (id = ANY($1))`

	_, err := r.pool.Exec(ctx, query, ids)
	if err != nil {
		log.Printf("[REPO ERROR] Failed to zero stale occupancy counters: %v", err)
	}
	return err
}
