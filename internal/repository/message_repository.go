package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"community-chat/internal/chat"
	"community-chat/internal/models"
)

type MessageRepository interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	UpdateMessage(ctx context.Context, msg *models.Message) error
	FetchRoomMessages(ctx context.Context, roomID uuid.UUID, before time.Time, limit int) ([]*models.Message, error)
}

type PostgresMessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) MessageRepository {
	return &PostgresMessageRepo{pool: pool}
}

const messageColumns = `id, room_id, sender_id, sender_name, content, msg_type, attachments,
	reply_to, is_edited, edited_at, is_deleted, deleted_at, deleted_by, reactions, read_by, created_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	m := &models.Message{}
	err := row.Scan(
		&m.ID,
		&m.RoomID,
		&m.SenderID,
		&m.SenderName,
		&m.Content,
		&m.Type,
		&m.Attachments,
		&m.ReplyTo,
		&m.IsEdited,
		&m.EditedAt,
		&m.IsDeleted,
		&m.DeletedAt,
		&m.DeletedBy,
		&m.Reactions,
		&m.ReadBy,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *PostgresMessageRepo) SaveMessage(ctx context.Context, m *models.Message) error {
	query := `
		INSERT INTO messages (id, room_id, sender_id, sender_name, content, msg_type, attachments,
			reply_to, reactions, read_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		m.ID,
		m.RoomID,
		m.SenderID,
		m.SenderName,
		m.Content,
		m.Type,
		m.Attachments,
		m.ReplyTo,
		m.Reactions,
		m.ReadBy,
		m.CreatedAt,
	)

	if err != nil {
		log.Printf("[REPO ERROR] Failed to save message %s from %s: %v", m.ID, m.SenderName, err)
		return err
	}
	return nil
}

func (r *PostgresMessageRepo) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	m, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, chat.ErrNotFound
		}
		log.Printf("[REPO ERROR] Failed to fetch message %s: %v", id, err)
		return nil, err
	}
	return m, nil
}

// UpdateMessage rewrites the mutable portion of the row: edits, soft
// deletes, reactions and read receipts all land here. Rows are never
// physically removed.
func (r *PostgresMessageRepo) UpdateMessage(ctx context.Context, m *models.Message) error {
	query := `
		UPDATE messages
		SET content = $2, is_edited = $3, edited_at = $4,
			is_deleted = $5, deleted_at = $6, deleted_by = $7,
			reactions = $8, read_by = $9
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		m.ID,
		m.Content,
		m.IsEdited,
		m.EditedAt,
		m.IsDeleted,
		m.DeletedAt,
		m.DeletedBy,
		m.Reactions,
		m.ReadBy,
	)

	if err != nil {
		log.Printf("[REPO ERROR] Failed to update message %s: %v", m.ID, err)
		return fmt.Errorf("database update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (r *PostgresMessageRepo) FetchRoomMessages(ctx context.Context, roomID uuid.UUID, before time.Time, limit int) ([]*models.Message, error) {
	if before.IsZero() {
		before = time.Now()
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE room_id = $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, roomID, before, limit)
	if err != nil {
		log.Printf("[REPO ERROR] Fetch failed for room %s: %v", roomID, err)
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			log.Printf("[REPO ERROR] Message scan failed: %v", err)
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
