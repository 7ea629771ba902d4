package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chatsync/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, content, conversation_id, sender_id, receiver_id, status, correlation_id, created_at`

// Create inserts the message and moves the conversation's last message
// pointer in one statement.
func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	err := r.db.QueryRowContext(ctx, `
		WITH ins AS (
			INSERT INTO messages (content, conversation_id, sender_id, receiver_id, status, correlation_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			RETURNING id, conversation_id, created_at
		), touch AS (
			UPDATE conversations c
			SET last_message_id = ins.id, updated_at = ins.created_at
			FROM ins WHERE c.id = ins.conversation_id
		)
		SELECT id, created_at FROM ins
	`, m.Content, m.ConversationID, m.SenderID, m.ReceiverID, int16(m.Status), m.CorrelationID,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) ListForConversationForUser(ctx context.Context, conversationID, userID int64, limit int) ([]*domain.Message, error) {
	return r.list(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.conversation_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM user_deleted_messages d
			WHERE d.message_id = m.id AND d.user_id = $2
		  )
		ORDER BY m.id DESC
		LIMIT $3
	`, conversationID, userID, limit)
}

func (r *MessageRepo) ListPendingForReceiver(ctx context.Context, receiverID, conversationID int64, below domain.DeliveryStatus) ([]*domain.Message, error) {
	return r.list(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE receiver_id = $1 AND status < $2 AND ($3::bigint = 0 OR conversation_id = $3::bigint)
		ORDER BY id ASC
	`, receiverID, int16(below), conversationID)
}

// UpdateStatus relies on "status < $2" so concurrent or stale updates can
// never move a message backwards.
func (r *MessageRepo) UpdateStatus(ctx context.Context, receiverID int64, ids []int64, status domain.DeliveryStatus) ([]*domain.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, `
		UPDATE messages SET status = $2
		WHERE receiver_id = $1 AND status < $2 AND id = ANY($3)
		RETURNING `+messageColumns,
		receiverID, int16(status), ids)
}

func (r *MessageRepo) DeleteForUser(ctx context.Context, userID, messageID int64) error {
	if _, err := r.GetByID(ctx, messageID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_deleted_messages (user_id, message_id, deleted_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT DO NOTHING
	`, userID, messageID)
	if err != nil {
		return fmt.Errorf("delete message for user: %w", err)
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (r *MessageRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	m := &domain.Message{}
	var status int16
	if err := row.Scan(
		&m.ID, &m.Content, &m.ConversationID, &m.SenderID, &m.ReceiverID,
		&status, &m.CorrelationID, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	m.Status = domain.DeliveryStatus(status)
	return m, nil
}
