package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (content, conversation_id, sender_id, receiver_id, status, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.Content, m.ConversationID, m.SenderID, m.ReceiverID, int(m.Status), m.CorrelationID, now)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_id = ?, updated_at = ? WHERE id = ?
	`, id, now, m.ConversationID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	m.ID = id
	m.CreatedAt = now
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) ListForConversationForUser(ctx context.Context, conversationID, userID int64, limit int) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		WHERE m.conversation_id = ?
		  AND NOT EXISTS (
			SELECT 1 FROM user_deleted_messages d
			WHERE d.message_id = m.id AND d.user_id = ?
		  )
		ORDER BY m.id DESC
		LIMIT ?
	`
	return r.list(ctx, query, conversationID, userID, limit)
}

func (r *MessageRepo) ListPendingForReceiver(ctx context.Context, receiverID, conversationID int64, below domain.DeliveryStatus) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE receiver_id = ? AND status < ? AND (? = 0 OR conversation_id = ?)
		ORDER BY id ASC
	`
	return r.list(ctx, query, receiverID, int(below), conversationID, conversationID)
}

func (r *MessageRepo) UpdateStatus(ctx context.Context, receiverID int64, ids []int64, status domain.DeliveryStatus) ([]*domain.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	in, args := inClause(ids)
	query := `
		UPDATE messages SET status = ?
		WHERE receiver_id = ? AND status < ? AND id IN (` + in + `)
		RETURNING ` + messageColumns
	return r.list(ctx, query, append([]any{int(status), receiverID, int(status)}, args...)...)
}

func (r *MessageRepo) DeleteForUser(ctx context.Context, userID, messageID int64) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO user_deleted_messages (user_id, message_id, deleted_at)
		SELECT ?, id, ? FROM messages WHERE id = ?
	`, userID, time.Now().UTC(), messageID)
	if err != nil {
		return fmt.Errorf("delete message for user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, messageID); err != nil {
			return err
		}
	}
	return nil
}

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
	var status int
	if err := row.Scan(
		&m.ID,
		&m.Content,
		&m.ConversationID,
		&m.SenderID,
		&m.ReceiverID,
		&status,
		&m.CorrelationID,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	m.Status = domain.DeliveryStatus(status)
	return m, nil
}
