package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chatsync/internal/domain"
)

// ParticipantRepo keeps unread counters on conversation_participants rows.
type ParticipantRepo struct {
	db *sql.DB
}

func NewParticipantRepo(db *sql.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

var _ domain.UnreadCounter = (*ParticipantRepo)(nil)

func (r *ParticipantRepo) IncrementUnread(ctx context.Context, conversationID, userID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		UPDATE conversation_participants
		SET unread_count = unread_count + 1
		WHERE conversation_id = $1 AND user_id = $2
		RETURNING unread_count
	`, conversationID, userID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment unread: %w", err)
	}
	return n, nil
}

func (r *ParticipantRepo) ResetUnread(ctx context.Context, conversationID, userID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversation_participants SET unread_count = 0
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID)
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return nil
}

func (r *ParticipantRepo) UnreadCounts(ctx context.Context, userID int64) (map[int64]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT conversation_id, unread_count
		FROM conversation_participants
		WHERE user_id = $1 AND unread_count > 0
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("unread counts: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int)
	for rows.Next() {
		var convID int64
		var n int
		if err := rows.Scan(&convID, &n); err != nil {
			return nil, fmt.Errorf("scan unread: %w", err)
		}
		out[convID] = n
	}
	return out, rows.Err()
}
