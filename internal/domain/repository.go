package domain

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListActive(ctx context.Context, offset, limit int) ([]*User, error)
	SetOnlineStatus(ctx context.Context, id int64, isOnline bool, lastSeen time.Time) error
}

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation, participantIDs []int64) error
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	ListForUser(ctx context.Context, userID int64) ([]*ConversationSummary, error)
	FindExistingDirect(ctx context.Context, participantIDs []int64) (*Conversation, error)
	ParticipantIDs(ctx context.Context, conversationID int64) ([]int64, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	// Create inserts m, fills in ID and CreatedAt, and moves the
	// conversation's last message pointer to it.
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	// ListForConversationForUser returns newest first, excluding messages
	// the user deleted for themselves.
	ListForConversationForUser(ctx context.Context, conversationID, userID int64, limit int) ([]*Message, error)
	// ListPendingForReceiver returns messages addressed to receiverID whose
	// status is below the given one. conversationID 0 means all conversations.
	ListPendingForReceiver(ctx context.Context, receiverID, conversationID int64, below DeliveryStatus) ([]*Message, error)
	// UpdateStatus advances the given messages of receiverID to status and
	// returns only the rows that actually moved forward.
	UpdateStatus(ctx context.Context, receiverID int64, ids []int64, status DeliveryStatus) ([]*Message, error)
	DeleteForUser(ctx context.Context, userID, messageID int64) error
}

// UnreadCounter keeps per-user unread counters of conversations.
type UnreadCounter interface {
	IncrementUnread(ctx context.Context, conversationID, userID int64) (int, error)
	ResetUnread(ctx context.Context, conversationID, userID int64) error
	UnreadCounts(ctx context.Context, userID int64) (map[int64]int, error)
}
