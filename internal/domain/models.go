package domain

import "time"

// User represents an application user.
type User struct {
	ID             int64     `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	Email          *string   `db:"email" json:"email,omitempty"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	IsOnline       bool      `db:"is_online" json:"is_online"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	LastSeen       time.Time `db:"last_seen" json:"last_seen"`
}

// Conversation is a direct conversation between exactly two users.
type Conversation struct {
	ID            int64     `db:"id" json:"id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
	LastMessageID *int64    `db:"last_message_id" json:"last_message_id,omitempty"`
}

// ConversationParticipant represents the membership of a user in a conversation.
type ConversationParticipant struct {
	UserID         int64     `db:"user_id"`
	ConversationID int64     `db:"conversation_id"`
	UnreadCount    int       `db:"unread_count"`
	JoinedAt       time.Time `db:"joined_at"`
}

// Message represents a single chat message.
//
// Status only moves forward; see DeliveryStatus.
type Message struct {
	ID             int64          `db:"id"`
	Content        string         `db:"content"` // encrypted at rest
	ConversationID int64          `db:"conversation_id"`
	SenderID       int64          `db:"sender_id"`
	ReceiverID     int64          `db:"receiver_id"`
	Status         DeliveryStatus `db:"status"`
	CorrelationID  string         `db:"correlation_id"`
	CreatedAt      time.Time      `db:"created_at"`
}

// ConversationSummary is a conversation as seen by one participant.
type ConversationSummary struct {
	Conversation
	PeerID      int64 `json:"peer_id"`
	UnreadCount int   `json:"unread_count"`
}

// PeerOf returns the other participant of a direct conversation.
func PeerOf(participantIDs []int64, userID int64) (int64, bool) {
	if len(participantIDs) != 2 {
		return 0, false
	}
	switch userID {
	case participantIDs[0]:
		return participantIDs[1], true
	case participantIDs[1]:
		return participantIDs[0], true
	}
	return 0, false
}
