package realtime

import "time"

// Snapshot is the authoritative state a client reconciles against after
// (re)connecting.
//
// TakenAt is stamped before any state is read.
type Snapshot struct {
	UserID        int64                  `json:"userId"`
	TakenAt       time.Time              `json:"takenAt"`
	OnlineUsers   []PresenceRecord       `json:"onlineUsers"`
	UnreadCounts  map[int64]int          `json:"unreadCounts"`
	Conversations []ConversationSnapshot `json:"conversations"`
}

// ConversationSnapshot holds the latest messages of one conversation,
// oldest first.
type ConversationSnapshot struct {
	ID       int64            `json:"id"`
	PeerID   int64            `json:"peerId"`
	Messages []MessagePayload `json:"messages"`
}
