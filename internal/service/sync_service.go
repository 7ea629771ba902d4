package service

import (
	"context"
	"fmt"
	"time"

	"chatsync/internal/domain"
	"chatsync/internal/realtime"
)

// OnlineLister reports the users currently online.
type OnlineLister interface {
	Online() []realtime.PresenceRecord
}

// SyncService builds the snapshot a client reconciles against on reconnect.
type SyncService struct {
	conversations *ConversationService
	messages      *MessageService
	unread        domain.UnreadCounter
	presence      OnlineLister
	perConv       int
}

func NewSyncService(conversations *ConversationService, messages *MessageService, unread domain.UnreadCounter, presence OnlineLister) *SyncService {
	return &SyncService{
		conversations: conversations,
		messages:      messages,
		unread:        unread,
		presence:      presence,
		perConv:       DefaultPageSize,
	}
}

func (s *SyncService) Snapshot(ctx context.Context, userID int64) (*realtime.Snapshot, error) {
	snap := &realtime.Snapshot{
		UserID:       userID,
		TakenAt:      time.Now().UTC(),
		OnlineUsers:  s.presence.Online(),
		UnreadCounts: map[int64]int{},
	}
	if snap.OnlineUsers == nil {
		snap.OnlineUsers = []realtime.PresenceRecord{}
	}

	if s.unread != nil {
		counts, err := s.unread.UnreadCounts(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("unread counts: %w", err)
		}
		snap.UnreadCounts = counts
	}

	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	snap.Conversations = make([]realtime.ConversationSnapshot, 0, len(convs))
	for _, c := range convs {
		msgs, err := s.messages.List(ctx, c.ID, userID, s.perConv)
		if err != nil {
			return nil, err
		}
		snap.Conversations = append(snap.Conversations, realtime.ConversationSnapshot{
			ID:       c.ID,
			PeerID:   c.PeerID,
			Messages: msgs,
		})
	}
	return snap, nil
}
