package service

import (
	"context"
	"errors"
	"fmt"

	"chatsync/internal/domain"
)

type ConversationService struct {
	conversations domain.ConversationRepository
	users         domain.UserRepository
}

func NewConversationService(conversations domain.ConversationRepository, users domain.UserRepository) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		users:         users,
	}
}

// OpenDirect returns the conversation between creator and peer, creating it
// if needed. created reports whether a new one was made.
func (s *ConversationService) OpenDirect(ctx context.Context, creatorID, peerID int64) (conv *domain.Conversation, created bool, err error) {
	if peerID == creatorID || peerID <= 0 {
		return nil, false, fmt.Errorf("%w: a conversation needs another user", domain.ErrInvalidInput)
	}
	peer, err := s.users.GetByID(ctx, peerID)
	if err != nil {
		return nil, false, fmt.Errorf("get peer: %w", err)
	}
	if !peer.IsActive {
		return nil, false, domain.ErrNotFound
	}

	ids := []int64{creatorID, peerID}
	existing, err := s.conversations.FindExistingDirect(ctx, ids)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("find conversation: %w", err)
	}

	conv = &domain.Conversation{}
	if err := s.conversations.Create(ctx, conv, ids); err != nil {
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}
	return conv, true, nil
}

func (s *ConversationService) ListForUser(ctx context.Context, userID int64) ([]*domain.ConversationSummary, error) {
	return s.conversations.ListForUser(ctx, userID)
}

// PeerOf returns the other participant of the conversation, or ErrForbidden
// when userID is not part of it.
func (s *ConversationService) PeerOf(ctx context.Context, conversationID, userID int64) (int64, error) {
	ids, err := s.conversations.ParticipantIDs(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	peer, ok := domain.PeerOf(ids, userID)
	if !ok {
		return 0, domain.ErrForbidden
	}
	return peer, nil
}
