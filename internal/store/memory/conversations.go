package memory

import (
	"context"
	"sort"
	"time"

	"chatsync/internal/domain"
)

type ConversationRepo struct {
	s *state
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation, participantIDs []int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.write(); err != nil {
		return err
	}
	r.s.nextConv++
	now := time.Now().UTC()
	c.ID = r.s.nextConv
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	r.s.convs[c.ID] = &cp
	r.s.participants[c.ID] = append([]int64(nil), participantIDs...)
	for _, uid := range participantIDs {
		r.s.joined[pairKey{c.ID, uid}] = now
	}
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c := r.s.convs[id]
	if c == nil {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64) ([]*domain.ConversationSummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.ConversationSummary
	for id, parts := range r.s.participants {
		peer, ok := domain.PeerOf(parts, userID)
		if !ok {
			continue
		}
		out = append(out, &domain.ConversationSummary{
			Conversation: *r.s.convs[id],
			PeerID:       peer,
			UnreadCount:  r.s.unread[pairKey{id, userID}],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *ConversationRepo) FindExistingDirect(ctx context.Context, participantIDs []int64) (*domain.Conversation, error) {
	if len(participantIDs) != 2 {
		return nil, domain.ErrNotFound
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for id, parts := range r.s.participants {
		if peer, ok := domain.PeerOf(parts, participantIDs[0]); ok && peer == participantIDs[1] {
			cp := *r.s.convs[id]
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *ConversationRepo) ParticipantIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	parts, ok := r.s.participants[conversationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]int64(nil), parts...), nil
}
