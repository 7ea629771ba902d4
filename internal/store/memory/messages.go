package memory

import (
	"context"
	"sort"
	"time"

	"chatsync/internal/domain"
)

type MessageRepo struct {
	s *state
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.write(); err != nil {
		return err
	}
	c := r.s.convs[m.ConversationID]
	if c == nil {
		return domain.ErrNotFound
	}
	r.s.nextMsg++
	m.ID = r.s.nextMsg
	m.CreatedAt = time.Now().UTC()
	cp := *m
	r.s.messages[m.ID] = &cp

	id := m.ID
	c.LastMessageID = &id
	c.UpdatedAt = m.CreatedAt
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m := r.s.messages[id]
	if m == nil {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MessageRepo) ListForConversationForUser(ctx context.Context, conversationID, userID int64, limit int) ([]*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := r.collect(func(m *domain.Message) bool {
		if m.ConversationID != conversationID {
			return false
		}
		_, gone := r.s.deleted[pairKey{userID, m.ID}]
		return !gone
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MessageRepo) ListPendingForReceiver(ctx context.Context, receiverID, conversationID int64, below domain.DeliveryStatus) ([]*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := r.collect(func(m *domain.Message) bool {
		return m.ReceiverID == receiverID &&
			m.Status < below &&
			(conversationID == 0 || m.ConversationID == conversationID)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MessageRepo) UpdateStatus(ctx context.Context, receiverID int64, ids []int64, status domain.DeliveryStatus) ([]*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.write(); err != nil {
		return nil, err
	}
	var moved []*domain.Message
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		m := r.s.messages[id]
		if m == nil || m.ReceiverID != receiverID || !m.Status.Advances(status) {
			continue
		}
		m.Status = status
		cp := *m
		moved = append(moved, &cp)
	}
	return moved, nil
}

func (r *MessageRepo) DeleteForUser(ctx context.Context, userID, messageID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.write(); err != nil {
		return err
	}
	if r.s.messages[messageID] == nil {
		return domain.ErrNotFound
	}
	r.s.deleted[pairKey{userID, messageID}] = struct{}{}
	return nil
}

// collect must be called with mu held.
func (r *MessageRepo) collect(keep func(*domain.Message) bool) []*domain.Message {
	var out []*domain.Message
	for _, m := range r.s.messages {
		if keep(m) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out
}
