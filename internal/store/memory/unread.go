package memory

import (
	"context"

	"chatsync/internal/domain"
)

type UnreadCounter struct {
	s *state
}

var _ domain.UnreadCounter = (*UnreadCounter)(nil)

func (u *UnreadCounter) IncrementUnread(ctx context.Context, conversationID, userID int64) (int, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if err := u.s.write(); err != nil {
		return 0, err
	}
	k := pairKey{conversationID, userID}
	u.s.unread[k]++
	return u.s.unread[k], nil
}

func (u *UnreadCounter) ResetUnread(ctx context.Context, conversationID, userID int64) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if err := u.s.write(); err != nil {
		return err
	}
	delete(u.s.unread, pairKey{conversationID, userID})
	return nil
}

func (u *UnreadCounter) UnreadCounts(ctx context.Context, userID int64) (map[int64]int, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	out := make(map[int64]int)
	for k, n := range u.s.unread {
		if k.b == userID && n > 0 {
			out[k.a] = n
		}
	}
	return out, nil
}
