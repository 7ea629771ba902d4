package memory

import (
	"context"
	"sort"
	"time"

	"chatsync/internal/domain"
)

type UserRepo struct {
	s *state
}

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.write(); err != nil {
		return err
	}
	for _, existing := range r.s.users {
		if existing.Username == u.Username {
			return domain.ErrConflict
		}
	}
	r.s.nextUser++
	now := time.Now().UTC()
	u.ID = r.s.nextUser
	u.IsActive = true
	u.CreatedAt = now
	u.LastSeen = now
	cp := *u
	r.s.users[u.ID] = &cp
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u := r.s.users[id]
	if u == nil {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Username == username })
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Email != nil && *u.Email == email })
}

func (r *UserRepo) find(match func(*domain.User) bool) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *UserRepo) ListActive(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var all []*domain.User
	for _, u := range r.s.users {
		if u.IsActive {
			cp := *u
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *UserRepo) SetOnlineStatus(ctx context.Context, id int64, isOnline bool, lastSeen time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.write(); err != nil {
		return err
	}
	u := r.s.users[id]
	if u == nil {
		return domain.ErrNotFound
	}
	u.IsOnline = isOnline
	u.LastSeen = lastSeen
	return nil
}
