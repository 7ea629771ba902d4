package service

import (
	"context"

	"chatsync/internal/domain"
	"chatsync/internal/realtime"
)

// PresenceReader exposes the live presence tracker.
type PresenceReader interface {
	Snapshot(userID int64) (realtime.PresenceRecord, bool)
	Online() []realtime.PresenceRecord
}

// UserService provides user-related operations.
type UserService struct {
	users    domain.UserRepository
	presence PresenceReader
}

func NewUserService(users domain.UserRepository, presence PresenceReader) *UserService {
	return &UserService{users: users, presence: presence}
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) ListActive(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	return s.users.ListActive(ctx, offset, limit)
}

// ListOnline is served from the live tracker, not from the users table.
func (s *UserService) ListOnline() []realtime.PresenceRecord {
	online := s.presence.Online()
	if online == nil {
		return []realtime.PresenceRecord{}
	}
	return online
}

// Presence returns the live record if this process has seen the user, and
// otherwise the last state mirrored into the user row.
func (s *UserService) Presence(ctx context.Context, id int64) (realtime.PresenceRecord, error) {
	if rec, ok := s.presence.Snapshot(id); ok {
		return rec, nil
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return realtime.PresenceRecord{}, err
	}
	// a row left online by a crashed process is not trusted
	return realtime.PresenceRecord{UserID: u.ID, LastSeen: u.LastSeen}, nil
}
