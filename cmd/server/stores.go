package main

import (
	"context"
	"fmt"

	"chatsync/internal/config"
	"chatsync/internal/domain"
	"chatsync/internal/store/memory"
	"chatsync/internal/store/postgres"
	"chatsync/internal/store/redisstore"
	"chatsync/internal/store/sqlite"
)

// stores is the persistence layer selected by configuration.
type stores struct {
	users         domain.UserRepository
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	unread        domain.UnreadCounter
	closers       []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.WithError(err).Warn("close store")
		}
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{}

	switch cfg.StoreDriver {
	case "memory":
		st := memory.New()
		s.users, s.conversations, s.messages, s.unread = st.Users, st.Conversations, st.Messages, st.Unread
	case "postgres":
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		if err := postgres.Migrate(db); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		s.users = postgres.NewUserRepo(db)
		s.conversations = postgres.NewConversationRepo(db)
		s.messages = postgres.NewMessageRepo(db)
		s.unread = postgres.NewParticipantRepo(db)
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		if err := sqlite.Migrate(db); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		s.users = sqlite.NewUserRepo(db)
		s.conversations = sqlite.NewConversationRepo(db)
		s.messages = sqlite.NewMessageRepo(db)
		s.unread = sqlite.NewParticipantRepo(db)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if cfg.RedisAddr != "" {
		rdb, err := redisstore.Open(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, rdb.Close)
		s.unread = redisstore.NewUnreadCounter(rdb, cfg.AppName)
		log.WithField("addr", cfg.RedisAddr).Info("unread counters in redis")
	}

	log.WithField("driver", cfg.StoreDriver).Info("store ready")
	return s, nil
}

