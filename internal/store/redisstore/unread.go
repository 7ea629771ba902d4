// Package redisstore keeps unread counters in Redis so every server
// instance sees the same badge counts.
package redisstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"chatsync/internal/domain"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// Open connects and pings the server.
func Open(ctx context.Context, c Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// UnreadCounter stores one hash per user: conversation id -> unread count.
type UnreadCounter struct {
	rdb    redis.Cmdable
	prefix string
}

var _ domain.UnreadCounter = (*UnreadCounter)(nil)

func NewUnreadCounter(rdb redis.Cmdable, prefix string) *UnreadCounter {
	if prefix == "" {
		prefix = "chatsync"
	}
	return &UnreadCounter{rdb: rdb, prefix: prefix}
}

// unread key: <prefix>:unread:<user>
func (u *UnreadCounter) key(userID int64) string {
	return u.prefix + ":unread:" + strconv.FormatInt(userID, 10)
}

func (u *UnreadCounter) IncrementUnread(ctx context.Context, conversationID, userID int64) (int, error) {
	n, err := u.rdb.HIncrBy(ctx, u.key(userID), strconv.FormatInt(conversationID, 10), 1).Result()
	if err != nil {
		return 0, fmt.Errorf("increment unread: %w", err)
	}
	return int(n), nil
}

func (u *UnreadCounter) ResetUnread(ctx context.Context, conversationID, userID int64) error {
	if err := u.rdb.HDel(ctx, u.key(userID), strconv.FormatInt(conversationID, 10)).Err(); err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return nil
}

func (u *UnreadCounter) UnreadCounts(ctx context.Context, userID int64) (map[int64]int, error) {
	raw, err := u.rdb.HGetAll(ctx, u.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("unread counts: %w", err)
	}
	out := make(map[int64]int, len(raw))
	for field, val := range raw {
		convID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			continue
		}
		out[convID] = n
	}
	return out, nil
}
