package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnreadKey(t *testing.T) {
	assert.Equal(t, "chatsync:unread:42", NewUnreadCounter(nil, "").key(42))
	assert.Equal(t, "x:unread:7", NewUnreadCounter(nil, "x").key(7))
}

// Runs only against a scratch Redis given by TEST_REDIS_ADDR.
func TestUnreadCounterAgainstRedis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := Open(ctx, Config{Addr: addr})
	require.NoError(t, err)
	defer rdb.Close()

	u := NewUnreadCounter(rdb, "test"+time.Now().Format("150405.000000"))
	defer rdb.Del(ctx, u.key(2))

	for i := 1; i <= 2; i++ {
		n, err := u.IncrementUnread(ctx, 10, 2)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	counts, err := u.UnreadCounts(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{10: 2}, counts)

	require.NoError(t, u.ResetUnread(ctx, 10, 2))
	counts, err = u.UnreadCounts(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, counts)
}
