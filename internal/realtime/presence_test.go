package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPresenceStore struct {
	mock.Mock
}

func (m *MockPresenceStore) SetOnlineStatus(ctx context.Context, id int64, isOnline bool, lastSeen time.Time) error {
	args := m.Called(ctx, id, isOnline, lastSeen)
	return args.Error(0)
}

func TestPresenceMultiDevice(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	store := new(MockPresenceStore)
	store.On("SetOnlineStatus", ctx, int64(1), true, mock.Anything).Return(nil).Once()
	store.On("SetOnlineStatus", ctx, int64(1), false, mock.Anything).Return(nil).Once()
	p := NewPresence(r, store)

	watcher := connect(r, 2, "")
	a1 := connect(r, 1, "phone")
	assert.True(t, p.Evaluate(ctx, 1))

	a2 := connect(r, 1, "laptop")
	assert.False(t, p.Evaluate(ctx, 1), "second device must not re-broadcast")

	r.Unregister(a1.ID)
	assert.False(t, p.Evaluate(ctx, 1), "user still has a device")
	rec, ok := p.Snapshot(1)
	require.True(t, ok)
	assert.True(t, rec.IsOnline)

	r.Unregister(a2.ID)
	assert.True(t, p.Evaluate(ctx, 1))

	updates := ofType(drain(watcher), EventPresence)
	require.Len(t, updates, 2)
	assert.True(t, updates[0].Payload.(PresencePayload).IsOnline)
	assert.False(t, updates[1].Payload.(PresencePayload).IsOnline)
	store.AssertExpectations(t)
}

func TestPresenceUnknownOfflineUserIsQuiet(t *testing.T) {
	r := NewRegistry()
	p := NewPresence(r, nil)
	watcher := connect(r, 2, "")

	assert.False(t, p.Evaluate(context.Background(), 9))
	assert.Empty(t, drain(watcher))
	_, ok := p.Snapshot(9)
	assert.False(t, ok)
}

func TestPresenceHeartbeatOnlyTouchesLastSeen(t *testing.T) {
	r := NewRegistry()
	p := NewPresence(r, nil)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	p.now = func() time.Time { return now }

	connect(r, 1, "")
	p.Evaluate(context.Background(), 1)

	now = base.Add(time.Minute)
	p.Heartbeat(1)
	rec, _ := p.Snapshot(1)
	assert.True(t, rec.IsOnline)
	assert.Equal(t, now, rec.LastSeen)

	p.Heartbeat(42)
	_, ok := p.Snapshot(42)
	assert.False(t, ok)
}

func TestPresenceConcurrentFlapsConverge(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	p := NewPresence(r, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ep := connect(r, 1, "")
			p.Evaluate(ctx, 1)
			r.Unregister(ep.ID)
			p.Evaluate(ctx, 1)
		}()
	}
	wg.Wait()

	rec, ok := p.Snapshot(1)
	require.True(t, ok)
	assert.False(t, rec.IsOnline)
	assert.Empty(t, p.Online())
}

func TestPresenceOnlineSorted(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	p := NewPresence(r, nil)
	for _, id := range []int64{5, 3, 9} {
		connect(r, id, "")
		p.Evaluate(ctx, id)
	}
	online := p.Online()
	require.Len(t, online, 3)
	assert.Equal(t, []int64{3, 5, 9}, []int64{online[0].UserID, online[1].UserID, online[2].UserID})
}
