package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain"
	"chatsync/internal/realtime"
	"chatsync/internal/security"
	"chatsync/internal/service"
	"chatsync/internal/store/memory"
)

type harness struct {
	store    *memory.Store
	registry *realtime.Registry
	presence *realtime.Presence
	convs    *service.ConversationService
	messages *service.MessageService
	sync     *service.SyncService
	alice    *domain.User
	bob      *domain.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	enc, err := security.NewEncryptor([]byte("test-key"))
	require.NoError(t, err)

	reg := realtime.NewRegistry()
	views := realtime.NewActiveViews()
	delivery := realtime.NewDelivery(reg, views, st.Messages, st.Unread, realtime.DeliveryConfig{
		RetryDelay: time.Millisecond,
		Render:     service.ContentRenderer(enc),
	})
	presence := realtime.NewPresence(reg, st.Users)

	h := &harness{
		store:    st,
		registry: reg,
		presence: presence,
		alice:    &domain.User{Username: "alice"},
		bob:      &domain.User{Username: "bob"},
	}
	require.NoError(t, st.Users.Create(ctx, h.alice))
	require.NoError(t, st.Users.Create(ctx, h.bob))

	h.convs = service.NewConversationService(st.Conversations, st.Users)
	h.messages = service.NewMessageService(h.convs, st.Messages, delivery, enc)
	h.sync = service.NewSyncService(h.convs, h.messages, st.Unread, presence)
	return h
}

func TestOpenDirectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c1, created, err := h.convs.OpenDirect(ctx, h.alice.ID, h.bob.ID)
	require.NoError(t, err)
	assert.True(t, created)

	c2, created, err := h.convs.OpenDirect(ctx, h.bob.ID, h.alice.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c1.ID, c2.ID)

	_, _, err = h.convs.OpenDirect(ctx, h.alice.ID, h.alice.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = h.convs.OpenDirect(ctx, h.alice.ID, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSendEncryptsAtRest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv, _, err := h.convs.OpenDirect(ctx, h.alice.ID, h.bob.ID)
	require.NoError(t, err)

	out, err := h.messages.Send(ctx, service.SendInput{
		ConversationID: conv.ID,
		SenderID:       h.alice.ID,
		Content:        "hello bob",
		CorrelationID:  "c-1",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello bob", out.Content)
	assert.Equal(t, h.bob.ID, out.ReceiverID)
	assert.Equal(t, "c-1", out.CorrelationID)
	assert.Equal(t, domain.StatusSent, out.Status)

	stored, err := h.store.Messages.GetByID(ctx, out.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "hello bob", stored.Content)

	list, err := h.messages.List(ctx, conv.ID, h.bob.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "hello bob", list[0].Content)
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv, _, err := h.convs.OpenDirect(ctx, h.alice.ID, h.bob.ID)
	require.NoError(t, err)

	_, err = h.messages.Send(ctx, service.SendInput{ConversationID: conv.ID, SenderID: h.alice.ID, Content: "  "}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	outsider := &domain.User{Username: "eve"}
	require.NoError(t, h.store.Users.Create(ctx, outsider))
	_, err = h.messages.Send(ctx, service.SendInput{ConversationID: conv.ID, SenderID: outsider.ID, Content: "hi"}, nil)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = h.messages.Send(ctx, service.SendInput{ConversationID: 999, SenderID: h.alice.ID, Content: "hi"}, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListIsChronologicalAndHonoursDeleteForMe(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv, _, err := h.convs.OpenDirect(ctx, h.alice.ID, h.bob.ID)
	require.NoError(t, err)

	var ids []int64
	for _, text := range []string{"one", "two", "three"} {
		out, err := h.messages.Send(ctx, service.SendInput{ConversationID: conv.ID, SenderID: h.alice.ID, Content: text}, nil)
		require.NoError(t, err)
		ids = append(ids, out.ID)
	}

	require.NoError(t, h.messages.DeleteForMe(ctx, h.bob.ID, ids[1]))

	bobView, err := h.messages.List(ctx, conv.ID, h.bob.ID, 10)
	require.NoError(t, err)
	require.Len(t, bobView, 2)
	assert.Equal(t, "one", bobView[0].Content)
	assert.Equal(t, "three", bobView[1].Content)

	aliceView, err := h.messages.List(ctx, conv.ID, h.alice.ID, 10)
	require.NoError(t, err)
	assert.Len(t, aliceView, 3)

	outsider := &domain.User{Username: "eve"}
	require.NoError(t, h.store.Users.Create(ctx, outsider))
	assert.ErrorIs(t, h.messages.DeleteForMe(ctx, outsider.ID, ids[0]), domain.ErrForbidden)
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv, _, err := h.convs.OpenDirect(ctx, h.alice.ID, h.bob.ID)
	require.NoError(t, err)

	ep := realtime.NewEndpoint(h.alice.ID, "web", 16)
	h.registry.Register(ep)
	h.presence.Evaluate(ctx, h.alice.ID)

	_, err = h.messages.Send(ctx, service.SendInput{ConversationID: conv.ID, SenderID: h.alice.ID, Content: "hi"}, ep)
	require.NoError(t, err)

	snap, err := h.sync.Snapshot(ctx, h.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, h.bob.ID, snap.UserID)
	require.Len(t, snap.OnlineUsers, 1)
	assert.Equal(t, h.alice.ID, snap.OnlineUsers[0].UserID)
	assert.Equal(t, map[int64]int{conv.ID: 1}, snap.UnreadCounts)
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, h.alice.ID, snap.Conversations[0].PeerID)
	require.Len(t, snap.Conversations[0].Messages, 1)
	assert.Equal(t, "hi", snap.Conversations[0].Messages[0].Content)

	// the presence tracker mirrors into the user row
	u, err := h.store.Users.GetByID(ctx, h.alice.ID)
	require.NoError(t, err)
	assert.True(t, u.IsOnline)
}
