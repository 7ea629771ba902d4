package clientsync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain"
	"chatsync/internal/realtime"
)

const (
	me   int64 = 1
	peer int64 = 2
	conv int64 = 7
)

func frame(t *testing.T, typ realtime.EventType, payload any) realtime.Inbound {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return realtime.Inbound{Type: typ, Payload: b}
}

func apply(t *testing.T, s *Store, typ realtime.EventType, payload any) {
	t.Helper()
	require.NoError(t, s.Apply(frame(t, typ, payload)))
}

func TestOptimisticMessageCollapsesWithEcho(t *testing.T) {
	s := NewStore(me)
	sent := s.Compose(conv, peer, "hi")
	require.NotEmpty(t, sent.CorrelationID)

	msgs := s.Messages(conv)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Pending)
	assert.False(t, msgs[0].Key.Confirmed())

	echo := realtime.MessagePayload{
		ID: 10, ConversationID: conv, SenderID: me, ReceiverID: peer,
		Content: "hi", Status: domain.StatusSent, CorrelationID: sent.CorrelationID,
	}
	apply(t, s, realtime.EventMessageNew, echo)
	apply(t, s, realtime.EventMessageNew, echo)

	msgs = s.Messages(conv)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Pending)
	assert.Equal(t, MessageKey{ServerID: 10, CorrelationID: sent.CorrelationID}, msgs[0].Key)
	assert.Empty(t, s.Pending())
}

func TestStatusOnlyMovesForward(t *testing.T) {
	s := NewStore(me)
	apply(t, s, realtime.EventMessageNew, realtime.MessagePayload{ID: 10, ConversationID: conv, SenderID: me, ReceiverID: peer})
	apply(t, s, realtime.EventMessageNew, realtime.MessagePayload{ID: 11, ConversationID: conv, SenderID: me, ReceiverID: peer})

	apply(t, s, realtime.EventMessageStatus, realtime.StatusPayload{MessageIDs: []int64{10, 11}, Status: domain.StatusRead, ConversationID: conv})
	apply(t, s, realtime.EventMessageStatus, realtime.StatusPayload{MessageID: 10, Status: domain.StatusDelivered, ConversationID: conv})
	apply(t, s, realtime.EventMessageStatus, realtime.StatusPayload{MessageID: 99, Status: domain.StatusRead, ConversationID: conv})
	// a late duplicate of the original push
	apply(t, s, realtime.EventMessageNew, realtime.MessagePayload{ID: 11, ConversationID: conv, Status: domain.StatusSent})

	msgs := s.Messages(conv)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, domain.StatusRead, m.Message.Status, m.Key.String())
	}
}

func TestPresenceIgnoresStaleUpdates(t *testing.T) {
	s := NewStore(me)
	now := time.Now().UTC()

	apply(t, s, realtime.EventPresence, realtime.PresencePayload{UserID: peer, IsOnline: true, LastSeen: now})
	apply(t, s, realtime.EventPresence, realtime.PresencePayload{UserID: peer, IsOnline: true, LastSeen: now})
	assert.True(t, s.IsOnline(peer))

	apply(t, s, realtime.EventPresence, realtime.PresencePayload{UserID: peer, IsOnline: false, LastSeen: now.Add(-time.Minute)})
	assert.True(t, s.IsOnline(peer), "older offline update must not win")

	apply(t, s, realtime.EventPresence, realtime.PresencePayload{UserID: peer, IsOnline: false, LastSeen: now.Add(time.Second)})
	rec, ok := s.Presence(peer)
	require.True(t, ok)
	assert.False(t, rec.IsOnline)
	assert.True(t, rec.LastSeen.Equal(now.Add(time.Second)))
}

func TestTypingAndBadges(t *testing.T) {
	s := NewStore(me)

	apply(t, s, realtime.EventTyping, realtime.TypingUpdatePayload{UserID: peer, ConversationID: conv, IsTyping: true})
	assert.True(t, s.IsTyping(conv, peer))
	apply(t, s, realtime.EventTyping, realtime.TypingUpdatePayload{UserID: peer, ConversationID: conv, IsTyping: false})
	assert.False(t, s.IsTyping(conv, peer))

	apply(t, s, realtime.EventTyping, realtime.TypingUpdatePayload{UserID: peer, ConversationID: conv, IsTyping: true})
	apply(t, s, realtime.EventMessageNew, realtime.MessagePayload{ID: 20, ConversationID: conv, SenderID: peer, ReceiverID: me})
	assert.False(t, s.IsTyping(conv, peer), "a message from the typist ends the indicator")

	apply(t, s, realtime.EventUnreadBadge, realtime.UnreadPayload{ConversationID: conv, Count: 3})
	apply(t, s, realtime.EventUnreadBadge, realtime.UnreadPayload{ConversationID: conv, Count: 3})
	assert.Equal(t, 3, s.Unread(conv))
	apply(t, s, realtime.EventUnreadBadge, realtime.UnreadPayload{ConversationID: conv, Count: 0})
	assert.Equal(t, 0, s.Unread(conv))
}

func TestApplyRejectsMalformedPayload(t *testing.T) {
	s := NewStore(me)
	err := s.Apply(realtime.Inbound{Type: realtime.EventMessageStatus, Payload: []byte(`{"status":"lost"}`)})
	assert.Error(t, err)
	assert.NoError(t, s.Apply(realtime.Inbound{Type: realtime.EventWarning, Payload: []byte(`{"message":"x"}`)}))
}

func TestReconcile(t *testing.T) {
	s := NewStore(me)
	now := time.Now().UTC()

	apply(t, s, realtime.EventPresence, realtime.PresencePayload{UserID: 3, IsOnline: true, LastSeen: now})
	apply(t, s, realtime.EventTyping, realtime.TypingUpdatePayload{UserID: peer, ConversationID: conv, IsTyping: true})
	apply(t, s, realtime.EventMessageNew, realtime.MessagePayload{ID: 10, ConversationID: conv, SenderID: me, ReceiverID: peer})
	apply(t, s, realtime.EventMessageStatus, realtime.StatusPayload{MessageID: 10, Status: domain.StatusRead, ConversationID: conv})

	confirmed := s.Compose(conv, peer, "made it")
	lost := s.Compose(conv, peer, "still in flight")

	s.Reconcile(&realtime.Snapshot{
		UserID:       me,
		OnlineUsers:  []realtime.PresenceRecord{{UserID: peer, IsOnline: true, LastSeen: now}},
		UnreadCounts: map[int64]int{conv: 2},
		Conversations: []realtime.ConversationSnapshot{{
			ID:     conv,
			PeerID: peer,
			Messages: []realtime.MessagePayload{
				{ID: 10, ConversationID: conv, SenderID: me, ReceiverID: peer, Status: domain.StatusDelivered},
				{ID: 12, ConversationID: conv, SenderID: me, ReceiverID: peer, Content: "made it", CorrelationID: confirmed.CorrelationID},
				{ID: 13, ConversationID: conv, SenderID: peer, ReceiverID: me, Content: "missed while away"},
			},
		}},
	})

	assert.True(t, s.IsOnline(peer))
	assert.False(t, s.IsOnline(3), "presence comes from the snapshot")
	assert.False(t, s.IsTyping(conv, peer))
	assert.Equal(t, 2, s.Unread(conv))

	msgs := s.Messages(conv)
	require.Len(t, msgs, 4)
	assert.Equal(t, domain.StatusRead, msgs[0].Message.Status, "local status ahead of the snapshot is kept")
	assert.Equal(t, int64(12), msgs[1].Key.ServerID)
	assert.False(t, msgs[1].Pending)
	assert.Equal(t, int64(13), msgs[2].Key.ServerID)
	assert.True(t, msgs[3].Pending)
	assert.Equal(t, lost.CorrelationID, msgs[3].Key.CorrelationID)

	pending := s.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "still in flight", pending[0].Message.Content)

	// the echo of the in-flight message still collapses after reconcile
	apply(t, s, realtime.EventMessageNew, realtime.MessagePayload{
		ID: 14, ConversationID: conv, SenderID: me, ReceiverID: peer, Content: "still in flight", CorrelationID: lost.CorrelationID,
	})
	assert.Len(t, s.Messages(conv), 4)
	assert.Empty(t, s.Pending())
}

func TestBadgesOlderThanSnapshotAreDropped(t *testing.T) {
	s := NewStore(me)
	taken := time.Now().UTC()
	s.Reconcile(&realtime.Snapshot{UserID: me, TakenAt: taken, UnreadCounts: map[int64]int{conv: 2}})

	// queued in the socket while the snapshot was being fetched
	apply(t, s, realtime.EventUnreadBadge, realtime.UnreadPayload{ConversationID: conv, Count: 1, At: taken.Add(-time.Second)})
	assert.Equal(t, 2, s.Unread(conv))

	apply(t, s, realtime.EventUnreadBadge, realtime.UnreadPayload{ConversationID: conv, Count: 3, At: taken.Add(time.Millisecond)})
	assert.Equal(t, 3, s.Unread(conv))

	apply(t, s, realtime.EventUnreadBadge, realtime.UnreadPayload{ConversationID: conv, Count: 0, At: taken.Add(2 * time.Millisecond)})
	assert.Equal(t, 0, s.Unread(conv))
}
