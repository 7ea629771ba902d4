package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typingUpdates(ep *Endpoint) []TypingUpdatePayload {
	var out []TypingUpdatePayload
	for _, ev := range ofType(drain(ep), EventTyping) {
		out = append(out, ev.Payload.(TypingUpdatePayload))
	}
	return out
}

func TestTypingRepeatStartDoesNotReEmit(t *testing.T) {
	r := NewRegistry()
	a := connect(r, alice, "")
	b := connect(r, bob, "")
	typing := NewTyping(r, time.Minute)
	defer typing.Close()

	typing.StartTyping(alice, 10, bob)
	typing.StartTyping(alice, 10, bob)
	typing.StartTyping(alice, 10, bob)

	updates := typingUpdates(b)
	require.Len(t, updates, 1)
	assert.True(t, updates[0].IsTyping)
	assert.Equal(t, alice, updates[0].UserID)
	assert.Empty(t, drain(a), "the typist gets no echo")

	typing.StopTyping(alice, 10)
	typing.StopTyping(alice, 10)
	updates = typingUpdates(b)
	require.Len(t, updates, 1)
	assert.False(t, updates[0].IsTyping)
	assert.False(t, typing.IsTyping(alice, 10))
}

func TestTypingAutoExpires(t *testing.T) {
	r := NewRegistry()
	b := connect(r, bob, "")
	typing := NewTyping(r, 30*time.Millisecond)
	defer typing.Close()

	typing.StartTyping(alice, 10, bob)
	require.True(t, typing.IsTyping(alice, 10))

	assert.Eventually(t, func() bool { return !typing.IsTyping(alice, 10) }, time.Second, 5*time.Millisecond)
	updates := typingUpdates(b)
	require.Len(t, updates, 2)
	assert.True(t, updates[0].IsTyping)
	assert.False(t, updates[1].IsTyping)
}

func TestTypingStartExtendsDeadline(t *testing.T) {
	r := NewRegistry()
	connect(r, bob, "")
	typing := NewTyping(r, time.Minute)
	defer typing.Close()

	base := time.Now()
	now := base
	typing.now = func() time.Time { return now }

	typing.StartTyping(alice, 10, bob)
	k := typingKey{user: alice, conv: 10}
	f := typing.shards[userShard(alice)].m[k]
	require.NotNil(t, f)

	now = base.Add(30 * time.Second)
	typing.StartTyping(alice, 10, bob)

	// fired at the original deadline: the flag is re-armed, not cleared
	now = base.Add(time.Minute)
	typing.expire(k, f)
	assert.True(t, typing.IsTyping(alice, 10))

	now = base.Add(90 * time.Second)
	typing.expire(k, f)
	assert.False(t, typing.IsTyping(alice, 10))
}

func TestTypingStopAll(t *testing.T) {
	r := NewRegistry()
	b := connect(r, bob, "")
	typing := NewTyping(r, time.Minute)
	defer typing.Close()

	typing.StartTyping(alice, 10, bob)
	typing.StartTyping(alice, 11, bob)
	typing.StartTyping(bob, 10, alice)
	drain(b)

	typing.StopAll(alice)
	updates := typingUpdates(b)
	require.Len(t, updates, 2)
	for _, u := range updates {
		assert.False(t, u.IsTyping)
	}
	assert.True(t, typing.IsTyping(bob, 10))
}
