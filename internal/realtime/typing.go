package realtime

import (
	"sync"
	"time"
)

type typingKey struct {
	user int64
	conv int64
}

// typingFlag owns its auto-stop timer. The timer is armed once; repeated
// starts only push the deadline forward and the timer re-arms itself.
type typingFlag struct {
	receiverID int64
	deadline   time.Time
	timer      *time.Timer
}

type typingShard struct {
	mu sync.Mutex
	m  map[typingKey]*typingFlag
}

// Typing debounces typing indicators per (user, conversation) and fans them
// out to the other participant only.
type Typing struct {
	registry *Registry
	window   time.Duration
	now      func() time.Time
	shards   [shardCount]typingShard
}

// NewTyping returns a coordinator that auto-stops a flag after window
// without a new start.
func NewTyping(registry *Registry, window time.Duration) *Typing {
	t := &Typing{
		registry: registry,
		window:   window,
		now:      time.Now,
	}
	for i := range t.shards {
		t.shards[i].m = make(map[typingKey]*typingFlag)
	}
	return t
}

// StartTyping raises the flag and notifies the receiver, or, if the flag is
// already up, only extends its deadline.
func (t *Typing) StartTyping(userID, conversationID, receiverID int64) {
	k := typingKey{user: userID, conv: conversationID}
	sh := &t.shards[userShard(userID)]

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if f := sh.m[k]; f != nil {
		if f.receiverID == receiverID {
			f.deadline = t.now().Add(t.window)
			return
		}
		t.clearLocked(sh, k, f)
	}

	f := &typingFlag{
		receiverID: receiverID,
		deadline:   t.now().Add(t.window),
	}
	f.timer = time.AfterFunc(t.window, func() { t.expire(k, f) })
	sh.m[k] = f
	t.emit(userID, conversationID, receiverID, true)
}

// StopTyping lowers the flag. Stopping a flag that is not up is a no-op.
func (t *Typing) StopTyping(userID, conversationID int64) {
	k := typingKey{user: userID, conv: conversationID}
	sh := &t.shards[userShard(userID)]

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if f := sh.m[k]; f != nil {
		t.clearLocked(sh, k, f)
	}
}

// StopAll lowers every flag of the user, emitting the stop events.
func (t *Typing) StopAll(userID int64) {
	sh := &t.shards[userShard(userID)]

	sh.mu.Lock()
	defer sh.mu.Unlock()
	for k, f := range sh.m {
		if k.user == userID {
			t.clearLocked(sh, k, f)
		}
	}
}

// IsTyping reports whether the user's flag for the conversation is up.
func (t *Typing) IsTyping(userID, conversationID int64) bool {
	sh := &t.shards[userShard(userID)]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.m[typingKey{user: userID, conv: conversationID}] != nil
}

// Close cancels every pending timer without emitting events.
func (t *Typing) Close() {
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		for k, f := range sh.m {
			f.timer.Stop()
			delete(sh.m, k)
		}
		sh.mu.Unlock()
	}
}

func (t *Typing) expire(k typingKey, f *typingFlag) {
	sh := &t.shards[userShard(k.user)]

	sh.mu.Lock()
	defer sh.mu.Unlock()

	// stopped or replaced since the timer fired
	if sh.m[k] != f {
		return
	}
	if left := f.deadline.Sub(t.now()); left > 0 {
		f.timer.Reset(left)
		return
	}
	delete(sh.m, k)
	t.emit(k.user, k.conv, f.receiverID, false)
}

func (t *Typing) clearLocked(sh *typingShard, k typingKey, f *typingFlag) {
	f.timer.Stop()
	delete(sh.m, k)
	t.emit(k.user, k.conv, f.receiverID, false)
}

func (t *Typing) emit(userID, conversationID, receiverID int64, typing bool) {
	pushAll(t.registry.EndpointsFor(receiverID), Event{Type: EventTyping, Payload: TypingUpdatePayload{
		UserID:         userID,
		ConversationID: conversationID,
		IsTyping:       typing,
	}})
}
