// Package memory is a process-local implementation of the domain
// repositories, used by STORE_DRIVER=memory and by tests.
package memory

import (
	"errors"
	"sync"
	"time"

	"chatsync/internal/domain"
)

// ErrInjected is returned by writes while failures are injected.
var ErrInjected = errors.New("memory: injected write failure")

type pairKey struct {
	a int64
	b int64
}

type state struct {
	mu sync.RWMutex

	nextUser int64
	nextConv int64
	nextMsg  int64

	users        map[int64]*domain.User
	convs        map[int64]*domain.Conversation
	participants map[int64][]int64
	joined       map[pairKey]time.Time // (conv, user)
	unread       map[pairKey]int       // (conv, user)
	messages     map[int64]*domain.Message
	deleted      map[pairKey]struct{} // (user, message)

	failWrites int
}

// Store bundles the repositories over one shared state.
type Store struct {
	Users         *UserRepo
	Conversations *ConversationRepo
	Messages      *MessageRepo
	Unread        *UnreadCounter

	s *state
}

func New() *Store {
	s := &state{
		users:        make(map[int64]*domain.User),
		convs:        make(map[int64]*domain.Conversation),
		participants: make(map[int64][]int64),
		joined:       make(map[pairKey]time.Time),
		unread:       make(map[pairKey]int),
		messages:     make(map[int64]*domain.Message),
		deleted:      make(map[pairKey]struct{}),
	}
	return &Store{
		Users:         &UserRepo{s: s},
		Conversations: &ConversationRepo{s: s},
		Messages:      &MessageRepo{s: s},
		Unread:        &UnreadCounter{s: s},
		s:             s,
	}
}

// FailWrites makes the next n write operations fail with ErrInjected.
func (st *Store) FailWrites(n int) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.failWrites = n
}

// write must be called with mu held.
func (s *state) write() error {
	if s.failWrites > 0 {
		s.failWrites--
		return ErrInjected
	}
	return nil
}
