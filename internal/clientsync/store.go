// Package clientsync keeps a client's mirror of server state consistent
// while events arrive out of band, duplicated, or across reconnects.
package clientsync

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatsync/internal/domain"
	"chatsync/internal/realtime"
)

// MessageKey identifies a message on the client. Before the server confirms
// a message only CorrelationID is set; afterwards ServerID is the identity and
// CorrelationID is kept so a late echo still matches.
type MessageKey struct {
	ServerID      int64
	CorrelationID string
}

func (k MessageKey) Confirmed() bool { return k.ServerID != 0 }

func (k MessageKey) String() string {
	if k.Confirmed() {
		return fmt.Sprintf("id:%d", k.ServerID)
	}
	return "pending:" + k.CorrelationID
}

// Entry is one message in a conversation list.
type Entry struct {
	Key     MessageKey
	Message realtime.MessagePayload
	// Pending is set until the server echoes the message back.
	Pending bool
}

type typingKey struct {
	conversationID int64
	userID         int64
}

type conversation struct {
	peerID  int64
	entries []*Entry
}

// Store is the client-side mirror. All methods are safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	userID int64
	// online holds offline records too, for their last seen time
	online map[int64]realtime.PresenceRecord
	unread map[int64]int
	convs  map[int64]*conversation
	byID   map[int64]*Entry
	byCorr map[string]*Entry
	typing map[typingKey]struct{}

	// badges stamped before the last snapshot are already reflected in it
	badgeFloor time.Time
}

func NewStore(userID int64) *Store {
	s := &Store{userID: userID}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	s.online = make(map[int64]realtime.PresenceRecord)
	s.unread = make(map[int64]int)
	s.convs = make(map[int64]*conversation)
	s.byID = make(map[int64]*Entry)
	s.byCorr = make(map[string]*Entry)
	s.typing = make(map[typingKey]struct{})
}

func (s *Store) convLocked(id int64) *conversation {
	c := s.convs[id]
	if c == nil {
		c = &conversation{}
		s.convs[id] = c
	}
	return c
}

// Compose records an optimistic message and returns the payload to send.
func (s *Store) Compose(conversationID, receiverID int64, content string) realtime.SendPayload {
	corr := uuid.NewString()
	e := &Entry{
		Key: MessageKey{CorrelationID: corr},
		Message: realtime.MessagePayload{
			ConversationID: conversationID,
			SenderID:       s.userID,
			ReceiverID:     receiverID,
			Content:        content,
			Status:         domain.StatusSent,
			CorrelationID:  corr,
		},
		Pending: true,
	}

	s.mu.Lock()
	c := s.convLocked(conversationID)
	c.entries = append(c.entries, e)
	s.byCorr[corr] = e
	s.mu.Unlock()

	return realtime.SendPayload{ConversationID: conversationID, Content: content, CorrelationID: corr}
}

// Apply folds one server frame into the store. Frames the store does not
// mirror are ignored.
func (s *Store) Apply(in realtime.Inbound) error {
	switch in.Type {
	case realtime.EventPresence:
		var p realtime.PresencePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", in.Type, err)
		}
		s.applyPresence(realtime.PresenceRecord(p))
	case realtime.EventMessageNew:
		var p realtime.MessagePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", in.Type, err)
		}
		s.applyMessage(p)
	case realtime.EventMessageStatus:
		var p realtime.StatusPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", in.Type, err)
		}
		ids := p.MessageIDs
		if p.MessageID != 0 {
			ids = append([]int64{p.MessageID}, ids...)
		}
		s.applyStatus(ids, p.Status)
	case realtime.EventTyping:
		var p realtime.TypingUpdatePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", in.Type, err)
		}
		s.applyTyping(p)
	case realtime.EventUnreadBadge:
		var p realtime.UnreadPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", in.Type, err)
		}
		s.mu.Lock()
		if p.At.IsZero() || !p.At.Before(s.badgeFloor) {
			s.unread[p.ConversationID] = p.Count
		}
		s.mu.Unlock()
	}
	return nil
}

func (s *Store) applyPresence(rec realtime.PresenceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.online[rec.UserID]; ok && rec.LastSeen.Before(cur.LastSeen) {
		return
	}
	s.online[rec.UserID] = rec
}

func (s *Store) applyMessage(p realtime.MessagePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.byID[p.ID]; e != nil {
		if e.Message.Status.Advances(p.Status) {
			e.Message.Status = p.Status
		}
		return
	}
	if p.CorrelationID != "" {
		if e := s.byCorr[p.CorrelationID]; e != nil && e.Pending {
			e.Key.ServerID = p.ID
			e.Message = p
			e.Pending = false
			s.byID[p.ID] = e
			return
		}
	}

	e := &Entry{Key: MessageKey{ServerID: p.ID, CorrelationID: p.CorrelationID}, Message: p}
	c := s.convLocked(p.ConversationID)
	c.entries = append(c.entries, e)
	s.byID[p.ID] = e
	if p.CorrelationID != "" {
		s.byCorr[p.CorrelationID] = e
	}
	delete(s.typing, typingKey{p.ConversationID, p.SenderID})
}

func (s *Store) applyStatus(ids []int64, status domain.DeliveryStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if e := s.byID[id]; e != nil && e.Message.Status.Advances(status) {
			e.Message.Status = status
		}
	}
}

func (s *Store) applyTyping(p realtime.TypingUpdatePayload) {
	k := typingKey{p.ConversationID, p.UserID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.IsTyping {
		s.typing[k] = struct{}{}
	} else {
		delete(s.typing, k)
	}
}

// Reconcile replaces the mirror with an authoritative snapshot. Messages the
// server has not confirmed yet stay in their conversation, still pending.
// A status already seen locally is kept if it is ahead of the snapshot's,
// since statuses never move backward on the server.
func (s *Store) Reconcile(snap *realtime.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldStatus := make(map[int64]domain.DeliveryStatus, len(s.byID))
	for id, e := range s.byID {
		oldStatus[id] = e.Message.Status
	}
	var pending []*Entry
	for _, c := range s.convs {
		for _, e := range c.entries {
			if e.Pending {
				pending = append(pending, e)
			}
		}
	}

	s.resetLocked()
	s.userID = snap.UserID
	s.badgeFloor = snap.TakenAt
	for _, rec := range snap.OnlineUsers {
		s.online[rec.UserID] = rec
	}
	for id, n := range snap.UnreadCounts {
		s.unread[id] = n
	}
	for _, cs := range snap.Conversations {
		c := s.convLocked(cs.ID)
		c.peerID = cs.PeerID
		for _, m := range cs.Messages {
			if prev, ok := oldStatus[m.ID]; ok && m.Status.Advances(prev) {
				m.Status = prev
			}
			e := &Entry{Key: MessageKey{ServerID: m.ID, CorrelationID: m.CorrelationID}, Message: m}
			c.entries = append(c.entries, e)
			s.byID[m.ID] = e
			if m.CorrelationID != "" {
				s.byCorr[m.CorrelationID] = e
			}
		}
	}
	for _, e := range pending {
		if _, confirmed := s.byCorr[e.Key.CorrelationID]; confirmed {
			continue
		}
		c := s.convLocked(e.Message.ConversationID)
		c.entries = append(c.entries, e)
		s.byCorr[e.Key.CorrelationID] = e
	}
}

// Messages returns a copy of a conversation's entries in arrival order.
func (s *Store) Messages(conversationID int64) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.convs[conversationID]
	if c == nil {
		return nil
	}
	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		out[i] = *e
	}
	return out
}

// Pending returns the unconfirmed messages of every conversation.
func (s *Store) Pending() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.byCorr {
		if e.Pending {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.CorrelationID < out[j].Key.CorrelationID })
	return out
}

// Presence returns what the store knows about userID.
func (s *Store) Presence(userID int64) (realtime.PresenceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.online[userID]
	return rec, ok
}

func (s *Store) IsOnline(userID int64) bool {
	rec, _ := s.Presence(userID)
	return rec.IsOnline
}

func (s *Store) Unread(conversationID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread[conversationID]
}

func (s *Store) IsTyping(conversationID, userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.typing[typingKey{conversationID, userID}]
	return ok
}
