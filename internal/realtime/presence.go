package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PresenceRecord is the derived reachability of one user.
type PresenceRecord struct {
	UserID   int64     `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// PresenceStore mirrors presence transitions into durable user rows.
type PresenceStore interface {
	SetOnlineStatus(ctx context.Context, id int64, isOnline bool, lastSeen time.Time) error
}

type presenceShard struct {
	mu sync.Mutex
	m  map[int64]*PresenceRecord
}

// Presence derives online/offline from registry occupancy and broadcasts
// every transition to all endpoints. Offline is driven only by disconnects;
// heartbeats refresh LastSeen and nothing else.
type Presence struct {
	registry *Registry
	store    PresenceStore
	now      func() time.Time
	shards   [shardCount]presenceShard
	log      *logrus.Entry
}

// NewPresence builds a tracker over registry. store may be nil.
func NewPresence(registry *Registry, store PresenceStore) *Presence {
	p := &Presence{
		registry: registry,
		store:    store,
		now:      time.Now,
		log:      logrus.WithField("component", "presence"),
	}
	for i := range p.shards {
		p.shards[i].m = make(map[int64]*PresenceRecord)
	}
	return p
}

// Evaluate reconciles the user's record with the registry and broadcasts a
// presence-update if the derived status changed. Concurrent evaluations of
// one user are serialized, and each reads the registry while holding the
// user's lock, so the last broadcast always matches the registry.
func (p *Presence) Evaluate(ctx context.Context, userID int64) bool {
	sh := &p.shards[userShard(userID)]

	sh.mu.Lock()
	online := p.registry.IsOnline(userID)
	rec := sh.m[userID]
	if rec == nil {
		if !online {
			sh.mu.Unlock()
			return false
		}
		rec = &PresenceRecord{UserID: userID}
		sh.m[userID] = rec
	} else if rec.IsOnline == online {
		sh.mu.Unlock()
		return false
	}
	rec.IsOnline = online
	rec.LastSeen = p.now().UTC()
	ev := Event{Type: EventPresence, Payload: PresencePayload{
		UserID:   userID,
		IsOnline: rec.IsOnline,
		LastSeen: rec.LastSeen,
	}}
	pushAll(p.registry.All(), ev)
	sh.mu.Unlock()

	p.log.WithFields(logrus.Fields{
		"user_id": userID,
		"online":  online,
	}).Info("presence changed")

	p.persist(ctx, userID)
	return true
}

// persist writes the current record through to the store. If another
// transition lands while writing, it writes again so the row converges.
func (p *Presence) persist(ctx context.Context, userID int64) {
	if p.store == nil {
		return
	}
	for attempt := 0; attempt < 3; attempt++ {
		rec, ok := p.Snapshot(userID)
		if !ok {
			return
		}
		if err := p.store.SetOnlineStatus(ctx, userID, rec.IsOnline, rec.LastSeen); err != nil {
			p.log.WithError(err).WithField("user_id", userID).Warn("persist presence")
			return
		}
		if cur, _ := p.Snapshot(userID); cur.IsOnline == rec.IsOnline {
			return
		}
	}
}

// Heartbeat refreshes LastSeen of an online user. It never changes status.
func (p *Presence) Heartbeat(userID int64) {
	sh := &p.shards[userShard(userID)]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if rec := sh.m[userID]; rec != nil && rec.IsOnline {
		rec.LastSeen = p.now().UTC()
	}
}

// Snapshot returns a copy of the user's record.
func (p *Presence) Snapshot(userID int64) (PresenceRecord, bool) {
	sh := &p.shards[userShard(userID)]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec := sh.m[userID]
	if rec == nil {
		return PresenceRecord{UserID: userID}, false
	}
	return *rec, true
}

// Online lists the records of every online user ordered by user id.
func (p *Presence) Online() []PresenceRecord {
	var out []PresenceRecord
	for i := range p.shards {
		sh := &p.shards[i]
		sh.mu.Lock()
		for _, rec := range sh.m {
			if rec.IsOnline {
				out = append(out, *rec)
			}
		}
		sh.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
