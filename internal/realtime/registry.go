package realtime

import (
	"sync"
)

type registryUsers struct {
	mu sync.RWMutex
	m  map[int64]map[string]*Endpoint
}

type registryIndex struct {
	mu sync.RWMutex
	m  map[string]*Endpoint
}

// Registry maps users to their open endpoints. Both the user map and the
// endpoint-id index are striped; when both are needed the user stripe is
// always locked first.
type Registry struct {
	users [shardCount]registryUsers
	index [shardCount]registryIndex
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.users {
		r.users[i].m = make(map[int64]map[string]*Endpoint)
		r.index[i].m = make(map[string]*Endpoint)
	}
	return r
}

// Register adds ep to its user's set. It reports whether the user went from
// zero endpoints to one. Registering the same endpoint twice is a no-op.
func (r *Registry) Register(ep *Endpoint) (first bool) {
	us := &r.users[userShard(ep.UserID)]
	ix := &r.index[stringShard(ep.ID)]

	us.mu.Lock()
	defer us.mu.Unlock()
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.m[ep.ID]; ok {
		return false
	}
	set := us.m[ep.UserID]
	if set == nil {
		set = make(map[string]*Endpoint)
		us.m[ep.UserID] = set
	}
	first = len(set) == 0
	set[ep.ID] = ep
	ix.m[ep.ID] = ep
	return first
}

// Unregister removes the endpoint from whichever user owns it. It returns the
// removed endpoint (nil if unknown) and whether its user has no endpoints left.
func (r *Registry) Unregister(endpointID string) (ep *Endpoint, last bool) {
	ix := &r.index[stringShard(endpointID)]

	ix.mu.RLock()
	ep = ix.m[endpointID]
	ix.mu.RUnlock()
	if ep == nil {
		return nil, false
	}

	us := &r.users[userShard(ep.UserID)]
	us.mu.Lock()
	defer us.mu.Unlock()
	ix.mu.Lock()
	defer ix.mu.Unlock()

	// lost a race with another Unregister of the same endpoint
	if ix.m[endpointID] != ep {
		return nil, false
	}
	delete(ix.m, endpointID)

	set := us.m[ep.UserID]
	delete(set, endpointID)
	if len(set) == 0 {
		delete(us.m, ep.UserID)
		return ep, true
	}
	return ep, false
}

// Lookup returns the endpoint with the given id, if registered.
func (r *Registry) Lookup(endpointID string) *Endpoint {
	ix := &r.index[stringShard(endpointID)]
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.m[endpointID]
}

// EndpointsFor returns a snapshot of the user's current endpoints.
func (r *Registry) EndpointsFor(userID int64) []*Endpoint {
	us := &r.users[userShard(userID)]
	us.mu.RLock()
	defer us.mu.RUnlock()

	set := us.m[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Endpoint, 0, len(set))
	for _, ep := range set {
		out = append(out, ep)
	}
	return out
}

// Count returns the number of open endpoints of the user.
func (r *Registry) Count(userID int64) int {
	us := &r.users[userShard(userID)]
	us.mu.RLock()
	defer us.mu.RUnlock()
	return len(us.m[userID])
}

func (r *Registry) IsOnline(userID int64) bool {
	return r.Count(userID) > 0
}

// All returns every registered endpoint. Stripes are read one at a time, so
// the result is not a single atomic snapshot.
func (r *Registry) All() []*Endpoint {
	var out []*Endpoint
	for i := range r.users {
		us := &r.users[i]
		us.mu.RLock()
		for _, set := range us.m {
			for _, ep := range set {
				out = append(out, ep)
			}
		}
		us.mu.RUnlock()
	}
	return out
}
