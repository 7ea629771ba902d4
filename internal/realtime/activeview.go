package realtime

import "sync"

type viewShard struct {
	mu sync.RWMutex
	// user -> conversation -> endpoints that have it in focus
	m map[int64]map[int64]map[string]struct{}
}

// ActiveViews records which conversations each user is looking at. A
// conversation stays in view while at least one of the user's endpoints
// has it in focus.
type ActiveViews struct {
	shards [shardCount]viewShard
}

func NewActiveViews() *ActiveViews {
	v := &ActiveViews{}
	for i := range v.shards {
		v.shards[i].m = make(map[int64]map[int64]map[string]struct{})
	}
	return v
}

// EnterView marks the conversation in focus on the endpoint. Idempotent.
func (v *ActiveViews) EnterView(userID, conversationID int64, endpointID string) {
	sh := &v.shards[userShard(userID)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	convs := sh.m[userID]
	if convs == nil {
		convs = make(map[int64]map[string]struct{})
		sh.m[userID] = convs
	}
	eps := convs[conversationID]
	if eps == nil {
		eps = make(map[string]struct{})
		convs[conversationID] = eps
	}
	eps[endpointID] = struct{}{}
}

// LeaveView removes the conversation from the endpoint's focus. Idempotent.
func (v *ActiveViews) LeaveView(userID, conversationID int64, endpointID string) {
	sh := &v.shards[userShard(userID)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	convs := sh.m[userID]
	if convs == nil {
		return
	}
	if eps := convs[conversationID]; eps != nil {
		delete(eps, endpointID)
		if len(eps) == 0 {
			delete(convs, conversationID)
		}
	}
	if len(convs) == 0 {
		delete(sh.m, userID)
	}
}

// IsInView reports whether any endpoint of the user has the conversation in focus.
func (v *ActiveViews) IsInView(userID, conversationID int64) bool {
	sh := &v.shards[userShard(userID)]
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.m[userID][conversationID]) > 0
}

// DropEndpoint forgets every view held by a closed endpoint.
func (v *ActiveViews) DropEndpoint(userID int64, endpointID string) {
	sh := &v.shards[userShard(userID)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	convs := sh.m[userID]
	for convID, eps := range convs {
		delete(eps, endpointID)
		if len(eps) == 0 {
			delete(convs, convID)
		}
	}
	if len(convs) == 0 {
		delete(sh.m, userID)
	}
}

// ClearUser forgets every view of the user.
func (v *ActiveViews) ClearUser(userID int64) {
	sh := &v.shards[userShard(userID)]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.m, userID)
}

// InView lists the conversations the user currently has in focus.
func (v *ActiveViews) InView(userID int64) []int64 {
	sh := &v.shards[userShard(userID)]
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	out := make([]int64, 0, len(sh.m[userID]))
	for convID := range sh.m[userID] {
		out = append(out, convID)
	}
	return out
}
