package realtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryMultiDevice(t *testing.T) {
	r := NewRegistry()
	a1 := NewEndpoint(1, "phone", 8)
	a2 := NewEndpoint(1, "laptop", 8)

	assert.True(t, r.Register(a1))
	assert.False(t, r.Register(a2))
	assert.Equal(t, 2, r.Count(1))
	assert.ElementsMatch(t, []*Endpoint{a1, a2}, r.EndpointsFor(1))
	assert.Same(t, a2, r.Lookup(a2.ID))

	ep, last := r.Unregister(a1.ID)
	assert.Same(t, a1, ep)
	assert.False(t, last)
	assert.True(t, r.IsOnline(1))

	ep, last = r.Unregister(a2.ID)
	assert.Same(t, a2, ep)
	assert.True(t, last)
	assert.False(t, r.IsOnline(1))
	assert.Nil(t, r.EndpointsFor(1))
}

func TestRegistryIdempotent(t *testing.T) {
	r := NewRegistry()
	ep := NewEndpoint(7, "", 8)

	assert.True(t, r.Register(ep))
	assert.False(t, r.Register(ep))
	assert.Equal(t, 1, r.Count(7))

	_, last := r.Unregister(ep.ID)
	assert.True(t, last)
	got, last := r.Unregister(ep.ID)
	assert.Nil(t, got)
	assert.False(t, last)

	got, _ = r.Unregister("unknown")
	assert.Nil(t, got)
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()
	const users, perUser = 20, 10

	var wg sync.WaitGroup
	eps := make([]*Endpoint, 0, users*perUser)
	for u := int64(1); u <= users; u++ {
		for i := 0; i < perUser; i++ {
			eps = append(eps, NewEndpoint(u, "", 1))
		}
	}
	for _, ep := range eps {
		wg.Add(1)
		go func(ep *Endpoint) {
			defer wg.Done()
			r.Register(ep)
		}(ep)
	}
	wg.Wait()
	require.Len(t, r.All(), users*perUser)

	var mu sync.Mutex
	lasts := make(map[int64]int)
	for _, ep := range eps {
		wg.Add(1)
		go func(ep *Endpoint) {
			defer wg.Done()
			if _, last := r.Unregister(ep.ID); last {
				mu.Lock()
				lasts[ep.UserID]++
				mu.Unlock()
			}
		}(ep)
	}
	wg.Wait()

	assert.Empty(t, r.All())
	for u := int64(1); u <= users; u++ {
		assert.Equal(t, 1, lasts[u], "user %d", u)
	}
}
