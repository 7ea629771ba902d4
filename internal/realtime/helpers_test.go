package realtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// drain returns every event queued on ep without blocking.
func drain(ep *Endpoint) []Event {
	var out []Event
	for {
		select {
		case ev := <-ep.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func ofType(evs []Event, t EventType) []Event {
	var out []Event
	for _, ev := range evs {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// single asserts there is exactly one event of type t and returns its payload.
func single[P any](t *testing.T, evs []Event, typ EventType) P {
	t.Helper()
	got := ofType(evs, typ)
	require.Len(t, got, 1, "events of type %s", typ)
	p, ok := got[0].Payload.(P)
	require.True(t, ok, "payload type %T", got[0].Payload)
	return p
}

func connect(r *Registry, userID int64, device string) *Endpoint {
	ep := NewEndpoint(userID, device, 64)
	r.Register(ep)
	return ep
}
