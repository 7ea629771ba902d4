package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayForwardsToEveryPeerEndpoint(t *testing.T) {
	r := NewRegistry()
	a := connect(r, alice, "")
	b1 := connect(r, bob, "phone")
	b2 := connect(r, bob, "laptop")
	relay := NewRelay(r)

	sdp := json.RawMessage(`{"sdp":"v=0"}`)
	err := relay.Relay(a, EventCallOffer, CallSignal{CallID: "c1", CallerID: alice, ReceiverID: bob, Payload: sdp})
	require.NoError(t, err)

	for _, ep := range []*Endpoint{b1, b2} {
		sig := single[CallSignal](t, drain(ep), EventCallOffer)
		assert.Equal(t, alice, sig.SenderID)
		assert.JSONEq(t, string(sdp), string(sig.Payload))
	}

	// answers route back to the caller
	require.NoError(t, relay.Relay(b1, EventCallAnswer, CallSignal{CallID: "c1", CallerID: alice, ReceiverID: bob}))
	sig := single[CallSignal](t, drain(a), EventCallAnswer)
	assert.Equal(t, bob, sig.SenderID)
}

func TestRelayUnreachableTarget(t *testing.T) {
	r := NewRegistry()
	a := connect(r, alice, "")
	relay := NewRelay(r)

	err := relay.Relay(a, EventCallInitiate, CallSignal{CallID: "c1", CallerID: alice, ReceiverID: bob})
	assert.ErrorIs(t, err, ErrTargetUnreachable)
	failed := single[CallFailedPayload](t, drain(a), EventCallFailed)
	assert.Equal(t, "c1", failed.CallID)
	assert.Equal(t, CallFailedUnreachable, failed.Reason)

	// hanging up on an absent peer is silent
	err = relay.Relay(a, EventCallEnd, CallSignal{CallID: "c1", CallerID: alice, ReceiverID: bob})
	assert.ErrorIs(t, err, ErrTargetUnreachable)
	assert.Empty(t, drain(a))
}

func TestRelayRejectsBadSignals(t *testing.T) {
	r := NewRegistry()
	a := connect(r, alice, "")
	connect(r, bob, "")
	relay := NewRelay(r)

	err := relay.Relay(a, EventCallOffer, CallSignal{CallerID: alice, ReceiverID: bob})
	assert.ErrorIs(t, err, ErrBadSignal)

	err = relay.Relay(a, EventMessageSend, CallSignal{CallID: "c", CallerID: alice, ReceiverID: bob})
	assert.ErrorIs(t, err, ErrBadSignal)

	err = relay.Relay(a, EventCallOffer, CallSignal{CallID: "c", CallerID: 7, ReceiverID: bob})
	assert.ErrorIs(t, err, ErrNotParticipant)

	failures := ofType(drain(a), EventCallFailed)
	assert.Len(t, failures, 3)
}
