package realtime

import (
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"
)

var (
	ErrTargetUnreachable = errors.New("call target has no live endpoint")
	ErrNotParticipant    = errors.New("sender is not a party of the call")
	ErrBadSignal         = errors.New("malformed call signal")
)

// Reasons carried by call_failed.
const (
	CallFailedUnreachable = "unreachable"
	CallFailedInvalid     = "invalid"
)

// CallSignal is one call-control or WebRTC signaling frame. Payload is opaque
// and forwarded byte for byte.
type CallSignal struct {
	CallID     string          `json:"callId"`
	CallerID   int64           `json:"callerId"`
	ReceiverID int64           `json:"receiverId"`
	SenderID   int64           `json:"senderId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Relay forwards call signaling between the two parties of a call. It keeps
// no session table; routing is by the current endpoint set of the peer.
type Relay struct {
	registry *Registry
	log      *logrus.Entry
}

func NewRelay(registry *Registry) *Relay {
	return &Relay{
		registry: registry,
		log:      logrus.WithField("component", "relay"),
	}
}

// Relay forwards sig of the given kind from the originating endpoint to every
// endpoint of the other party. If the other party is unreachable the origin
// gets call_failed, except for reject and end which are simply dropped.
func (r *Relay) Relay(from *Endpoint, kind EventType, sig CallSignal) error {
	if !kind.IsCallSignal() || sig.CallID == "" || sig.CallerID == sig.ReceiverID {
		r.fail(from, sig.CallID, CallFailedInvalid)
		return ErrBadSignal
	}

	var target int64
	switch from.UserID {
	case sig.CallerID:
		target = sig.ReceiverID
	case sig.ReceiverID:
		target = sig.CallerID
	default:
		r.fail(from, sig.CallID, CallFailedInvalid)
		return ErrNotParticipant
	}
	sig.SenderID = from.UserID

	eps := r.registry.EndpointsFor(target)
	if len(eps) == 0 {
		if kind != EventCallReject && kind != EventCallEnd {
			r.fail(from, sig.CallID, CallFailedUnreachable)
		}
		r.log.WithFields(logrus.Fields{
			"call_id": sig.CallID,
			"kind":    kind,
			"target":  target,
		}).Debug("call target unreachable")
		return ErrTargetUnreachable
	}

	pushAll(eps, Event{Type: kind, Payload: sig})
	return nil
}

func (r *Relay) fail(from *Endpoint, callID, reason string) {
	from.Push(Event{Type: EventCallFailed, Payload: CallFailedPayload{
		CallID: callID,
		Reason: reason,
	}})
}
