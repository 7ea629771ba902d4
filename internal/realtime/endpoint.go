package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Endpoint is one live channel of a user. Events pushed to it are queued in
// order and drained by a single writer.
type Endpoint struct {
	ID        string
	UserID    int64
	DeviceTag string

	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

// NewEndpoint creates an endpoint with a fresh id and a queue of queueSize.
func NewEndpoint(userID int64, deviceTag string, queueSize int) *Endpoint {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Endpoint{
		ID:        uuid.NewString(),
		UserID:    userID,
		DeviceTag: deviceTag,
		queue:     make(chan Event, queueSize),
		done:      make(chan struct{}),
	}
}

// Push enqueues ev without blocking. It reports false when the endpoint is
// closed or its queue is full; the event is then dropped.
func (e *Endpoint) Push(ev Event) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.queue <- ev:
		return true
	case <-e.done:
		return false
	default:
		n := e.dropped.Add(1)
		logrus.WithFields(logrus.Fields{
			"component":   "endpoint",
			"endpoint_id": e.ID,
			"user_id":     e.UserID,
			"event":       ev.Type,
			"dropped":     n,
		}).Warn("send queue full, dropping event")
		return false
	}
}

// Events is drained by the connection writer.
func (e *Endpoint) Events() <-chan Event {
	return e.queue
}

// Done is closed once the endpoint is closed.
func (e *Endpoint) Done() <-chan struct{} {
	return e.done
}

// Close stops accepting events. Safe to call more than once.
func (e *Endpoint) Close() {
	e.closeOnce.Do(func() { close(e.done) })
}

// Dropped returns how many events were discarded on a full queue.
func (e *Endpoint) Dropped() int64 {
	return e.dropped.Load()
}

func pushAll(eps []*Endpoint, ev Event) {
	for _, ep := range eps {
		ep.Push(ev)
	}
}
