package ws

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"chatsync/internal/domain"
	"chatsync/internal/realtime"
)

// HubConfig wires the realtime components together.
type HubConfig struct {
	Messages      domain.MessageRepository
	Unread        domain.UnreadCounter
	PresenceStore realtime.PresenceStore
	Notifier      realtime.OfflineNotifier
	Render        realtime.MessageRenderer

	TypingTimeout time.Duration
	QueueSize     int
	RetryDelay    time.Duration
}

// Hub owns the live state of every connection: which endpoints exist, who is
// online, what is in view, who is typing. Connection handlers go through it
// to open and close endpoints so the order of side effects stays fixed.
type Hub struct {
	Registry *realtime.Registry
	Presence *realtime.Presence
	Views    *realtime.ActiveViews
	Delivery *realtime.Delivery
	Typing   *realtime.Typing
	Relay    *realtime.Relay

	queueSize int
	log       *logrus.Entry
}

func NewHub(cfg HubConfig) *Hub {
	reg := realtime.NewRegistry()
	views := realtime.NewActiveViews()
	return &Hub{
		Registry: reg,
		Presence: realtime.NewPresence(reg, cfg.PresenceStore),
		Views:    views,
		Delivery: realtime.NewDelivery(reg, views, cfg.Messages, cfg.Unread, realtime.DeliveryConfig{
			RetryDelay: cfg.RetryDelay,
			Render:     cfg.Render,
			Notifier:   cfg.Notifier,
		}),
		Typing:    realtime.NewTyping(reg, cfg.TypingTimeout),
		Relay:     realtime.NewRelay(reg),
		queueSize: cfg.QueueSize,
		log:       logrus.WithField("component", "hub"),
	}
}

// Connect opens an endpoint for an identified user. The endpoint's first
// queued event is "identified"; presence is broadcast and messages that
// waited at sent are promoted before Connect returns.
func (h *Hub) Connect(ctx context.Context, userID int64, deviceTag string) *realtime.Endpoint {
	ep := realtime.NewEndpoint(userID, deviceTag, h.queueSize)
	ep.Push(realtime.Event{Type: realtime.EventIdentified, Payload: realtime.IdentifiedPayload{
		EndpointID: ep.ID,
		UserID:     userID,
	}})

	first := h.Registry.Register(ep)
	h.Presence.Evaluate(ctx, userID)
	h.Delivery.CatchUp(ctx, userID, ep)

	h.log.WithFields(logrus.Fields{
		"user_id":     userID,
		"endpoint_id": ep.ID,
		"device":      deviceTag,
		"first":       first,
	}).Info("endpoint connected")
	return ep
}

// Disconnect closes ep and releases everything it held. Safe to call twice.
func (h *Hub) Disconnect(ctx context.Context, ep *realtime.Endpoint) {
	h.Views.DropEndpoint(ep.UserID, ep.ID)
	removed, last := h.Registry.Unregister(ep.ID)
	if last {
		h.Views.ClearUser(ep.UserID)
		h.Typing.StopAll(ep.UserID)
	}
	h.Presence.Evaluate(ctx, ep.UserID)
	ep.Close()

	if removed != nil {
		h.log.WithFields(logrus.Fields{
			"user_id":     ep.UserID,
			"endpoint_id": ep.ID,
			"last":        last,
			"dropped":     ep.Dropped(),
		}).Info("endpoint disconnected")
	}
}

// Close stops typing timers and closes every endpoint; their connections
// unwind through Disconnect.
func (h *Hub) Close() {
	h.Typing.Close()
	for _, ep := range h.Registry.All() {
		ep.Close()
	}
}
