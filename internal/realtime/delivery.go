package realtime

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"chatsync/internal/domain"
)

// OfflineNotifier is told about messages that landed while the receiver had
// no live endpoint, e.g. to hand them to a push service.
type OfflineNotifier interface {
	MessagePending(ctx context.Context, msg *domain.Message) error
}

// MessageRenderer turns a stored message into the payload pushed to clients.
type MessageRenderer func(m *domain.Message) MessagePayload

// DeliveryConfig tunes the Delivery state machine.
type DeliveryConfig struct {
	// RetryDelay is the pause before the single retry of a failed store write.
	RetryDelay time.Duration
	Render     MessageRenderer
	Notifier   OfflineNotifier
}

// Delivery owns the sent -> delivered -> read lifecycle. Live notifications
// are best effort; the stored status is the source of truth and clients
// re-sync it on full fetch.
type Delivery struct {
	registry *Registry
	views    *ActiveViews
	messages domain.MessageRepository
	unread   domain.UnreadCounter
	notifier OfflineNotifier
	render   MessageRenderer
	delay    time.Duration
	log      *logrus.Entry
}

func NewDelivery(
	registry *Registry,
	views *ActiveViews,
	messages domain.MessageRepository,
	unread domain.UnreadCounter,
	cfg DeliveryConfig,
) *Delivery {
	d := &Delivery{
		registry: registry,
		views:    views,
		messages: messages,
		unread:   unread,
		notifier: cfg.Notifier,
		render:   cfg.Render,
		delay:    cfg.RetryDelay,
		log:      logrus.WithField("component", "delivery"),
	}
	if d.render == nil {
		d.render = RenderStored
	}
	return d
}

// RenderStored copies a message into a payload without transforming content.
func RenderStored(m *domain.Message) MessagePayload {
	return MessagePayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Content:        m.Content,
		Status:         m.Status,
		CorrelationID:  m.CorrelationID,
		CreatedAt:      m.CreatedAt,
	}
}

// initialStatus picks the status a new message is stored with.
func (d *Delivery) initialStatus(receiverID, conversationID int64) domain.DeliveryStatus {
	switch {
	case !d.registry.IsOnline(receiverID):
		return domain.StatusSent
	case !d.views.IsInView(receiverID, conversationID):
		return domain.StatusDelivered
	default:
		return domain.StatusRead
	}
}

// Deliver stores a new message, promotes it as far as the receiver's current
// reachability allows and fans it out. origin, if set, receives warnings.
//
// The row is written at sent and only promoted once it exists, so a receiver
// that leaves during the write is never recorded as reached, and a catch-up
// or view batch running meanwhile sees the row and owns its promotion.
func (d *Delivery) Deliver(ctx context.Context, msg *domain.Message, origin *Endpoint) error {
	msg.Status = domain.StatusSent
	if err := d.retry(ctx, func() error { return d.messages.Create(ctx, msg) }); err != nil {
		return fmt.Errorf("create message: %w", err)
	}

	advanced := false
	if target := d.initialStatus(msg.ReceiverID, msg.ConversationID); target != domain.StatusSent {
		moved, err := d.updateStatus(ctx, msg.ReceiverID, []int64{msg.ID}, target)
		if err != nil {
			d.warn(origin, "message stored but its delivery status could not be updated")
		}
		advanced = len(moved) == 1
	}
	d.settle(ctx, msg)

	payload := d.render(msg)
	echo := payload
	payload.CorrelationID = ""
	pushAll(d.registry.EndpointsFor(msg.ReceiverID), Event{Type: EventMessageNew, Payload: payload})
	pushAll(d.registry.EndpointsFor(msg.SenderID), Event{Type: EventMessageNew, Payload: echo})
	// A batch that moved the row further has already told the sender.
	if advanced {
		pushAll(d.registry.EndpointsFor(msg.SenderID), Event{Type: EventMessageStatus, Payload: StatusPayload{
			MessageID:      msg.ID,
			Status:         msg.Status,
			ConversationID: msg.ConversationID,
		}})
	}

	d.countUnread(ctx, msg)
	if msg.Status == domain.StatusSent && d.notifier != nil {
		if err := d.notifier.MessagePending(ctx, msg); err != nil {
			d.log.WithError(err).WithField("message_id", msg.ID).Warn("offline notify")
		}
	}

	d.log.WithFields(logrus.Fields{
		"message_id":      msg.ID,
		"conversation_id": msg.ConversationID,
		"status":          msg.Status,
	}).Debug("message delivered")
	return nil
}

// settle replaces msg.Status with the stored one when that is further along.
func (d *Delivery) settle(ctx context.Context, msg *domain.Message) {
	stored, err := d.messages.GetByID(ctx, msg.ID)
	if err != nil {
		d.log.WithError(err).WithField("message_id", msg.ID).Warn("reload message status")
		return
	}
	if msg.Status.Advances(stored.Status) {
		msg.Status = stored.Status
	}
}

// countUnread bumps the receiver's counter for a message they have not seen.
// A view entered after the first check resets the counter through its own
// batch unless that batch finished before the bump, which the second check
// catches.
func (d *Delivery) countUnread(ctx context.Context, msg *domain.Message) {
	if msg.Status == domain.StatusRead || d.views.IsInView(msg.ReceiverID, msg.ConversationID) {
		return
	}
	d.bumpUnread(ctx, msg.ConversationID, msg.ReceiverID)
	if d.views.IsInView(msg.ReceiverID, msg.ConversationID) {
		d.resetUnread(ctx, msg.ConversationID, msg.ReceiverID, nil)
	}
}

// EnterView records the view and promotes every message addressed to the
// user in that conversation to read, notifying each sender with one batch.
func (d *Delivery) EnterView(ctx context.Context, userID, conversationID int64, ep *Endpoint) {
	d.views.EnterView(userID, conversationID, ep.ID)

	var pending []*domain.Message
	err := d.retry(ctx, func() error {
		var err error
		pending, err = d.messages.ListPendingForReceiver(ctx, userID, conversationID, domain.StatusRead)
		return err
	})
	if err != nil {
		d.log.WithError(err).WithField("user_id", userID).Warn("list unread messages")
		d.warn(ep, "could not load unread messages")
		return
	}

	if len(pending) > 0 {
		d.notifySenders(pending, domain.StatusRead)
		if _, err := d.updateStatus(ctx, userID, ids(pending), domain.StatusRead); err != nil {
			d.warn(ep, "read receipts could not be saved")
		}
	}
	d.resetUnread(ctx, conversationID, userID, ep)
}

// LeaveView removes the conversation from the endpoint's focus.
func (d *Delivery) LeaveView(userID, conversationID int64, ep *Endpoint) {
	d.views.LeaveView(userID, conversationID, ep.ID)
}

// CatchUp promotes everything that piled up at sent while the user was
// offline to delivered. It must run before the connection's other events.
func (d *Delivery) CatchUp(ctx context.Context, userID int64, ep *Endpoint) {
	var pending []*domain.Message
	err := d.retry(ctx, func() error {
		var err error
		pending, err = d.messages.ListPendingForReceiver(ctx, userID, 0, domain.StatusDelivered)
		return err
	})
	if err != nil {
		d.log.WithError(err).WithField("user_id", userID).Warn("list undelivered messages")
		d.warn(ep, "could not load undelivered messages")
		return
	}
	if len(pending) == 0 {
		return
	}

	d.notifySenders(pending, domain.StatusDelivered)
	if _, err := d.updateStatus(ctx, userID, ids(pending), domain.StatusDelivered); err != nil {
		d.warn(ep, "delivery receipts could not be saved")
	}
	d.log.WithFields(logrus.Fields{
		"user_id": userID,
		"count":   len(pending),
	}).Info("offline messages delivered")
}

// Acknowledge applies a client delivered/read ack. Only messages addressed to
// userID that actually move forward are reported to their senders.
func (d *Delivery) Acknowledge(ctx context.Context, userID, conversationID int64, messageIDs []int64, status domain.DeliveryStatus, ep *Endpoint) {
	if len(messageIDs) == 0 || status == domain.StatusSent || !status.Valid() {
		return
	}
	moved, err := d.updateStatus(ctx, userID, messageIDs, status)
	if err != nil {
		d.warn(ep, "acknowledgement could not be saved")
		return
	}
	d.notifySenders(moved, status)

	if status == domain.StatusRead && conversationID > 0 {
		d.resetUnread(ctx, conversationID, userID, ep)
	}
}

func (d *Delivery) updateStatus(ctx context.Context, receiverID int64, messageIDs []int64, status domain.DeliveryStatus) ([]*domain.Message, error) {
	var moved []*domain.Message
	err := d.retry(ctx, func() error {
		var err error
		moved, err = d.messages.UpdateStatus(ctx, receiverID, messageIDs, status)
		return err
	})
	if err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"receiver_id": receiverID,
			"status":      status,
			"count":       len(messageIDs),
		}).Error("update message status")
		return nil, err
	}
	return moved, nil
}

type senderConv struct {
	sender int64
	conv   int64
}

// notifySenders sends one batched status update per (sender, conversation).
func (d *Delivery) notifySenders(msgs []*domain.Message, status domain.DeliveryStatus) {
	groups := make(map[senderConv][]int64)
	for _, m := range msgs {
		k := senderConv{sender: m.SenderID, conv: m.ConversationID}
		groups[k] = append(groups[k], m.ID)
	}
	keys := make([]senderConv, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].sender != keys[j].sender {
			return keys[i].sender < keys[j].sender
		}
		return keys[i].conv < keys[j].conv
	})
	for _, k := range keys {
		pushAll(d.registry.EndpointsFor(k.sender), Event{Type: EventMessageStatus, Payload: StatusPayload{
			MessageIDs:     groups[k],
			Status:         status,
			ConversationID: k.conv,
		}})
	}
}

func (d *Delivery) bumpUnread(ctx context.Context, conversationID, userID int64) {
	if d.unread == nil {
		return
	}
	var count int
	err := d.retry(ctx, func() error {
		var err error
		count, err = d.unread.IncrementUnread(ctx, conversationID, userID)
		return err
	})
	if err != nil {
		d.log.WithError(err).WithField("user_id", userID).Warn("increment unread")
		return
	}
	pushAll(d.registry.EndpointsFor(userID), Event{Type: EventUnreadBadge, Payload: UnreadPayload{
		ConversationID: conversationID,
		Count:          count,
		At:             time.Now().UTC(),
	}})
}

// resetUnread writes before it notifies so the badge's stamp is never
// earlier than the write it reports.
func (d *Delivery) resetUnread(ctx context.Context, conversationID, userID int64, ep *Endpoint) {
	if d.unread != nil {
		if err := d.retry(ctx, func() error { return d.unread.ResetUnread(ctx, conversationID, userID) }); err != nil {
			d.log.WithError(err).WithField("user_id", userID).Warn("reset unread")
			d.warn(ep, "unread counter could not be saved")
		}
	}
	pushAll(d.registry.EndpointsFor(userID), Event{Type: EventUnreadBadge, Payload: UnreadPayload{
		ConversationID: conversationID,
		At:             time.Now().UTC(),
	}})
}

// retry runs op and, if it fails, once more after the configured delay.
func (d *Delivery) retry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	t := time.NewTimer(d.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return err
	case <-t.C:
	}
	return op()
}

func (d *Delivery) warn(ep *Endpoint, msg string) {
	if ep != nil {
		ep.Push(Event{Type: EventWarning, Payload: NoticePayload{Message: msg}})
	}
}

func ids(msgs []*domain.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
