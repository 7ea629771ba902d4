// Package notify hands messages that arrived while their receiver was
// offline to an external push pipeline.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"chatsync/internal/domain"
)

// Pending is published once per message stored while the receiver was offline.
// Content is never included.
type Pending struct {
	MessageID      int64     `json:"messageId"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	ReceiverID     int64     `json:"receiverId"`
	CreatedAt      time.Time `json:"createdAt"`
}

func pendingFrom(m *domain.Message) Pending {
	return Pending{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		CreatedAt:      m.CreatedAt,
	}
}

// Publisher is the subset of *nats.Conn the notifier needs.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATS publishes Pending records on a subject.
type NATS struct {
	pub     Publisher
	subject string
}

// Connect dials the NATS servers with reconnect logging.
func Connect(url, name string) (*nats.Conn, error) {
	log := logrus.WithField("component", "nats")
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithField("url", c.ConnectedUrl()).Info("reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

func NewNATS(pub Publisher, subject string) *NATS {
	return &NATS{pub: pub, subject: subject}
}

func (n *NATS) MessagePending(ctx context.Context, m *domain.Message) error {
	data, err := json.Marshal(pendingFrom(m))
	if err != nil {
		return fmt.Errorf("encode pending: %w", err)
	}
	msg := nats.NewMsg(n.subject)
	msg.Data = data
	msg.Header.Set("Chatsync-Receiver", strconv.FormatInt(m.ReceiverID, 10))
	// dedupe key for JetStream streams bound to the subject
	msg.Header.Set(nats.MsgIdHdr, "msg-"+strconv.FormatInt(m.ID, 10))
	if err := n.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// Log records pending messages instead of publishing them.
type Log struct {
	log *logrus.Entry
}

func NewLog() *Log {
	return &Log{log: logrus.WithField("component", "notify")}
}

func (l *Log) MessagePending(ctx context.Context, m *domain.Message) error {
	l.log.WithFields(logrus.Fields{
		"message_id":  m.ID,
		"receiver_id": m.ReceiverID,
	}).Debug("message pending for offline user")
	return nil
}
