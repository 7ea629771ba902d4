package realtime

import (
	"encoding/json"
	"time"

	"chatsync/internal/domain"
)

// EventType names a frame on the event channel.
type EventType string

// Client to server.
const (
	EventIdentify     EventType = "connect-identify"
	EventHeartbeat    EventType = "heartbeat"
	EventEnterView    EventType = "enter-view"
	EventLeaveView    EventType = "leave-view"
	EventTypingStart  EventType = "typing-start"
	EventTypingStop   EventType = "typing-stop"
	EventMessageSend  EventType = "message-send"
	EventDeliveredAck EventType = "message-delivered-ack"
	EventReadAck      EventType = "message-read-ack"

	EventCallInitiate EventType = "call-initiate"
	EventCallAccept   EventType = "call-accept"
	EventCallReject   EventType = "call-reject"
	EventCallEnd      EventType = "call-end"
	EventCallOffer    EventType = "call-offer"
	EventCallAnswer   EventType = "call-answer"
	EventCallICE      EventType = "call-ice"
)

// Server to client.
const (
	EventIdentified    EventType = "identified"
	EventPresence      EventType = "presence-update"
	EventMessageNew    EventType = "message-new"
	EventMessageStatus EventType = "message-status-update"
	EventTyping        EventType = "typing-update"
	EventUnreadBadge   EventType = "unread-badge-update"
	EventCallFailed    EventType = "call_failed"
	EventWarning       EventType = "warning"
	EventError         EventType = "error"
)

// IsCallSignal reports whether t is one of the relayed call events.
func (t EventType) IsCallSignal() bool {
	switch t {
	case EventCallInitiate, EventCallAccept, EventCallReject, EventCallEnd,
		EventCallOffer, EventCallAnswer, EventCallICE:
		return true
	}
	return false
}

// Event is one outbound frame.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// Inbound is one frame received from a client; Payload is decoded by the
// dispatcher once the type is known.
type Inbound struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type IdentifyPayload struct {
	UserID    int64  `json:"userId"`
	DeviceTag string `json:"deviceTag"`
}

type IdentifiedPayload struct {
	EndpointID string `json:"endpointId"`
	UserID     int64  `json:"userId"`
}

type ViewPayload struct {
	UserID         int64 `json:"userId"`
	ConversationID int64 `json:"conversationId"`
}

type TypingPayload struct {
	UserID         int64 `json:"userId"`
	ConversationID int64 `json:"conversationId"`
	ReceiverID     int64 `json:"receiverId"`
}

type SendPayload struct {
	ConversationID int64  `json:"conversationId"`
	Content        string `json:"content"`
	CorrelationID  string `json:"correlationId"`
}

type AckPayload struct {
	MessageIDs     []int64 `json:"messageIds"`
	MessageID      int64   `json:"messageId,omitempty"`
	ConversationID int64   `json:"conversationId"`
}

// IDs merges the single and batched id fields.
func (p AckPayload) IDs() []int64 {
	if p.MessageID != 0 {
		return append([]int64{p.MessageID}, p.MessageIDs...)
	}
	return p.MessageIDs
}

type PresencePayload struct {
	UserID   int64     `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// StatusPayload carries either one message id or a batch.
type StatusPayload struct {
	MessageID      int64                 `json:"messageId,omitempty"`
	MessageIDs     []int64               `json:"messageIds,omitempty"`
	Status         domain.DeliveryStatus `json:"status"`
	ConversationID int64                 `json:"conversationId"`
}

type TypingUpdatePayload struct {
	UserID         int64 `json:"userId"`
	ConversationID int64 `json:"conversationId"`
	IsTyping       bool  `json:"isTyping"`
}

// UnreadPayload carries an absolute count. At is stamped after the counter
// was written, so a client can tell it apart from a later snapshot.
type UnreadPayload struct {
	ConversationID int64     `json:"conversationId"`
	Count          int       `json:"count"`
	At             time.Time `json:"at"`
}

// MessagePayload is a message as pushed to clients. Content is plaintext.
type MessagePayload struct {
	ID             int64                 `json:"id"`
	ConversationID int64                 `json:"conversationId"`
	SenderID       int64                 `json:"senderId"`
	ReceiverID     int64                 `json:"receiverId"`
	Content        string                `json:"content"`
	Status         domain.DeliveryStatus `json:"status"`
	CorrelationID  string                `json:"correlationId,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
}

type CallFailedPayload struct {
	CallID string `json:"callId"`
	Reason string `json:"reason"`
}

type NoticePayload struct {
	Message string `json:"message"`
}
