package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"chatsync/internal/domain"
	"chatsync/internal/realtime"
	"chatsync/internal/security"
)

const (
	MaxContentLength   = 5000
	DefaultPageSize    = 50
	MaxPageSize        = 200
	MaxCorrelationSize = 64
)

// Deliverer stores a new message and drives its delivery status.
type Deliverer interface {
	Deliver(ctx context.Context, msg *domain.Message, origin *realtime.Endpoint) error
}

type MessageService struct {
	conversations *ConversationService
	messages      domain.MessageRepository
	delivery      Deliverer
	encryptor     *security.Encryptor
	render        realtime.MessageRenderer
}

func NewMessageService(
	conversations *ConversationService,
	messages domain.MessageRepository,
	delivery Deliverer,
	encryptor *security.Encryptor,
) *MessageService {
	return &MessageService{
		conversations: conversations,
		messages:      messages,
		delivery:      delivery,
		encryptor:     encryptor,
		render:        ContentRenderer(encryptor),
	}
}

// ContentRenderer renders stored messages with their content decrypted.
// Undecryptable content is replaced, never sent as ciphertext.
func ContentRenderer(enc *security.Encryptor) realtime.MessageRenderer {
	log := logrus.WithField("component", "messages")
	return func(m *domain.Message) realtime.MessagePayload {
		p := realtime.RenderStored(m)
		plain, err := enc.Decrypt(m.Content)
		if err != nil {
			log.WithError(err).WithField("message_id", m.ID).Warn("decrypt message")
			plain = "[message could not be decrypted]"
		}
		p.Content = plain
		return p
	}
}

type SendInput struct {
	ConversationID int64
	SenderID       int64
	Content        string
	CorrelationID  string
}

// Send encrypts the content and hands the message to delivery. origin is the
// endpoint the send came from, nil for REST.
func (s *MessageService) Send(ctx context.Context, in SendInput, origin *realtime.Endpoint) (*realtime.MessagePayload, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: message content cannot be empty", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(in.Content) > MaxContentLength {
		return nil, fmt.Errorf("%w: message content exceeds %d characters", domain.ErrInvalidInput, MaxContentLength)
	}
	if len(in.CorrelationID) > MaxCorrelationSize {
		return nil, fmt.Errorf("%w: correlation id is too long", domain.ErrInvalidInput)
	}

	receiverID, err := s.conversations.PeerOf(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, err
	}

	encrypted, err := s.encryptor.Encrypt(in.Content)
	if err != nil {
		return nil, fmt.Errorf("encrypt content: %w", err)
	}

	msg := &domain.Message{
		Content:        encrypted,
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		ReceiverID:     receiverID,
		CorrelationID:  in.CorrelationID,
	}
	if err := s.delivery.Deliver(ctx, msg, origin); err != nil {
		return nil, err
	}

	p := s.render(msg)
	return &p, nil
}

// List returns up to limit of the newest messages visible to userID,
// oldest first.
func (s *MessageService) List(ctx context.Context, conversationID, userID int64, limit int) ([]realtime.MessagePayload, error) {
	if _, err := s.conversations.PeerOf(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	msgs, err := s.messages.ListForConversationForUser(ctx, conversationID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]realtime.MessagePayload, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = s.render(m)
	}
	return out, nil
}

// DeleteForMe hides the message from userID only. Its delivery status is
// not affected.
func (s *MessageService) DeleteForMe(ctx context.Context, userID, messageID int64) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID && msg.ReceiverID != userID {
		return domain.ErrForbidden
	}
	if err := s.messages.DeleteForUser(ctx, userID, messageID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
