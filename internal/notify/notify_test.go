package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishMsg(msg *nats.Msg) error {
	args := m.Called(msg)
	return args.Error(0)
}

func TestNATSPublishesPending(t *testing.T) {
	pub := new(MockPublisher)
	var sent *nats.Msg
	pub.On("PublishMsg", mock.AnythingOfType("*nats.Msg")).
		Run(func(args mock.Arguments) { sent = args.Get(0).(*nats.Msg) }).
		Return(nil).Once()

	n := NewNATS(pub, "chatsync.messages.pending")
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	err := n.MessagePending(context.Background(), &domain.Message{
		ID: 11, ConversationID: 3, SenderID: 1, ReceiverID: 2,
		Content: "secret", CreatedAt: created,
	})
	require.NoError(t, err)
	pub.AssertExpectations(t)

	require.NotNil(t, sent)
	assert.Equal(t, "chatsync.messages.pending", sent.Subject)
	assert.Equal(t, "2", sent.Header.Get("Chatsync-Receiver"))
	assert.Equal(t, "msg-11", sent.Header.Get(nats.MsgIdHdr))
	assert.NotContains(t, string(sent.Data), "secret")

	var got Pending
	require.NoError(t, json.Unmarshal(sent.Data, &got))
	assert.Equal(t, Pending{MessageID: 11, ConversationID: 3, SenderID: 1, ReceiverID: 2, CreatedAt: created}, got)
}

func TestNATSPublishError(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("PublishMsg", mock.Anything).Return(errors.New("closed"))

	err := NewNATS(pub, "s").MessagePending(context.Background(), &domain.Message{ID: 1})
	assert.ErrorContains(t, err, "closed")
}

func TestLogNeverFails(t *testing.T) {
	assert.NoError(t, NewLog().MessagePending(context.Background(), &domain.Message{ID: 1}))
}
