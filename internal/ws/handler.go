package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"chatsync/internal/domain"
	"chatsync/internal/realtime"
	"chatsync/internal/security"
	"chatsync/internal/service"
)

const (
	identifyWait   = 10 * time.Second
	writeWait      = 10 * time.Second
	maxFrameSize   = 64 << 10
	defaultPingGap = 25 * time.Second
)

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

// makeCheckOrigin accepts listed browser origins. Requests without an Origin
// header come from non-browser clients and are accepted; they still need a
// valid token.
func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// HandlerConfig holds what the /ws handler needs besides the hub.
type HandlerConfig struct {
	Tokens         *security.TokenService
	Conversations  *service.ConversationService
	Messages       *service.MessageService
	AllowedOrigins []string
	// PingInterval is how often the server pings; a peer silent for two
	// intervals is considered gone.
	PingInterval time.Duration
}

// MakeHandler returns an HTTP handler for the /ws endpoint.
// The bearer token (Authorization header or Sec-WebSocket-Protocol) is
// verified before the upgrade, and the first frame must be connect-identify
// for the same user. After that:
//   - heartbeat                          -> refresh last seen
//   - enter-view / leave-view            -> active view + read receipts
//   - typing-start / typing-stop         -> typing indicator to the peer
//   - message-send                       -> store and deliver
//   - message-delivered-ack / -read-ack  -> advance delivery status
//   - call-*                             -> relay to the peer's endpoints
func MakeHandler(hub *Hub, cfg HandlerConfig) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(cfg.AllowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = defaultPingGap
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			var authErr wsAuthError
			if errors.As(err, &authErr) {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		identity, err := cfg.Tokens.Verify(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxFrameSize)

		log := logrus.WithFields(logrus.Fields{
			"component": "ws",
			"user_id":   identity.UserID,
		})

		deviceTag, err := awaitIdentify(conn, identity)
		if err != nil {
			log.WithError(err).Info("identify rejected")
			closeWith(conn, websocket.ClosePolicyViolation, err.Error())
			return
		}

		ctx := context.WithoutCancel(r.Context())
		ep := hub.Connect(ctx, identity.UserID, deviceTag)
		defer hub.Disconnect(ctx, ep)

		s := &session{
			hub:   hub,
			cfg:   cfg,
			conn:  conn,
			ep:    ep,
			log:   log.WithField("endpoint_id", ep.ID),
			ping:  ping,
			ctx:   ctx,
			wrote: make(chan struct{}),
		}
		go s.writePump()
		s.readPump()
		ep.Close()
		<-s.wrote
	}
}

// awaitIdentify reads the first frame, which must identify the token's user.
func awaitIdentify(conn *websocket.Conn, identity security.Identity) (string, error) {
	conn.SetReadDeadline(time.Now().Add(identifyWait))
	var in realtime.Inbound
	if err := conn.ReadJSON(&in); err != nil {
		return "", fmt.Errorf("read identify: %w", err)
	}
	if in.Type != realtime.EventIdentify {
		return "", fmt.Errorf("first frame must be %s", realtime.EventIdentify)
	}
	var p realtime.IdentifyPayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		return "", fmt.Errorf("bad identify payload")
	}
	if p.UserID != identity.UserID {
		return "", fmt.Errorf("identify does not match token")
	}
	conn.SetReadDeadline(time.Time{})
	return p.DeviceTag, nil
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

type session struct {
	hub   *Hub
	cfg   HandlerConfig
	conn  *websocket.Conn
	ep    *realtime.Endpoint
	log   *logrus.Entry
	ping  time.Duration
	ctx   context.Context
	wrote chan struct{}
}

// writePump is the only writer of the connection. It drains the endpoint
// queue in order and pings the peer.
func (s *session) writePump() {
	defer close(s.wrote)
	ticker := time.NewTicker(s.ping)
	defer ticker.Stop()

	for {
		select {
		case ev := <-s.ep.Events():
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(ev); err != nil {
				s.log.WithError(err).Debug("write failed")
				s.conn.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.conn.Close()
				return
			}
		case <-s.ep.Done():
			closeWith(s.conn, websocket.CloseNormalClosure, "")
			s.conn.Close()
			return
		}
	}
}

func (s *session) readPump() {
	alive := func() { s.conn.SetReadDeadline(time.Now().Add(2 * s.ping)) }
	alive()
	s.conn.SetPongHandler(func(string) error {
		alive()
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.WithError(err).Debug("read failed")
			}
			return
		}
		alive()
		// a complete frame that is not an envelope, empty ones included,
		// is answered and the connection kept
		var in realtime.Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			s.fail("malformed frame")
			continue
		}
		s.dispatch(in)
	}
}

func (s *session) dispatch(in realtime.Inbound) {
	userID := s.ep.UserID
	switch in.Type {
	case realtime.EventHeartbeat:
		s.hub.Presence.Heartbeat(userID)

	case realtime.EventEnterView, realtime.EventLeaveView:
		var p realtime.ViewPayload
		if !s.decode(in, &p) || !s.self(p.UserID) {
			return
		}
		if in.Type == realtime.EventLeaveView {
			s.hub.Delivery.LeaveView(userID, p.ConversationID, s.ep)
			return
		}
		if _, err := s.cfg.Conversations.PeerOf(s.ctx, p.ConversationID, userID); err != nil {
			s.failErr(err)
			return
		}
		s.hub.Delivery.EnterView(s.ctx, userID, p.ConversationID, s.ep)

	case realtime.EventTypingStart:
		var p realtime.TypingPayload
		if !s.decode(in, &p) || !s.self(p.UserID) {
			return
		}
		peer, err := s.cfg.Conversations.PeerOf(s.ctx, p.ConversationID, userID)
		if err != nil {
			s.failErr(err)
			return
		}
		if p.ReceiverID != 0 && p.ReceiverID != peer {
			s.fail("receiver is not part of this conversation")
			return
		}
		s.hub.Typing.StartTyping(userID, p.ConversationID, peer)

	case realtime.EventTypingStop:
		var p realtime.TypingPayload
		if !s.decode(in, &p) || !s.self(p.UserID) {
			return
		}
		s.hub.Typing.StopTyping(userID, p.ConversationID)

	case realtime.EventMessageSend:
		var p realtime.SendPayload
		if !s.decode(in, &p) {
			return
		}
		// sending counts as activity in the conversation
		s.hub.Typing.StopTyping(userID, p.ConversationID)
		_, err := s.cfg.Messages.Send(s.ctx, service.SendInput{
			ConversationID: p.ConversationID,
			SenderID:       userID,
			Content:        p.Content,
			CorrelationID:  p.CorrelationID,
		}, s.ep)
		if err != nil {
			s.log.WithError(err).Warn("send message")
			s.failErr(err)
		}

	case realtime.EventDeliveredAck, realtime.EventReadAck:
		var p realtime.AckPayload
		if !s.decode(in, &p) {
			return
		}
		status := domain.StatusDelivered
		if in.Type == realtime.EventReadAck {
			status = domain.StatusRead
		}
		s.hub.Delivery.Acknowledge(s.ctx, userID, p.ConversationID, p.IDs(), status, s.ep)

	default:
		if in.Type.IsCallSignal() {
			var sig realtime.CallSignal
			if !s.decode(in, &sig) {
				return
			}
			// failures are reported to the endpoint by the relay itself
			_ = s.hub.Relay.Relay(s.ep, in.Type, sig)
			return
		}
		s.fail(fmt.Sprintf("unknown event type %q", in.Type))
	}
}

func (s *session) decode(in realtime.Inbound, v any) bool {
	if len(in.Payload) == 0 {
		s.fail(fmt.Sprintf("%s requires a payload", in.Type))
		return false
	}
	if err := json.Unmarshal(in.Payload, v); err != nil {
		s.fail(fmt.Sprintf("malformed %s payload", in.Type))
		return false
	}
	return true
}

// self rejects frames that claim to act for another user.
func (s *session) self(userID int64) bool {
	if userID != 0 && userID != s.ep.UserID {
		s.fail("userId does not match connection")
		return false
	}
	return true
}

func (s *session) fail(msg string) {
	s.ep.Push(realtime.Event{Type: realtime.EventError, Payload: realtime.NoticePayload{Message: msg}})
}

func (s *session) failErr(err error) {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		s.fail("not allowed for this conversation")
	case errors.Is(err, domain.ErrNotFound):
		s.fail("conversation not found")
	case errors.Is(err, domain.ErrInvalidInput):
		s.fail(err.Error())
	default:
		s.fail("request failed")
	}
}
