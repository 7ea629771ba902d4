package clientsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"chatsync/internal/realtime"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the server's http(s) root, e.g. http://localhost:8000.
	BaseURL   string
	Token     string
	UserID    int64
	DeviceTag string

	HeartbeatInterval time.Duration
	MinBackoff        time.Duration
	MaxBackoff        time.Duration

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// Client keeps a Store in sync with the server over one websocket,
// reconnecting with backoff. After every (re)connect it fetches the sync
// snapshot and reconciles before it reads any live event.
type Client struct {
	cfg   ClientConfig
	store *Store
	out   chan realtime.Event
	log   *logrus.Entry

	connected chan struct{}
}

func NewClient(cfg ClientConfig, store *Store) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 25 * time.Second
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Client{
		cfg:       cfg,
		store:     store,
		out:       make(chan realtime.Event, 64),
		connected: make(chan struct{}, 1),
		log: logrus.WithFields(logrus.Fields{
			"component": "clientsync",
			"user_id":   cfg.UserID,
		}),
	}
}

func (c *Client) Store() *Store { return c.store }

// Connected receives a value every time a session has reconciled and is
// reading live events.
func (c *Client) Connected() <-chan struct{} { return c.connected }

// Run keeps a session open until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.MinBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	for {
		established, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if established {
			b.Reset()
		}
		wait := b.NextBackOff()
		c.log.WithError(err).WithField("retry_in", wait).Warn("connection lost")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Send queues an event for the current or next session.
func (c *Client) Send(ctx context.Context, typ realtime.EventType, payload any) error {
	select {
	case c.out <- realtime.Event{Type: typ, Payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendMessage records an optimistic message and queues it. The returned
// correlation id matches the entry in the store.
func (c *Client) SendMessage(ctx context.Context, conversationID, receiverID int64, content string) (string, error) {
	p := c.store.Compose(conversationID, receiverID, content)
	return p.CorrelationID, c.Send(ctx, realtime.EventMessageSend, p)
}

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// session runs one connection. established reports whether it got as far as
// reading live events.
func (c *Client) session(ctx context.Context) (established bool, err error) {
	target, err := c.wsURL()
	if err != nil {
		return false, err
	}
	conn, _, err := c.cfg.Dialer.DialContext(ctx, target, http.Header{"Authorization": {"Bearer " + c.cfg.Token}})
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := c.identify(conn); err != nil {
		return false, err
	}

	// Live events queue up in the socket until the snapshot is applied and
	// are replayed on top of it. Status and presence replays are absorbed by
	// their ordering rules; badges stamped before the snapshot are dropped.
	snap, err := c.fetchSnapshot(ctx)
	if err != nil {
		return false, err
	}
	c.store.Reconcile(snap)

	select {
	case c.connected <- struct{}{}:
	default:
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- c.writeLoop(sessCtx, conn)
		cancel()
	}()
	go func() {
		<-sessCtx.Done()
		// unblocks the reader
		conn.Close()
	}()

	for {
		var in realtime.Inbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			if werr := <-writeErr; werr != nil && !errors.Is(werr, context.Canceled) {
				return true, werr
			}
			return true, fmt.Errorf("read: %w", err)
		}
		switch in.Type {
		case realtime.EventWarning, realtime.EventError, realtime.EventCallFailed:
			c.log.WithField("type", in.Type).WithField("payload", string(in.Payload)).Info("server notice")
		}
		if err := c.store.Apply(in); err != nil {
			c.log.WithError(err).Warn("apply event")
		}
	}
}

func (c *Client) identify(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(realtime.Event{
		Type:    realtime.EventIdentify,
		Payload: realtime.IdentifyPayload{UserID: c.cfg.UserID, DeviceTag: c.cfg.DeviceTag},
	}); err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var in realtime.Inbound
	if err := conn.ReadJSON(&in); err != nil {
		return fmt.Errorf("await identified: %w", err)
	}
	if in.Type != realtime.EventIdentified {
		return fmt.Errorf("expected %s, got %s", realtime.EventIdentified, in.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})
	return nil
}

func (c *Client) fetchSnapshot(ctx context.Context) (*realtime.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(c.cfg.BaseURL, "/")+"/api/sync", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshot: status %d", resp.StatusCode)
	}
	var snap realtime.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// writeLoop is the only writer on conn once the session is live.
func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		var ev realtime.Event
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return ctx.Err()
		case <-ticker.C:
			ev = realtime.Event{Type: realtime.EventHeartbeat}
		case ev = <-c.out:
		}
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			if ev.Type != realtime.EventHeartbeat {
				// retried on the next session
				select {
				case c.out <- ev:
				default:
				}
			}
			return err
		}
	}
}
