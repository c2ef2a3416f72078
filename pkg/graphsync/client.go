package graphsync

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/valuegraph/engine/pkg/logging"
	"github.com/valuegraph/engine/pkg/model"
)

// ClientConfig tunes the reconnecting viewer transport.
type ClientConfig struct {
	URL string

	// InitialBackoff doubles after every failed attempt up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxRetries bounds consecutive failed connection attempts before Run
	// gives up with a ConnectionError. Zero means retry forever.
	MaxRetries int

	// OnStateChange, when set, is told about transport availability so the
	// UI can show a degraded-mode indicator while reconnecting.
	OnStateChange func(connected bool)
}

// DefaultClientConfig returns the reference backoff schedule: 1s, 2s, 4s,
// ... capped at 30s.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:            url,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// Client is the viewer side of the sync protocol over a WebSocket. It owns
// reconnection; every (re)connect starts with a snapshot request, never
// with delta replay. Inbound envelopes surface on Messages for the viewer
// loop to consume.
type Client struct {
	cfg      ClientConfig
	messages chan Envelope
	outbound chan Envelope
}

// NewClient creates a client; Run must be started for traffic to flow.
func NewClient(cfg ClientConfig) *Client {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Client{
		cfg:      cfg,
		messages: make(chan Envelope, sendBuffer),
		outbound: make(chan Envelope, sendBuffer),
	}
}

// Messages returns the inbound envelope stream.
func (c *Client) Messages() <-chan Envelope { return c.messages }

// Submit queues a delta for the authority, parented at the revision the
// viewer currently believes is canonical.
func (c *Client) Submit(delta model.Delta, parentRevision int64) {
	c.enqueue(Envelope{Type: MsgSubmit, Delta: &delta, ParentRevision: parentRevision})
}

// RequestSnapshot queues a full resync request.
func (c *Client) RequestSnapshot() {
	c.enqueue(Envelope{Type: MsgSnapshotRequest})
}

func (c *Client) enqueue(env Envelope) {
	select {
	case c.outbound <- env:
	default:
		logging.Warn("outbound queue full, dropping message", "type", string(env.Type))
	}
}

// Run dials and re-dials the authority until ctx is cancelled or the retry
// budget is exhausted. Transient connection failures stay internal; only a
// failure that survives MaxRetries consecutive attempts escapes, as a
// *ConnectionError.
func (c *Client) Run(ctx context.Context) error {
	attempts := 0
	backoff := c.cfg.InitialBackoff

	for {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempts++
			if c.cfg.MaxRetries > 0 && attempts >= c.cfg.MaxRetries {
				return &ConnectionError{Attempts: attempts, Err: err}
			}
			logging.Warn("connect failed, backing off", "url", c.cfg.URL, "attempt", attempts, "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
			continue
		}

		attempts = 0
		backoff = c.cfg.InitialBackoff
		c.setConnected(true)

		// Resync before resuming delta traffic.
		snapReq := Envelope{Type: MsgSnapshotRequest}
		if err := ws.WriteJSON(snapReq); err != nil {
			c.setConnected(false)
			_ = ws.Close()
			continue
		}

		err = c.session(ctx, ws)
		c.setConnected(false)
		_ = ws.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Info("connection lost, reconnecting", "error", err)
	}
}

// session pumps one live connection until it breaks.
func (c *Client) session(ctx context.Context, ws *websocket.Conn) error {
	readErr := make(chan error, 1)
	go func() {
		for {
			var env Envelope
			if err := ws.ReadJSON(&env); err != nil {
				readErr <- err
				return
			}
			select {
			case c.messages <- env:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case env := <-c.outbound:
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteJSON(env); err != nil {
				return err
			}
		}
	}
}

func (c *Client) setConnected(connected bool) {
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(connected)
	}
}
