package voicelane

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// wsChannel is the WebSocket rendering of EventChannel, used by the
// server-side session variant where audio rides the socket alongside the
// protocol events. It owns a read loop goroutine and a keepalive pinger.
type wsChannel struct {
	conn       *websocket.Conn
	writeMu    sync.Mutex // Protects writes to the WebSocket
	readCancel context.CancelFunc
	events     chan []byte
	closedCh   chan struct{}
	closeOnce  sync.Once

	errMu   sync.Mutex
	termErr error

	logger *Logger
}

// WSChannelOptions configures DialEventChannel.
type WSChannelOptions struct {
	// URL is the provider's realtime WebSocket endpoint.
	URL string

	// DialTimeout bounds connection establishment. Zero means no timeout.
	DialTimeout time.Duration

	// Header carries extra handshake headers. Authorization is set from the
	// credential and need not be provided.
	Header http.Header

	// Logger receives channel lifecycle events. Optional.
	Logger *Logger
}

// DialEventChannel opens the WebSocket event channel authenticated by a
// short-lived credential. The returned channel delivers inbound text
// messages in arrival order until the connection closes.
func DialEventChannel(ctx context.Context, cred Credential, opts WSChannelOptions) (EventChannel, error) {
	if opts.URL == "" {
		return nil, NewConfigurationError("URL", "", "websocket endpoint cannot be empty")
	}
	if cred.Value == "" {
		return nil, NewConfigurationError("Credential", "", "credential value cannot be empty")
	}

	h := http.Header{}
	for k, vals := range opts.Header {
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	h.Set("Authorization", "Bearer "+cred.Value)

	dialCtx := ctx
	if opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()
	}

	ws, _, err := websocket.Dial(dialCtx, opts.URL, &websocket.DialOptions{HTTPHeader: h})
	if err != nil {
		return nil, NewTransportError("dial", 0, "", err)
	}

	c := &wsChannel{
		conn:     ws,
		events:   make(chan []byte, 64),
		closedCh: make(chan struct{}),
		logger:   opts.Logger,
	}
	c.logger.Info("ws_connected", map[string]any{"url": opts.URL})

	rcCtx, cancel := context.WithCancel(context.Background())
	c.readCancel = cancel
	go c.readLoop(rcCtx, ws)
	go c.pingLoop()
	return c, nil
}

// Events yields raw inbound wire messages in arrival order.
func (c *wsChannel) Events() <-chan []byte { return c.events }

// Err reports why the channel terminated. Valid once Events is closed.
func (c *wsChannel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.termErr
}

// readLoop continuously reads messages from the WebSocket and forwards them
// to the events channel. It terminates when the context is canceled or the
// connection fails, closing the events channel so the consumer's loop ends.
func (c *wsChannel) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		c.writeMu.Lock()
		if c.conn != nil {
			_ = c.conn.Close(websocket.StatusNormalClosure, "reader_exit")
			c.conn = nil
		}
		c.writeMu.Unlock()
		c.closeOnce.Do(func() { close(c.closedCh) })
		close(c.events)
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if !isOrderlyClose(ctx, err) {
				c.setErr(NewTransportError("read", 0, "", err))
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		select {
		case c.events <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (c *wsChannel) setErr(err error) {
	c.errMu.Lock()
	if c.termErr == nil {
		c.termErr = err
	}
	c.errMu.Unlock()
}

// isOrderlyClose distinguishes a deliberate local close or a normal remote
// closure from a transport failure.
func isOrderlyClose(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return websocket.CloseStatus(err) == websocket.StatusNormalClosure
}

func (c *wsChannel) pingLoop() {
	t := time.NewTicker(20 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-c.closedCh:
			return
		case <-t.C:
			c.writeMu.Lock()
			if c.conn != nil {
				_ = c.conn.Ping(context.Background())
			}
			c.writeMu.Unlock()
		}
	}
}

// Send marshals payload and writes it as one text message.
func (c *wsChannel) Send(ctx context.Context, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrSessionClosed
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return NewTransportError("send", 0, "", err)
		}
		return err
	}
	return nil
}

// Close tears the channel down. Safe to call more than once.
func (c *wsChannel) Close() error {
	if c.readCancel != nil {
		c.readCancel()
	}
	c.writeMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "closing")
		c.conn = nil
	}
	c.writeMu.Unlock()
	c.closeOnce.Do(func() { close(c.closedCh) })
	return nil
}

// WSConnector is the TransportConnector for server-side sessions: no local
// microphone is acquired because audio flows over the socket inside the
// remotely hosted page.
type WSConnector struct {
	// URL is the provider's realtime WebSocket endpoint.
	URL string

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration

	// Logger receives channel lifecycle events. Optional.
	Logger *Logger
}

// Connect opens the event channel. The only establishment stage reported is
// Negotiating; there is no microphone step in this variant.
func (c *WSConnector) Connect(ctx context.Context, cred Credential, progress func(State)) (*SessionHandles, error) {
	if progress != nil {
		progress(StateNegotiating)
	}
	ch, err := DialEventChannel(ctx, cred, WSChannelOptions{
		URL:         c.URL,
		DialTimeout: c.DialTimeout,
		Logger:      c.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &SessionHandles{Channel: ch}, nil
}
