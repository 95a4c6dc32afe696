package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// tokenTimeout bounds the TokenSource lookup made by a scheduled reconnect.
const tokenTimeout = 5 * time.Second

// link is a single underlying connection, from dial to close.
type link struct {
	id     string
	conn   *websocket.Conn // nil until the handshake completes; guarded by Client.mu
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	writeMu  sync.Mutex
	lastPing atomic.Int64 // UnixNano of the last ping or pong seen
}

func (l *link) release() {
	l.once.Do(func() {
		l.cancel()
		close(l.done)
	})
}

// Client maintains one authenticated WebSocket session and reconnects it after
// abnormal closures. All methods are safe for concurrent use and none of them
// block on the network.
type Client struct {
	cfg     Config
	tokens  TokenSource
	dialer  *websocket.Dialer
	logger  *slog.Logger
	metrics Metrics

	mu       sync.Mutex
	state    State
	cur      *link
	attempts int
	retry    *time.Timer
	retrySeq uint64 // Bumped whenever a pending retry is cancelled or replaced

	nextID       uint64
	onConnect    handlers[ConnectHandler]
	onDisconnect handlers[DisconnectHandler]
	onMessage    handlers[MessageHandler]
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithDialer sets a custom WebSocket dialer (TLS, proxy, ...).
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// NewClient creates a disconnected client. tokens is consulted before every
// automatic reconnect.
func NewClient(cfg Config, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		cfg:     cfg,
		tokens:  tokens,
		logger:  slog.Default(),
		metrics: nopMetrics{},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.dialer == nil {
		c.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
	}
	c.metrics.SetState(Disconnected)

	return c
}

// Connect replaces any existing connection with a new one authenticated by token.
// It returns false without touching state when token is empty; otherwise the dial
// runs in the background and success is reported through connect callbacks.
func (c *Client) Connect(token string) bool {
	return c.connect(token, 0, false)
}

func (c *Client) connect(token string, retrySeq uint64, fromRetry bool) bool {
	if token == "" {
		c.logger.Error("no token provided for connection")
		return false
	}

	target, err := endpoint(c.cfg.URL, token)
	if err != nil {
		c.logger.Error("invalid connection url", "error", err)
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	next := &link{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	if fromRetry && c.retrySeq != retrySeq {
		// Disconnect or Connect ran while the token was being fetched.
		c.mu.Unlock()
		cancel()
		return false
	}
	c.stopRetryLocked()
	prev, prevConn := c.detachLocked()
	c.cur = next
	c.setStateLocked(Connecting)
	c.mu.Unlock()

	if prev != nil {
		c.teardown(prev, prevConn, CloseNormal, "superseded")
		c.logger.Debug("replaced existing connection", "conn_id", prev.id)
	}

	go c.run(ctx, next, target)

	return true
}

// Disconnect closes the current connection with code 1000 and cancels any
// pending reconnect. It is a no-op when nothing is active.
//
// The disconnect event runs on the caller's goroutine before Disconnect returns.
// A message the read loop had already started delivering may still be in its
// callbacks at that point. Calling Disconnect from inside a callback is allowed.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.stopRetryLocked()
	wasConnected := c.state == Connected
	prev, prevConn := c.detachLocked()
	c.setStateLocked(Disconnected)
	c.mu.Unlock()

	if prev == nil {
		return
	}

	c.teardown(prev, prevConn, CloseNormal, LogoutReason)
	c.logger.Info("connection closed", "conn_id", prev.id, "code", CloseNormal, "reason", LogoutReason)

	if wasConnected {
		c.dispatchDisconnect(CloseEvent{Code: CloseNormal, Reason: LogoutReason})
	}
}

// SendMessage writes payload as a text frame. Strings and byte slices are sent
// verbatim, anything else is JSON encoded. It returns false when not connected
// or when the transport rejects the write.
func (c *Client) SendMessage(payload any) bool {
	c.mu.Lock()
	l := c.cur
	var conn *websocket.Conn
	if l != nil && c.state == Connected {
		conn = l.conn
	}
	c.mu.Unlock()

	if conn == nil {
		c.logger.Warn("cannot send message: not connected")
		return false
	}

	data, err := encodePayload(payload)
	if err != nil {
		c.logger.Error("failed to encode message", "error", err)
		return false
	}

	l.writeMu.Lock()
	conn.SetWriteDeadline(c.writeDeadline())
	err = conn.WriteMessage(websocket.TextMessage, data)
	l.writeMu.Unlock()

	if err != nil {
		c.logger.Error("failed to send message", "conn_id", l.id, "error", err)
		return false
	}

	c.metrics.MessageSent()
	return true
}

// OnConnect registers cb for connection opens. If the client is already
// connected, cb also runs once before OnConnect returns.
func (c *Client) OnConnect(cb ConnectHandler) Subscription {
	if cb == nil {
		return Subscription{}
	}

	c.mu.Lock()
	sub := c.subscriptionLocked()
	c.onConnect.add(sub.id, cb)
	connected := c.state == Connected
	c.mu.Unlock()

	if connected {
		c.invoke("connect", cb)
	}

	return sub
}

// OnDisconnect registers cb for connection closes.
func (c *Client) OnDisconnect(cb DisconnectHandler) Subscription {
	if cb == nil {
		return Subscription{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sub := c.subscriptionLocked()
	c.onDisconnect.add(sub.id, cb)
	return sub
}

// OnMessage registers cb for inbound messages.
func (c *Client) OnMessage(cb MessageHandler) Subscription {
	if cb == nil {
		return Subscription{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sub := c.subscriptionLocked()
	c.onMessage.add(sub.id, cb)
	return sub
}

// RemoveCallback removes sub from the collections selected by scope.
// A zero scope means all collections.
func (c *Client) RemoveCallback(sub Subscription, scope Scope) {
	if scope == 0 {
		scope = ScopeAll
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if scope&ScopeMessage != 0 {
		c.onMessage.remove(sub.id)
	}
	if scope&ScopeConnect != 0 {
		c.onConnect.remove(sub.id)
	}
	if scope&ScopeDisconnect != 0 {
		c.onDisconnect.remove(sub.id)
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of reconnects made since the last successful open.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// run dials, then owns the connection until it closes.
func (c *Client) run(ctx context.Context, l *link, target string) {
	logger := c.logger.With("conn_id", l.id)

	header := http.Header{}
	header.Set("Accept", "application/json")

	conn, resp, err := c.dialer.DialContext(ctx, target, header)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug("dial cancelled")
			return
		}
		logger.Warn("connection failed", "error", err)
		c.closed(l, dialCloseEvent(resp, err))
		return
	}

	l.lastPing.Store(time.Now().UnixNano())

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		l.lastPing.Store(time.Now().UnixNano())
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	// Server responds to our ping
	conn.SetPongHandler(func(string) error {
		l.lastPing.Store(time.Now().UnixNano())
		return nil
	})

	fns, ok := c.opened(l, conn)
	if !ok {
		conn.Close()
		return
	}

	logger.Info("connection established", "url", c.cfg.URL)
	for _, fn := range fns {
		c.invoke("connect", fn)
	}

	if c.cfg.PingInterval > 0 {
		go c.heartbeatLoop(l, conn, logger)
	}

	c.readLoop(l, conn)
}

// opened promotes l to the live connection unless it was superseded mid-dial.
// It returns the connect handlers registered before the state became Connected;
// later registrations run from OnConnect instead.
func (c *Client) opened(l *link, conn *websocket.Conn) ([]ConnectHandler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur != l {
		return nil, false
	}

	l.conn = conn
	c.attempts = 0
	c.setStateLocked(Connected)
	return c.onConnect.snapshot(), true
}

// readLoop delivers inbound frames until the connection fails.
func (c *Client) readLoop(l *link, conn *websocket.Conn) {
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			c.closed(l, closeEvent(err))
			return
		}

		if !c.current(l) {
			return
		}

		msg := ParseMessage(data, receivedAt)
		c.metrics.MessageReceived(msg.raw)
		if msg.raw {
			c.logger.Debug("received non-JSON message", "conn_id", l.id, "bytes", len(data))
		}

		c.dispatchMessage(msg)
	}
}

// heartbeatLoop pings the server and closes the connection when it goes quiet.
func (c *Client) heartbeatLoop(l *link, conn *websocket.Conn, logger *slog.Logger) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), c.writeDeadline()); err != nil {
				logger.Debug("failed to send ping", "error", err)
			}

			lastPing := time.Unix(0, l.lastPing.Load())
			if c.cfg.PingTimeout > 0 && time.Since(lastPing) > c.cfg.PingTimeout {
				logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", c.cfg.PingTimeout,
				)
				// readLoop observes the closed socket and reports an abnormal closure.
				conn.Close()
				return
			}
		}
	}
}

// closed handles the end of l and decides whether to schedule a reconnect.
func (c *Client) closed(l *link, ev CloseEvent) {
	c.mu.Lock()
	if c.cur != l {
		c.mu.Unlock()
		return
	}
	c.cur = nil
	l.release()

	policy := c.cfg.Reconnect
	retrying := !ev.Intentional() && c.attempts < policy.MaxAttempts

	var delay time.Duration
	if retrying {
		c.attempts++
		delay = policy.Delay(c.attempts)
		c.scheduleRetryLocked(delay)
		c.setStateLocked(Connecting)
	} else {
		c.setStateLocked(Disconnected)
	}
	attempts := c.attempts
	c.mu.Unlock()

	logger := c.logger.With("conn_id", l.id)
	logger.Info("connection closed", "code", ev.Code, "reason", ev.Reason)

	switch {
	case retrying:
		c.metrics.ReconnectScheduled(attempts, delay)
		logger.Info("reconnect scheduled",
			"attempt", attempts,
			"max_attempts", policy.MaxAttempts,
			"delay", delay,
		)
	case !ev.Intentional():
		logger.Warn("reconnect attempts exhausted", "attempts", attempts)
	}

	c.dispatchDisconnect(ev)
}

func (c *Client) scheduleRetryLocked(delay time.Duration) {
	c.stopRetryLocked()
	seq := c.retrySeq
	c.retry = time.AfterFunc(delay, func() {
		c.retryFired(seq)
	})
}

func (c *Client) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.retrySeq++
}

// retryFired re-reads the token and reconnects, unless the retry was cancelled.
func (c *Client) retryFired(seq uint64) {
	c.mu.Lock()
	if c.retry == nil || c.retrySeq != seq {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	c.mu.Unlock()

	token, err := c.token()
	if err != nil {
		c.logger.Error("reconnect aborted", "error", err)

		c.mu.Lock()
		if c.retrySeq == seq && c.cur == nil {
			c.setStateLocked(Disconnected)
		}
		c.mu.Unlock()
		return
	}

	c.connect(token, seq, true)
}

func (c *Client) token() (string, error) {
	if c.tokens == nil {
		return "", ErrNoToken
	}

	ctx, cancel := context.WithTimeout(context.Background(), tokenTimeout)
	defer cancel()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoToken, err)
	}
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// detachLocked unhooks the current link and returns it with its open connection, if any.
func (c *Client) detachLocked() (*link, *websocket.Conn) {
	prev := c.cur
	if prev == nil {
		return nil, nil
	}
	c.cur = nil
	return prev, prev.conn
}

// teardown silences l and closes its connection with the given code.
func (c *Client) teardown(l *link, conn *websocket.Conn, code int, reason string) {
	l.release()
	if conn == nil {
		return
	}

	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	conn.Close()
}

func (c *Client) current(l *link) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur == l
}

func (c *Client) setStateLocked(s State) {
	c.state = s
	c.metrics.SetState(s)
}

func (c *Client) subscriptionLocked() Subscription {
	c.nextID++
	return Subscription{id: c.nextID, client: c}
}

func (c *Client) writeDeadline() time.Time {
	if c.cfg.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.cfg.WriteTimeout)
}

func (c *Client) dispatchDisconnect(ev CloseEvent) {
	c.mu.Lock()
	fns := c.onDisconnect.snapshot()
	c.mu.Unlock()

	for _, fn := range fns {
		c.invoke("disconnect", func() { fn(ev) })
	}
}

func (c *Client) dispatchMessage(msg Message) {
	c.mu.Lock()
	fns := c.onMessage.snapshot()
	c.mu.Unlock()

	for _, fn := range fns {
		c.invoke("message", func() { fn(msg) })
	}
}

// invoke runs one callback; a panic is logged and does not stop the others.
func (c *Client) invoke(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("callback panicked", "event", event, "panic", r)
			c.metrics.CallbackPanicked(event)
		}
	}()
	fn()
}

func endpoint(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func encodePayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(payload)
	}
}

func closeEvent(err error) CloseEvent {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return CloseEvent{Code: ce.Code, Reason: ce.Text}
	}
	return CloseEvent{Code: CloseAbnormal, Reason: err.Error()}
}

// dialCloseEvent maps a failed handshake to a close event. A 401/403 answer to
// the upgrade request means the token was refused before the socket opened.
func dialCloseEvent(resp *http.Response, err error) CloseEvent {
	if resp != nil {
		if resp.Body != nil {
			resp.Body.Close()
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return CloseEvent{Code: ClosePolicyViolation, Reason: resp.Status}
		}
	}
	return CloseEvent{Code: CloseAbnormal, Reason: err.Error()}
}
