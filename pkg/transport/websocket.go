package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReadTimeout      = 60 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultPingInterval     = 25 * time.Second
)

// WebSocket is a Transport over gorilla/websocket. One instance serves one
// connection at a time and may be reopened after Close.
type WebSocket struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	session *wsSession

	dialer           *websocket.Dialer
	headers          http.Header
	handshakeTimeout time.Duration
	readTimeout      time.Duration
	writeTimeout     time.Duration
	pingInterval     time.Duration
	compression      bool
	log              *log.Entry
}

type wsSession struct {
	handler Handler
	cancel  context.CancelFunc
	closing atomic.Bool
}

type WebSocketOption func(*WebSocket)

func WithDialer(dialer *websocket.Dialer) WebSocketOption {
	return func(t *WebSocket) {
		t.dialer = dialer
	}
}

func WithHeaders(headers http.Header) WebSocketOption {
	return func(t *WebSocket) {
		t.headers = headers
	}
}

func WithHandshakeTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocket) {
		t.handshakeTimeout = timeout
	}
}

func WithReadTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocket) {
		t.readTimeout = timeout
	}
}

func WithWriteTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocket) {
		t.writeTimeout = timeout
	}
}

// WithPingInterval sets how often pings are sent; zero disables them.
func WithPingInterval(interval time.Duration) WebSocketOption {
	return func(t *WebSocket) {
		t.pingInterval = interval
	}
}

func WithCompression(enabled bool) WebSocketOption {
	return func(t *WebSocket) {
		t.compression = enabled
	}
}

func WithLogger(logger *log.Entry) WebSocketOption {
	return func(t *WebSocket) {
		t.log = logger
	}
}

func NewWebSocket(opts ...WebSocketOption) *WebSocket {
	t := &WebSocket{
		dialer:           websocket.DefaultDialer,
		headers:          make(http.Header),
		handshakeTimeout: DefaultHandshakeTimeout,
		readTimeout:      DefaultReadTimeout,
		writeTimeout:     DefaultWriteTimeout,
		pingInterval:     DefaultPingInterval,
		log:              log.WithField("component", "transport"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open starts dialing address in the background and returns immediately.
// Cancelling ctx aborts a dial in progress; it has no effect once Opened has
// been reported.
func (t *WebSocket) Open(ctx context.Context, address string, h Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil {
		return ErrAlreadyOpen
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &wsSession{handler: h, cancel: cancel}
	t.session = s

	go t.run(ctx, address, s)
	return nil
}

func (t *WebSocket) run(ctx context.Context, address string, s *wsSession) {
	defer s.cancel()

	conn, err := t.dial(ctx, address)
	if err != nil {
		t.release(s)
		if s.closing.Load() {
			s.handler.Closed()
			return
		}
		t.log.Debugf("WebSocket: Connection to %s failed: %v", address, err)
		s.handler.Errored(err)
		return
	}

	t.mu.Lock()
	if t.session != s {
		t.mu.Unlock()
		_ = conn.Close()
		s.handler.Closed()
		return
	}
	t.conn = conn
	t.mu.Unlock()

	t.log.Debugf("WebSocket: Connected to %s", address)
	s.handler.Opened()

	// ctx bounds the dial only; once open, the connection lives until Close
	// or a read failure.
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.Go(func() error { return t.readLoop(conn, s) })
	g.Go(func() error { return t.pingLoop(gctx, conn) })
	err = g.Wait()

	t.release(s)
	_ = conn.Close()

	if s.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.handler.Closed()
		return
	}
	t.log.Debugf("WebSocket: Read error: %v", err)
	s.handler.Errored(err)
}

func (t *WebSocket) dial(ctx context.Context, address string) (*websocket.Conn, error) {
	dialer := *t.dialer
	dialer.HandshakeTimeout = t.handshakeTimeout
	if t.compression {
		dialer.EnableCompression = true
	}

	conn, resp, err := dialer.DialContext(ctx, address, t.headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func (t *WebSocket) readLoop(conn *websocket.Conn, s *wsSession) error {
	conn.SetPongHandler(func(string) error {
		return t.extendReadDeadline(conn)
	})

	for {
		if err := t.extendReadDeadline(conn); err != nil {
			return err
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handler.Received(Message{Type: FrameType(msgType), Data: data})
	}
}

// pingLoop only returns once ctx is done, which happens when the read loop fails.
func (t *WebSocket) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	if t.pingInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				t.log.Debugf("WebSocket: Ping failed: %v", err)
			}
		}
	}
}

func (t *WebSocket) extendReadDeadline(conn *websocket.Conn) error {
	if t.readTimeout <= 0 {
		return nil
	}
	return conn.SetReadDeadline(time.Now().Add(t.readTimeout))
}

func (t *WebSocket) release(s *wsSession) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == s {
		t.session = nil
		t.conn = nil
	}
}

func (t *WebSocket) Send(ft FrameType, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return ErrNotOpen
	}

	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(int(ft), data)
}

// Close sends a normal closure frame and releases the connection. The
// Handler of the current Open is notified with Closed.
func (t *WebSocket) Close() error {
	t.mu.Lock()
	s, conn := t.session, t.conn
	t.session = nil
	t.conn = nil
	t.mu.Unlock()

	if s == nil {
		return nil
	}
	s.closing.Store(true)
	s.cancel()

	if conn == nil {
		return nil
	}
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		t.log.Debugf("WebSocket: Error sending close message: %v", err)
	}
	return conn.Close()
}
