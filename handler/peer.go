package handler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/xdimtech/go-wsevent/handler/base"
	"github.com/xdimtech/go-wsevent/pkg/dispatch"
	"github.com/xdimtech/go-wsevent/pkg/metrics"
	"github.com/xdimtech/go-wsevent/pkg/protocol/envelope"
	"github.com/xdimtech/go-wsevent/pkg/utils"
)

const (
	WriteTimeout = 10 * time.Second
	ControlWait  = time.Second
)

var ErrPeerClosed = errors.New("peer closed")

var _ base.Emitter = (*Peer)(nil)

// Peer is one client connection accepted by the server.
type Peer struct {
	id          string
	conn        *websocket.Conn
	writeMu     sync.Mutex
	closed      atomic.Bool
	idleTimeout time.Duration

	codec      *envelope.Codec
	dispatcher *dispatch.Dispatcher
	log        *log.Entry
	metrics    *metrics.Metrics
}

func newPeer(conn *websocket.Conn, codec *envelope.Codec, idleTimeout time.Duration, logger *log.Entry, m *metrics.Metrics) *Peer {
	id := utils.UniqueID()
	logger = logger.WithFields(log.Fields{"peer_id": id, "remote": conn.RemoteAddr().String()})
	p := &Peer{
		id:          id,
		conn:        conn,
		idleTimeout: idleTimeout,
		codec:       codec,
		dispatcher:  dispatch.New(dispatch.WithLogger(logger), dispatch.WithMetrics(m)),
		log:         logger,
		metrics:     m,
	}
	conn.SetPingHandler(p.Pong)
	return p
}

func (p *Peer) ID() string {
	return p.id
}

func (p *Peer) RemoteAddr() string {
	return p.conn.RemoteAddr().String()
}

func (p *Peer) On(event string, fn dispatch.Listener) dispatch.ListenerID {
	return p.dispatcher.On(event, fn)
}

func (p *Peer) Off(event string, id dispatch.ListenerID) {
	p.dispatcher.Off(event, id)
}

// Send writes {event, payload} to the peer.
func (p *Peer) Send(event string, payload any) error {
	if p.closed.Load() {
		return ErrPeerClosed
	}

	data, err := p.codec.Encode(event, payload)
	if err != nil {
		p.metrics.EncodeFailed()
		return err
	}

	msgType := websocket.TextMessage
	if p.codec.Serializer().Binary() {
		msgType = websocket.BinaryMessage
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
		return err
	}
	if err := p.conn.WriteMessage(msgType, data); err != nil {
		return err
	}
	p.metrics.FrameSent(p.codec.Serializer().Name())
	return nil
}

func (p *Peer) Pong(data string) error {
	if p.closed.Load() {
		return nil
	}
	p.resetIdleDeadline()
	err := p.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(ControlWait))
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

// ReadLoop routes inbound envelopes until the connection fails or ctx is done.
func (p *Peer) ReadLoop(ctx context.Context) error {
	defer func() {
		_ = p.Close()
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = p.Close()
	})
	defer stop()

	for {
		p.resetIdleDeadline()
		_, msg, err := p.conn.ReadMessage()
		if err != nil {
			if p.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			p.log.Warnf("Failed to read message from websocket: %v", err)
			return err
		}
		p.metrics.FrameReceived(p.codec.Serializer().Name())

		env, err := p.codec.Decode(msg)
		if err != nil {
			p.metrics.Dropped(metrics.DropDecodeError)
			p.log.Errorf("Failed to decode message from websocket: %v", err)
			continue
		}
		if env == nil {
			p.metrics.Dropped(metrics.DropNonRoutable)
			p.log.Debugf("No event specified: %d bytes", len(msg))
			continue
		}
		p.log.Debugf("Received message: %v", env)
		_ = p.dispatcher.Route(env.Event, env.Payload)
	}
}

// Close sends a normal closure and closes the socket. Safe to call repeatedly.
func (p *Peer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = p.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(ControlWait),
	)
	return p.conn.Close()
}

func (p *Peer) resetIdleDeadline() {
	if p.idleTimeout <= 0 {
		return
	}
	_ = p.conn.SetReadDeadline(time.Now().Add(p.idleTimeout))
}
