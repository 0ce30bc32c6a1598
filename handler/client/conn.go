package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/xdimtech/go-wsevent/handler/base"
	"github.com/xdimtech/go-wsevent/pkg/dispatch"
	"github.com/xdimtech/go-wsevent/pkg/metrics"
	"github.com/xdimtech/go-wsevent/pkg/protocol/envelope"
	"github.com/xdimtech/go-wsevent/pkg/transport"
	"github.com/xdimtech/go-wsevent/pkg/utils"
)

const (
	DefaultScheme = "ws"
	DefaultPath   = "/ws"
)

var _ base.WsConnWrapper = (*ConnWrapper)(nil)

// ConnWrapper owns one transport and exchanges named events over it.
// Lifecycle hooks are single-slot; named events go through the dispatcher.
type ConnWrapper struct {
	// closeMu orders Connect against a Close still talking to the transport.
	closeMu sync.Mutex

	mu         sync.RWMutex
	id         string
	state      State
	generation uint64
	address    string

	transport  transport.Transport
	codec      *envelope.Codec
	dispatcher *dispatch.Dispatcher

	scheme      string
	defaultHost string
	defaultPath string

	onOpen    func()
	onClose   func()
	onError   func(err error)
	onMessage func(msg transport.Message)

	log     *log.Entry
	metrics *metrics.Metrics
}

type WsConnOption func(*ConnWrapper)

func WithTransport(t transport.Transport) WsConnOption {
	return func(c *ConnWrapper) {
		c.transport = t
	}
}

func WithSerializer(s envelope.Serializer) WsConnOption {
	return func(c *ConnWrapper) {
		c.codec = envelope.NewCodec(s)
	}
}

// WithDefaultHost sets the host used when Connect is given no address.
func WithDefaultHost(host string) WsConnOption {
	return func(c *ConnWrapper) {
		c.defaultHost = host
	}
}

func WithDefaultPath(path string) WsConnOption {
	return func(c *ConnWrapper) {
		c.defaultPath = path
	}
}

func WithScheme(scheme string) WsConnOption {
	return func(c *ConnWrapper) {
		c.scheme = scheme
	}
}

func WithDispatcher(d *dispatch.Dispatcher) WsConnOption {
	return func(c *ConnWrapper) {
		c.dispatcher = d
	}
}

func WithLogger(logger *log.Entry) WsConnOption {
	return func(c *ConnWrapper) {
		c.log = logger
	}
}

func WithMetrics(m *metrics.Metrics) WsConnOption {
	return func(c *ConnWrapper) {
		c.metrics = m
	}
}

func NewConnWrapper(ops ...WsConnOption) *ConnWrapper {
	c := &ConnWrapper{
		id:          utils.UniqueID(),
		scheme:      DefaultScheme,
		defaultPath: DefaultPath,
		log:         log.WithField("component", "client"),
	}
	for _, op := range ops {
		op(c)
	}

	c.log = c.log.WithField("conn_id", c.id)
	if c.transport == nil {
		c.transport = transport.NewWebSocket(transport.WithLogger(c.log))
	}
	if c.codec == nil {
		c.codec = envelope.NewCodec(envelope.JSON{})
	}
	if c.dispatcher == nil {
		c.dispatcher = dispatch.New(dispatch.WithLogger(c.log), dispatch.WithMetrics(c.metrics))
	}
	return c
}

func (c *ConnWrapper) ID() string {
	return c.id
}

func (c *ConnWrapper) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

// Address returns the address of the most recent Connect.
func (c *ConnWrapper) Address() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.address
}

func (c *ConnWrapper) Dispatcher() *dispatch.Dispatcher {
	return c.dispatcher
}

// Connect opens the transport against address, or against
// scheme://defaultHost/defaultPath when address is empty. It returns without
// waiting for the connection; use SetOpenHandler to observe readiness.
func (c *ConnWrapper) Connect(ctx context.Context, address string) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.active() {
		return &InvalidStateError{Op: "connect", State: c.state}
	}

	if address == "" {
		if c.defaultHost == "" {
			return ErrNoAddress
		}
		address = (&url.URL{Scheme: c.scheme, Host: c.defaultHost, Path: c.defaultPath}).String()
	}

	s := &session{conn: c, generation: c.generation + 1}
	if err := c.transport.Open(ctx, address, s); err != nil {
		return fmt.Errorf("open %s: %w", address, err)
	}
	c.generation = s.generation

	c.address = address
	c.setState(StateConnecting)
	c.log.WithField("address", address).Debug("Connecting")
	return nil
}

// Send encodes {event, payload} and writes it to the transport. There is no
// acknowledgment.
func (c *ConnWrapper) Send(event string, payload any) error {
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()

	if state != StateOpen {
		return &NotConnectedError{State: state}
	}

	data, err := c.codec.Encode(event, payload)
	if err != nil {
		c.metrics.EncodeFailed()
		return err
	}

	ft := transport.FrameText
	if c.codec.Serializer().Binary() {
		ft = transport.FrameBinary
	}
	if err := c.transport.Send(ft, data); err != nil {
		if errors.Is(err, transport.ErrNotOpen) {
			return &NotConnectedError{State: c.State(), Err: err}
		}
		return fmt.Errorf("send %s: %w", event, err)
	}
	c.metrics.FrameSent(c.codec.Serializer().Name())
	return nil
}

// Close releases the transport. It is a no-op when idle or already closed.
// The state is closed before the transport finishes its close handshake.
func (c *ConnWrapper) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	c.mu.Lock()
	if c.state == StateIdle || c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.setState(StateClosed)
	c.mu.Unlock()

	c.log.Debug("Closing")
	return c.transport.Close()
}

// On registers fn for event. See dispatch.Dispatcher.On.
func (c *ConnWrapper) On(event string, fn dispatch.Listener) dispatch.ListenerID {
	return c.dispatcher.On(event, fn)
}

// Off removes a registration made with On. Unknown ids are ignored.
func (c *ConnWrapper) Off(event string, id dispatch.ListenerID) {
	c.dispatcher.Off(event, id)
}

func (c *ConnWrapper) SetOpenHandler(h func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onOpen = h
}

func (c *ConnWrapper) SetCloseHandler(h func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onClose = h
}

func (c *ConnWrapper) SetErrorHandler(h func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onError = h
}

// SetMessageHandler sets the raw frame observer. It sees every inbound frame
// of an open connection, whether or not the frame decoded to an envelope.
func (c *ConnWrapper) SetMessageHandler(h func(msg transport.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onMessage = h
}

// setState must be called with mu held.
func (c *ConnWrapper) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.metrics.StateChanged(s.String())
}

func (c *ConnWrapper) handleFrame(msg transport.Message) {
	c.metrics.FrameReceived(c.codec.Serializer().Name())

	env, err := c.codec.Decode(msg.Data)
	switch {
	case err != nil:
		c.metrics.Dropped(metrics.DropDecodeError)
		c.log.Warnf("Failed to decode message: %v", err)
	case env == nil:
		c.metrics.Dropped(metrics.DropNonRoutable)
		c.log.Debugf("Dropping message without event: %d bytes", len(msg.Data))
	default:
		c.log.Debugf("Received message: %v", env)
		// listener failures are logged by the dispatcher and never reach the transport
		_ = c.dispatcher.Route(env.Event, env.Payload)
	}
}
