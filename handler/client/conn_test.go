package client

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdimtech/go-wsevent/pkg/protocol/envelope"
	"github.com/xdimtech/go-wsevent/pkg/transport"
)

type sentFrame struct {
	Type transport.FrameType
	Data []byte
}

// fakeTransport records calls; tests drive notifications through handler().
type fakeTransport struct {
	mu        sync.Mutex
	addresses []string
	handlers  []transport.Handler
	open      bool
	sent      []sentFrame
	closes    int
	openErr   error

	// closing, when set, is signalled on Close, which then blocks until release is closed.
	closing chan struct{}
	release chan struct{}
}

func (f *fakeTransport) Open(_ context.Context, address string, h transport.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.openErr != nil {
		return f.openErr
	}
	f.addresses = append(f.addresses, address)
	f.handlers = append(f.handlers, h)
	f.open = true
	return nil
}

func (f *fakeTransport) Send(ft transport.FrameType, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return transport.ErrNotOpen
	}
	f.sent = append(f.sent, sentFrame{Type: ft, Data: data})
	return nil
}

func (f *fakeTransport) Close() error {
	if f.closing != nil {
		f.closing <- struct{}{}
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.closes++
	f.open = false
	return nil
}

func (f *fakeTransport) handler() transport.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.handlers[len(f.handlers)-1]
}

func frame(t *testing.T, event string, payload any) transport.Message {
	t.Helper()
	data, err := envelope.NewCodec(envelope.JSON{}).Encode(event, payload)
	require.NoError(t, err)
	return transport.Message{Type: transport.FrameText, Data: data}
}

func newOpenConn(t *testing.T, ops ...WsConnOption) (*ConnWrapper, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	c := NewConnWrapper(append([]WsConnOption{WithTransport(ft)}, ops...)...)
	require.NoError(t, c.Connect(context.Background(), "ws://localhost:51221/ws"))
	ft.handler().Opened()
	require.Equal(t, StateOpen, c.State())
	return c, ft
}

func TestScenarioDefaultAddress(t *testing.T) {
	ft := &fakeTransport{}
	c := NewConnWrapper(WithTransport(ft), WithDefaultHost("example.com"))
	assert.Equal(t, StateIdle, c.State())

	require.NoError(t, c.Connect(context.Background(), ""))
	assert.Equal(t, []string{"ws://example.com/ws"}, ft.addresses)
	assert.Equal(t, "ws://example.com/ws", c.Address())
	assert.Equal(t, StateConnecting, c.State())

	var got []any
	c.On("greet", func(payload any) error {
		got = append(got, payload)
		return nil
	})

	ft.handler().Opened()
	ft.handler().Received(frame(t, "greet", "hi"))
	assert.Equal(t, []any{"hi"}, got)

	require.NoError(t, c.Close())
	err := c.Send("greet", "bye")
	var nc *NotConnectedError
	require.True(t, errors.As(err, &nc))
	assert.Equal(t, StateClosed, nc.State)
}

func TestDefaultAddressOptions(t *testing.T) {
	ft := &fakeTransport{}
	c := NewConnWrapper(WithTransport(ft), WithDefaultHost("example.com:8443"), WithScheme("wss"), WithDefaultPath("/events"))
	require.NoError(t, c.Connect(context.Background(), ""))
	assert.Equal(t, []string{"wss://example.com:8443/events"}, ft.addresses)
}

func TestConnectWithoutAddress(t *testing.T) {
	ft := &fakeTransport{}
	c := NewConnWrapper(WithTransport(ft))
	assert.ErrorIs(t, c.Connect(context.Background(), ""), ErrNoAddress)
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, ft.addresses)
}

func TestConnectTwice(t *testing.T) {
	ft := &fakeTransport{}
	c := NewConnWrapper(WithTransport(ft))
	require.NoError(t, c.Connect(context.Background(), "ws://a/ws"))

	var ise *InvalidStateError
	err := c.Connect(context.Background(), "ws://a/ws")
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, StateConnecting, ise.State)

	ft.handler().Opened()
	err = c.Connect(context.Background(), "ws://a/ws")
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, StateOpen, ise.State)
	assert.Len(t, ft.addresses, 1)
}

func TestConnectOpenFailure(t *testing.T) {
	ft := &fakeTransport{openErr: transport.ErrAlreadyOpen}
	c := NewConnWrapper(WithTransport(ft))
	err := c.Connect(context.Background(), "ws://a/ws")
	assert.ErrorIs(t, err, transport.ErrAlreadyOpen)
	assert.Equal(t, StateIdle, c.State())

	ft.mu.Lock()
	ft.openErr = nil
	ft.mu.Unlock()
	require.NoError(t, c.Connect(context.Background(), "ws://a/ws"))
	assert.Equal(t, StateConnecting, c.State())
}

func TestConnectOpenFailureKeepsClosedState(t *testing.T) {
	c, ft := newOpenConn(t)
	require.NoError(t, c.Close())
	ft.handler().Closed()

	ft.mu.Lock()
	ft.openErr = errors.New("dial refused")
	ft.mu.Unlock()
	assert.Error(t, c.Connect(context.Background(), "ws://a/ws"))
	assert.Equal(t, StateClosed, c.State())
}

func TestCloseDoesNotHoldState(t *testing.T) {
	c, ft := newOpenConn(t)
	ft.closing = make(chan struct{})
	ft.release = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- c.Close() }()
	<-ft.closing

	assert.Equal(t, StateClosed, c.State())
	var nc *NotConnectedError
	assert.True(t, errors.As(c.Send("greet", "hi"), &nc))
	ft.handler().Received(frame(t, "greet", "late"))

	close(ft.release)
	assert.NoError(t, <-done)
	assert.Equal(t, 1, ft.closes)
}

func TestReconnectIgnoresStaleNotifications(t *testing.T) {
	c, ft := newOpenConn(t)
	stale := ft.handler()

	closes := 0
	c.SetCloseHandler(func() { closes++ })
	require.NoError(t, c.Close())
	require.NoError(t, c.Connect(context.Background(), "ws://b/ws"))
	assert.Equal(t, StateConnecting, c.State())

	stale.Opened()
	stale.Received(frame(t, "greet", "old"))
	stale.Closed()
	assert.Equal(t, StateConnecting, c.State())
	assert.Equal(t, 0, closes)

	ft.handler().Opened()
	assert.Equal(t, StateOpen, c.State())
}

func TestSendRequiresOpen(t *testing.T) {
	ft := &fakeTransport{}
	c := NewConnWrapper(WithTransport(ft))
	var nc *NotConnectedError

	require.True(t, errors.As(c.Send("greet", "hi"), &nc))
	assert.Equal(t, StateIdle, nc.State)

	require.NoError(t, c.Connect(context.Background(), "ws://a/ws"))
	require.True(t, errors.As(c.Send("greet", "hi"), &nc))
	assert.Equal(t, StateConnecting, nc.State)
	assert.Empty(t, ft.sent)
}

func TestSendWritesEnvelope(t *testing.T) {
	c, ft := newOpenConn(t)
	require.NoError(t, c.Send("greet", map[string]any{"name": "ann"}))

	require.Len(t, ft.sent, 1)
	assert.Equal(t, transport.FrameText, ft.sent[0].Type)
	assert.JSONEq(t, `{"event":"greet","payload":{"name":"ann"}}`, string(ft.sent[0].Data))
}

func TestSendMsgPack(t *testing.T) {
	c, ft := newOpenConn(t, WithSerializer(envelope.MsgPack{}))
	require.NoError(t, c.Send("ping", int64(3)))

	require.Len(t, ft.sent, 1)
	assert.Equal(t, transport.FrameBinary, ft.sent[0].Type)
	env, err := envelope.NewCodec(envelope.MsgPack{}).Decode(ft.sent[0].Data)
	require.NoError(t, err)
	assert.Equal(t, &envelope.Envelope{Event: "ping", Payload: int64(3)}, env)
}

func TestSendEncodingError(t *testing.T) {
	c, ft := newOpenConn(t)
	err := c.Send("bad", make(chan int))

	var encErr *envelope.EncodingError
	assert.True(t, errors.As(err, &encErr))
	assert.Empty(t, ft.sent)
	assert.Equal(t, StateOpen, c.State())
}

func TestSendTransportClosedUnderneath(t *testing.T) {
	c, ft := newOpenConn(t)
	ft.mu.Lock()
	ft.open = false
	ft.mu.Unlock()

	var nc *NotConnectedError
	err := c.Send("greet", "hi")
	require.True(t, errors.As(err, &nc))
	assert.ErrorIs(t, err, transport.ErrNotOpen)
}

func TestLifecycleHooks(t *testing.T) {
	ft := &fakeTransport{}
	c := NewConnWrapper(WithTransport(ft))

	var events []string
	c.SetOpenHandler(func() { events = append(events, "open") })
	c.SetCloseHandler(func() { events = append(events, "close") })
	c.SetErrorHandler(func(err error) { events = append(events, "error:"+err.Error()) })

	require.NoError(t, c.Connect(context.Background(), "ws://a/ws"))
	ft.handler().Opened()
	require.NoError(t, c.Close())
	ft.handler().Closed()
	assert.Equal(t, []string{"open", "close"}, events)
	assert.Equal(t, 1, ft.closes)

	events = nil
	require.NoError(t, c.Connect(context.Background(), "ws://a/ws"))
	ft.handler().Opened()
	ft.handler().Errored(errors.New("reset by peer"))
	assert.Equal(t, []string{"open", "error:reset by peer"}, events)
	assert.Equal(t, StateErrored, c.State())

	var nc *NotConnectedError
	assert.True(t, errors.As(c.Send("greet", "hi"), &nc))

	require.NoError(t, c.Connect(context.Background(), "ws://a/ws"))
	assert.Equal(t, StateConnecting, c.State())
}

func TestHooksAreSingleSlot(t *testing.T) {
	ft := &fakeTransport{}
	c := NewConnWrapper(WithTransport(ft))

	first, second := 0, 0
	c.SetOpenHandler(func() { first++ })
	c.SetOpenHandler(func() { second++ })

	require.NoError(t, c.Connect(context.Background(), "ws://a/ws"))
	ft.handler().Opened()
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestErrorWhileConnecting(t *testing.T) {
	ft := &fakeTransport{}
	c := NewConnWrapper(WithTransport(ft))
	var got error
	c.SetErrorHandler(func(err error) { got = err })

	require.NoError(t, c.Connect(context.Background(), "ws://a/ws"))
	ft.handler().Errored(errors.New("connection refused"))
	assert.EqualError(t, got, "connection refused")
	assert.Equal(t, StateErrored, c.State())

	ft.handler().Closed()
	assert.Equal(t, StateErrored, c.State())
}

func TestCloseIdempotent(t *testing.T) {
	ft := &fakeTransport{}
	c := NewConnWrapper(WithTransport(ft))
	require.NoError(t, c.Close())
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, 0, ft.closes)

	require.NoError(t, c.Connect(context.Background(), "ws://a/ws"))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 1, ft.closes)
}

func TestRawMessageHook(t *testing.T) {
	c, ft := newOpenConn(t)

	var routed []any
	c.On("greet", func(payload any) error {
		routed = append(routed, payload)
		return nil
	})
	var raw []string
	c.SetMessageHandler(func(msg transport.Message) {
		raw = append(raw, string(msg.Data))
	})

	h := ft.handler()
	h.Received(frame(t, "greet", "hi"))
	h.Received(transport.Message{Type: transport.FrameText, Data: []byte(`{"payload":"no event"}`)})
	h.Received(transport.Message{Type: transport.FrameText, Data: []byte(`{not json`)})
	h.Received(frame(t, "unknown", 1))

	assert.Equal(t, []any{"hi"}, routed)
	assert.Len(t, raw, 4)
	assert.Equal(t, `{not json`, raw[2])
	assert.Equal(t, StateOpen, c.State())
}

func TestListenerFailureKeepsConnection(t *testing.T) {
	c, ft := newOpenConn(t)

	var calls []string
	c.On("greet", func(any) error {
		calls = append(calls, "panics")
		panic("listener bug")
	})
	c.On("greet", func(any) error {
		calls = append(calls, "fails")
		return errors.New("listener failed")
	})
	c.On("greet", func(any) error {
		calls = append(calls, "ok")
		return nil
	})

	assert.NotPanics(t, func() {
		ft.handler().Received(frame(t, "greet", "hi"))
	})
	assert.Equal(t, []string{"panics", "fails", "ok"}, calls)
	assert.Equal(t, StateOpen, c.State())
	assert.NoError(t, c.Send("greet", "still open"))
}

func TestOffThroughConn(t *testing.T) {
	c, ft := newOpenConn(t)

	count := 0
	id := c.On("greet", func(any) error {
		count++
		return nil
	})
	c.Off("greet", id)
	c.Off("greet", id)
	c.Off("never", id)

	ft.handler().Received(frame(t, "greet", "hi"))
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, c.Dispatcher().Len("greet"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "errored", StateErrored.String())
	assert.Equal(t, "unknown", State(42).String())
}
