package transport

import (
	"context"
	"errors"
)

type FrameType int

// Values match the gorilla/websocket message type constants.
const (
	FrameText   FrameType = 1
	FrameBinary FrameType = 2
)

func (t FrameType) String() string {
	switch t {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Message is one raw inbound frame.
type Message struct {
	Type FrameType
	Data []byte
}

// Handler receives the notifications of one Open call. Opened precedes any
// Received; exactly one of Closed or Errored ends the sequence. All calls for
// one Open come from the same goroutine, never from within Open or Close.
type Handler interface {
	Opened()
	Closed()
	Errored(err error)
	Received(msg Message)
}

// Transport is a bidirectional frame channel. Open must not block on the
// network: readiness and failures are reported through the Handler.
type Transport interface {
	Open(ctx context.Context, address string, h Handler) error
	Send(ft FrameType, data []byte) error
	Close() error
}

var (
	ErrNotOpen     = errors.New("transport not open")
	ErrAlreadyOpen = errors.New("transport already open")
)
