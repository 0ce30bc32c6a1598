package base

import (
	"context"

	"github.com/xdimtech/go-wsevent/pkg/dispatch"
)

// Emitter exchanges named events with the remote side.
type Emitter interface {
	Send(event string, payload any) error
	On(event string, fn dispatch.Listener) dispatch.ListenerID
	Off(event string, id dispatch.ListenerID)
}

// WsConnWrapper is the client connection surface.
type WsConnWrapper interface {
	Emitter
	Connect(ctx context.Context, address string) error
	Close() error
}
