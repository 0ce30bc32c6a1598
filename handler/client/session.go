package client

import (
	"github.com/xdimtech/go-wsevent/pkg/metrics"
	"github.com/xdimtech/go-wsevent/pkg/transport"
)

// session receives the transport notifications of one Connect call.
// Notifications from an older generation are ignored.
type session struct {
	conn       *ConnWrapper
	generation uint64
}

func (s *session) Opened() {
	c := s.conn
	c.mu.Lock()
	if s.generation != c.generation || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.setState(StateOpen)
	hook := c.onOpen
	c.mu.Unlock()

	c.log.Info("OPEN")
	if hook != nil {
		hook()
	}
}

func (s *session) Closed() {
	c := s.conn
	c.mu.Lock()
	if s.generation != c.generation || c.state == StateErrored {
		c.mu.Unlock()
		return
	}
	c.setState(StateClosed)
	hook := c.onClose
	c.mu.Unlock()

	c.log.Info("CLOSE")
	if hook != nil {
		hook()
	}
}

func (s *session) Errored(err error) {
	c := s.conn
	c.mu.Lock()
	if s.generation != c.generation || !c.state.active() {
		c.mu.Unlock()
		c.log.Debugf("Ignoring transport error after close: %v", err)
		return
	}
	c.setState(StateErrored)
	hook := c.onError
	c.mu.Unlock()

	c.log.Errorf("ERROR: %v", err)
	if hook != nil {
		hook(err)
	}
}

func (s *session) Received(msg transport.Message) {
	c := s.conn
	c.mu.RLock()
	current := s.generation == c.generation && c.state == StateOpen
	hook := c.onMessage
	c.mu.RUnlock()

	if !current {
		c.metrics.Dropped(metrics.DropNotConnected)
		return
	}

	c.handleFrame(msg)
	if hook != nil {
		hook(msg)
	}
}
