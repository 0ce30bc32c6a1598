package main

import (
	"context"
	"fmt"
	"time"

	"github.com/xdimtech/go-wsevent/handler/client"
	"github.com/xdimtech/go-wsevent/pkg/config"
	"github.com/xdimtech/go-wsevent/pkg/transport"
)

// connectAndWait connects c and blocks until the open hook fires, the
// connection fails, or timeout elapses.
func connectAndWait(ctx context.Context, c *client.ConnWrapper, address string, timeout time.Duration) error {
	opened := make(chan struct{}, 1)
	failed := make(chan error, 1)
	c.SetOpenHandler(func() { opened <- struct{}{} })
	c.SetErrorHandler(func(err error) { failed <- err })

	if err := c.Connect(ctx, address); err != nil {
		return err
	}

	select {
	case <-opened:
		return nil
	case err := <-failed:
		return err
	case <-time.After(timeout):
		_ = c.Close()
		return fmt.Errorf("timed out connecting to %s", c.Address())
	case <-ctx.Done():
		_ = c.Close()
		return ctx.Err()
	}
}

func newClient(conf *config.ClientConf) *client.ConnWrapper {
	tr := transport.NewWebSocket(
		transport.WithHandshakeTimeout(conf.HandshakeTimeout),
		transport.WithReadTimeout(conf.ReadTimeout),
		transport.WithWriteTimeout(conf.WriteTimeout),
		transport.WithPingInterval(conf.PingInterval),
	)
	return client.NewConnWrapper(
		client.WithTransport(tr),
		client.WithSerializer(conf.Serializer()),
		client.WithDefaultHost(conf.DefaultHost),
		client.WithScheme(conf.Scheme),
		client.WithDefaultPath(conf.Path),
	)
}
