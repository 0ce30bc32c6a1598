package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xdimtech/go-wsevent/handler"
	"github.com/xdimtech/go-wsevent/pkg/metrics"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an echo server",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := opts.conf
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := handler.NewWebSocketServer(
				handler.WithPath(conf.Server.Path),
				handler.WithSerializer(conf.Client.Serializer()),
				handler.WithIdleTimeout(conf.Server.IdleTimeout),
				handler.WithMetrics(metrics.New(), prometheus.DefaultGatherer),
			)
			server.On("echo", func(p *handler.Peer, payload any) error {
				log.Infof("Received: %v", payload)
				return p.Send("echo", payload)
			})
			return server.Start(ctx, conf.Server.Addr)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :8000)")
	cmd.Flags().String("path", "", "websocket path (default /ws)")
	cmd.Flags().String("codec", "", "envelope serializer: json or msgpack")
	return cmd
}
