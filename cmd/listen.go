package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xdimtech/go-wsevent/pkg/transport"
	"github.com/xdimtech/go-wsevent/pkg/utils"
)

func listenCmd(opts *rootOptions) *cobra.Command {
	var (
		events []string
		raw    bool
	)
	cmd := &cobra.Command{
		Use:   "listen [address]",
		Short: "Print received events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(events) == 0 && !raw {
				return errors.New("at least one --event or --raw is required")
			}
			address := ""
			if len(args) == 1 {
				address = args[0]
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c := newClient(&opts.conf.Client)
			defer c.Close()

			for _, event := range events {
				c.On(event, func(payload any) error {
					_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", event, utils.MustToJSON(payload))
					return err
				})
			}
			if raw {
				c.SetMessageHandler(func(msg transport.Message) {
					fmt.Fprintf(cmd.OutOrStdout(), "raw(%s) %s\n", msg.Type, msg.Data)
				})
			}

			done := make(chan error, 1)
			c.SetCloseHandler(func() { done <- nil })
			if err := connectAndWait(ctx, c, address, opts.conf.Client.HandshakeTimeout); err != nil {
				return err
			}
			c.SetErrorHandler(func(err error) { done <- err })

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				return nil
			}
		},
	}
	cmd.Flags().StringSliceVarP(&events, "event", "e", nil, "event name to print (repeatable)")
	cmd.Flags().BoolVar(&raw, "raw", false, "print every raw frame")
	cmd.Flags().String("host", "", "default host when no address is given")
	cmd.Flags().String("codec", "", "envelope serializer: json or msgpack")
	return cmd
}
