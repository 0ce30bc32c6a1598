package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xdimtech/go-wsevent/pkg/utils"
)

func sendCmd(opts *rootOptions) *cobra.Command {
	var (
		address string
		reply   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send <event> [payload]",
		Short: "Send one event",
		Long: `Send one event. The payload is parsed as JSON when possible and
sent as a plain string otherwise.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload any
			if len(args) == 2 {
				payload = utils.ParseJSONArg(args[1])
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			c := newClient(&opts.conf.Client)
			defer c.Close()

			replies := make(chan any, 1)
			if reply != "" {
				c.On(reply, func(payload any) error {
					select {
					case replies <- payload:
					default:
					}
					return nil
				})
			}

			if err := connectAndWait(ctx, c, address, opts.conf.Client.HandshakeTimeout); err != nil {
				return err
			}
			if err := c.Send(args[0], payload); err != nil {
				return err
			}
			if reply == "" {
				return nil
			}

			select {
			case payload := <-replies:
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", reply, utils.MustToJSON(payload))
				return err
			case <-ctx.Done():
				return fmt.Errorf("no %q reply: %w", reply, ctx.Err())
			}
		},
	}
	cmd.Flags().StringVarP(&address, "address", "a", "", "server address (default ws://<host>/ws)")
	cmd.Flags().StringVarP(&reply, "reply", "r", "", "wait for one event with this name and print it")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "overall timeout")
	cmd.Flags().String("host", "", "default host when no address is given")
	cmd.Flags().String("codec", "", "envelope serializer: json or msgpack")
	return cmd
}
