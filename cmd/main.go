package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xdimtech/go-wsevent/pkg/config"
)

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"log-level": "log.level",
	"addr":      "server.addr",
	"path":      "server.path",
	"host":      "client.default_host",
	"codec":     "client.codec",
}

type rootOptions struct {
	configFile string
	conf       *config.Conf
}

func main() {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "wsevent",
		Short: "Exchange named events over a websocket",
		Long: `wsevent speaks the {event, payload} envelope protocol.

  serve   run a server that echoes "echo" events back to the sender
  listen  connect and print the payload of every received event
  send    connect, send one event and optionally wait for a reply`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default conf/wsevent.yaml or ./wsevent.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		serveCmd(opts),
		listenCmd(opts),
		sendCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	v, err := config.New(o.configFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd); err != nil {
		return err
	}

	conf, err := config.Decode(v)
	if err != nil {
		return err
	}
	if err := setupLogging(conf.Log); err != nil {
		return err
	}
	o.conf = conf
	return nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

func setupLogging(conf config.LogConf) error {
	level, err := log.ParseLevel(conf.Level)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	log.SetLevel(level)
	if conf.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
