package main

import (
	"bytes"
	"net/http/httptest"
	"net/url"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdimtech/go-wsevent/handler"
	"github.com/xdimtech/go-wsevent/pkg/config"
)

func TestSetupLogging(t *testing.T) {
	defer log.SetLevel(log.GetLevel())

	require.NoError(t, setupLogging(config.LogConf{Level: "debug", Format: "json"}))
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.Error(t, setupLogging(config.LogConf{Level: "loud"}))
}

func TestSendWithReply(t *testing.T) {
	s := handler.NewWebSocketServer()
	s.On("echo", func(p *handler.Peer, payload any) error {
		return p.Send("echo", payload)
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	opts := &rootOptions{}
	root := &cobra.Command{
		Use: "wsevent",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}
	root.PersistentFlags().String("log-level", "", "")
	root.AddCommand(sendCmd(opts))

	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"send", "echo", `{"n":1}`, "--host", u.Host, "--reply", "echo", "--log-level", "error"})
	require.NoError(t, root.Execute())

	assert.Equal(t, u.Host, opts.conf.Client.DefaultHost)
	assert.Equal(t, "echo {\"n\":1}\n", out.String())
}
