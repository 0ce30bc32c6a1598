package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/xdimtech/go-wsevent/pkg/protocol/envelope"
)

const EnvPrefix = "WSEVENT"

type ServerConf struct {
	Addr        string        `yaml:"addr"`
	Path        string        `yaml:"path"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type ClientConf struct {
	// DefaultHost is used when no address is given to connect.
	DefaultHost      string        `yaml:"default_host"`
	Scheme           string        `yaml:"scheme"`
	Path             string        `yaml:"path"`
	Codec            string        `yaml:"codec"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
}

type LogConf struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Conf struct {
	Server ServerConf `yaml:"server"`
	Client ClientConf `yaml:"client"`
	Log    LogConf    `yaml:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.path", "/ws")
	v.SetDefault("server.idle_timeout", "0s")
	v.SetDefault("client.default_host", "localhost:8000")
	v.SetDefault("client.scheme", "ws")
	v.SetDefault("client.path", "/ws")
	v.SetDefault("client.codec", envelope.SerializerJSON)
	v.SetDefault("client.handshake_timeout", "10s")
	v.SetDefault("client.read_timeout", "60s")
	v.SetDefault("client.write_timeout", "10s")
	v.SetDefault("client.ping_interval", "25s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with defaults, env overrides and, when
// present, the wsevent.yaml file from ./conf or the working directory.
// An explicit file path replaces the search.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("wsevent")
		v.SetConfigType("yaml")
		v.AddConfigPath("conf")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

// Decode reads the settings of v into a validated Conf.
func Decode(v *viper.Viper) (*Conf, error) {
	var conf Conf
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &conf,
		TagName:          "yaml",
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Load is New followed by Decode.
func Load(file string) (*Conf, error) {
	v, err := New(file)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

func (c *Conf) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server.path must start with /: %q", c.Server.Path)
	}
	if c.Client.Scheme != "ws" && c.Client.Scheme != "wss" {
		return fmt.Errorf("client.scheme must be ws or wss: %q", c.Client.Scheme)
	}
	if !strings.HasPrefix(c.Client.Path, "/") {
		return fmt.Errorf("client.path must start with /: %q", c.Client.Path)
	}
	if _, err := envelope.Lookup(c.Client.Codec); err != nil {
		return fmt.Errorf("client.codec: %w", err)
	}
	if c.Client.HandshakeTimeout < 0 || c.Client.ReadTimeout < 0 || c.Client.WriteTimeout < 0 || c.Client.PingInterval < 0 {
		return fmt.Errorf("client timeouts must not be negative")
	}
	return nil
}

// Serializer returns the envelope serializer named by client.codec.
func (c *ClientConf) Serializer() envelope.Serializer {
	s, err := envelope.Lookup(c.Codec)
	if err != nil {
		return envelope.JSON{}
	}
	return s
}
