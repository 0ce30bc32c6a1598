package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons for inbound frames that never reach a listener.
const (
	DropDecodeError  = "decode_error"
	DropNonRoutable  = "non_routable"
	DropNoListeners  = "no_listeners"
	DropNotConnected = "not_connected"
)

// Config configures the Prometheus collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "wsevent").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

type Option func(*Config)

func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Metrics holds the envelope and connection counters. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	framesSent       *prometheus.CounterVec
	framesReceived   *prometheus.CounterVec
	envelopesRouted  prometheus.Counter
	envelopesDropped *prometheus.CounterVec
	encodeErrors     prometheus.Counter
	listenerErrors   prometheus.Counter
	stateChanges     *prometheus.CounterVec
	activePeers      prometheus.Gauge
}

func New(opts ...Option) *Metrics {
	config := Config{
		Namespace: "wsevent",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	return &Metrics{
		framesSent:       counterVec("frames_sent_total", "Total number of envelopes written to the transport", "serializer"),
		framesReceived:   counterVec("frames_received_total", "Total number of frames read from the transport", "serializer"),
		envelopesRouted:  counter("envelopes_routed_total", "Total number of envelopes routed to at least one listener"),
		envelopesDropped: counterVec("envelopes_dropped_total", "Total number of inbound frames not delivered to any listener", "reason"),
		encodeErrors:     counter("encode_errors_total", "Total number of payloads the serializer rejected"),
		listenerErrors:   counter("listener_errors_total", "Total number of listener failures isolated during routing"),
		stateChanges:     counterVec("state_changes_total", "Total number of connection state transitions", "state"),
		activePeers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_peers",
			Help:        "Number of peers currently connected to the server",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (m *Metrics) FrameSent(serializer string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(serializer).Inc()
}

func (m *Metrics) FrameReceived(serializer string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(serializer).Inc()
}

func (m *Metrics) Routed() {
	if m == nil {
		return
	}
	m.envelopesRouted.Inc()
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.envelopesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) EncodeFailed() {
	if m == nil {
		return
	}
	m.encodeErrors.Inc()
}

func (m *Metrics) ListenerFailed() {
	if m == nil {
		return
	}
	m.listenerErrors.Inc()
}

func (m *Metrics) StateChanged(state string) {
	if m == nil {
		return
	}
	m.stateChanges.WithLabelValues(state).Inc()
}

func (m *Metrics) PeerConnected() {
	if m == nil {
		return
	}
	m.activePeers.Inc()
}

func (m *Metrics) PeerDisconnected() {
	if m == nil {
		return
	}
	m.activePeers.Dec()
}
