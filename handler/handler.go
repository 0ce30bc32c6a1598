package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/xdimtech/go-wsevent/pkg/metrics"
	"github.com/xdimtech/go-wsevent/pkg/protocol/envelope"
	"github.com/xdimtech/go-wsevent/pkg/utils"
)

const ShutdownTimeout = 5 * time.Second

// PeerListener handles a named event sent by one peer.
type PeerListener func(p *Peer, payload any) error

type serverListener struct {
	event string
	fn    PeerListener
}

// WebSocketServer accepts envelope-speaking peers. Listeners registered with
// On apply to every current and future peer.
type WebSocketServer struct {
	mu             sync.RWMutex
	peers          map[string]*Peer
	listeners      []serverListener
	onConnect      func(p *Peer)
	onDisconnect   func(p *Peer)
	requestCounter atomic.Int64

	path        string
	idleTimeout time.Duration
	codec       *envelope.Codec
	upgrader    *websocket.Upgrader
	router      chi.Router
	gatherer    prometheus.Gatherer
	log         *log.Entry
	metrics     *metrics.Metrics
}

type ServerOption func(*WebSocketServer)

// WithPath sets the websocket endpoint path (default "/ws").
func WithPath(path string) ServerOption {
	return func(s *WebSocketServer) {
		s.path = path
	}
}

func WithSerializer(ser envelope.Serializer) ServerOption {
	return func(s *WebSocketServer) {
		s.codec = envelope.NewCodec(ser)
	}
}

// WithIdleTimeout closes peers that send nothing (not even a ping) for d.
func WithIdleTimeout(d time.Duration) ServerOption {
	return func(s *WebSocketServer) {
		s.idleTimeout = d
	}
}

// WithMetrics records peer metrics in m and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) ServerOption {
	return func(s *WebSocketServer) {
		s.metrics = m
		s.gatherer = g
	}
}

func WithLogger(logger *log.Entry) ServerOption {
	return func(s *WebSocketServer) {
		s.log = logger
	}
}

func NewWebSocketServer(opts ...ServerOption) *WebSocketServer {
	s := &WebSocketServer{
		peers: make(map[string]*Peer),
		path:  "/ws",
		codec: envelope.NewCodec(envelope.JSON{}),
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log.WithField("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(s.path, s.RealTime)
	r.Get("/healthz", s.Health)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	s.router = r
	return s
}

func (s *WebSocketServer) Handler() http.Handler {
	return s.router
}

// Start serves on addr until ctx is done, then shuts down and closes all peers.
func (s *WebSocketServer) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	s.log.Infof("Server started at local: ws://127.0.0.1%s%s", addr, s.path)
	if ip, err := utils.GetLocalIP(); err == nil {
		s.log.Infof("Server started at public: ws://%s%s%s", ip, addr, s.path)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		for _, p := range s.Peers() {
			_ = p.Close()
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// On registers fn for event on every connected peer and on peers that connect later.
func (s *WebSocketServer) On(event string, fn PeerListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, serverListener{event: event, fn: fn})
	peers := lo.Values(s.peers)
	s.mu.Unlock()

	for _, p := range peers {
		bind(p, event, fn)
	}
}

func (s *WebSocketServer) OnConnect(fn func(p *Peer)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onConnect = fn
}

func (s *WebSocketServer) OnDisconnect(fn func(p *Peer)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onDisconnect = fn
}

func (s *WebSocketServer) Peers() []*Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Values(s.peers)
}

// Broadcast sends {event, payload} to every peer and returns the combined failures.
func (s *WebSocketServer) Broadcast(event string, payload any) error {
	var errs error
	for _, p := range s.Peers() {
		errs = multierr.Append(errs, p.Send(event, payload))
	}
	return errs
}

func (s *WebSocketServer) RealTime(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("Failed to upgrade to websockets: %v", err)
		return
	}
	s.requestCounter.Add(1)

	p := newPeer(conn, s.codec, s.idleTimeout, s.log, s.metrics)

	s.mu.Lock()
	s.peers[p.ID()] = p
	listeners := append([]serverListener(nil), s.listeners...)
	onConnect := s.onConnect
	s.mu.Unlock()
	s.metrics.PeerConnected()

	for _, l := range listeners {
		bind(p, l.event, l.fn)
	}
	p.log.Info("Peer connected")
	if onConnect != nil {
		onConnect(p)
	}

	_ = p.ReadLoop(r.Context())

	s.mu.Lock()
	delete(s.peers, p.ID())
	onDisconnect := s.onDisconnect
	s.mu.Unlock()
	s.metrics.PeerDisconnected()

	p.log.Info("Peer disconnected")
	if onDisconnect != nil {
		onDisconnect(p)
	}
}

func (s *WebSocketServer) Health(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	peers := len(s.peers)
	s.mu.RUnlock()

	utils.WriteResp(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"peers":    peers,
		"accepted": s.requestCounter.Load(),
	})
}

func bind(p *Peer, event string, fn PeerListener) {
	p.On(event, func(payload any) error {
		return fn(p, payload)
	})
}
