// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package diag serves the local diagnostics surface: metrics, probes,
// statistics, the video mirror and the session and driver triggers.
package diag

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/vrlink/internal/health"
	"github.com/ManuGH/vrlink/internal/lifecycle"
	"github.com/ManuGH/vrlink/internal/log"
	"github.com/ManuGH/vrlink/internal/registry"
	"github.com/ManuGH/vrlink/internal/stats"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// DefaultMirrorLimit is the websocket upgrade budget per client IP and minute.
const DefaultMirrorLimit = 4

var (
	ErrMissingRegistry = errors.New("diag: registry is required")
	ErrMissingLiveness = errors.New("diag: liveness flag is required")
	ErrMissingNotifier = errors.New("diag: disconnect notifier is required")
)

// DriverControl starts the background driver sequences.
type DriverControl interface {
	NotifyShutdownDriver() <-chan struct{}
	NotifyRestartDriver() <-chan struct{}
	NotifyApplicationUpdate() <-chan struct{}
}

// Deps contains dependencies required by the Server.
type Deps struct {
	Logger     zerolog.Logger
	Addr       string
	Version    string
	Registry   *registry.Registry
	Stats      *stats.Slot
	Liveness   *atomic.Bool
	Disconnect *lifecycle.Notifier

	// State reports the coordinator state; optional
	State func() lifecycle.State

	// Driver enables the /driver routes; optional
	Driver DriverControl

	// NativeLibrary is probed by the readiness check when set
	NativeLibrary string

	MirrorLimit  int
	MirrorBuffer int
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Registry == nil {
		return ErrMissingRegistry
	}
	if d.Liveness == nil {
		return ErrMissingLiveness
	}
	if d.Disconnect == nil {
		return ErrMissingNotifier
	}
	return nil
}

// Server is the diagnostics HTTP server. Close is idempotent and also drops
// hijacked mirror connections, so it can serve as the front-end window the
// lifecycle coordinator closes.
type Server struct {
	deps     Deps
	logger   zerolog.Logger
	handler  http.Handler
	health   *health.Manager
	upgrader websocket.Upgrader
	srv      *http.Server

	mu     sync.Mutex
	ln     net.Listener
	conns  map[*websocket.Conn]struct{}
	closed bool
}

// New builds the router and probes. It does not listen.
func New(deps Deps) (*Server, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if deps.MirrorLimit <= 0 {
		deps.MirrorLimit = DefaultMirrorLimit
	}
	if deps.MirrorBuffer <= 0 {
		deps.MirrorBuffer = registry.DefaultMirrorBuffer
	}

	s := &Server{
		deps:   deps,
		logger: deps.Logger.With().Str(log.FieldComponent, "diag").Logger(),
		conns:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 << 10,
			// bound to loopback by default
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.health = s.newHealth()
	s.handler = s.routes()
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *Server) newHealth() *health.Manager {
	m := health.NewManager(s.deps.Version)
	m.RegisterChecker(health.NewLivenessChecker(s.deps.Liveness))
	m.RegisterChecker(health.NewSessionChecker(s.deps.Registry.Active))
	if s.deps.NativeLibrary != "" {
		m.RegisterChecker(health.NewFileChecker("native_library", s.deps.NativeLibrary))
	}
	if s.deps.State != nil {
		state := s.deps.State
		m.RegisterChecker(health.NewFunc("lifecycle", func(context.Context) health.CheckResult {
			st := state()
			if st != lifecycle.StateRunning {
				return health.CheckResult{Status: health.StatusUnhealthy, Message: st.String()}
			}
			return health.CheckResult{Status: health.StatusHealthy, Message: st.String()}
		}))
	}
	return m
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(observe)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Get("/stats", s.handleStats)
	r.Post("/session/disconnect", s.handleDisconnect)
	r.With(mirrorRateLimit(s.deps.MirrorLimit)).Get("/mirror", s.handleMirror)

	if s.deps.Driver != nil {
		r.Route("/driver", func(r chi.Router) {
			r.Post("/shutdown", s.driverAction("shutdown", s.deps.Driver.NotifyShutdownDriver))
			r.Post("/restart", s.driverAction("restart", s.deps.Driver.NotifyRestartDriver))
			r.Post("/update", s.driverAction("update", s.deps.Driver.NotifyApplicationUpdate))
		})
	}

	return tracing("vrlink-diag")(r)
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the bound address, or "" before Serve listened.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Serve listens on the configured address and blocks until ctx is done or
// Close is called. A closed server returns nil.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	ln, err := net.Listen("tcp", s.deps.Addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen diagnostics on %s: %w", s.deps.Addr, err)
	}
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info().
		Str(log.FieldAddr, ln.Addr().String()).
		Str(log.FieldEvent, "diag.listening").
		Msg("diagnostics server listening")

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve diagnostics: %w", err)
	}
	return nil
}

// Close stops the listener and drops every open connection.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := s.conns
	s.conns = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	err := s.srv.Close()
	for c := range conns {
		_ = c.Close()
	}
	s.logger.Info().Str(log.FieldEvent, "diag.closed").Msg("diagnostics server closed")
	return err
}

func (s *Server) track(c *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

type statsResponse struct {
	Active            bool   `json:"active"`
	VideoPackets      uint64 `json:"videoPackets"`
	VideoBytes        uint64 `json:"videoBytes"`
	LastPresentNs     int64  `json:"lastPresentNs"`
	LastComposedNs    int64  `json:"lastComposedNs"`
	LastEncodedNs     int64  `json:"lastEncodedNs"`
	FECFailures       uint64 `json:"fecFailures"`
	LastFECPercentage uint32 `json:"lastFecPercentage"`
	Since             string `json:"since,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Stats == nil {
		writeJSON(w, http.StatusOK, statsResponse{})
		return
	}
	snap, ok := s.deps.Stats.Snapshot()
	if !ok {
		writeJSON(w, http.StatusOK, statsResponse{})
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Active:            true,
		VideoPackets:      snap.VideoPackets,
		VideoBytes:        snap.VideoBytes,
		LastPresentNs:     snap.LastPresent.Nanoseconds(),
		LastComposedNs:    snap.LastComposed.Nanoseconds(),
		LastEncodedNs:     snap.LastEncoded.Nanoseconds(),
		FECFailures:       snap.FECFailures,
		LastFECPercentage: snap.LastFECPercentage,
		Since:             snap.Since.UTC().Format(time.RFC3339),
	})
}

type disconnectResponse struct {
	SessionID string `json:"sessionId,omitempty"`
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id, ok := s.deps.Registry.Active()
	if !ok {
		writeError(w, http.StatusConflict, "no_session", log.RequestIDFromContext(r.Context()))
		return
	}
	s.deps.Disconnect.NotifyWaiters()
	logger := log.WithComponentFromContext(r.Context(), "diag")
	logger.Info().
		Str(log.FieldSessionID, id).
		Str(log.FieldEvent, "diag.disconnect_requested").
		Msg("session disconnect requested")
	writeJSON(w, http.StatusAccepted, disconnectResponse{SessionID: id})
}

type actionResponse struct {
	Action string `json:"action"`
}

// driverAction fires a driver sequence and answers before it completes.
func (s *Server) driverAction(name string, start func() <-chan struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "diag")
		logger.Info().
			Str("action", name).
			Str(log.FieldEvent, "diag.driver_action").
			Msg("driver action requested")
		_ = start()
		writeJSON(w, http.StatusAccepted, actionResponse{Action: name})
	}
}
