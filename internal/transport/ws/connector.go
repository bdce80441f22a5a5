// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ws is a websocket reference transport for the handshake loop.
// Clients connect to the session path, send a Hello and, once accepted,
// receive control and haptics as JSON text messages and video as binary
// messages.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/vrlink/internal/connection"
	"github.com/ManuGH/vrlink/internal/log"
	"github.com/ManuGH/vrlink/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Defaults
const (
	DefaultPath              = "/session"
	DefaultNegotiateTimeout  = 5 * time.Second
	DefaultKeepAliveInterval = 2 * time.Second
	handoffTimeout           = time.Second
)

var (
	// ErrVersionMismatch is a recoverable negotiation failure.
	ErrVersionMismatch = errors.New("client protocol version mismatch")

	// ErrBadHello is returned when the first client message is not a hello.
	ErrBadHello = errors.New("malformed client hello")

	// ErrConnectorClosed is returned by Connect after Close.
	ErrConnectorClosed = errors.New("connector closed")
)

// Config configures the Connector.
type Config struct {
	Logger     zerolog.Logger
	ListenAddr string

	// Path defaults to DefaultPath
	Path string

	// ProtocolVersion defaults to version.ProtocolVersion
	ProtocolVersion string

	NegotiateTimeout  time.Duration
	KeepAliveInterval time.Duration
}

// Connector accepts websocket clients on one long-lived listener and hands
// them out one per Connect call. Clients arriving while nobody waits are
// turned away with 409.
type Connector struct {
	cfg      Config
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	offers   chan *websocket.Conn
	waiting  atomic.Int32

	mu     sync.Mutex
	srv    *http.Server
	ln     net.Listener
	closed bool
}

// NewConnector creates a connector. It listens on the first Connect.
func NewConnector(cfg Config) *Connector {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = version.ProtocolVersion
	}
	if cfg.NegotiateTimeout <= 0 {
		cfg.NegotiateTimeout = DefaultNegotiateTimeout
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = DefaultKeepAliveInterval
	}
	return &Connector{
		cfg:    cfg,
		logger: cfg.Logger.With().Str(log.FieldComponent, "transport").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 << 10,
			WriteBufferSize: 256 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		offers: make(chan *websocket.Conn),
	}
}

// Addr returns the bound address, or "" before the first Connect.
func (c *Connector) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln == nil {
		return ""
	}
	return c.ln.Addr().String()
}

func (c *Connector) listen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectorClosed
	}
	if c.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", c.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", c.cfg.ListenAddr, err)
	}

	r := chi.NewRouter()
	r.Get(c.cfg.Path, c.handleUpgrade)
	c.srv = &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	c.ln = ln

	go func() {
		if err := c.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error().Err(err).Str(log.FieldEvent, "transport.serve_failed").Msg("transport listener failed")
		}
	}()
	c.logger.Info().
		Str(log.FieldAddr, ln.Addr().String()).
		Str(log.FieldEvent, "transport.listening").
		Msg("waiting for clients")
	return nil
}

func (c *Connector) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if c.waiting.Load() == 0 {
		http.Error(w, "session in progress", http.StatusConflict)
		return
	}
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	timer := time.NewTimer(handoffTimeout)
	defer timer.Stop()
	select {
	case c.offers <- conn:
	case <-timer.C:
		_ = conn.Close()
	}
}

// Connect waits for the next client and negotiates it. A listen failure is
// fatal; a bad or mismatched hello is retried by the caller.
func (c *Connector) Connect(ctx context.Context) (connection.Link, error) {
	c.waiting.Add(1)
	if err := c.listen(); err != nil {
		c.waiting.Add(-1)
		return nil, connection.Fatal(err)
	}

	var conn *websocket.Conn
	select {
	case conn = <-c.offers:
	case <-ctx.Done():
	}
	c.waiting.Add(-1)
	if conn == nil {
		return nil, ctx.Err()
	}

	hello, err := c.negotiate(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.logger.Info().
		Str(log.FieldClient, hello.Hostname).
		Str("remote_addr", conn.RemoteAddr().String()).
		Str(log.FieldEvent, "transport.negotiated").
		Msg("client negotiated")
	return newLink(conn, hello.Hostname, c.cfg.KeepAliveInterval, c.logger), nil
}

func (c *Connector) negotiate(conn *websocket.Conn) (Hello, error) {
	var hello Hello
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.NegotiateTimeout))
	if err := conn.ReadJSON(&hello); err != nil {
		return hello, fmt.Errorf("%w: %w", ErrBadHello, err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	if hello.Type != TypeHello {
		c.reject(conn, "expected hello")
		return hello, fmt.Errorf("%w: type %q", ErrBadHello, hello.Type)
	}
	if hello.Version != c.cfg.ProtocolVersion {
		c.reject(conn, "unsupported version")
		return hello, fmt.Errorf("%w: got %q, want %q", ErrVersionMismatch, hello.Version, c.cfg.ProtocolVersion)
	}
	return hello, nil
}

func (c *Connector) reject(conn *websocket.Conn, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(Reject{Type: TypeReject, Reason: reason})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(writeWait))
}

// Close stops the listener. Established links are closed by their owner.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.srv == nil {
		return nil
	}
	return c.srv.Close()
}
