// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/vrlink/internal/log"
	"github.com/ManuGH/vrlink/internal/metrics"
	"github.com/ManuGH/vrlink/internal/packet"
	"github.com/ManuGH/vrlink/internal/registry"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeWait = 2 * time.Second

// Link is one negotiated websocket client.
type Link struct {
	conn      *websocket.Conn
	client    string
	keepAlive time.Duration
	logger    zerolog.Logger
	closeOnce sync.Once
	closeErr  error
}

func newLink(conn *websocket.Conn, client string, keepAlive time.Duration, logger zerolog.Logger) *Link {
	return &Link{conn: conn, client: client, keepAlive: keepAlive, logger: logger}
}

// Client returns the hostname from the client hello.
func (l *Link) Client() string {
	return l.client
}

// Serve writes the session streams until the client leaves, a receiver is
// closed or ctx is canceled. Only Serve writes to the socket.
func (l *Link) Serve(ctx context.Context, rx registry.Receivers) error {
	logger := log.WithContext(ctx, l.logger)

	if err := l.writeJSON(Welcome{Type: TypeWelcome, SessionID: rx.SessionID}); err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}

	// Inbound messages are only drained to notice the client leaving.
	gone := make(chan error, 1)
	go func() {
		for {
			if _, _, err := l.conn.ReadMessage(); err != nil {
				gone <- err
				return
			}
		}
	}()

	keepAlive := time.NewTicker(l.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case p, ok := <-rx.Control:
			if !ok {
				return nil
			}
			if err := l.writeJSON(controlMessage(p)); err != nil {
				return fmt.Errorf("send control: %w", err)
			}
		case v, ok := <-rx.Video:
			if !ok {
				return nil
			}
			if err := l.write(websocket.BinaryMessage, EncodeVideo(v)); err != nil {
				return fmt.Errorf("send video: %w", err)
			}
			metrics.IncStreamSent("transport_video")
		case h, ok := <-rx.Haptics:
			if !ok {
				return nil
			}
			if err := l.writeJSON(hapticsMessage(h)); err != nil {
				return fmt.Errorf("send haptics: %w", err)
			}
		case <-keepAlive.C:
			if err := l.writeJSON(controlMessage(packet.ControlPacket{Kind: packet.ControlKeepAlive})); err != nil {
				return fmt.Errorf("send keep-alive: %w", err)
			}
		case err := <-gone:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Str(log.FieldEvent, "transport.client_closed").Msg("client closed the socket")
				return nil
			}
			return fmt.Errorf("client read: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Link) writeJSON(v any) error {
	_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return l.conn.WriteJSON(v)
}

func (l *Link) write(kind int, data []byte) error {
	_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return l.conn.WriteMessage(kind, data)
}

// Close closes the socket. It is safe to call more than once and
// concurrently with Serve.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.conn.Close()
	})
	return l.closeErr
}
