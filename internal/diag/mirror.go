// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package diag

import (
	"errors"
	"net/http"
	"time"

	"github.com/ManuGH/vrlink/internal/log"
	"github.com/ManuGH/vrlink/internal/metrics"
	"github.com/ManuGH/vrlink/internal/registry"
	"github.com/gorilla/websocket"
)

const mirrorWriteWait = 2 * time.Second

// handleMirror streams the installed session's mirror payloads as binary
// websocket messages until the session ends or the client goes away.
func (s *Server) handleMirror(w http.ResponseWriter, r *http.Request) {
	reqID := log.RequestIDFromContext(r.Context())
	sub, err := s.deps.Registry.SubscribeMirror(s.deps.MirrorBuffer)
	switch {
	case errors.Is(err, registry.ErrNoSession), errors.Is(err, registry.ErrMirrorClosed):
		writeError(w, http.StatusConflict, "no_session", reqID)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "subscribe_failed", reqID)
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client.
		return
	}
	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	defer s.untrack(conn)

	metrics.MirrorClients.Inc()
	defer metrics.MirrorClients.Dec()

	logger := log.WithComponentFromContext(r.Context(), "diag").With().
		Str("remote_addr", r.RemoteAddr).
		Logger()
	logger.Info().Str(log.FieldEvent, "mirror.connected").Msg("mirror client connected")

	// Reader detects the client closing; payloads only flow one way.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		_ = conn.Close()
		<-gone
		logger.Info().Str(log.FieldEvent, "mirror.disconnected").Msg("mirror client disconnected")
	}()

	for {
		select {
		case payload, ok := <-sub.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					time.Now().Add(mirrorWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(mirrorWriteWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				logger.Debug().Err(err).Msg("mirror write failed")
				return
			}
		case <-gone:
			return
		}
	}
}
