// Package media serves the telephony media-stream websocket. Each connection
// carries one call: start, a run of media frames, then stop.
package media

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voice-intake-bridge/internal/codec"
	"voice-intake-bridge/internal/observability/logging"
	"voice-intake-bridge/internal/observability/metrics"
	"voice-intake-bridge/internal/service/session"
)

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 64 * 1024
)

var errSinkClosed = errors.New("telephony connection closed")

// Opener creates sessions. Implemented by session.Manager.
type Opener interface {
	Open(ctx context.Context, start codec.Start, phone session.Sink) (*session.Session, error)
}

// Handler upgrades media-stream requests and drives their sessions.
type Handler struct {
	sessions Opener
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewHandler creates a media-stream handler.
func NewHandler(sessions Opener) *Handler {
	return &Handler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logging.WithComponent("media-stream"),
		metrics: metrics.DefaultMetrics,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Media stream upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("Media stream connected")
	h.serve(r.Context(), conn)
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn) {
	sink := &connSink{conn: conn}
	logger := h.logger

	var sess *session.Session
	defer func() {
		if sess != nil {
			sess.Close(session.ReasonTelephonyClosed)
			return
		}
		_ = sink.Close("")
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("Media stream closed unexpectedly")
			}
			return
		}

		ev, err := codec.DecodeInbound(raw)
		if err != nil {
			h.metrics.RecordDecodeError(string(codec.SourceTelephony))
			logger.Warn().Err(err).Msg("Dropping undecodable telephony frame")
			continue
		}

		switch e := ev.(type) {
		case codec.Start:
			if sess != nil {
				logger.Warn().Str("callId", e.CallID).Msg("Ignoring repeated start on an open stream")
				continue
			}
			logger = logging.WithCall(e.CallID, e.StreamToken).With().Str("component", "media-stream").Logger()

			s, err := h.sessions.Open(ctx, e, sink)
			if err != nil {
				logger.Error().Err(err).Msg("Session establishment failed")
				_ = sink.fail(websocket.CloseInternalServerErr, "session establishment failed")
				return
			}
			sess = s

		case codec.Media:
			if sess == nil {
				h.metrics.RecordCallerFrameDropped("no_session")
				continue
			}
			if err := sess.HandleMedia(e.Payload); err != nil {
				logger.Debug().Err(err).Msg("Caller frame dropped")
			}

		case codec.Stop:
			logger.Info().Msg("Media stream stopped")
			if sess != nil {
				sess.Close(session.ReasonStop)
			}
			return

		case codec.Other:
			logger.Debug().Str("event", e.Event).Msg("Ignoring telephony event")
		}
	}
}

// connSink serialises writes to the telephony websocket.
type connSink struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// Send writes one frame.
func (s *connSink) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close sends a normal close frame and closes the socket. Idempotent.
func (s *connSink) Close(reason string) error {
	return s.fail(websocket.CloseNormalClosure, reason)
}

func (s *connSink) fail(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	return s.conn.Close()
}
