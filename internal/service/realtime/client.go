package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voice-intake-bridge/internal/codec"
)

// Config holds AI realtime connection settings.
type Config struct {
	Endpoint         string
	APIKey           string
	Model            string
	APIVersion       string
	Path             string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	SendBuffer       int
	DebugFrames      bool
}

// DefaultConfig returns defaults for everything but the endpoint and key.
func DefaultConfig() Config {
	return Config{
		Model:            "gpt-realtime",
		APIVersion:       "2025-10-01",
		Path:             "/voice-live/realtime",
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		SendBuffer:       256,
	}
}

// URL builds the websocket URL. http(s) endpoints are mapped to ws(s).
func (c Config) URL() (string, error) {
	if c.Endpoint == "" || c.APIKey == "" {
		return "", ErrNotConfigured
	}
	u, err := url.Parse(strings.TrimRight(c.Endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("%w: endpoint: %v", ErrNotConfigured, err)
	}
	switch u.Scheme {
	case "https", "wss", "":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("%w: unsupported endpoint scheme %q", ErrNotConfigured, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: endpoint has no host", ErrNotConfigured)
	}
	u.Path = strings.TrimRight(u.Path, "/") + c.Path
	q := u.Query()
	if c.APIVersion != "" {
		q.Set("api-version", c.APIVersion)
	}
	if c.Model != "" {
		q.Set("model", c.Model)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Client is a websocket Adapter. Outbound frames go through a buffered queue
// drained by one writer goroutine, so Send never races another writer.
type Client struct {
	cfg    Config
	url    string
	logger zerolog.Logger

	conn      *websocket.Conn
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	mu        sync.Mutex
}

// NewClient validates the configuration and returns an unopened client.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	u, err := cfg.URL()
	if err != nil {
		return nil, err
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultConfig().SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	return &Client{
		cfg:    cfg,
		url:    u,
		logger: logger,
		out:    make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
	}, nil
}

// NewFactory returns a Factory producing websocket clients.
func NewFactory(cfg Config, logger zerolog.Logger) Factory {
	return func(callID string) (Adapter, error) {
		return NewClient(cfg, logger.With().Str("callId", callID).Logger())
	}
}

// Start dials the endpoint and starts the read and write loops.
func (c *Client) Start(ctx context.Context, cb Callback) error {
	header := http.Header{}
	header.Set("api-key", c.cfg.APIKey)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("realtime dial: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("realtime dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	select {
	case <-c.done:
		_ = conn.Close()
		return ErrClosed
	default:
	}

	c.logger.Info().Str("model", c.cfg.Model).Msg("Realtime connection opened")

	go c.writeLoop()
	go c.readLoop(cb)
	return nil
}

// Send queues a frame for the writer goroutine.
func (c *Client) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.out <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close sends a close frame and closes the socket. Idempotent.
func (c *Client) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = cause
		conn := c.conn
		c.mu.Unlock()

		close(c.done)
		if conn == nil {
			return
		}
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	})
}

func (c *Client) writeLoop() {
	for {
		select {
		case frame := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Error().Err(err).Msg("Realtime write failed")
				c.shutdown(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) readLoop(cb Callback) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			cause := c.closeErr
			c.mu.Unlock()

			select {
			case <-c.done:
				// local close, or the writer already failed
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					cause = err
				}
			}
			c.shutdown(cause)
			if cause != nil {
				c.logger.Warn().Err(cause).Msg("Realtime connection lost")
			} else {
				c.logger.Info().Msg("Realtime connection closed")
			}
			cb.OnClose(cause)
			return
		}

		if c.cfg.DebugFrames {
			c.logger.Trace().Bytes("frame", data).Msg("Realtime frame")
		}

		ev, err := codec.DecodeOutbound(data)
		if err != nil {
			cb.OnDecodeError(err)
			continue
		}
		cb.OnEvent(ev)
	}
}
