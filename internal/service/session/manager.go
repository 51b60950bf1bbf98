package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"voice-intake-bridge/internal/codec"
	"voice-intake-bridge/internal/observability/logging"
	"voice-intake-bridge/internal/observability/metrics"
	"voice-intake-bridge/internal/service/realtime"
)

// ErrShuttingDown is returned by Open once Shutdown has been called.
var ErrShuttingDown = errors.New("session manager is shutting down")

// Config holds per-session limits.
type Config struct {
	NegotiationTimeout   time.Duration // 0 disables
	FinalizeTimeout      time.Duration
	TranscriptMaxEntries int // 0 is unbounded
}

// DefaultConfig returns the default session limits.
func DefaultConfig() Config {
	return Config{
		NegotiationTimeout: 15 * time.Second,
		FinalizeTimeout:    30 * time.Second,
	}
}

// Manager creates sessions and owns the registry they live in.
type Manager struct {
	cfg        Config
	registry   *Registry
	factory    realtime.Factory
	negotiator Negotiator
	finalizer  Finalizer
	publisher  TranscriptPublisher
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	closing    atomic.Bool
}

// NewManager creates a manager. publisher may be nil.
func NewManager(cfg Config, factory realtime.Factory, negotiator Negotiator, finalizer Finalizer, publisher TranscriptPublisher) *Manager {
	return &Manager{
		cfg:        cfg,
		registry:   NewRegistry(),
		factory:    factory,
		negotiator: negotiator,
		finalizer:  finalizer,
		publisher:  publisher,
		metrics:    metrics.DefaultMetrics,
		logger:     logging.WithComponent("session-manager"),
	}
}

// Open creates, registers and starts a session for a stream start event.
// On error nothing is registered and phone is left open for the caller to
// report the failure.
func (m *Manager) Open(ctx context.Context, start codec.Start, phone Sink) (*Session, error) {
	if m.closing.Load() {
		return nil, ErrShuttingDown
	}
	if start.CallID == "" {
		return nil, fmt.Errorf("open session: %w", codec.ErrMissingField)
	}

	ai, err := m.factory(start.CallID)
	if err != nil {
		m.metrics.RecordNegotiationFailure("connect")
		return nil, fmt.Errorf("open session %s: %w", start.CallID, err)
	}

	s := newSession(start, ai, phone, options{
		negotiator:           m.negotiator,
		finalizer:            m.finalizer,
		publisher:            m.publisher,
		negotiationTimeout:   m.cfg.NegotiationTimeout,
		finalizeTimeout:      m.cfg.FinalizeTimeout,
		transcriptMaxEntries: m.cfg.TranscriptMaxEntries,
		onClosed:             m.release,
	})

	if prev := m.registry.Put(start.CallID, s); prev != nil {
		m.logger.Warn().
			Str("callId", start.CallID).
			Str("previousSessionId", prev.ID()).
			Msg("Call ID re-attached, replacing session")
		go prev.Close(ReasonReplaced)
	}
	m.metrics.SetActiveSessions(m.registry.Count())

	if err := s.start(); err != nil {
		m.registry.CompareAndRemove(start.CallID, s)
		m.metrics.SetActiveSessions(m.registry.Count())
		m.metrics.RecordNegotiationFailure("connect")
		return nil, fmt.Errorf("open session %s: %w", start.CallID, err)
	}
	return s, nil
}

func (m *Manager) release(s *Session) {
	m.registry.CompareAndRemove(s.CallID(), s)
	m.metrics.SetActiveSessions(m.registry.Count())
}

// Get returns the live session for callID.
func (m *Manager) Get(callID string) (*Session, bool) {
	return m.registry.Get(callID)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.registry.Count()
}

// Accepting reports whether new sessions can be opened.
func (m *Manager) Accepting() bool {
	return !m.closing.Load()
}

// Shutdown closes every live session and waits for their finalization, or
// for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closing.Store(true)

	sessions := m.registry.Snapshot()
	m.logger.Info().Int("sessions", len(sessions)).Msg("Closing live sessions")

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close(ReasonShutdown)
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session shutdown: %w", ctx.Err())
	}
}
