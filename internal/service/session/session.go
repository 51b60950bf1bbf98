package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voice-intake-bridge/internal/codec"
	"voice-intake-bridge/internal/models"
	"voice-intake-bridge/internal/observability/logging"
	"voice-intake-bridge/internal/observability/metrics"
	"voice-intake-bridge/internal/service/finalize"
	"voice-intake-bridge/internal/service/handoff"
	"voice-intake-bridge/internal/service/realtime"
	"voice-intake-bridge/internal/service/transcript"
)

// Close reasons, recorded in the recording metadata and metrics.
const (
	ReasonStop               = "stop"
	ReasonTelephonyClosed    = "telephony_closed"
	ReasonAIClosed           = "ai_closed"
	ReasonNegotiationTimeout = "negotiation_timeout"
	ReasonNegotiationFailed  = "negotiation_failed"
	ReasonReplaced           = "replaced"
	ReasonShutdown           = "shutdown"
)

// ErrEstablishmentAborted is returned by Open when the session was closed,
// typically by the negotiation timeout, while the AI connection was opening.
var ErrEstablishmentAborted = errors.New("session closed while connecting")

// publishBuffer bounds live transcript events waiting for the publisher.
const publishBuffer = 64

// Sink is the telephony side of a session.
type Sink interface {
	// Send writes one outbound frame. Safe for concurrent use.
	Send(frame []byte) error
	// Close closes the telephony connection. Idempotent.
	Close(reason string) error
}

// CallInfo identifies a call to collaborators.
type CallInfo struct {
	CallID       string
	StreamToken  string
	CallerNumber string
}

// Negotiator builds the frames sent once the AI connection announces its
// session: the session configuration followed by the greeting.
type Negotiator interface {
	Frames(ctx context.Context, call CallInfo) ([][]byte, error)
}

// Finalizer persists a closed call.
type Finalizer interface {
	Finalize(ctx context.Context, call finalize.Call) error
}

// TranscriptPublisher receives live transcript events.
type TranscriptPublisher interface {
	PublishPartial(ctx context.Context, key string, event any) error
	PublishFinal(ctx context.Context, key string, event any) error
}

// Session bridges one telephony media stream to one AI realtime connection.
//
// Caller audio arrives through HandleMedia; AI events arrive through the
// realtime.Callback methods on the adapter's read goroutine. Both paths take
// mu, so lifecycle transitions and the pending queue flush are atomic with
// respect to caller audio.
type Session struct {
	id           string
	callID       string
	streamToken  string
	callerNumber string
	startedAt    time.Time

	lifecycle  *Lifecycle
	ai         realtime.Adapter
	phone      Sink
	transcript *transcript.Accumulator

	negotiator      Negotiator
	finalizer       Finalizer
	publisher       TranscriptPublisher
	finalizeTimeout time.Duration
	negotiationTTL  time.Duration
	onClosed        func(*Session)

	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu             sync.Mutex
	pending        []string
	handoff        handoff.Record
	responseActive bool
	negotiated     bool
	started        bool
	frames         int
	closeReason    string
	timer          *time.Timer

	events chan models.TranscriptEvent
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type options struct {
	negotiator           Negotiator
	finalizer            Finalizer
	publisher            TranscriptPublisher
	negotiationTimeout   time.Duration
	finalizeTimeout      time.Duration
	transcriptMaxEntries int
	onClosed             func(*Session)
}

func newSession(start codec.Start, ai realtime.Adapter, phone Sink, opts options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()

	if opts.finalizeTimeout <= 0 {
		opts.finalizeTimeout = 30 * time.Second
	}

	return &Session{
		id:              id,
		callID:          start.CallID,
		streamToken:     start.StreamToken,
		callerNumber:    start.CallerNumber,
		startedAt:       time.Now().UTC(),
		lifecycle:       NewLifecycle(),
		ai:              ai,
		phone:           phone,
		transcript:      transcript.New(opts.transcriptMaxEntries),
		negotiator:      opts.negotiator,
		finalizer:       opts.finalizer,
		publisher:       opts.publisher,
		finalizeTimeout: opts.finalizeTimeout,
		negotiationTTL:  opts.negotiationTimeout,
		onClosed:        opts.onClosed,
		logger:          logging.WithSession(start.CallID, start.StreamToken, id),
		metrics:         metrics.DefaultMetrics,
		handoff:         handoff.NewRecord(start.CallerNumber),
		events:          make(chan models.TranscriptEvent, publishBuffer),
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
	}
}

// start opens the AI connection and arms the negotiation timeout. A timeout
// that fires while the connection is still being opened cancels the dial and
// the session is discarded, like any other establishment failure.
func (s *Session) start() error {
	if s.publisher != nil {
		go s.publishLoop()
	}

	if s.negotiationTTL > 0 {
		s.mu.Lock()
		s.timer = time.AfterFunc(s.negotiationTTL, s.negotiationExpired)
		s.mu.Unlock()
	}

	err := s.ai.Start(s.ctx, s)

	s.mu.Lock()
	if err == nil && s.lifecycle.IsClosed() {
		err = ErrSessionClosed
	}
	if err == nil {
		s.started = true
	}
	s.mu.Unlock()

	if err != nil {
		aborted := s.ctx.Err() != nil || errors.Is(err, ErrSessionClosed)
		s.shutdown("establishment_failed", nil)
		<-s.done
		if aborted {
			err = fmt.Errorf("%w: %w", ErrEstablishmentAborted, err)
		}
		return err
	}

	s.metrics.RecordSessionStart()
	s.logger.Info().Str("callerNumber", s.callerNumber).Msg("Session started, negotiating")
	return nil
}

// discard tears down a session that never finished starting. The telephony
// connection is left for the caller to report the failure and nothing is
// persisted.
func (s *Session) discard(reason string) {
	defer close(s.done)

	s.logger.Warn().Str("reason", reason).Msg("Session discarded before start")
	s.cancel()
	if err := s.ai.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("AI connection close")
	}
	_ = s.lifecycle.MarkClosed()
}

// ID returns the session instance ID.
func (s *Session) ID() string { return s.id }

// CallID returns the telephony call ID.
func (s *Session) CallID() string { return s.callID }

// StreamToken returns the media stream ID.
func (s *Session) StreamToken() string { return s.streamToken }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.lifecycle.State() }

// Done is closed once teardown, including finalization, has completed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Handoff returns a copy of the current handoff record.
func (s *Session) Handoff() handoff.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handoff
}

// Transcript returns a snapshot of the transcript.
func (s *Session) Transcript() []transcript.Entry {
	return s.transcript.Snapshot()
}

// AudioFrames returns the number of caller frames received.
func (s *Session) AudioFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// PendingFrames returns the number of caller frames waiting for the AI
// session to become ready.
func (s *Session) PendingFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// HandleMedia accepts one caller audio frame. While negotiating the frame is
// queued; once ready it is forwarded immediately.
func (s *Session) HandleMedia(payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.lifecycle.State() {
	case StateNegotiating:
		s.frames++
		s.pending = append(s.pending, payload)
		s.metrics.RecordCallerFrame(true)
		return nil
	case StateReady:
		s.frames++
		s.metrics.RecordCallerFrame(false)
		s.forwardLocked(payload)
		return nil
	default:
		s.metrics.RecordCallerFrameDropped("closed")
		return ErrSessionClosed
	}
}

// forwardLocked sends a caller frame to the AI connection. Callers hold mu.
func (s *Session) forwardLocked(payload string) {
	if err := s.ai.Send(s.ctx, codec.EncodeAudioIn(payload)); err != nil {
		s.metrics.RecordCallerFrameDropped("send_failed")
		s.logger.Debug().Err(err).Msg("Caller frame not forwarded")
	}
}

// Close starts teardown (if it has not started) and waits for it to finish.
func (s *Session) Close(reason string) {
	s.shutdown(reason, nil)
	<-s.done
}

// shutdown moves the session to CLOSING and runs teardown on the calling
// goroutine. If only is set, the transition happens only when only accepts
// the current state. Returns true if this call started teardown.
func (s *Session) shutdown(reason string, only func(State) bool) bool {
	s.mu.Lock()
	if only != nil && !only(s.lifecycle.State()) {
		s.mu.Unlock()
		return false
	}
	prev, ok := s.lifecycle.BeginClose()
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.closeReason = reason
	dropped := len(s.pending)
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
	}
	started := s.started
	s.mu.Unlock()

	if !started {
		s.discard(reason)
		return true
	}
	s.teardown(prev, reason, dropped)
	return true
}

func (s *Session) teardown(prev State, reason string, dropped int) {
	defer close(s.done)

	s.logger.Info().
		Str("reason", reason).
		Str("previousState", prev.String()).
		Int("droppedPending", dropped).
		Msg("Session closing")

	s.cancel()
	if err := s.ai.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("AI connection close")
	}
	if err := s.phone.Close(reason); err != nil {
		s.logger.Debug().Err(err).Msg("Telephony connection close")
	}

	completedAt := time.Now().UTC()
	s.mu.Lock()
	call := finalize.Call{
		CallID:      s.callID,
		StreamToken: s.streamToken,
		SessionID:   s.id,
		CloseReason: reason,
		StartedAt:   s.startedAt,
		CompletedAt: completedAt,
		Handoff:     s.handoff,
		AudioFrames: s.frames,
	}
	s.mu.Unlock()
	call.Transcript = s.transcript.Snapshot()

	if s.finalizer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.finalizeTimeout)
		if err := s.finalizer.Finalize(ctx, call); err != nil {
			s.logger.Error().Err(err).Msg("Call finalization incomplete")
		}
		cancel()
	}

	if err := s.lifecycle.MarkClosed(); err != nil {
		s.logger.Warn().Err(err).Msg("Unexpected lifecycle state after finalization")
	}
	s.metrics.RecordSessionEnd(reason, completedAt.Sub(s.startedAt).Seconds())

	if s.onClosed != nil {
		s.onClosed(s)
	}

	s.logger.Info().
		Str("reason", reason).
		Int("audioFrames", call.AudioFrames).
		Int("transcriptEntries", len(call.Transcript)).
		Msg("Session closed")
}

func (s *Session) negotiationExpired() {
	started := s.shutdown(ReasonNegotiationTimeout, func(st State) bool {
		return st == StateNegotiating
	})
	if started {
		s.metrics.RecordNegotiationFailure("timeout")
	}
}

// --- realtime.Callback implementation ---

// OnEvent dispatches one decoded AI event.
func (s *Session) OnEvent(ev codec.AIEvent) {
	if s.lifecycle.IsClosed() {
		return
	}

	switch e := ev.(type) {
	case codec.SessionNegotiated:
		s.onNegotiated(e)
	case codec.SessionReady:
		s.onReady(e)
	case codec.SpeechStarted:
		s.onSpeechStarted()
	case codec.SpeechStopped:
		s.logger.Debug().Msg("Caller speech stopped")
	case codec.ResponseCreated:
		s.mu.Lock()
		s.responseActive = true
		s.mu.Unlock()
	case codec.AudioChunk:
		s.onAudio(e)
	case codec.AudioDone:
		s.logger.Debug().Msg("Assistant audio done")
	case codec.ResponseDone:
		s.mu.Lock()
		s.responseActive = false
		s.mu.Unlock()
		s.logger.Debug().Str("status", e.Status).Msg("Response done")
	case codec.TranscriptChunk:
		s.enqueueEvent(models.EventTranscriptPartial, e.Role, e.Text)
		s.scanHandoff(e.Text)
	case codec.TranscriptFinal:
		s.onTranscriptFinal(e)
	case codec.Error:
		s.metrics.RecordUpstreamError()
		s.logger.Warn().Str("detail", e.Detail).Msg("AI connection reported an error")
	case codec.Unknown:
		s.metrics.RecordUnknownEvent(e.Type)
		s.logger.Trace().Str("type", e.Type).Msg("Ignoring AI event")
	}
}

// OnDecodeError drops an undecodable AI frame.
func (s *Session) OnDecodeError(err error) {
	s.metrics.RecordDecodeError(string(codec.SourceRealtime))
	s.logger.Warn().Err(err).Msg("Dropping undecodable AI frame")
}

// OnClose closes the session when the AI transport goes away.
func (s *Session) OnClose(err error) {
	if err != nil {
		s.logger.Warn().Err(err).Msg("AI connection closed")
	}
	s.shutdown(ReasonAIClosed, nil)
}

func (s *Session) onNegotiated(e codec.SessionNegotiated) {
	s.mu.Lock()
	if s.negotiated {
		s.mu.Unlock()
		return
	}
	s.negotiated = true
	s.mu.Unlock()

	s.logger.Info().Str("aiSessionId", e.SessionID).Msg("AI session created, sending configuration")
	go s.negotiate()
}

func (s *Session) negotiate() {
	if s.negotiator == nil {
		return
	}

	frames, err := s.negotiator.Frames(s.ctx, CallInfo{
		CallID:       s.callID,
		StreamToken:  s.streamToken,
		CallerNumber: s.callerNumber,
	})
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Error().Err(err).Msg("Failed to build session configuration")
		if s.shutdown(ReasonNegotiationFailed, nil) {
			s.metrics.RecordNegotiationFailure("build")
		}
		return
	}

	for _, f := range frames {
		if err := s.ai.Send(s.ctx, f); err != nil {
			if !errors.Is(err, realtime.ErrClosed) && s.ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("Failed to send session configuration")
			}
			return
		}
	}
}

func (s *Session) onReady(e codec.SessionReady) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lifecycle.MarkReady(); err != nil {
		s.logger.Debug().Err(err).Msg("Ignoring session ready signal")
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}

	flushed := len(s.pending)
	for _, payload := range s.pending {
		s.forwardLocked(payload)
	}
	s.pending = nil

	s.metrics.RecordFlush(flushed)
	s.metrics.RecordNegotiated(time.Since(s.startedAt).Seconds())
	s.logger.Info().
		Str("aiSessionId", e.SessionID).
		Int("flushedFrames", flushed).
		Msg("AI session ready")
}

func (s *Session) onSpeechStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.responseActive {
		s.logger.Debug().Msg("Caller speech started")
		return
	}
	s.responseActive = false

	if err := s.ai.Send(s.ctx, codec.EncodeCancel()); err != nil {
		s.logger.Debug().Err(err).Msg("Barge-in cancel not sent")
		return
	}
	s.metrics.RecordBargeIn()
	s.logger.Info().Msg("Caller barged in, cancelling response")
}

func (s *Session) onAudio(e codec.AudioChunk) {
	s.mu.Lock()
	s.responseActive = true
	s.mu.Unlock()

	if err := s.phone.Send(codec.EncodeAudioOut(e.Payload, s.streamToken)); err != nil {
		s.logger.Debug().Err(err).Msg("Assistant frame not delivered")
		return
	}
	s.metrics.RecordAssistantFrame()
}

func (s *Session) onTranscriptFinal(e codec.TranscriptFinal) {
	if s.transcript.Append(e.Role, e.Text, time.Now().UTC()) {
		s.metrics.RecordTranscriptEntry(string(e.Role))
	} else {
		s.logger.Warn().Int("dropped", s.transcript.Dropped()).Msg("Transcript bound reached, entry discarded")
	}
	s.logger.Info().Str("role", string(e.Role)).Str("text", e.Text).Msg("Transcript")

	s.enqueueEvent(models.EventTranscriptFinal, e.Role, e.Text)
	s.scanHandoff(e.Text)
}

// scanHandoff merges any handoff record found in text. A malformed record
// leaves the current one untouched.
func (s *Session) scanHandoff(text string) {
	upd, err := handoff.Extract(text)
	if err != nil {
		s.metrics.RecordHandoff("malformed")
		s.logger.Warn().Err(err).Msg("Ignoring malformed intake record")
		return
	}
	if upd == nil {
		return
	}

	s.mu.Lock()
	s.handoff.Apply(upd)
	rec := s.handoff
	s.mu.Unlock()

	s.metrics.RecordHandoff("parsed")
	s.logger.Info().Interface("intake", rec).Msg("Intake record updated")
}

func (s *Session) enqueueEvent(eventType string, role transcript.Role, text string) {
	if s.publisher == nil {
		return
	}
	ev := models.TranscriptEvent{
		EventType:   eventType,
		CallID:      s.callID,
		StreamToken: s.streamToken,
		SessionID:   s.id,
		Role:        string(role),
		Text:        text,
		Timestamp:   time.Now().UnixMilli(),
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn().Str("eventType", eventType).Msg("Transcript event buffer full, dropping event")
	}
}

// publishLoop delivers transcript events in order until the session ends.
func (s *Session) publishLoop() {
	for {
		select {
		case ev := <-s.events:
			s.publish(ev)
		case <-s.ctx.Done():
			for {
				select {
				case ev := <-s.events:
					s.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *Session) publish(ev models.TranscriptEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	if ev.EventType == models.EventTranscriptFinal {
		err = s.publisher.PublishFinal(ctx, s.callID, ev)
	} else {
		err = s.publisher.PublishPartial(ctx, s.callID, ev)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("eventType", ev.EventType).Msg("Failed to publish transcript event")
	}
}
