// Package finalize hands the artifacts of a closed call to the archive.
package finalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"

	"voice-intake-bridge/internal/archive"
	"voice-intake-bridge/internal/models"
	"voice-intake-bridge/internal/observability/metrics"
	"voice-intake-bridge/internal/service/handoff"
	"voice-intake-bridge/internal/service/transcript"
)

// Call is everything known about a call when it closes.
type Call struct {
	CallID      string
	StreamToken string
	SessionID   string
	CloseReason string
	StartedAt   time.Time
	CompletedAt time.Time
	Transcript  []transcript.Entry
	Handoff     handoff.Record
	AudioFrames int
}

// Config controls persistence retries. Zero retries means one attempt.
type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// Finalizer writes the transcript, intake and recording artifacts of a call.
type Finalizer struct {
	store   archive.Store
	cfg     Config
	metrics *metrics.Metrics
}

// New creates a finalizer writing to store.
func New(store archive.Store, cfg Config) *Finalizer {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Finalizer{
		store:   store,
		cfg:     cfg,
		metrics: metrics.DefaultMetrics,
	}
}

// Finalize attempts all three artifact writes, each independently of the
// others' outcome, and returns the joined errors. When ctx has a deadline the
// remaining time is shared among the writes still to run, so a stalled write
// cannot starve the ones after it.
func (f *Finalizer) Finalize(ctx context.Context, call Call) error {
	if call.CompletedAt.IsZero() {
		call.CompletedAt = time.Now().UTC()
	}
	entries := call.Transcript
	if entries == nil {
		entries = []transcript.Entry{}
	}

	artifacts := []struct {
		name  archive.Artifact
		value any
	}{
		{archive.ArtifactTranscript, entries},
		{archive.ArtifactIntake, call.Handoff},
		{archive.ArtifactRecording, models.RecordingMetadata{
			CallID:          call.CallID,
			StreamToken:     call.StreamToken,
			SessionID:       call.SessionID,
			AudioFrames:     call.AudioFrames,
			TranscriptCount: len(call.Transcript),
			CloseReason:     call.CloseReason,
			StartedAt:       call.StartedAt,
			CompletedAt:     call.CompletedAt,
			DurationSeconds: call.CompletedAt.Sub(call.StartedAt).Seconds(),
		}},
	}

	logger := log.With().Str("callId", call.CallID).Logger()

	var errs []error
	for i, a := range artifacts {
		body, err := json.MarshalIndent(a.value, "", "  ")
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.name, err))
			continue
		}

		wctx, cancel := writeContext(ctx, len(artifacts)-i)
		start := time.Now()
		err = f.put(wctx, call.CallID, a.name, body)
		cancel()
		f.metrics.RecordArtifactWrite(string(a.name), err, time.Since(start).Seconds())
		if err != nil {
			logger.Error().Err(err).Str("artifact", string(a.name)).Msg("Failed to persist call artifact")
			errs = append(errs, fmt.Errorf("%s: %w", a.name, err))
			continue
		}
		logger.Debug().Str("artifact", string(a.name)).Int("bytes", len(body)).Msg("Call artifact persisted")
	}

	if len(errs) == 0 {
		logger.Info().
			Int("transcriptEntries", len(call.Transcript)).
			Int("audioFrames", call.AudioFrames).
			Msg("Call data saved")
	}
	return errors.Join(errs...)
}

func (f *Finalizer) put(ctx context.Context, callID string, name archive.Artifact, body []byte) error {
	if f.cfg.MaxRetries <= 0 {
		return f.store.Put(ctx, callID, name, body)
	}

	b := retry.WithMaxRetries(uint64(f.cfg.MaxRetries), retry.NewExponential(f.cfg.RetryBackoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := f.store.Put(ctx, callID, name, body); err != nil {
			log.Warn().Err(err).Str("callId", callID).Str("artifact", string(name)).Msg("Artifact write failed, retrying")
			return retry.RetryableError(err)
		}
		return nil
	})
}

// writeContext bounds one write to an equal share of what is left of ctx's
// deadline across the remaining writes.
func writeContext(ctx context.Context, remaining int) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok || remaining <= 1 {
		return context.WithCancel(ctx)
	}
	share := time.Until(deadline) / time.Duration(remaining)
	return context.WithTimeout(ctx, share)
}
