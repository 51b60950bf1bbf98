// Package instructions builds the opening frames for an AI session: the
// session configuration and the greeting request.
package instructions

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"voice-intake-bridge/internal/codec"
	"voice-intake-bridge/internal/config"
	"voice-intake-bridge/internal/service/session"
)

// ReferenceSource supplies reference text for the instructions template.
type ReferenceSource interface {
	Text(ctx context.Context) string
}

// templateData is what the instructions template sees.
type templateData struct {
	Reference    string
	CallerNumber string
	CallID       string
}

// Builder renders the profile into negotiation frames. It implements
// session.Negotiator.
type Builder struct {
	profile   config.Profile
	tmpl      *template.Template
	reference ReferenceSource
}

// New parses the profile's instructions template. reference may be nil.
func New(profile config.Profile, reference ReferenceSource) (*Builder, error) {
	tmpl, err := template.New("instructions").Option("missingkey=error").Parse(profile.Instructions)
	if err != nil {
		return nil, fmt.Errorf("parse instructions template: %w", err)
	}
	return &Builder{profile: profile, tmpl: tmpl, reference: reference}, nil
}

// Instructions renders the system instructions for a call.
func (b *Builder) Instructions(ctx context.Context, call session.CallInfo) (string, error) {
	data := templateData{CallerNumber: call.CallerNumber, CallID: call.CallID}
	if b.reference != nil {
		data.Reference = b.reference.Text(ctx)
	}

	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render instructions: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}

// SessionConfig returns the session.update body for the given instructions.
func (b *Builder) SessionConfig(instructions string) codec.SessionConfig {
	p := b.profile
	voice := p.Voice
	turn := p.TurnDetection

	cfg := codec.SessionConfig{
		Modalities:        []string{"text", "audio"},
		Instructions:      instructions,
		Voice:             &voice,
		InputAudioFormat:  p.AudioFormat,
		OutputAudioFormat: p.AudioFormat,
		Temperature:       p.Temperature,
		OutputAudioSpeed:  p.OutputAudioSpeed,
	}
	if turn.Type != "" {
		cfg.TurnDetection = &turn
	}
	if p.NoiseReduction != "" {
		cfg.NoiseReduction = &codec.TypedSetting{Type: p.NoiseReduction}
	}
	if p.EchoCancellation != "" {
		cfg.EchoCancellation = &codec.TypedSetting{Type: p.EchoCancellation}
	}
	if p.TranscriptionModel != "" {
		cfg.Transcription = &codec.Transcription{Model: p.TranscriptionModel}
	}
	return cfg
}

// Frames returns session.update followed by the greeting response.create.
func (b *Builder) Frames(ctx context.Context, call session.CallInfo) ([][]byte, error) {
	instructions, err := b.Instructions(ctx, call)
	if err != nil {
		return nil, err
	}

	update, err := codec.EncodeSessionUpdate(b.SessionConfig(instructions))
	if err != nil {
		return nil, fmt.Errorf("encode session.update: %w", err)
	}
	greeting, err := codec.EncodeResponseCreate(b.profile.Greeting)
	if err != nil {
		return nil, fmt.Errorf("encode greeting: %w", err)
	}
	return [][]byte{update, greeting}, nil
}
