// Package realtime defines the interface for the AI realtime connection that
// each call session talks to.
package realtime

import (
	"context"
	"errors"

	"voice-intake-bridge/internal/codec"
)

var (
	// ErrNotConfigured is returned when required connection parameters are missing.
	ErrNotConfigured = errors.New("realtime connection not configured")
	// ErrClosed is returned by Send after the connection is closed.
	ErrClosed = errors.New("realtime connection closed")
)

// Callback receives events from the AI connection. Calls are made from a
// single goroutine in the order frames were received.
type Callback interface {
	// OnEvent is called for every decoded frame, including Unknown ones.
	OnEvent(ev codec.AIEvent)

	// OnDecodeError is called for a frame that could not be decoded.
	OnDecodeError(err error)

	// OnClose is called once when the transport is gone. err is nil for a
	// locally requested close.
	OnClose(err error)
}

// Adapter is one AI realtime connection.
type Adapter interface {
	// Start opens the connection and begins delivering events to cb.
	Start(ctx context.Context, cb Callback) error

	// Send queues a raw frame. Frames are written in call order.
	Send(ctx context.Context, frame []byte) error

	// Close ends the connection. It does not wait for the read side to drain.
	Close() error
}

// Factory creates an adapter for a call.
type Factory func(callID string) (Adapter, error)
