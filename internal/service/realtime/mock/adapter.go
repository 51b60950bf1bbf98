// Package mock provides a realtime adapter for tests and for running the
// bridge without AI credentials.
//
// In scripted mode it plays the remote side of a conversation: it announces
// the session on Start, confirms session.update, answers response.create with
// a spoken greeting, and after every ScriptEvery caller frames plays the next
// scripted caller utterance and assistant reply.
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"voice-intake-bridge/internal/codec"
	"voice-intake-bridge/internal/service/realtime"
	"voice-intake-bridge/internal/service/transcript"
)

// Turn is one scripted exchange.
type Turn struct {
	Caller    string
	Assistant string
}

// DefaultScript is a short intake conversation.
var DefaultScript = []Turn{
	{
		Caller:    "Hi, my name is Jane Doe.",
		Assistant: "Thanks Jane. Where are you calling from?\nINTAKE: {\"name\":\"Jane Doe\"}",
	},
	{
		Caller:    "Jackson, Mississippi.",
		Assistant: "Got it. What can we help with today?\nINTAKE: {\"city\":\"Jackson\",\"state\":\"MS\"}",
	},
	{
		Caller:    "I need help finding housing.",
		Assistant: "Someone will call you back soon.\nINTAKE: {\"reason\":\"housing\"}",
	},
}

// silence is 20ms of mu-law silence, base64 encoded.
const silence = "/////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////w=="

// Adapter implements realtime.Adapter in memory.
type Adapter struct {
	mu       sync.Mutex
	cb       realtime.Callback
	frames   [][]byte
	started  bool
	closed   bool
	StartErr error

	scripted    bool
	script      []Turn
	scriptEvery int
	audioFrames int
	turn        int
	pending     []codec.AIEvent
	wake        chan struct{}
	done        chan struct{}
}

// New creates a passive adapter: it records frames and only emits what the
// test tells it to.
func New() *Adapter {
	return &Adapter{done: make(chan struct{})}
}

// NewScripted creates an adapter that simulates the remote conversation.
func NewScripted(script []Turn, every int) *Adapter {
	if every <= 0 {
		every = 50
	}
	return &Adapter{
		scripted:    true,
		script:      script,
		scriptEvery: every,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Factory returns a realtime.Factory producing scripted adapters.
func Factory(script []Turn, every int) realtime.Factory {
	return func(string) (realtime.Adapter, error) {
		return NewScripted(script, every), nil
	}
}

// Start records the callback. Scripted adapters announce the session.
func (a *Adapter) Start(ctx context.Context, cb realtime.Callback) error {
	if a.StartErr != nil {
		return a.StartErr
	}
	a.mu.Lock()
	a.cb = cb
	a.started = true
	a.mu.Unlock()

	if a.scripted {
		a.mu.Lock()
		a.enqueue(codec.SessionNegotiated{SessionID: "mock-session"})
		a.mu.Unlock()
		go a.dispatch(cb)
	}
	return nil
}

// Send records a frame. Scripted adapters react to it asynchronously.
func (a *Adapter) Send(ctx context.Context, frame []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return realtime.ErrClosed
	}
	a.frames = append(a.frames, append([]byte(nil), frame...))

	if a.scripted {
		a.react(frame)
	}
	return nil
}

// Close marks the adapter closed and reports the close to the callback.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	cb := a.cb
	close(a.done)
	a.mu.Unlock()

	if cb != nil {
		go cb.OnClose(nil)
	}
	return nil
}

// Emit delivers an event synchronously on the caller's goroutine.
func (a *Adapter) Emit(ev codec.AIEvent) {
	a.mu.Lock()
	cb := a.cb
	a.mu.Unlock()
	if cb != nil {
		cb.OnEvent(ev)
	}
}

// Disconnect simulates the remote dropping the connection.
func (a *Adapter) Disconnect(err error) {
	a.mu.Lock()
	cb := a.cb
	if !a.closed {
		a.closed = true
		close(a.done)
	}
	a.mu.Unlock()
	if cb != nil {
		cb.OnClose(err)
	}
}

// Frames returns a copy of every frame sent so far.
func (a *Adapter) Frames() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([][]byte, len(a.frames))
	copy(out, a.frames)
	return out
}

// FramesOfType returns the sent frames whose "type" matches.
func (a *Adapter) FramesOfType(typ string) []map[string]any {
	var out []map[string]any
	for _, f := range a.Frames() {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			continue
		}
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

// IsClosed reports whether Close was called or the remote disconnected.
func (a *Adapter) IsClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// IsStarted reports whether Start succeeded.
func (a *Adapter) IsStarted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

// enqueue appends events for the dispatcher. Callers hold a.mu.
func (a *Adapter) enqueue(events ...codec.AIEvent) {
	a.pending = append(a.pending, events...)
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *Adapter) dispatch(cb realtime.Callback) {
	for {
		select {
		case <-a.wake:
		case <-a.done:
			return
		}

		a.mu.Lock()
		batch := a.pending
		a.pending = nil
		a.mu.Unlock()

		for _, ev := range batch {
			select {
			case <-a.done:
				return
			default:
			}
			cb.OnEvent(ev)
		}
	}
}

// react runs with a.mu held.
func (a *Adapter) react(frame []byte) {
	var f struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &f); err != nil {
		return
	}

	switch f.Type {
	case "session.update":
		a.enqueue(codec.SessionReady{SessionID: "mock-session"})
	case "response.create":
		a.enqueue(a.reply("Hello, thanks for calling. How can I help you today?")...)
	case "input_audio_buffer.append":
		a.audioFrames++
		if a.audioFrames%a.scriptEvery != 0 || a.turn >= len(a.script) {
			return
		}
		t := a.script[a.turn]
		a.turn++
		events := []codec.AIEvent{
			codec.SpeechStarted{},
			codec.SpeechStopped{},
			codec.TranscriptFinal{Text: t.Caller, Role: transcript.RoleCaller},
		}
		a.enqueue(append(events, a.reply(t.Assistant)...)...)
	}
}

func (a *Adapter) reply(text string) []codec.AIEvent {
	return []codec.AIEvent{
		codec.ResponseCreated{ResponseID: "mock-response"},
		codec.AudioChunk{Payload: silence},
		codec.TranscriptChunk{Text: text, Role: transcript.RoleAssistant},
		codec.AudioDone{},
		codec.TranscriptFinal{Text: text, Role: transcript.RoleAssistant},
		codec.ResponseDone{Status: "completed"},
	}
}
