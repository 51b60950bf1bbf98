package media

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-intake-bridge/internal/codec"
	"voice-intake-bridge/internal/service/finalize"
	"voice-intake-bridge/internal/service/realtime"
	"voice-intake-bridge/internal/service/realtime/mock"
	"voice-intake-bridge/internal/service/session"
)

type recordingFinalizer struct {
	mu    sync.Mutex
	calls []finalize.Call
}

func (f *recordingFinalizer) Finalize(ctx context.Context, call finalize.Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return nil
}

func (f *recordingFinalizer) Calls() []finalize.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]finalize.Call(nil), f.calls...)
}

type noopNegotiator struct{}

func (noopNegotiator) Frames(context.Context, session.CallInfo) ([][]byte, error) { return nil, nil }

func setup(t *testing.T, factory realtime.Factory) (*session.Manager, *recordingFinalizer, *websocket.Conn) {
	t.Helper()
	fin := &recordingFinalizer{}
	m := session.NewManager(session.Config{}, factory, noopNegotiator{}, fin, nil)

	srv := httptest.NewServer(NewHandler(m))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return m, fin, conn
}

func send(t *testing.T, conn *websocket.Conn, frame []byte) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func TestHandler_CallFlow(t *testing.T) {
	ai := mock.New()
	m, fin, conn := setup(t, func(string) (realtime.Adapter, error) { return ai, nil })

	send(t, conn, []byte(`{"event":"connected","protocol":"Call"}`))
	send(t, conn, codec.EncodeStart("CA1", "MZ1", "+16015550000"))
	send(t, conn, codec.EncodeMediaIn("AAA=", "MZ1"))
	send(t, conn, codec.EncodeMediaIn("BBB=", "MZ1"))
	send(t, conn, []byte(`not json`))

	var sess *session.Session
	require.Eventually(t, func() bool {
		s, ok := m.Get("CA1")
		if ok && s.AudioFrames() == 2 {
			sess = s
			return true
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "MZ1", sess.StreamToken())

	ai.Emit(codec.SessionReady{})
	assert.Len(t, ai.FramesOfType("input_audio_buffer.append"), 2)

	ai.Emit(codec.AudioChunk{Payload: "OUT="})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var out struct {
		Event     string `json:"event"`
		StreamSid string `json:"streamSid"`
		Media     struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "media", out.Event)
	assert.Equal(t, "MZ1", out.StreamSid)
	assert.Equal(t, "OUT=", out.Media.Payload)

	send(t, conn, codec.EncodeStop("MZ1"))

	require.Eventually(t, func() bool { return len(fin.Calls()) == 1 }, 2*time.Second, 5*time.Millisecond)
	call := fin.Calls()[0]
	assert.Equal(t, session.ReasonStop, call.CloseReason)
	assert.Equal(t, 2, call.AudioFrames)
	assert.Equal(t, "+16015550000", *call.Handoff.Phone)
	assert.Eventually(t, func() bool { return m.Count() == 0 }, time.Second, 5*time.Millisecond)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestHandler_TelephonyDisconnectFinalizes(t *testing.T) {
	ai := mock.New()
	m, fin, conn := setup(t, func(string) (realtime.Adapter, error) { return ai, nil })

	send(t, conn, codec.EncodeStart("CA2", "MZ2", ""))
	require.Eventually(t, func() bool { return m.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return len(fin.Calls()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, session.ReasonTelephonyClosed, fin.Calls()[0].CloseReason)
	assert.True(t, ai.IsClosed())
}

func TestHandler_EstablishmentFailure(t *testing.T) {
	m, fin, conn := setup(t, func(string) (realtime.Adapter, error) { return nil, realtime.ErrNotConfigured })

	send(t, conn, codec.EncodeStart("CA3", "MZ3", ""))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr), "got %v", err)

	assert.Zero(t, m.Count())
	assert.Empty(t, fin.Calls())
}

func TestHandler_MediaBeforeStartIsDropped(t *testing.T) {
	ai := mock.New()
	m, _, conn := setup(t, func(string) (realtime.Adapter, error) { return ai, nil })

	send(t, conn, codec.EncodeMediaIn("EARLY=", "MZ4"))
	send(t, conn, codec.EncodeStart("CA4", "MZ4", ""))

	require.Eventually(t, func() bool { return m.Count() == 1 }, 2*time.Second, 5*time.Millisecond)
	s, _ := m.Get("CA4")
	assert.Zero(t, s.AudioFrames())

	send(t, conn, codec.EncodeStop("MZ4"))
	require.Eventually(t, func() bool { return m.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}
