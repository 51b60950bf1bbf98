package main

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-intake-bridge/internal/models"
)

func TestHub_BroadcastsToBrowsers(t *testing.T) {
	hub := newHub()
	stop := make(chan struct{})
	go hub.run(stop)
	t.Cleanup(func() { close(stop) })

	srv := httptest.NewServer(wsHandler(hub))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	want := models.TranscriptEvent{
		EventType: models.EventTranscriptFinal,
		CallID:    "CA1",
		Role:      "caller",
		Text:      "hello",
	}

	// Registration is asynchronous; keep publishing until the browser sees one.
	got := make(chan models.TranscriptEvent, 1)
	go func() {
		var ev models.TranscriptEvent
		if err := conn.ReadJSON(&ev); err == nil {
			got <- ev
		}
	}()

	deadline := time.After(2 * time.Second)
	for {
		hub.publish(want)
		select {
		case ev := <-got:
			assert.Equal(t, want, ev)
			return
		case <-deadline:
			t.Fatal("no event delivered")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestHub_PublishAfterStopDoesNotBlock(t *testing.T) {
	hub := newHub()
	stop := make(chan struct{})
	go hub.run(stop)
	close(stop)
	<-hub.done

	for i := 0; i < 200; i++ {
		hub.publish(models.TranscriptEvent{Text: "late"})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "héllo...", truncate("héllo wörld", 5))
}
