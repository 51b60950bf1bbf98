package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-intake-bridge/internal/app"
	"voice-intake-bridge/internal/config"
)

type fixedCount int

func (c fixedCount) Count() int { return int(c) }

func newTestApp() *app.Application {
	return app.New(config.Load(), config.DefaultProfile())
}

func TestRouter_Health(t *testing.T) {
	r := NewRouter(newTestApp(), Handlers{Sessions: fixedCount(3)})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Status         string `json:"status"`
		Timestamp      string `json:"timestamp"`
		ActiveSessions int    `json:"activeSessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.NotEmpty(t, body.Timestamp)
	assert.Equal(t, 3, body.ActiveSessions)
}

func TestRouter_MountsCallEndpoints(t *testing.T) {
	var voiceHits, mediaHits int
	r := NewRouter(newTestApp(), Handlers{
		Voice: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { voiceHits++ }),
		Media: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { mediaHits++ }),
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/voice", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/media-stream", nil))
	assert.Equal(t, 1, voiceHits)
	assert.Equal(t, 1, mediaHits)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/voice", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(newTestApp(), Handlers{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/hello", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
