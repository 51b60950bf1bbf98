package voice

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-intake-bridge/internal/config"
)

func post(t *testing.T, h http.Handler, host string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"CallSid": {"CA1"}, "From": {"+16015550000"}}
	req := httptest.NewRequest(http.MethodPost, "/voice", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Host = host

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_ConnectsMediaStream(t *testing.T) {
	h, err := NewHandler(config.TelephonyConfig{})
	require.NoError(t, err)

	rec := post(t, h, "bridge.example.org")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "<Response>")
	assert.Contains(t, body, "<Connect>")
	assert.Contains(t, body, `url="wss://bridge.example.org/media-stream"`)
	assert.Contains(t, body, `name="from"`)
	assert.Contains(t, body, `value="+16015550000"`)
	assert.NotContains(t, body, "<Dial")
}

func TestHandler_PublicHostOverridesRequestHost(t *testing.T) {
	h, err := NewHandler(config.TelephonyConfig{PublicHost: "calls.example.org"})
	require.NoError(t, err)

	body := post(t, h, "10.0.0.5:8080").Body.String()
	assert.Contains(t, body, `url="wss://calls.example.org/media-stream"`)
}

func TestHandler_BusinessHoursForwarding(t *testing.T) {
	h, err := NewHandler(config.TelephonyConfig{
		ForwardNumber:    "+16015551234",
		BusinessHours:    "09:00-17:00",
		BusinessTimezone: "America/Chicago",
	})
	require.NoError(t, err)
	chicago, _ := time.LoadLocation("America/Chicago")

	tests := []struct {
		name    string
		at      time.Time
		forward bool
	}{
		{"weekday open", time.Date(2025, 3, 5, 10, 0, 0, 0, chicago), true},
		{"weekday at opening", time.Date(2025, 3, 5, 9, 0, 0, 0, chicago), true},
		{"weekday at closing", time.Date(2025, 3, 5, 17, 0, 0, 0, chicago), false},
		{"weekday night", time.Date(2025, 3, 5, 22, 0, 0, 0, chicago), false},
		{"saturday", time.Date(2025, 3, 8, 10, 0, 0, 0, chicago), false},
		{"utc converted", time.Date(2025, 3, 5, 16, 0, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.now = func() time.Time { return tt.at }
			body := post(t, h, "bridge.example.org").Body.String()
			if tt.forward {
				assert.Contains(t, body, "<Dial>+16015551234</Dial>")
				assert.NotContains(t, body, "<Connect>")
			} else {
				assert.Contains(t, body, "<Connect>")
			}
		})
	}
}

func TestNewHandler_InvalidHours(t *testing.T) {
	_, err := NewHandler(config.TelephonyConfig{
		ForwardNumber:    "+16015551234",
		BusinessHours:    "nine to five",
		BusinessTimezone: "America/Chicago",
	})
	assert.Error(t, err)
}
