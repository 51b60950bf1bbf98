package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"voice-intake-bridge/internal/api/voice"
	"voice-intake-bridge/internal/app"
	"voice-intake-bridge/internal/observability"
	"voice-intake-bridge/internal/observability/metrics"
)

// SessionCounter reports how many calls are live.
type SessionCounter interface {
	Count() int
}

// Handlers are the call-facing endpoints mounted by the router.
type Handlers struct {
	Voice    http.Handler
	Media    http.Handler
	Sessions SessionCounter
}

type healthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	ActiveSessions int       `json:"activeSessions"`
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, h Handlers) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.AccessLog(metrics.DefaultMetrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
		}
		if h.Sessions != nil {
			resp.ActiveSessions = h.Sessions.Count()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			application.Logger.Warn().Err(err).Msg("Failed to write health response")
		}
	})

	if h.Voice != nil {
		r.Post("/voice", h.Voice.ServeHTTP)
	}
	if h.Media != nil {
		r.Get(voice.MediaStreamPath, h.Media.ServeHTTP)
	}

	return r
}
