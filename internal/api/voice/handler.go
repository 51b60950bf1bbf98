// Package voice serves the telephony call webhook. It answers with TwiML that
// connects the call's audio to the media-stream endpoint.
package voice

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go/twiml"

	"voice-intake-bridge/internal/config"
	"voice-intake-bridge/internal/observability/logging"
)

// MediaStreamPath is where the media-stream websocket is mounted.
const MediaStreamPath = "/media-stream"

// Handler answers incoming calls.
type Handler struct {
	publicHost    string
	forwardNumber string
	openMinute    int
	closeMinute   int
	location      *time.Location
	now           func() time.Time
	logger        zerolog.Logger
}

// NewHandler creates a webhook handler. Business hours are only parsed when
// a forward number is configured.
func NewHandler(cfg config.TelephonyConfig) (*Handler, error) {
	h := &Handler{
		publicHost:    cfg.PublicHost,
		forwardNumber: cfg.ForwardNumber,
		location:      time.UTC,
		now:           time.Now,
		logger:        logging.WithComponent("voice-webhook"),
	}
	if cfg.ForwardNumber == "" {
		return h, nil
	}

	open, closeAt, err := config.ParseHours(cfg.BusinessHours)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.BusinessTimezone)
	if err != nil {
		return nil, fmt.Errorf("business timezone: %w", err)
	}
	h.openMinute, h.closeMinute, h.location = open, closeAt, loc
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	callSid := r.PostForm.Get("CallSid")
	from := r.PostForm.Get("From")

	logger := h.logger.With().Str("callId", callSid).Str("from", from).Logger()

	var verbs []twiml.Element
	if h.forwarding() {
		logger.Info().Msg("Incoming call during business hours, forwarding")
		verbs = []twiml.Element{&twiml.VoiceDial{Number: h.forwardNumber}}
	} else {
		host := h.publicHost
		if host == "" {
			host = r.Host
		}
		logger.Info().Str("host", host).Msg("Incoming call, connecting media stream")

		stream := &twiml.VoiceStream{
			Url: "wss://" + host + MediaStreamPath,
			InnerElements: []twiml.Element{
				&twiml.VoiceParameter{Name: "from", Value: from},
			},
		}
		verbs = []twiml.Element{&twiml.VoiceConnect{InnerElements: []twiml.Element{stream}}}
	}

	body, err := twiml.Voice(verbs)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to render TwiML")
		http.Error(w, "cannot handle call", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// forwarding reports whether calls are currently dialled through to a person.
func (h *Handler) forwarding() bool {
	if h.forwardNumber == "" {
		return false
	}
	now := h.now().In(h.location)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	return minute >= h.openMinute && minute < h.closeMinute
}
