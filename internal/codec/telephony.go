package codec

import (
	"encoding/json"
)

// TelephonyEvent is one decoded frame from the media-stream connection.
type TelephonyEvent interface {
	telephonyEvent()
}

// Start opens a media stream for a call.
type Start struct {
	CallID       string
	StreamToken  string
	CallerNumber string
}

// Media carries one base64 audio frame in the telephony native encoding.
type Media struct {
	Payload string
}

// Stop ends the media stream.
type Stop struct{}

// Other is a recognised telephony event the bridge does not act on
// (connected, mark, dtmf).
type Other struct {
	Event string
}

func (Start) telephonyEvent() {}
func (Media) telephonyEvent() {}
func (Stop) telephonyEvent() {}
func (Other) telephonyEvent() {}

type telephonyFrame struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid,omitempty"`
	Start     *struct {
		CallSid          string            `json:"callSid"`
		StreamSid        string            `json:"streamSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start,omitempty"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
}

// DecodeInbound decodes a raw telephony frame.
func DecodeInbound(raw []byte) (TelephonyEvent, error) {
	var f telephonyFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, decodeErr(SourceTelephony, "", "invalid json", err)
	}

	switch f.Event {
	case "start":
		if f.Start == nil {
			return nil, missing(SourceTelephony, f.Event, "start")
		}
		ev := Start{
			CallID:      f.Start.CallSid,
			StreamToken: f.Start.StreamSid,
		}
		if ev.StreamToken == "" {
			ev.StreamToken = f.StreamSid
		}
		if f.Start.CustomParameters != nil {
			ev.CallerNumber = f.Start.CustomParameters["from"]
		}
		if ev.CallID == "" {
			return nil, missing(SourceTelephony, f.Event, "start.callSid")
		}
		return ev, nil
	case "media":
		if f.Media == nil || f.Media.Payload == "" {
			return nil, missing(SourceTelephony, f.Event, "media.payload")
		}
		return Media{Payload: f.Media.Payload}, nil
	case "stop":
		return Stop{}, nil
	case "connected", "mark", "dtmf":
		return Other{Event: f.Event}, nil
	case "":
		return nil, missing(SourceTelephony, "", "event")
	default:
		return nil, decodeErr(SourceTelephony, f.Event, "unrecognized event", nil)
	}
}

type outboundMedia struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// EncodeAudioOut frames an assistant audio payload for the telephony connection.
func EncodeAudioOut(payload, streamToken string) []byte {
	f := outboundMedia{Event: "media", StreamSid: streamToken}
	f.Media.Payload = payload
	b, _ := json.Marshal(f)
	return b
}

// EncodeStart frames a start event. Used by the call simulator and tests.
func EncodeStart(callID, streamToken, callerNumber string) []byte {
	f := map[string]any{
		"event":     "start",
		"streamSid": streamToken,
		"start": map[string]any{
			"callSid":          callID,
			"streamSid":        streamToken,
			"customParameters": map[string]string{"from": callerNumber},
		},
	}
	b, _ := json.Marshal(f)
	return b
}

// EncodeMediaIn frames caller audio the way the telephony provider sends it.
func EncodeMediaIn(payload, streamToken string) []byte {
	return EncodeAudioOut(payload, streamToken)
}

// EncodeStop frames a stop event.
func EncodeStop(streamToken string) []byte {
	b, _ := json.Marshal(map[string]string{"event": "stop", "streamSid": streamToken})
	return b
}
