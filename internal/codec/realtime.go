package codec

import (
	"encoding/json"
	"strings"

	"voice-intake-bridge/internal/service/transcript"
)

// AIEvent is one decoded frame from the AI realtime connection.
type AIEvent interface {
	aiEvent()
}

// SessionNegotiated is sent once the AI connection accepted the handshake and
// is waiting for session configuration.
type SessionNegotiated struct {
	SessionID string
}

// SessionReady confirms the session configuration; audio may now flow.
type SessionReady struct {
	SessionID string
}

// SpeechStarted signals caller speech onset detected by the remote VAD.
type SpeechStarted struct{}

// SpeechStopped signals the end of caller speech.
type SpeechStopped struct{}

// ResponseCreated marks the start of an assistant response.
type ResponseCreated struct {
	ResponseID string
}

// AudioChunk carries one base64 assistant audio frame.
type AudioChunk struct {
	Payload string
}

// AudioDone marks the end of assistant audio for a response.
type AudioDone struct{}

// ResponseDone marks the end of an assistant response. Status is reported by
// the remote (completed, cancelled, failed, ...) and may be empty.
type ResponseDone struct {
	Status string
}

// TranscriptChunk is an incremental transcript fragment.
type TranscriptChunk struct {
	Text string
	Role transcript.Role
}

// TranscriptFinal is a completed utterance transcript.
type TranscriptFinal struct {
	Text string
	Role transcript.Role
}

// Error is an error reported in-band by the AI connection.
type Error struct {
	Detail string
}

// Unknown is any frame whose type the bridge does not act on.
type Unknown struct {
	Type string
	Raw  []byte
}

func (SessionNegotiated) aiEvent() {}
func (SessionReady) aiEvent() {}
func (SpeechStarted) aiEvent() {}
func (SpeechStopped) aiEvent() {}
func (ResponseCreated) aiEvent() {}
func (AudioChunk) aiEvent() {}
func (AudioDone) aiEvent() {}
func (ResponseDone) aiEvent() {}
func (TranscriptChunk) aiEvent() {}
func (TranscriptFinal) aiEvent() {}
func (Error) aiEvent() {}
func (Unknown) aiEvent() {}

type aiFrame struct {
	Type       string          `json:"type"`
	Delta      string          `json:"delta"`
	Audio      string          `json:"audio"`
	Transcript string          `json:"transcript"`
	Text       string          `json:"text"`
	Session    *idObject       `json:"session"`
	Response   *responseObject `json:"response"`
	Item       *itemObject     `json:"item"`
	Error      json.RawMessage `json:"error"`
}

type idObject struct {
	ID string `json:"id"`
}

type responseObject struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type itemObject struct {
	Role      string `json:"role"`
	Formatted *struct {
		Transcript string `json:"transcript"`
		Text       string `json:"text"`
	} `json:"formatted"`
	Content []struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		Transcript string `json:"transcript"`
	} `json:"content"`
}

// aiFrameTypes are the frame types whose fields DecodeOutbound reads. Any
// other type is returned as Unknown without looking past the type.
var aiFrameTypes = map[string]bool{
	"session.created":                                       true,
	"session.updated":                                       true,
	"input_audio_buffer.speech_started":                     true,
	"input_audio_buffer.speech_stopped":                     true,
	"response.created":                                      true,
	"response.audio.delta":                                  true,
	"response.audio_delta":                                  true,
	"response.output_audio.delta":                           true,
	"response.audio.done":                                   true,
	"response.audio_done":                                   true,
	"response.output_audio.done":                            true,
	"response.done":                                         true,
	"response.cancelled":                                    true,
	"response.audio_transcript.delta":                       true,
	"response.output_audio_transcript.delta":                true,
	"response.text.delta":                                   true,
	"response.output_text.delta":                            true,
	"conversation.item.input_audio_transcription.delta":     true,
	"response.audio_transcript.done":                        true,
	"response.output_audio_transcript.done":                 true,
	"response.text.done":                                    true,
	"response.output_text.done":                             true,
	"conversation.item.input_audio_transcription.completed": true,
	"conversation.item.created":                             true,
	"conversation.item.added":                               true,
	"error":                                                 true,
	"conversation.item.input_audio_transcription.failed":    true,
}

// DecodeOutbound decodes a raw AI realtime frame. The type is read first;
// the remaining fields are decoded only for recognised types.
func DecodeOutbound(raw []byte) (AIEvent, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, decodeErr(SourceRealtime, "", "invalid json", err)
	}
	if env.Type == "" {
		return nil, missing(SourceRealtime, "", "type")
	}
	if !aiFrameTypes[env.Type] {
		return Unknown{Type: env.Type, Raw: raw}, nil
	}

	var f aiFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, decodeErr(SourceRealtime, env.Type, "invalid payload", err)
	}

	switch f.Type {

	case "session.created":
		return SessionNegotiated{SessionID: sessionID(f)}, nil
	case "session.updated":
		return SessionReady{SessionID: sessionID(f)}, nil

	case "input_audio_buffer.speech_started":
		return SpeechStarted{}, nil
	case "input_audio_buffer.speech_stopped":
		return SpeechStopped{}, nil

	case "response.created":
		ev := ResponseCreated{}
		if f.Response != nil {
			ev.ResponseID = f.Response.ID
		}
		return ev, nil

	case "response.audio.delta", "response.audio_delta", "response.output_audio.delta":
		payload := f.Delta
		if payload == "" {
			payload = f.Audio
		}
		if payload == "" {
			return nil, missing(SourceRealtime, f.Type, "delta")
		}
		return AudioChunk{Payload: payload}, nil
	case "response.audio.done", "response.audio_done", "response.output_audio.done":
		return AudioDone{}, nil

	case "response.done":
		ev := ResponseDone{}
		if f.Response != nil {
			ev.Status = f.Response.Status
		}
		return ev, nil
	case "response.cancelled":
		return ResponseDone{Status: "cancelled"}, nil

	case "response.audio_transcript.delta", "response.output_audio_transcript.delta",
		"response.text.delta", "response.output_text.delta":
		return TranscriptChunk{Text: f.Delta, Role: transcript.RoleAssistant}, nil
	case "conversation.item.input_audio_transcription.delta":
		return TranscriptChunk{Text: f.Delta, Role: transcript.RoleCaller}, nil

	case "response.audio_transcript.done", "response.output_audio_transcript.done":
		return finalOrUnknown(f, raw, f.Transcript, transcript.RoleAssistant), nil
	case "response.text.done", "response.output_text.done":
		return finalOrUnknown(f, raw, f.Text, transcript.RoleAssistant), nil
	case "conversation.item.input_audio_transcription.completed":
		return finalOrUnknown(f, raw, f.Transcript, transcript.RoleCaller), nil
	case "conversation.item.created", "conversation.item.added":
		if f.Item == nil {
			return Unknown{Type: f.Type, Raw: raw}, nil
		}
		return finalOrUnknown(f, raw, itemText(f.Item), itemRole(f.Item.Role)), nil

	case "error", "conversation.item.input_audio_transcription.failed":
		return Error{Detail: errorDetail(f.Error)}, nil

	default:
		return Unknown{Type: f.Type, Raw: raw}, nil
	}
}

func sessionID(f aiFrame) string {
	if f.Session == nil {
		return ""
	}
	return f.Session.ID
}

func finalOrUnknown(f aiFrame, raw []byte, text string, role transcript.Role) AIEvent {
	if strings.TrimSpace(text) == "" {
		return Unknown{Type: f.Type, Raw: raw}
	}
	return TranscriptFinal{Text: text, Role: role}
}

func itemText(item *itemObject) string {
	if item.Formatted != nil {
		if item.Formatted.Transcript != "" {
			return item.Formatted.Transcript
		}
		if item.Formatted.Text != "" {
			return item.Formatted.Text
		}
	}
	for _, c := range item.Content {
		switch c.Type {
		case "text", "input_text", "output_text":
			if c.Text != "" {
				return c.Text
			}
		}
		if c.Transcript != "" {
			return c.Transcript
		}
	}
	return ""
}

func itemRole(role string) transcript.Role {
	if role == "user" {
		return transcript.RoleCaller
	}
	return transcript.RoleAssistant
}

func errorDetail(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "unspecified error"
	}
	var e struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(raw, &e); err == nil && e.Message != "" {
		if e.Code != "" {
			return e.Code + ": " + e.Message
		}
		return e.Message
	}
	return string(raw)
}

// EncodeAudioIn frames a caller audio payload for the AI connection.
func EncodeAudioIn(payload string) []byte {
	b, _ := json.Marshal(struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}{Type: "input_audio_buffer.append", Audio: payload})
	return b
}

// EncodeCancel frames a response cancellation request.
func EncodeCancel() []byte {
	return []byte(`{"type":"response.cancel"}`)
}
