package codec

import "encoding/json"

// SessionConfig is the session.update body sent after SessionNegotiated.
// Voice and turn detection are passed through as configured.
type SessionConfig struct {
	Modalities        []string       `json:"modalities"`
	Instructions      string         `json:"instructions"`
	Voice             *Voice         `json:"voice,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format"`
	OutputAudioFormat string         `json:"output_audio_format"`
	Temperature       float64        `json:"temperature,omitempty"`
	OutputAudioSpeed  float64        `json:"output_audio_speed,omitempty"`
	TurnDetection     *TurnDetection `json:"turn_detection,omitempty"`
	NoiseReduction    *TypedSetting  `json:"input_audio_noise_reduction,omitempty"`
	EchoCancellation  *TypedSetting  `json:"input_audio_echo_cancellation,omitempty"`
	Transcription     *Transcription `json:"input_audio_transcription,omitempty"`
}

// Voice selects the assistant voice.
type Voice struct {
	Name        string  `json:"name" yaml:"name"`
	Type        string  `json:"type,omitempty" yaml:"type"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature"`
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type" yaml:"type"`
	Threshold         float64 `json:"threshold,omitempty" yaml:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty" yaml:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty" yaml:"silence_duration_ms"`
	InterruptResponse bool    `json:"interrupt_response" yaml:"interrupt_response"`
	RemoveFillerWords bool    `json:"remove_filler_words,omitempty" yaml:"remove_filler_words"`
}

// TypedSetting is a setting selected only by its type name.
type TypedSetting struct {
	Type string `json:"type"`
}

// Transcription enables caller-side transcription.
type Transcription struct {
	Model string `json:"model"`
}

// EncodeSessionUpdate frames a session.update request.
func EncodeSessionUpdate(cfg SessionConfig) ([]byte, error) {
	return json.Marshal(struct {
		Type    string        `json:"type"`
		Session SessionConfig `json:"session"`
	}{Type: "session.update", Session: cfg})
}

// EncodeResponseCreate frames a response.create request with per-response
// instructions, used for the opening greeting.
func EncodeResponseCreate(instructions string) ([]byte, error) {
	type response struct {
		Modalities   []string `json:"modalities"`
		Instructions string   `json:"instructions,omitempty"`
	}
	return json.Marshal(struct {
		Type     string   `json:"type"`
		Response response `json:"response"`
	}{
		Type:     "response.create",
		Response: response{Modalities: []string{"text", "audio"}, Instructions: instructions},
	})
}
