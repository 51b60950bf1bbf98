package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"voice-intake-bridge/internal/codec"
)

// Profile describes what the assistant is told at the start of every call.
// Voice and turn detection are passed to the AI session as configured.
type Profile struct {
	// Instructions is a text/template rendered with .Reference and
	// .CallerNumber.
	Instructions       string              `yaml:"instructions"`
	Greeting           string              `yaml:"greeting"`
	Voice              codec.Voice         `yaml:"voice"`
	Temperature        float64             `yaml:"temperature"`
	OutputAudioSpeed   float64             `yaml:"output_audio_speed"`
	AudioFormat        string              `yaml:"audio_format"`
	TurnDetection      codec.TurnDetection `yaml:"turn_detection"`
	NoiseReduction     string              `yaml:"noise_reduction"`
	EchoCancellation   string              `yaml:"echo_cancellation"`
	TranscriptionModel string              `yaml:"transcription_model"`
	ReferenceURLs      []string            `yaml:"reference_urls"`
}

const defaultInstructions = `You are the phone intake assistant. Speak only English. Be warm and brief,
ask one question at a time, and keep answers to one or two sentences.

Collect the caller's name, phone number, city, state and the reason for the call.
{{- if .CallerNumber}}
The caller is calling from {{.CallerNumber}}; confirm it is a good number to call back.
{{- end}}

Whenever you learn or correct any of these details, add one line to your text
response that starts with INTAKE: followed by a JSON object containing only the
fields you learned, for example:
INTAKE: {"name":"Jane Doe","city":"Jackson"}
Use the keys name, phone, city, state and reason. Never read that line aloud.
{{- if .Reference}}

Below is reference information about the organization. Use it to answer
questions and do not invent details that are not in it.

{{.Reference}}
{{- end}}`

// DefaultProfile returns the built-in profile.
func DefaultProfile() Profile {
	return Profile{
		Instructions: defaultInstructions,
		Greeting:     "Respond only in English. Greet the caller warmly, introduce yourself, and ask how you can help today.",
		Voice: codec.Voice{
			Name:        "DragonHDLatest",
			Temperature: 0.8,
		},
		Temperature:      0.8,
		OutputAudioSpeed: 1.0,
		AudioFormat:      "g711_ulaw",
		TurnDetection: codec.TurnDetection{
			Type:              "azure_semantic_vad",
			Threshold:         0.3,
			SilenceDurationMs: 200,
			InterruptResponse: true,
			RemoveFillerWords: true,
		},
		NoiseReduction:     "azure_deep_noise_suppression",
		EchoCancellation:   "server_echo_cancellation",
		TranscriptionModel: "whisper-1",
	}
}

// LoadProfile reads a YAML profile from path over the defaults. An empty
// path returns the defaults.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return p, fmt.Errorf("read session profile: %w", err)
		}
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return p, fmt.Errorf("parse session profile %s: %w", path, err)
		}
	}

	if p.Voice.Type == "" {
		p.Voice.Type = voiceType(p.Voice.Name)
	}
	if strings.TrimSpace(p.Instructions) == "" {
		return p, fmt.Errorf("session profile %s: instructions must not be empty", path)
	}
	return p, nil
}

// voiceType infers the voice family from its name: HD voices end in
// HDLatest, everything else is a standard neural voice.
func voiceType(name string) string {
	if strings.Contains(name, "HDLatest") {
		return "azure-hd"
	}
	return "azure-standard"
}
