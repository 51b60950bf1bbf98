// Package models defines the data structures for published events and stored
// call artifacts.
package models

import "time"

// Event types carried in TranscriptEvent.EventType.
const (
	EventTranscriptPartial = "call.transcript.partial"
	EventTranscriptFinal   = "call.transcript.final"
	EventArtifact          = "call.artifact"
)

// TranscriptEvent is a live transcript update for one call.
type TranscriptEvent struct {
	EventType   string `json:"eventType"`
	CallID      string `json:"callId"`
	StreamToken string `json:"streamToken"`
	SessionID   string `json:"sessionId"`
	Role        string `json:"role"`
	Text        string `json:"text"`
	Timestamp   int64  `json:"timestamp"`
}

// RecordingMetadata is the per-call metadata artifact.
type RecordingMetadata struct {
	CallID          string    `json:"callId"`
	StreamToken     string    `json:"streamToken"`
	SessionID       string    `json:"sessionId"`
	AudioFrames     int       `json:"audioFrames"`
	TranscriptCount int       `json:"transcriptEntries"`
	CloseReason     string    `json:"closeReason"`
	StartedAt       time.Time `json:"startedAt"`
	CompletedAt     time.Time `json:"completedAt"`
	DurationSeconds float64   `json:"durationSeconds"`
}
