// Package archive persists the artifacts of a finished call.
//
// Every backend stores the same three artifacts per call, addressed by call
// ID and artifact name; writes are independent of one another.
package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Artifact names one of the per-call documents.
type Artifact string

const (
	ArtifactTranscript Artifact = "transcript"
	ArtifactIntake     Artifact = "intake"
	ArtifactRecording  Artifact = "recording"
)

// Path returns the object path used by key/value style backends.
func Path(prefix, callID string, a Artifact) string {
	return fmt.Sprintf("%s%s/%s.json", prefix, callID, a)
}

// Store accepts one artifact write.
type Store interface {
	Put(ctx context.Context, callID string, artifact Artifact, body []byte) error
}

// ErrUnknownBackend is returned by Open for an unrecognised backend name.
var ErrUnknownBackend = errors.New("unknown archive backend")

// LogStore writes artifacts to the log only. Used when no durable backend is
// configured.
type LogStore struct{}

// Put logs the artifact at info level.
func (LogStore) Put(ctx context.Context, callID string, artifact Artifact, body []byte) error {
	log.Info().
		Str("callId", callID).
		Str("artifact", string(artifact)).
		RawJSON("body", body).
		Msg("Call artifact (log-only archive)")
	return nil
}

// MemoryStore keeps artifacts in memory. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

// Put stores a copy of body.
func (m *MemoryStore) Put(ctx context.Context, callID string, artifact Artifact, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[Path("", callID, artifact)] = append([]byte(nil), body...)
	return nil
}

// Get returns a stored artifact.
func (m *MemoryStore) Get(callID string, artifact Artifact) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[Path("", callID, artifact)]
	return b, ok
}

// Len returns the number of stored artifacts.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
