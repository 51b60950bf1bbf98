package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// FirestoreConfig holds Firestore settings.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
	Collection      string
}

// FirestoreStore writes each artifact as a document in
// <collection>/<callId>/artifacts/<artifact>.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore initialises a Firebase app and its Firestore client.
func NewFirestoreStore(ctx context.Context, cfg FirestoreConfig) (*FirestoreStore, error) {
	if cfg.Collection == "" {
		cfg.Collection = "calls"
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore archive: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore archive: %w", err)
	}

	log.Info().
		Str("projectId", cfg.ProjectID).
		Str("collection", cfg.Collection).
		Msg("Firestore archive initialized")

	return &FirestoreStore{client: client, collection: cfg.Collection}, nil
}

// Put stores the artifact body as a document. JSON objects are stored as
// document fields; anything else under a "data" field.
func (s *FirestoreStore) Put(ctx context.Context, callID string, artifact Artifact, body []byte) error {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("firestore archive: %s is not json: %w", artifact, err)
	}

	doc, ok := decoded.(map[string]any)
	if !ok {
		doc = map[string]any{"data": decoded}
	}
	doc["callId"] = callID
	doc["storedAt"] = time.Now().UTC()

	ref := s.client.Collection(s.collection).Doc(callID).Collection("artifacts").Doc(string(artifact))
	if _, err := ref.Set(ctx, doc); err != nil {
		return fmt.Errorf("firestore archive: set %s/%s: %w", callID, artifact, err)
	}
	return nil
}

// Close releases the Firestore client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
